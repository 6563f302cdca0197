package stockstate

import "unloadtrack/store"

// GroupState is one stock group as served to the UI.
type GroupState struct {
	Key     string              `json:"key"`
	Records []store.StockRecord `json:"records"`
	// Source is "redis" or "sql".
	Source string  `json:"source"`
	Total  float64 `json:"total"`
}

func newGroupState(key, source string, records []store.StockRecord) *GroupState {
	gs := &GroupState{Key: key, Records: records, Source: source}
	for _, r := range records {
		gs.Total += r.Quantity
	}
	return gs
}
