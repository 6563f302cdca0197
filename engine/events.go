package engine

import (
	"unloadtrack/activity"
	"unloadtrack/store"
)

const (
	EventJobImported EventType = iota + 1
	EventLineStarted
	EventLinePaused
	EventLineResumed
	EventLineFinished
	EventStockCredited
	EventJobCompleted
	EventStockCorrected
	EventStockMetaUpdated
	EventReportArchived
	EventArrivalsConnected
	EventArrivalsDisconnected
	EventMessagingConnected
	EventMessagingDisconnected
)

var eventNames = map[EventType]string{
	EventJobImported:           "job-imported",
	EventLineStarted:           "line-started",
	EventLinePaused:            "line-paused",
	EventLineResumed:           "line-resumed",
	EventLineFinished:          "line-finished",
	EventStockCredited:         "stock-credited",
	EventJobCompleted:          "job-completed",
	EventStockCorrected:        "stock-corrected",
	EventStockMetaUpdated:      "stock-meta-updated",
	EventReportArchived:        "report-archived",
	EventArrivalsConnected:     "arrivals-connected",
	EventArrivalsDisconnected:  "arrivals-disconnected",
	EventMessagingConnected:    "messaging-connected",
	EventMessagingDisconnected: "messaging-disconnected",
}

func (t EventType) String() string {
	if n, ok := eventNames[t]; ok {
		return n
	}
	return "unknown"
}

// --- Event payloads ---

type JobImportedEvent struct {
	JobID    int64  `json:"job_id"`
	Code     string `json:"code"`
	Vessel   string `json:"vessel"`
	Material string `json:"material"`
}

// LineEvent covers start, pause, resume and finish.
type LineEvent struct {
	JobID  int64         `json:"job_id"`
	Line   activity.Line `json:"line"`
	Reason string        `json:"reason,omitempty"`
	Actor  string        `json:"actor"`
}

type StockCreditedEvent struct {
	JobID  int64             `json:"job_id"`
	Credit store.StockCredit `json:"credit"`
	Actor  string            `json:"actor"`
}

type JobCompletedEvent struct {
	JobID int64  `json:"job_id"`
	Code  string `json:"code"`
	Lines int    `json:"lines"`
	Actor string `json:"actor"`
}

type StockCorrectedEvent struct {
	CorrectionID   int64   `json:"correction_id"`
	CorrectionType string  `json:"correction_type"`
	GroupKey       string  `json:"group_key"`
	DestID         string  `json:"dest_id"`
	Before         float64 `json:"before"`
	After          float64 `json:"after"`
	Reason         string  `json:"reason"`
	Actor          string  `json:"actor"`
}

type StockMetaUpdatedEvent struct {
	GroupKey string  `json:"group_key"`
	DestID   string  `json:"dest_id"`
	Status   string  `json:"status"`
	Capacity float64 `json:"capacity"`
	Actor    string  `json:"actor"`
}

type ReportArchivedEvent struct {
	JobID int64  `json:"job_id"`
	Code  string `json:"code"`
	Key   string `json:"key"`
}

type ConnectionEvent struct {
	Detail string `json:"detail"`
}
