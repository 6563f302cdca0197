package messaging

import "time"

// LineEvent is published for every line transition.
type LineEvent struct {
	JobID      int64      `json:"job_id"`
	JobCode    string     `json:"job_code"`
	LineID     string     `json:"line_id"`
	SourceTank string     `json:"source_tank"`
	DestType   string     `json:"dest_type"`
	DestID     string     `json:"dest_id"`
	DestUnit   string     `json:"dest_unit,omitempty"`
	Status     string     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
	PausedSec  int64      `json:"paused_seconds"`
	Actor      string     `json:"actor"`
}

type StockEvent struct {
	JobID    int64   `json:"job_id,omitempty"`
	LineID   string  `json:"line_id,omitempty"`
	GroupKey string  `json:"group_key"`
	DestID   string  `json:"dest_id"`
	Quantity float64 `json:"quantity"`
	Balance  float64 `json:"balance"`
	Ref      string  `json:"ref,omitempty"`
	Actor    string  `json:"actor"`
}

type JobEvent struct {
	JobID    int64  `json:"job_id"`
	JobCode  string `json:"job_code"`
	Vessel   string `json:"vessel,omitempty"`
	Material string `json:"material,omitempty"`
	Lines    int    `json:"lines,omitempty"`
	Actor    string `json:"actor,omitempty"`
}
