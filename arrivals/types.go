package arrivals

import (
	"unloadtrack/activity"
	"unloadtrack/tracker"
)

const StatusReady = "ready"

// Response is the envelope every endpoint answers with; Code 0 is success.
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg,omitempty"`
}

type PingResponse struct {
	Response
	Product string `json:"product"`
	Version string `json:"version"`
}

// Job is an arrival as the upstream service describes it.
type Job struct {
	Code     string             `json:"code"`
	Vessel   string             `json:"vessel"`
	Material string             `json:"material"`
	Status   string             `json:"status"`
	Manifest map[string]float64 `json:"manifest"`
}

func (j Job) Arrival() tracker.Arrival {
	return tracker.Arrival{
		Code:     j.Code,
		Vessel:   j.Vessel,
		Material: j.Material,
		Manifest: activity.Manifest(j.Manifest),
	}
}

type JobListResponse struct {
	Response
	Data []Job `json:"data"`
}

type JobResponse struct {
	Response
	Data *Job `json:"data"`
}

// AckRequest tells the upstream service a job has been unloaded.
type AckRequest struct {
	Code        string `json:"code"`
	CompletedAt string `json:"completed_at"`
	Lines       int    `json:"lines"`
}
