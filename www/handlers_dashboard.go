package www

import (
	"net/http"

	"unloadtrack/activity"
	"unloadtrack/store"
)

type jobSummary struct {
	ID          int64   `json:"id"`
	Code        string  `json:"code"`
	Vessel      string  `json:"vessel"`
	Material    string  `json:"material"`
	Manifest    float64 `json:"manifest_quantity"`
	Tanks       int     `json:"tanks"`
	ActiveLines int     `json:"active_lines"`
	PausedLines int     `json:"paused_lines"`
	Finished    int     `json:"finished_lines"`
}

// apiDashboard summarizes the jobs still being unloaded.
func (h *Handlers) apiDashboard(w http.ResponseWriter, r *http.Request) {
	db := h.engine.DB()
	ready, err := db.ListJobs(r.Context(), store.JobReady, 200)
	if err != nil {
		h.writeError(w, err)
		return
	}

	summaries := make([]jobSummary, 0, len(ready))
	active := 0
	for _, j := range ready {
		lines, err := db.ListActivities(r.Context(), j.ID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		s := jobSummary{
			ID:       j.ID,
			Code:     j.Code,
			Vessel:   j.Vessel,
			Material: j.Material,
			Manifest: j.TotalQuantity(),
			Tanks:    len(j.Manifest),
		}
		for _, l := range lines {
			switch l.Status {
			case activity.StatusRunning:
				s.ActiveLines++
			case activity.StatusPaused:
				s.ActiveLines++
				s.PausedLines++
			case activity.StatusFinished:
				s.Finished++
			}
		}
		active += s.ActiveLines
		summaries = append(summaries, s)
	}

	arrivalsOK, msgOK := h.engine.ConnectionStatus()
	h.jsonOK(w, map[string]any{
		"jobs":         summaries,
		"ready_jobs":   len(ready),
		"active_lines": active,
		"arrivals_ok":  arrivalsOK,
		"messaging_ok": msgOK,
	})
}
