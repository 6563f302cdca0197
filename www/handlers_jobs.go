package www

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"unloadtrack/activity"
	"unloadtrack/engine"
	"unloadtrack/report"
	"unloadtrack/store"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handlers) apiListJobs(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	jobs, err := h.engine.DB().ListJobs(r.Context(), status, queryLimit(r, 100))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*store.Job{}
	}
	h.jsonOK(w, jobs)
}

func (h *Handlers) apiGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	st, err := h.engine.Tracker().LoadJob(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonOK(w, st)
}

func (h *Handlers) apiDestinations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	dt := activity.DestType(q.Get("type"))
	if !dt.Valid() {
		h.jsonError(w, fmt.Sprintf("invalid destination type %q", dt), http.StatusBadRequest)
		return
	}
	if _, err := h.engine.DB().GetJob(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	opts, err := h.engine.Tracker().DestinationOptions(r.Context(), id, dt, q.Get("unit"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonOK(w, opts)
}

func (h *Handlers) apiCompleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	job, err := h.engine.Tracker().CompleteJob(r.Context(), id, h.getUsername(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonOK(w, job)
}

// apiJobReport streams the XLSX report. A job in progress reports its lines
// as they stand now.
func (h *Handlers) apiJobReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	db := h.engine.DB()
	job, err := db.GetJob(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	lines := job.CompletedLines
	if job.Status != store.JobDone {
		if lines, err = db.ListActivities(r.Context(), id); err != nil {
			h.writeError(w, err)
			return
		}
	}
	var buf bytes.Buffer
	if err := report.WriteJobReport(&buf, job, lines, h.engine.Now()); err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, job.Code))
	w.Write(buf.Bytes())
}

// apiJobLive streams the job state. Durations advance on every tick from the
// loaded lines; the state is reloaded only when an event touches the job.
func (h *Handlers) apiJobLive(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	tr := h.engine.Tracker()
	st, err := tr.LoadJob(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	flusher, ok := startSSE(w)
	if !ok {
		h.jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	changed := make(chan struct{}, 1)
	sub := h.engine.Events.Subscribe(func(evt engine.Event) {
		if eventJobID(evt) == id {
			select {
			case changed <- struct{}{}:
			default:
			}
		}
	})
	defer h.engine.Events.Unsubscribe(sub)

	if writeSSE(w, flusher, "state", st) != nil {
		return
	}
	staleAfter := h.engine.AppConfig().Unloading.StalePauseAfter
	ticker := time.NewTicker(h.liveTick)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-changed:
			next, err := tr.LoadJob(r.Context(), id)
			if err != nil {
				writeSSE(w, flusher, "error", map[string]string{"error": err.Error()})
				return
			}
			st = next
		case <-ticker.C:
			st.Active = activity.BuildViews(viewLines(st.Active), h.engine.Now(), staleAfter)
		}
		if writeSSE(w, flusher, "state", st) != nil {
			return
		}
	}
}

func viewLines(views []activity.View) []activity.Line {
	lines := make([]activity.Line, len(views))
	for i, v := range views {
		lines[i] = v.Line
	}
	return lines
}

func eventJobID(evt engine.Event) int64 {
	switch p := evt.Payload.(type) {
	case engine.LineEvent:
		return p.JobID
	case engine.StockCreditedEvent:
		return p.JobID
	case engine.JobCompletedEvent:
		return p.JobID
	case engine.JobImportedEvent:
		return p.JobID
	}
	return 0
}
