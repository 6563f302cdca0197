package www

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"unloadtrack/activity"
)

type startLineRequest struct {
	SourceTank string `json:"source_tank"`
	DestType   string `json:"dest_type"`
	DestID     string `json:"dest_id"`
	DestUnit   string `json:"dest_unit"`
}

func (h *Handlers) apiStartLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	var req startLineRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.SourceTank == "" {
		h.jsonError(w, "source_tank required", http.StatusBadRequest)
		return
	}
	dest := activity.Destination{Type: activity.DestType(req.DestType), ID: req.DestID, Unit: req.DestUnit}
	if !dest.Complete() {
		h.writeError(w, activity.ErrIncompleteDestination)
		return
	}
	line, err := h.engine.Tracker().StartLine(r.Context(), id, req.SourceTank, dest, h.getUsername(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonCreated(w, line)
}

func (h *Handlers) apiPauseLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	line, err := h.engine.Tracker().PauseLine(r.Context(), id, chi.URLParam(r, "line"), req.Reason, h.getUsername(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonOK(w, line)
}

func (h *Handlers) apiResumeLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	line, err := h.engine.Tracker().ResumeLine(r.Context(), id, chi.URLParam(r, "line"), h.getUsername(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonOK(w, line)
}

func (h *Handlers) apiFinishLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	line, credit, err := h.engine.Tracker().FinishLine(r.Context(), id, chi.URLParam(r, "line"), h.getUsername(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonOK(w, map[string]any{
		"line":   activity.BuildView(*line, h.engine.Now(), 0),
		"credit": credit,
	})
}

func (h *Handlers) apiReconcileLine(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	credit, err := h.engine.Tracker().Reconcile(r.Context(), id, chi.URLParam(r, "line"), h.getUsername(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonOK(w, credit)
}
