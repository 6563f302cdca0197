package www

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"unloadtrack/activity"
	"unloadtrack/store"
	"unloadtrack/tracker"
)

func (h *Handlers) apiHealthCheck(w http.ResponseWriter, r *http.Request) {
	arrivalsOK, msgOK := h.engine.ConnectionStatus()
	dbOK := h.engine.DB().PingContext(r.Context()) == nil
	status := "ok"
	if !dbOK {
		status = "degraded"
	}
	h.jsonOK(w, map[string]any{
		"status":    status,
		"database":  dbOK,
		"arrivals":  arrivalsOK,
		"messaging": msgOK,
	})
}

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonCreated(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeError maps domain errors to HTTP status codes.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	h.jsonError(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, activity.ErrIncompleteDestination),
		errors.Is(err, activity.ErrUnknownUnit):
		return http.StatusBadRequest
	case errors.Is(err, activity.ErrInvalidTransition),
		errors.Is(err, activity.ErrTankUnavailable),
		errors.Is(err, activity.ErrDestinationBusy),
		errors.Is(err, tracker.ErrDestinationUnavailable),
		errors.Is(err, tracker.ErrJobNotReady),
		errors.Is(err, tracker.ErrJobDone),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrAlreadyCredited),
		errors.Is(err, store.ErrNegativeStock):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.jsonError(w, "invalid job id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// decodeJSON reads an optional JSON body into v. An empty body leaves v untouched.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.jsonError(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func queryLimit(r *http.Request, def int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			return n
		}
	}
	return def
}
