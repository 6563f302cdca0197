package www

import (
	"net/http"
	"strings"

	"unloadtrack/store"
)

func (h *Handlers) apiListCorrections(w http.ResponseWriter, r *http.Request) {
	corrections, err := h.engine.DB().ListCorrections(r.Context(), queryLimit(r, 100))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if corrections == nil {
		corrections = []*store.Correction{}
	}
	h.jsonOK(w, corrections)
}

func (h *Handlers) apiCreateCorrection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CorrectionType string  `json:"correction_type"`
		GroupKey       string  `json:"group_key"`
		DestID         string  `json:"dest_id"`
		Quantity       float64 `json:"quantity"`
		Reason         string  `json:"reason"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	switch req.CorrectionType {
	case store.CorrectionAdjust, store.CorrectionSet:
	default:
		h.jsonError(w, "correction_type must be adjust or set", http.StatusBadRequest)
		return
	}
	if req.GroupKey == "" || req.DestID == "" {
		h.jsonError(w, "group_key and dest_id required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		h.jsonError(w, "reason required", http.StatusBadRequest)
		return
	}
	if req.CorrectionType == store.CorrectionSet && req.Quantity < 0 {
		h.jsonError(w, "quantity must not be negative", http.StatusBadRequest)
		return
	}

	corr := &store.Correction{
		CorrectionType: req.CorrectionType,
		GroupKey:       req.GroupKey,
		DestID:         req.DestID,
		Quantity:       req.Quantity,
		Reason:         req.Reason,
		Actor:          h.getUsername(r),
	}
	before, after, err := h.engine.ApplyCorrection(r.Context(), corr)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonCreated(w, map[string]any{
		"correction": corr,
		"before":     before,
		"after":      after,
	})
}
