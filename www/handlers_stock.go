package www

import (
	"fmt"
	"net/http"

	"unloadtrack/activity"
)

// apiListStock returns one group when ?group= is given, every group otherwise.
func (h *Handlers) apiListStock(w http.ResponseWriter, r *http.Request) {
	mgr := h.engine.StockState()
	if group := r.URL.Query().Get("group"); group != "" {
		gs, err := mgr.GetGroup(r.Context(), group)
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.jsonOK(w, gs)
		return
	}
	groups, err := mgr.GetAll(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonOK(w, groups)
}

func (h *Handlers) apiUpdateStockMeta(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupKey string  `json:"group_key"`
		DestID   string  `json:"dest_id"`
		Status   string  `json:"status"`
		Capacity float64 `json:"capacity"`
	}
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.GroupKey == "" || req.DestID == "" {
		h.jsonError(w, "group_key and dest_id required", http.StatusBadRequest)
		return
	}
	if !activity.ValidStockStatus(req.Status) {
		h.jsonError(w, fmt.Sprintf("invalid status %q", req.Status), http.StatusBadRequest)
		return
	}
	if req.Capacity < 0 {
		h.jsonError(w, "capacity must not be negative", http.StatusBadRequest)
		return
	}
	if err := h.engine.SetStockMeta(r.Context(), req.GroupKey, req.DestID, req.Status, req.Capacity, h.getUsername(r)); err != nil {
		h.writeError(w, err)
		return
	}
	rec, err := h.engine.DB().GetStockRecord(r.Context(), req.GroupKey, req.DestID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.jsonOK(w, rec)
}
