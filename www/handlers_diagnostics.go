package www

import (
	"net/http"
)

func (h *Handlers) apiDiagnostics(w http.ResponseWriter, r *http.Request) {
	db := h.engine.DB()
	auditLog, _ := db.ListAuditLog("", "", 50)
	outboxPending, _ := db.CountPendingOutbox()

	arrivalsOK, msgOK := h.engine.ConnectionStatus()
	arrivalsVersion := ""
	if ac := h.engine.ArrivalsClient(); ac != nil && ac.BaseURL() != "" {
		if ping, err := ac.Ping(); err == nil && ping != nil {
			arrivalsVersion = ping.Version
		}
	}

	data := map[string]any{
		"database":         db.Driver(),
		"arrivals_ok":      arrivalsOK,
		"arrivals_version": arrivalsVersion,
		"messaging_ok":     msgOK,
		"outbox_pending":   outboxPending,
		"archive_enabled":  h.engine.ArchiveEnabled(),
		"sse_clients":      h.eventHub.ClientCount(),
		"audit_log":        auditLog,
	}
	if mc := h.engine.MsgClient(); mc != nil {
		data["messaging_backend"] = mc.Backend()
	}
	if p := h.engine.Poller(); p != nil {
		data["poller"] = p.Stats()
	}
	h.jsonOK(w, data)
}
