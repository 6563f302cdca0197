package www

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"unloadtrack/store"
)

const sessionName = "unloadtrack"

func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.jsonError(w, "invalid request: "+err.Error(), http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			h.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	op, err := h.engine.DB().AuthenticateOperator(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrBadCredentials) {
			h.jsonError(w, err.Error(), http.StatusUnauthorized)
			return
		}
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	session, _ := h.sessions.Get(r, sessionName)
	session.Values["username"] = op.Username
	session.Values["role"] = op.Role
	if err := session.Save(r, w); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.engine.DB().AppendAudit("operator", op.Username, "login", "", r.RemoteAddr, op.Username)
	h.jsonOK(w, op)
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessions.Get(r, sessionName)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.jsonOK(w, map[string]string{"status": "logged out"})
}

func (h *Handlers) apiMe(w http.ResponseWriter, r *http.Request) {
	h.jsonOK(w, map[string]string{
		"username": h.getUsername(r),
		"role":     h.getRole(r),
	})
}

func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.isAuthenticated(r) {
			h.jsonError(w, "login required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.getRole(r) != store.RoleAdmin {
			h.jsonError(w, "admin role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) isAuthenticated(r *http.Request) bool {
	return h.getUsername(r) != ""
}

func (h *Handlers) getUsername(r *http.Request) string {
	return h.sessionString(r, "username")
}

func (h *Handlers) getRole(r *http.Request) string {
	return h.sessionString(r, "role")
}

func (h *Handlers) sessionString(r *http.Request, key string) string {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return ""
	}
	s, _ := session.Values[key].(string)
	return s
}
