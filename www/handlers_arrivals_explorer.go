package www

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

// apiArrivalsProxy forwards an arbitrary request to the arrivals service and
// returns the raw response, for troubleshooting the integration.
func (h *Handlers) apiArrivalsProxy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string `json:"method"`
		Path   string `json:"path"`
		Body   string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	ac := h.engine.ArrivalsClient()
	if ac == nil || ac.BaseURL() == "" {
		h.jsonError(w, "arrivals service not configured", http.StatusServiceUnavailable)
		return
	}

	if req.Method == "" {
		req.Method = http.MethodGet
	}
	req.Method = strings.ToUpper(req.Method)
	if !strings.HasPrefix(req.Path, "/") {
		req.Path = "/" + req.Path
	}
	fullURL := ac.BaseURL() + req.Path

	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(r.Context(), req.Method, fullURL, bodyReader)
	if err != nil {
		h.jsonError(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return
	}
	if bodyReader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := ac.HTTPClient().Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		h.jsonOK(w, map[string]any{
			"error":       err.Error(),
			"url":         fullURL,
			"method":      req.Method,
			"elapsed_ms":  elapsed.Milliseconds(),
			"status_code": 0,
		})
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	result := map[string]any{
		"url":         fullURL,
		"method":      req.Method,
		"status_code": resp.StatusCode,
		"elapsed_ms":  elapsed.Milliseconds(),
		"headers":     flattenHeaders(resp.Header),
	}
	var jsonBody any
	if err := json.Unmarshal(respBody, &jsonBody); err == nil {
		result["body"] = jsonBody
	} else {
		result["body_text"] = string(respBody)
	}
	h.jsonOK(w, result)
}

func flattenHeaders(h http.Header) map[string]string {
	flat := make(map[string]string, len(h))
	for k, v := range h {
		flat[k] = strings.Join(v, ", ")
	}
	return flat
}
