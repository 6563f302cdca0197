// Package arrivals talks to the upstream arrival-confirmation service, which
// announces vessels and trucks that are ready to unload.
package arrivals

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

type Client struct {
	mu         sync.RWMutex
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Reconfigure swaps the base URL and timeout without dropping the client.
func (c *Client) Reconfigure(baseURL string, timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.httpClient = &http.Client{Timeout: timeout}
}

func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

func (c *Client) HTTPClient() *http.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.httpClient
}

// Ping checks the service and returns its product and version.
func (c *Client) Ping() (*PingResponse, error) {
	var resp PingResponse
	if err := c.get("/ping", &resp); err != nil {
		return nil, err
	}
	if err := checkResponse(&resp.Response); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListReadyJobs returns the arrivals confirmed and waiting to unload.
func (c *Client) ListReadyJobs() ([]Job, error) {
	var resp JobListResponse
	if err := c.get("/jobs?status="+url.QueryEscape(StatusReady), &resp); err != nil {
		return nil, err
	}
	if err := checkResponse(&resp.Response); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) GetJob(code string) (*Job, error) {
	var resp JobResponse
	if err := c.get("/jobs/"+url.PathEscape(code), &resp); err != nil {
		return nil, err
	}
	if err := checkResponse(&resp.Response); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return nil, fmt.Errorf("arrivals: job %s: empty response", code)
	}
	return resp.Data, nil
}

// AckJob reports a completed unloading back to the service.
func (c *Client) AckJob(req *AckRequest) error {
	var resp Response
	if err := c.post("/jobs/"+url.PathEscape(req.Code)+"/ack", req, &resp); err != nil {
		return err
	}
	return checkResponse(&resp)
}

func (c *Client) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *Client) post(path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("arrivals: encode request: %w", err)
	}
	return c.do(http.MethodPost, path, bytes.NewReader(data), out)
}

func (c *Client) do(method, path string, body io.Reader, out any) error {
	c.mu.RLock()
	base, hc := c.baseURL, c.httpClient
	c.mu.RUnlock()
	if base == "" {
		return fmt.Errorf("arrivals: base url not configured")
	}

	req, err := http.NewRequest(method, base+path, body)
	if err != nil {
		return fmt.Errorf("arrivals: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("arrivals: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("arrivals: read %s: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("arrivals: %s %s: http %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("arrivals: decode %s: %w", path, err)
	}
	return nil
}

func checkResponse(r *Response) error {
	if r.Code != 0 {
		return fmt.Errorf("arrivals: error %d: %s", r.Code, r.Msg)
	}
	return nil
}
