package www

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"unloadtrack/engine"
)

type sseMessage struct {
	Event string
	Data  []byte
}

// EventHub fans engine events out to connected SSE clients. A slow client
// loses messages rather than blocking the engine.
type EventHub struct {
	mu      sync.Mutex
	clients map[chan sseMessage]struct{}
	closed  bool
}

func NewEventHub() *EventHub {
	return &EventHub{clients: make(map[chan sseMessage]struct{})}
}

// Publish is subscribed to the engine event bus.
func (h *EventHub) Publish(evt engine.Event) {
	data, err := json.Marshal(map[string]any{
		"type":      evt.Type.String(),
		"timestamp": evt.Timestamp,
		"payload":   evt.Payload,
	})
	if err != nil {
		return
	}
	h.broadcast(sseMessage{Event: evt.Type.String(), Data: data})
}

func (h *EventHub) broadcast(msg sseMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *EventHub) add() (chan sseMessage, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	ch := make(chan sseMessage, 32)
	h.clients[ch] = struct{}{}
	return ch, true
}

func (h *EventHub) remove(ch chan sseMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *EventHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for ch := range h.clients {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *Handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := startSSE(w)
	if !ok {
		h.jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ch, ok := h.eventHub.add()
	if !ok {
		return
	}
	defer h.eventHub.remove(ch)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}

func startSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	return flusher, true
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
