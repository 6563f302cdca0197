package messaging

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message types carried on the plant bus.
const (
	TypeArrival       = "arrival"
	TypeJobImported   = "job.imported"
	TypeLineStarted   = "line.started"
	TypeLinePaused    = "line.paused"
	TypeLineResumed   = "line.resumed"
	TypeLineFinished  = "line.finished"
	TypeStockCredited = "stock.credited"
	TypeStockCorrect  = "stock.corrected"
	TypeJobCompleted  = "job.completed"
)

// Envelope wraps every message on the bus.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

func NewEnvelope(msgType, source string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msgType, err)
	}
	return &Envelope{
		ID:        uuid.New().String(),
		Type:      msgType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   data,
	}, nil
}

func (e *Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("decode envelope: missing type")
	}
	return &env, nil
}

// DecodePayload unmarshals the payload into v.
func (e *Envelope) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// EventTopic builds the outbound topic for a message type: prefix/line, prefix/job ...
func EventTopic(prefix, msgType string) string {
	kind, _, _ := strings.Cut(msgType, ".")
	return prefix + "/" + kind
}
