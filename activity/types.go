// Package activity models the transfer lines of an unloading job: one line per
// source tank moving material into a single destination. Everything here is
// pure; callers pass the current time and persist the result themselves.
package activity

import (
	"errors"
	"time"
)

var (
	ErrInvalidTransition     = errors.New("invalid line transition")
	ErrIncompleteDestination = errors.New("destination selection incomplete")
	ErrTankUnavailable       = errors.New("source tank not available")
	ErrDestinationBusy       = errors.New("destination already has an active line")
	ErrUnknownUnit           = errors.New("unknown plant unit")
)

type DestType string

const (
	DestPlantSilo  DestType = "plant-silo"
	DestBufferSilo DestType = "buffer-silo"
	DestBufferTank DestType = "buffer-tank"
)

func (t DestType) Valid() bool {
	switch t {
	case DestPlantSilo, DestBufferSilo, DestBufferTank:
		return true
	}
	return false
}

type Status string

const (
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

// Active reports whether the line still occupies its destination.
func (s Status) Active() bool { return s == StatusRunning || s == StatusPaused }

// Operational status values of a destination stock record.
const (
	StockActive   = "aktif"
	StockInactive = "nonaktif"
	StockRepair   = "perbaikan"
)

func ValidStockStatus(s string) bool {
	return s == StockActive || s == StockInactive || s == StockRepair
}

// Manifest maps source tank id to the declared quantity (KG).
type Manifest map[string]float64

type Destination struct {
	Type DestType `json:"dest_type"`
	ID   string   `json:"dest_id"`
	Unit string   `json:"dest_unit,omitempty"`
}

// Complete reports whether every field the destination type needs is set.
func (d Destination) Complete() bool {
	if !d.Type.Valid() || d.ID == "" {
		return false
	}
	if d.Type == DestPlantSilo && d.Unit == "" {
		return false
	}
	return true
}

type Pause struct {
	Start  time.Time  `json:"start"`
	End    *time.Time `json:"end,omitempty"`
	Reason string     `json:"reason"`
}

func (p Pause) Open() bool { return p.End == nil }

// Line is one source tank to destination transfer.
type Line struct {
	ID         string        `json:"id"`
	SourceTank string        `json:"source_tank"`
	Dest       Destination   `json:"destination"`
	Status     Status        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    *time.Time    `json:"ended_at,omitempty"`
	Pauses     []Pause       `json:"pauses"`
	Paused     time.Duration `json:"paused_duration"`
	Revision   int64         `json:"revision"`
}

// LineID derives the line identifier from its source tank and destination.
func LineID(sourceTank, destID string) string {
	return sourceTank + "@" + destID
}

// Layout lists the destinations the plant can unload into.
type Layout struct {
	Units       map[string][]string
	BufferSilos []string
	BufferTanks []string
}
