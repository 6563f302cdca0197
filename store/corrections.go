package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	CorrectionAdjust = "adjust" // quantity is a signed delta
	CorrectionSet    = "set"    // quantity is the new absolute value
)

// ErrNegativeStock is returned when a correction would take a destination below zero.
var ErrNegativeStock = errors.New("stock would become negative")

type Correction struct {
	ID             int64     `json:"id"`
	CorrectionType string    `json:"correction_type"`
	GroupKey       string    `json:"group_key"`
	DestID         string    `json:"dest_id"`
	Quantity       float64   `json:"quantity"`
	Reason         string    `json:"reason"`
	Actor          string    `json:"actor"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateCorrection records a manual stock correction and applies it to the
// destination in the same transaction. It returns the quantity before and
// after.
func (db *DB) CreateCorrection(ctx context.Context, c *Correction) (before, after float64, err error) {
	if c.GroupKey == "" || c.DestID == "" {
		return 0, 0, fmt.Errorf("correction needs group and destination")
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		rec, err := getStockRecord(ctx, db, tx, c.GroupKey, c.DestID)
		if err != nil {
			return err
		}
		before = rec.Quantity
		var delta float64
		switch c.CorrectionType {
		case CorrectionAdjust:
			delta = c.Quantity
		case CorrectionSet:
			delta = c.Quantity - rec.Quantity
		default:
			return fmt.Errorf("unknown correction type %q", c.CorrectionType)
		}
		if before+delta < 0 {
			return fmt.Errorf("%w: %s/%s", ErrNegativeStock, c.GroupKey, c.DestID)
		}
		after, err = addStock(ctx, db, tx, c.GroupKey, c.DestID, delta, c.CreatedAt)
		if err != nil {
			return err
		}
		c.ID, err = db.insertID(ctx, tx, `INSERT INTO corrections (correction_type, group_key, dest_id, quantity, reason, actor, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.CorrectionType, c.GroupKey, c.DestID, c.Quantity, c.Reason, c.Actor, formatTime(c.CreatedAt))
		return err
	})
	return before, after, err
}

// AdjustStock adds delta to a destination without recording a correction.
func (db *DB) AdjustStock(ctx context.Context, groupKey, destID string, delta float64) (float64, error) {
	var balance float64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		b, err := addStock(ctx, db, tx, groupKey, destID, delta, time.Now())
		balance = b
		return err
	})
	return balance, err
}

func (db *DB) ListCorrections(ctx context.Context, limit int) ([]*Correction, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT id, correction_type, group_key, dest_id, quantity, reason, actor, created_at FROM corrections ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var corrections []*Correction
	for rows.Next() {
		var c Correction
		var createdAt string
		if err := rows.Scan(&c.ID, &c.CorrectionType, &c.GroupKey, &c.DestID, &c.Quantity, &c.Reason, &c.Actor, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		corrections = append(corrections, &c)
	}
	return corrections, rows.Err()
}
