package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"unloadtrack/activity"
)

// ErrAlreadyCredited is returned when a line's quantity has already been
// added to its destination stock.
var ErrAlreadyCredited = errors.New("line already credited to stock")

const (
	GroupBufferSilo = "buffer-silo"
	GroupBufferTank = "buffer-tank"
)

// GroupKey names the stock group a destination belongs to: one group per
// plant unit silo bank plus the two shared buffer banks.
func GroupKey(dest activity.Destination) string {
	switch dest.Type {
	case activity.DestBufferSilo:
		return GroupBufferSilo
	case activity.DestBufferTank:
		return GroupBufferTank
	default:
		return "plant/" + dest.Unit
	}
}

type StockRecord struct {
	GroupKey  string    `json:"group_key"`
	DestID    string    `json:"dest_id"`
	Quantity  float64   `json:"quantity"`
	Status    string    `json:"status"`
	Capacity  float64   `json:"capacity"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StockCredit struct {
	ID        int64     `json:"id"`
	Key       string    `json:"credit_key"`
	Ref       string    `json:"ref"`
	JobID     int64     `json:"job_id"`
	LineID    string    `json:"line_id"`
	GroupKey  string    `json:"group_key"`
	DestID    string    `json:"dest_id"`
	Quantity  float64   `json:"quantity"`
	Balance   float64   `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

func creditKey(jobID int64, lineID string) string {
	return fmt.Sprintf("%d/%s", jobID, lineID)
}

const stockColumns = `group_key, dest_id, quantity, status, capacity, updated_at`

// GetStockRecord returns the record for a destination. A destination that has
// never been written reads as empty and aktif.
func (db *DB) GetStockRecord(ctx context.Context, groupKey, destID string) (*StockRecord, error) {
	return getStockRecord(ctx, db, db, groupKey, destID)
}

func getStockRecord(ctx context.Context, db *DB, q querier, groupKey, destID string) (*StockRecord, error) {
	r, err := scanStock(q.QueryRowContext(ctx, db.Q(`SELECT `+stockColumns+` FROM stock WHERE group_key=? AND dest_id=?`), groupKey, destID))
	if errors.Is(err, sql.ErrNoRows) {
		return &StockRecord{GroupKey: groupKey, DestID: destID, Status: activity.StockActive}, nil
	}
	return r, err
}

func (db *DB) ListStockGroup(ctx context.Context, groupKey string) ([]StockRecord, error) {
	return db.listStock(ctx, `SELECT `+stockColumns+` FROM stock WHERE group_key=? ORDER BY dest_id`, groupKey)
}

func (db *DB) ListStock(ctx context.Context) ([]StockRecord, error) {
	return db.listStock(ctx, `SELECT `+stockColumns+` FROM stock ORDER BY group_key, dest_id`)
}

func (db *DB) listStock(ctx context.Context, query string, args ...any) ([]StockRecord, error) {
	rows, err := db.QueryContext(ctx, db.Q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records := []StockRecord{}
	for rows.Next() {
		r, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// StockStatuses maps destination id to operational status for one group.
func (db *DB) StockStatuses(ctx context.Context, groupKey string) (map[string]string, error) {
	records, err := db.ListStockGroup(ctx, groupKey)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(records))
	for _, r := range records {
		m[r.DestID] = r.Status
	}
	return m, nil
}

// UpsertStockMeta sets status and capacity, leaving the quantity alone.
func (db *DB) UpsertStockMeta(ctx context.Context, groupKey, destID, status string, capacity float64) error {
	if !activity.ValidStockStatus(status) {
		return fmt.Errorf("invalid stock status %q", status)
	}
	if capacity < 0 {
		return fmt.Errorf("invalid capacity %v", capacity)
	}
	_, err := db.ExecContext(ctx, db.Q(`INSERT INTO stock (`+stockColumns+`) VALUES (?, ?, 0, ?, ?, ?)
		ON CONFLICT (group_key, dest_id) DO UPDATE SET status=excluded.status, capacity=excluded.capacity, updated_at=excluded.updated_at`),
		groupKey, destID, status, capacity, formatTime(time.Now()))
	return err
}

// CreditLine adds a finished line's quantity to its destination stock. It is
// the reconciliation path for a line whose finish was committed without a
// credit; a second call for the same line returns ErrAlreadyCredited.
func (db *DB) CreditLine(ctx context.Context, jobID int64, line *activity.Line, quantity float64) (*StockCredit, error) {
	if line.Status != activity.StatusFinished {
		return nil, fmt.Errorf("%w: line %s is %s", activity.ErrInvalidTransition, line.ID, line.Status)
	}
	var credit *StockCredit
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		c, err := db.creditStock(ctx, tx, jobID, line, quantity)
		credit = c
		return err
	})
	return credit, err
}

func (db *DB) HasCredit(ctx context.Context, jobID int64, lineID string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, db.Q(`SELECT COUNT(*) FROM stock_credits WHERE credit_key=?`), creditKey(jobID, lineID)).Scan(&n)
	return n > 0, err
}

// ListStockCredits returns the credits booked for a job, oldest first.
func (db *DB) ListStockCredits(ctx context.Context, jobID int64) ([]StockCredit, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT id, credit_key, ref, job_id, line_id, group_key, dest_id, quantity, created_at FROM stock_credits WHERE job_id=? ORDER BY id`), jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	credits := []StockCredit{}
	for rows.Next() {
		var c StockCredit
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Key, &c.Ref, &c.JobID, &c.LineID, &c.GroupKey, &c.DestID, &c.Quantity, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		credits = append(credits, c)
	}
	return credits, rows.Err()
}

func (db *DB) creditStock(ctx context.Context, tx *sql.Tx, jobID int64, line *activity.Line, quantity float64) (*StockCredit, error) {
	c := &StockCredit{
		Key:       creditKey(jobID, line.ID),
		Ref:       uuid.New().String(),
		JobID:     jobID,
		LineID:    line.ID,
		GroupKey:  GroupKey(line.Dest),
		DestID:    line.Dest.ID,
		Quantity:  quantity,
		CreatedAt: time.Now(),
	}
	var n int
	if err := tx.QueryRowContext(ctx, db.Q(`SELECT COUNT(*) FROM stock_credits WHERE credit_key=?`), c.Key).Scan(&n); err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCredited, c.Key)
	}
	id, err := db.insertID(ctx, tx, `INSERT INTO stock_credits (credit_key, ref, job_id, line_id, group_key, dest_id, quantity, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Key, c.Ref, c.JobID, c.LineID, c.GroupKey, c.DestID, c.Quantity, formatTime(c.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert credit: %w", err)
	}
	c.ID = id
	balance, err := addStock(ctx, db, tx, c.GroupKey, c.DestID, quantity, c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.Balance = balance
	return c, nil
}

// addStock merges delta into one destination's quantity and returns the new
// balance. Other destinations of the group are untouched.
func addStock(ctx context.Context, db *DB, q querier, groupKey, destID string, delta float64, now time.Time) (float64, error) {
	_, err := q.ExecContext(ctx, db.Q(`INSERT INTO stock (`+stockColumns+`) VALUES (?, ?, ?, 'aktif', 0, ?)
		ON CONFLICT (group_key, dest_id) DO UPDATE SET quantity=stock.quantity+excluded.quantity, updated_at=excluded.updated_at`),
		groupKey, destID, delta, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("update stock %s/%s: %w", groupKey, destID, err)
	}
	var balance float64
	err = q.QueryRowContext(ctx, db.Q(`SELECT quantity FROM stock WHERE group_key=? AND dest_id=?`), groupKey, destID).Scan(&balance)
	return balance, err
}

func scanStock(row rowScanner) (*StockRecord, error) {
	var r StockRecord
	var updatedAt string
	if err := row.Scan(&r.GroupKey, &r.DestID, &r.Quantity, &r.Status, &r.Capacity, &updatedAt); err != nil {
		return nil, err
	}
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}
