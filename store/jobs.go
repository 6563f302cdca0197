package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"unloadtrack/activity"
)

const (
	JobReady = "ready"
	JobDone  = "done"
)

// ErrActiveLines is returned when a job still has running or paused lines.
var ErrActiveLines = errors.New("job has active lines")

type Job struct {
	ID             int64             `json:"id"`
	Code           string            `json:"code"`
	Vessel         string            `json:"vessel"`
	Material       string            `json:"material"`
	Manifest       activity.Manifest `json:"manifest"`
	Status         string            `json:"status"`
	CompletedLines []activity.Line   `json:"completed_lines"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// TotalQuantity sums the manifest.
func (j *Job) TotalQuantity() float64 {
	var total float64
	for _, q := range j.Manifest {
		total += q
	}
	return total
}

const jobColumns = `id, code, vessel, material, manifest, status, completed_lines, completed_at, created_at`

// UpsertJob imports a job by its upstream code. An existing job keeps its
// manifest once any line has been started, and a done job is never touched.
// created reports whether a new row was inserted.
func (db *DB) UpsertJob(ctx context.Context, j *Job) (created bool, err error) {
	manifest, err := json.Marshal(j.Manifest)
	if err != nil {
		return false, fmt.Errorf("encode manifest: %w", err)
	}
	if j.Status == "" {
		j.Status = JobReady
	}
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := db.scanJob(tx.QueryRowContext(ctx, db.Q(`SELECT `+jobColumns+` FROM jobs WHERE code=?`), j.Code))
		if errors.Is(err, ErrNotFound) {
			if j.CreatedAt.IsZero() {
				j.CreatedAt = time.Now()
			}
			id, err := db.insertID(ctx, tx, `INSERT INTO jobs (code, vessel, material, manifest, status, completed_lines, created_at) VALUES (?, ?, ?, ?, ?, '[]', ?)`,
				j.Code, j.Vessel, j.Material, string(manifest), j.Status, formatTime(j.CreatedAt))
			if err != nil {
				return err
			}
			j.ID = id
			created = true
			return nil
		}
		if err != nil {
			return err
		}
		if existing.Status == JobDone {
			*j = *existing
			return nil
		}
		var lines int
		if err := tx.QueryRowContext(ctx, db.Q(`SELECT COUNT(*) FROM activities WHERE job_id=?`), existing.ID).Scan(&lines); err != nil {
			return err
		}
		if lines == 0 {
			if _, err := tx.ExecContext(ctx, db.Q(`UPDATE jobs SET vessel=?, material=?, manifest=? WHERE id=?`),
				j.Vessel, j.Material, string(manifest), existing.ID); err != nil {
				return err
			}
			existing.Vessel, existing.Material, existing.Manifest = j.Vessel, j.Material, j.Manifest
		}
		*j = *existing
		return nil
	})
	return created, err
}

func (db *DB) GetJob(ctx context.Context, id int64) (*Job, error) {
	return db.scanJob(db.QueryRowContext(ctx, db.Q(`SELECT `+jobColumns+` FROM jobs WHERE id=?`), id))
}

func (db *DB) GetJobByCode(ctx context.Context, code string) (*Job, error) {
	return db.scanJob(db.QueryRowContext(ctx, db.Q(`SELECT `+jobColumns+` FROM jobs WHERE code=?`), code))
}

// ListJobs returns jobs newest first, optionally filtered by status.
func (db *DB) ListJobs(ctx context.Context, status string, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, db.Q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		j, err := db.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// FinalizeJob marks the job done with its completed lines and drops its
// activity rows in one transaction.
func (db *DB) FinalizeJob(ctx context.Context, jobID int64, completed []activity.Line, now time.Time) error {
	if completed == nil {
		completed = []activity.Line{}
	}
	data, err := json.Marshal(completed)
	if err != nil {
		return fmt.Errorf("encode completed lines: %w", err)
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var active int
		if err := tx.QueryRowContext(ctx, db.Q(`SELECT COUNT(*) FROM activities WHERE job_id=? AND status IN ('running', 'paused')`), jobID).Scan(&active); err != nil {
			return err
		}
		if active > 0 {
			return ErrActiveLines
		}
		res, err := tx.ExecContext(ctx, db.Q(`UPDATE jobs SET status=?, completed_lines=?, completed_at=? WHERE id=? AND status<>?`),
			JobDone, string(data), formatTime(now), jobID, JobDone)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: job %d already done or missing", ErrConflict, jobID)
		}
		_, err = tx.ExecContext(ctx, db.Q(`DELETE FROM activities WHERE job_id=?`), jobID)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanJob(row rowScanner) (*Job, error) {
	var j Job
	var manifest, completed, createdAt string
	var completedAt sql.NullString
	err := row.Scan(&j.ID, &j.Code, &j.Vessel, &j.Material, &manifest, &j.Status, &completed, &completedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(manifest), &j.Manifest); err != nil {
		return nil, fmt.Errorf("job %d: corrupt manifest: %w", j.ID, err)
	}
	if err := json.Unmarshal([]byte(completed), &j.CompletedLines); err != nil {
		return nil, fmt.Errorf("job %d: corrupt completed lines: %w", j.ID, err)
	}
	if j.Manifest == nil {
		j.Manifest = activity.Manifest{}
	}
	j.CompletedAt = parseNullTime(completedAt)
	j.CreatedAt = parseTime(createdAt)
	return &j, nil
}
