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

const activityColumns = `line_id, source_tank, dest_type, dest_id, dest_unit, status, started_at, ended_at, pauses, paused_ms, revision`

// ListActivities returns every line of a job, active and finished, in start order.
func (db *DB) ListActivities(ctx context.Context, jobID int64) ([]activity.Line, error) {
	return listActivities(ctx, db, db, jobID)
}

func listActivities(ctx context.Context, db *DB, q querier, jobID int64) ([]activity.Line, error) {
	rows, err := q.QueryContext(ctx, db.Q(`SELECT `+activityColumns+` FROM activities WHERE job_id=? ORDER BY started_at, line_id`), jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []activity.Line{}
	for rows.Next() {
		l, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, *l)
	}
	return lines, rows.Err()
}

func (db *DB) GetActivity(ctx context.Context, jobID int64, lineID string) (*activity.Line, error) {
	return getActivity(ctx, db, db, jobID, lineID)
}

func getActivity(ctx context.Context, db *DB, q querier, jobID int64, lineID string) (*activity.Line, error) {
	row := q.QueryRowContext(ctx, db.Q(`SELECT `+activityColumns+` FROM activities WHERE job_id=? AND line_id=?`), jobID, lineID)
	l, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

// InsertActivity persists a freshly started line. The tank and destination
// checks are repeated inside the transaction so two operators racing on the
// same job cannot both win.
func (db *DB) InsertActivity(ctx context.Context, jobID int64, line *activity.Line) error {
	pauses, err := json.Marshal(line.Pauses)
	if err != nil {
		return fmt.Errorf("encode pauses: %w", err)
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, db.Q(`SELECT status FROM jobs WHERE id=?`), jobID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if status == JobDone {
			return fmt.Errorf("%w: job %d is done", ErrConflict, jobID)
		}

		var n int
		if err := tx.QueryRowContext(ctx, db.Q(`SELECT COUNT(*) FROM activities WHERE job_id=? AND source_tank=?`), jobID, line.SourceTank).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", activity.ErrTankUnavailable, line.SourceTank)
		}
		if err := tx.QueryRowContext(ctx, db.Q(`SELECT COUNT(*) FROM activities WHERE job_id=? AND dest_id=? AND status IN ('running', 'paused')`), jobID, line.Dest.ID).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", activity.ErrDestinationBusy, line.Dest.ID)
		}

		_, err = tx.ExecContext(ctx, db.Q(`INSERT INTO activities (job_id, `+activityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`),
			jobID, line.ID, line.SourceTank, string(line.Dest.Type), line.Dest.ID, line.Dest.Unit, string(line.Status),
			formatTime(line.StartedAt), nullTime(line.EndedAt), string(pauses), line.Paused.Milliseconds())
		if err != nil {
			return err
		}
		line.Revision = 1
		return nil
	})
}

// UpdateActivity writes a transition. The row must still be at expectedRev;
// otherwise ErrConflict is returned and nothing changes.
func (db *DB) UpdateActivity(ctx context.Context, jobID int64, line *activity.Line, expectedRev int64) error {
	if err := updateActivity(ctx, db, db, jobID, line, expectedRev); err != nil {
		return err
	}
	line.Revision = expectedRev + 1
	return nil
}

func updateActivity(ctx context.Context, db *DB, q querier, jobID int64, line *activity.Line, expectedRev int64) error {
	pauses, err := json.Marshal(line.Pauses)
	if err != nil {
		return fmt.Errorf("encode pauses: %w", err)
	}
	res, err := q.ExecContext(ctx, db.Q(`UPDATE activities SET status=?, ended_at=?, pauses=?, paused_ms=?, revision=revision+1 WHERE job_id=? AND line_id=? AND revision=?`),
		string(line.Status), nullTime(line.EndedAt), string(pauses), line.Paused.Milliseconds(), jobID, line.ID, expectedRev)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: line %s of job %d", ErrConflict, line.ID, jobID)
	}
	return nil
}

// FinishActivity commits a finish transition together with the stock credit
// for the line. Both land or neither does.
func (db *DB) FinishActivity(ctx context.Context, jobID int64, line *activity.Line, expectedRev int64, quantity float64) (*StockCredit, error) {
	if line.Status != activity.StatusFinished {
		return nil, fmt.Errorf("%w: line %s is %s", activity.ErrInvalidTransition, line.ID, line.Status)
	}
	var credit *StockCredit
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateActivity(ctx, db, tx, jobID, line, expectedRev); err != nil {
			return err
		}
		c, err := db.creditStock(ctx, tx, jobID, line, quantity)
		if err != nil {
			return err
		}
		credit = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	line.Revision = expectedRev + 1
	return credit, nil
}

func scanActivity(row rowScanner) (*activity.Line, error) {
	var l activity.Line
	var destType, status, startedAt, pauses string
	var endedAt sql.NullString
	var pausedMs int64
	if err := row.Scan(&l.ID, &l.SourceTank, &destType, &l.Dest.ID, &l.Dest.Unit, &status, &startedAt, &endedAt, &pauses, &pausedMs, &l.Revision); err != nil {
		return nil, err
	}
	l.Dest.Type = activity.DestType(destType)
	l.Status = activity.Status(status)
	l.StartedAt = parseTime(startedAt)
	l.EndedAt = parseNullTime(endedAt)
	l.Paused = time.Duration(pausedMs) * time.Millisecond
	if err := json.Unmarshal([]byte(pauses), &l.Pauses); err != nil {
		return nil, fmt.Errorf("line %s: corrupt pauses: %w", l.ID, err)
	}
	return &l, nil
}
