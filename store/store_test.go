package store

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unloadtrack/activity"
	"unloadtrack/config"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedJob(t *testing.T, db *DB, code string) *Job {
	t.Helper()
	j := &Job{Code: code, Vessel: "KM Sejahtera", Material: "CPO", Manifest: activity.Manifest{"tank-1": 20000, "tank-2": 15000}}
	created, err := db.UpsertJob(context.Background(), j)
	require.NoError(t, err)
	require.True(t, created)
	return j
}

func TestRebind(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT * FROM jobs WHERE id=? AND status=?", "SELECT * FROM jobs WHERE id=$1 AND status=$2"},
		{"UPDATE t SET a='?' WHERE b=?", "UPDATE t SET a='?' WHERE b=$1"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Rebind(tt.in))
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestUpdateActivity_StaleRevisionIsConflict(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := wrap(sqlDB, "postgres")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE activities SET status=$1, ended_at=$2, pauses=$3, paused_ms=$4, revision=revision+1 WHERE job_id=$5 AND line_id=$6 AND revision=$7")).
		WithArgs("paused", nil, sqlmock.AnyArg(), sqlmock.AnyArg(), 7, "tank-1@silo-3", 2).
		WillReturnResult(sqlmock.NewResult(0, 0))

	line := &activity.Line{ID: "tank-1@silo-3", Status: activity.StatusPaused, Revision: 2}
	err = db.UpdateActivity(context.Background(), 7, line, 2)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, int64(2), line.Revision)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishActivity_SerializationFailureRollsBack(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := wrap(sqlDB, "postgres")

	end := t0.Add(5 * time.Minute)
	line := &activity.Line{ID: "tank-1@silo-3", Status: activity.StatusFinished, EndedAt: &end,
		Dest: activity.Destination{Type: activity.DestPlantSilo, ID: "silo-3", Unit: "BP-1"}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE activities SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM stock_credits WHERE credit_key=$1")).
		WithArgs("7/tank-1@silo-3").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO stock_credits")).
		WillReturnError(&pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	mock.ExpectRollback()

	_, err = db.FinishActivity(context.Background(), 7, line, 3, 20000)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMapTxError(t *testing.T) {
	assert.ErrorIs(t, mapTxError(&pgconn.PgError{Code: "40P01"}), ErrConflict)
	assert.ErrorIs(t, mapTxError(errors.New("database is locked (5) (SQLITE_BUSY)")), ErrConflict)
	plain := errors.New("boom")
	assert.Equal(t, plain, mapTxError(plain))
}
