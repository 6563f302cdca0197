package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLog(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AppendAudit("line", "1/tank-1@silo-3", "started", "", "silo-3", "budi"))
	require.NoError(t, db.AppendAudit("job", "1", "completed", "ready", "done", "budi"))

	all, err := db.ListAuditLog("", "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "completed", all[0].Action)

	lines, err := db.ListAuditLog("line", "1/tank-1@silo-3", 10)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "budi", lines[0].Actor)
}

func TestOutbox(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.EnqueueOutbox("plant/unloading/line", []byte(`{"a":1}`), "line.started", "DO-1"))
	require.NoError(t, db.EnqueueOutbox("plant/unloading/job", []byte(`{"b":2}`), "job.completed", "DO-1"))

	pending, err := db.ListPendingOutbox(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, []byte(`{"a":1}`), pending[0].Payload)

	require.NoError(t, db.AckOutbox(pending[0].ID))
	require.NoError(t, db.FailOutbox(pending[1].ID, errors.New("broker down")))

	pending, err = db.ListPendingOutbox(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "broker down", pending[0].LastError)

	n, err := db.CountPendingOutbox()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOperators(t *testing.T) {
	db := openTestDB(t)
	op, err := db.CreateOperator("budi", "rahasia", "")
	require.NoError(t, err)
	assert.Equal(t, RoleOperator, op.Role)

	_, err = db.CreateOperator("x", "y", "root")
	assert.Error(t, err)

	got, err := db.AuthenticateOperator("budi", "rahasia")
	require.NoError(t, err)
	assert.Equal(t, op.ID, got.ID)

	_, err = db.AuthenticateOperator("budi", "salah")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = db.AuthenticateOperator("nobody", "x")
	assert.ErrorIs(t, err, ErrBadCredentials)

	n, err := db.CountOperators()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
