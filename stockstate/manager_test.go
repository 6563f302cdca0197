package stockstate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unloadtrack/activity"
	"unloadtrack/config"
	"unloadtrack/store"
)

func openDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "stock.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seed(t *testing.T, db *store.DB) {
	t.Helper()
	ctx := context.Background()
	_, err := db.AdjustStock(ctx, "plant/BP-1", "silo-2", 300)
	require.NoError(t, err)
	_, err = db.AdjustStock(ctx, "plant/BP-1", "silo-1", 200)
	require.NoError(t, err)
	_, err = db.AdjustStock(ctx, store.GroupBufferTank, "tank-6", 50)
	require.NoError(t, err)
}

func TestManager_WithoutRedisReadsSQL(t *testing.T) {
	db := openDB(t)
	seed(t, db)
	m := NewManager(db, nil)
	ctx := context.Background()

	gs, err := m.GetGroup(ctx, "plant/BP-1")
	require.NoError(t, err)
	assert.Equal(t, "sql", gs.Source)
	assert.Equal(t, 500.0, gs.Total)
	require.Len(t, gs.Records, 2)
	assert.Equal(t, "silo-1", gs.Records[0].DestID)

	all, err := m.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, store.GroupBufferTank, all[0].Key)

	assert.NoError(t, m.SyncRedisFromSQL(ctx))
}

func TestManager_UnreachableRedisFallsBack(t *testing.T) {
	db := openDB(t)
	seed(t, db)
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	m := NewManager(db, NewRedisStore(client))
	ctx := context.Background()

	require.NoError(t, m.SetMeta(ctx, "plant/BP-1", "silo-1", activity.StockInactive, 1000))
	gs, err := m.GetGroup(ctx, "plant/BP-1")
	require.NoError(t, err)
	assert.Equal(t, "sql", gs.Source)
	assert.Equal(t, activity.StockInactive, gs.Records[0].Status)

	c := &store.Correction{CorrectionType: store.CorrectionAdjust, GroupKey: store.GroupBufferTank, DestID: "tank-6", Quantity: 25, Actor: "admin"}
	before, after, err := m.ApplyCorrection(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, 50.0, before)
	assert.Equal(t, 75.0, after)

	assert.Error(t, m.SyncRedisFromSQL(ctx))
}

// TestManager_RedisIntegration requires a running Redis and is skipped otherwise.
func TestManager_RedisIntegration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	defer client.Close()
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Skipping Redis integration test: redis not available")
	}

	db := openDB(t)
	seed(t, db)
	rs := NewRedisStore(client)
	m := NewManager(db, rs)
	t.Cleanup(func() { rs.FlushAll(context.Background()) })

	require.NoError(t, m.SyncRedisFromSQL(ctx))
	gs, err := m.GetGroup(ctx, "plant/BP-1")
	require.NoError(t, err)
	assert.Equal(t, "redis", gs.Source)
	assert.Equal(t, 500.0, gs.Total)
	assert.Equal(t, "silo-1", gs.Records[0].DestID)

	_, err = db.AdjustStock(ctx, "plant/BP-1", "silo-1", 100)
	require.NoError(t, err)
	gs, err = m.GetGroup(ctx, "plant/BP-1")
	require.NoError(t, err)
	assert.Equal(t, 500.0, gs.Total, "cache is stale until refreshed")

	m.Refresh(ctx, "plant/BP-1")
	gs, err = m.GetGroup(ctx, "plant/BP-1")
	require.NoError(t, err)
	assert.Equal(t, 600.0, gs.Total)

	groups, err := rs.Groups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"buffer-tank", "plant/BP-1"}, groups)
}
