package stockstate

import (
	"context"
	"log"
	"sort"

	"unloadtrack/store"
)

// Manager provides write-through stock state: SQL first, then Redis.
// Redis failures never fail a write; readers fall back to SQL.
type Manager struct {
	db    *store.DB
	redis *RedisStore
}

// NewManager accepts a nil redis store, in which case every read goes to SQL.
func NewManager(db *store.DB, redis *RedisStore) *Manager {
	return &Manager{db: db, redis: redis}
}

// GetGroup reads a stock group from Redis, falls back to SQL.
func (m *Manager) GetGroup(ctx context.Context, group string) (*GroupState, error) {
	if m.redis != nil {
		records, ok, err := m.redis.GetGroup(ctx, group)
		if err == nil && ok {
			return newGroupState(group, "redis", records), nil
		}
		if err != nil {
			log.Printf("stockstate: redis read %s: %v", group, err)
		}
	}
	records, err := m.db.ListStockGroup(ctx, group)
	if err != nil {
		return nil, err
	}
	return newGroupState(group, "sql", records), nil
}

// GetAll returns every stock group known to SQL.
func (m *Manager) GetAll(ctx context.Context) ([]*GroupState, error) {
	records, err := m.db.ListStock(ctx)
	if err != nil {
		return nil, err
	}
	byGroup := groupRecords(records)
	keys := make([]string, 0, len(byGroup))
	for k := range byGroup {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*GroupState, 0, len(keys))
	for _, k := range keys {
		out = append(out, newGroupState(k, "sql", byGroup[k]))
	}
	return out, nil
}

// SetMeta updates status and capacity of a destination and refreshes its group.
func (m *Manager) SetMeta(ctx context.Context, group, destID, status string, capacity float64) error {
	if err := m.db.UpsertStockMeta(ctx, group, destID, status, capacity); err != nil {
		return err
	}
	m.Refresh(ctx, group)
	return nil
}

// ApplyCorrection records a manual correction and refreshes its group.
func (m *Manager) ApplyCorrection(ctx context.Context, c *store.Correction) (before, after float64, err error) {
	before, after, err = m.db.CreateCorrection(ctx, c)
	if err != nil {
		return 0, 0, err
	}
	m.Refresh(ctx, c.GroupKey)
	return before, after, nil
}

// Refresh copies one group from SQL into Redis.
func (m *Manager) Refresh(ctx context.Context, group string) {
	if m.redis == nil {
		return
	}
	records, err := m.db.ListStockGroup(ctx, group)
	if err != nil {
		log.Printf("stockstate: refresh %s: %v", group, err)
		return
	}
	if err := m.redis.SetGroup(ctx, group, records); err != nil {
		log.Printf("stockstate: refresh %s: %v", group, err)
	}
}

// SyncRedisFromSQL rebuilds all Redis state from SQL. Called on startup.
func (m *Manager) SyncRedisFromSQL(ctx context.Context) error {
	if m.redis == nil {
		return nil
	}
	if err := m.redis.FlushAll(ctx); err != nil {
		return err
	}
	records, err := m.db.ListStock(ctx)
	if err != nil {
		return err
	}
	byGroup := groupRecords(records)
	for group, recs := range byGroup {
		if err := m.redis.SetGroup(ctx, group, recs); err != nil {
			log.Printf("stockstate: sync %s: %v", group, err)
		}
	}
	log.Printf("stockstate: synced %d groups to redis", len(byGroup))
	return nil
}

func groupRecords(records []store.StockRecord) map[string][]store.StockRecord {
	out := make(map[string][]store.StockRecord)
	for _, r := range records {
		out[r.GroupKey] = append(out[r.GroupKey], r)
	}
	return out
}
