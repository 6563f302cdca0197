package stockstate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"unloadtrack/store"
)

const (
	keyPrefix = "unloadtrack:stock:"
	groupsKey = "unloadtrack:stock-groups"
)

// RedisStore keeps one hash per stock group: field = destination id,
// value = JSON stock record.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func groupKey(group string) string { return keyPrefix + group }

// SetGroup replaces the cached group with records.
func (r *RedisStore) SetGroup(ctx context.Context, group string, records []store.StockRecord) error {
	fields := make(map[string]any, len(records))
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", group, rec.DestID, err)
		}
		fields[rec.DestID] = data
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, groupKey(group))
	if len(fields) > 0 {
		pipe.HSet(ctx, groupKey(group), fields)
	}
	pipe.SAdd(ctx, groupsKey, group)
	_, err := pipe.Exec(ctx)
	return err
}

// GetGroup returns the cached records sorted by destination id. ok is false
// when the group has never been cached.
func (r *RedisStore) GetGroup(ctx context.Context, group string) (records []store.StockRecord, ok bool, err error) {
	known, err := r.client.SIsMember(ctx, groupsKey, group).Result()
	if err != nil || !known {
		return nil, false, err
	}
	raw, err := r.client.HGetAll(ctx, groupKey(group)).Result()
	if err != nil {
		return nil, false, err
	}
	records = make([]store.StockRecord, 0, len(raw))
	for dest, v := range raw {
		var rec store.StockRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, false, fmt.Errorf("decode %s/%s: %w", group, dest, err)
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].DestID < records[j].DestID })
	return records, true, nil
}

func (r *RedisStore) Groups(ctx context.Context) ([]string, error) {
	groups, err := r.client.SMembers(ctx, groupsKey).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(groups)
	return groups, nil
}

// FlushAll drops every cached group.
func (r *RedisStore) FlushAll(ctx context.Context) error {
	groups, err := r.client.SMembers(ctx, groupsKey).Result()
	if err != nil {
		return err
	}
	keys := []string{groupsKey}
	for _, g := range groups {
		keys = append(keys, groupKey(g))
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
