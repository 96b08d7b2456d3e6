package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotCache 将 raw/data 与 profile 快照以 JSON 镜像到 KV 存储
// 只写：服务自身从不读回，外部消费者直接读取这些 key
//
// Key 格式:
//   - <prefix>:raw
//   - <prefix>:profile:<name>
type SnapshotCache struct {
	kv     KVStore
	prefix string
	ttl    time.Duration
}

// NewSnapshotCache 创建 SnapshotCache，prefix 为空时使用 "pcc"
func NewSnapshotCache(kv KVStore, prefix string, ttl time.Duration) *SnapshotCache {
	if prefix == "" {
		prefix = "pcc"
	}
	return &SnapshotCache{kv: kv, prefix: prefix, ttl: ttl}
}

// RawKey raw/data 快照的 key
func (c *SnapshotCache) RawKey() string {
	return c.prefix + ":raw"
}

// ProfileKey profile 快照的 key
func (c *SnapshotCache) ProfileKey(name string) string {
	return c.prefix + ":profile:" + name
}

// SaveRaw 写入最新值快照
func (c *SnapshotCache) SaveRaw(ctx context.Context, snapshot any) error {
	return c.save(ctx, c.RawKey(), snapshot)
}

// SaveProfile 写入 profile 快照
func (c *SnapshotCache) SaveProfile(ctx context.Context, name string, snapshot any) error {
	return c.save(ctx, c.ProfileKey(name), snapshot)
}

func (c *SnapshotCache) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", key, err)
	}
	if err := c.kv.Set(ctx, key, string(data), c.ttl); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", key, err)
	}
	return nil
}
