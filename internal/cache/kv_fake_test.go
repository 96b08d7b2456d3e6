package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeKVStore 仅用于单元测试（内存 KV，记录 TTL）
type fakeKVStore struct {
	mu   sync.Mutex
	data map[string]fakeKVItem
	err  error
}

type fakeKVItem struct {
	value string
	ttl   time.Duration
}

func newFakeKVStore() *fakeKVStore {
	return &fakeKVStore{data: make(map[string]fakeKVItem)}
}

func (f *fakeKVStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	f.data[key] = fakeKVItem{value: value, ttl: ttl}
	return nil
}

func (f *fakeKVStore) get(key string) (fakeKVItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.data[key]
	return item, ok
}

var errUnavailable = errors.New("kv unavailable")
