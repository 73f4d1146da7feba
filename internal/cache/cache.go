// Package cache implements the sharded, single-flight memoization used in
// front of parse, validate, normalize and plan: concurrent misses on the
// same key collapse into one computation, per shard.
package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/graphql-hive/federation-router/internal/fingerprint"
)

const defaultShardCount = 16

// Sharded is a fingerprint-keyed cache of fixed capacity per shard, with a
// singleflight group per shard so concurrent misses on the same key run
// the loader exactly once.
type Sharded[V any] struct {
	shards []*shard[V]
}

type shard[V any] struct {
	mu    sync.Mutex
	lru   *lru.Cache[fingerprint.Fingerprint, V]
	group singleflight.Group
}

// New builds a sharded cache with the given per-shard capacity: each of
// the defaultShardCount shards holds up to capacityPerShard entries.
func New[V any](capacityPerShard int) *Sharded[V] {
	s := &Sharded[V]{shards: make([]*shard[V], defaultShardCount)}
	for i := range s.shards {
		l, err := lru.New[fingerprint.Fingerprint, V](capacityPerShard)
		if err != nil {
			panic(err)
		}
		s.shards[i] = &shard[V]{lru: l}
	}
	return s
}

func (s *Sharded[V]) shardFor(key fingerprint.Fingerprint) *shard[V] {
	return s.shards[key.Shard(len(s.shards))]
}

// Get returns a cached value and whether it was present.
func (s *Sharded[V]) Get(key fingerprint.Fingerprint) (V, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.lru.Get(key)
}

// GetOrLoad returns the cached value for key, or computes it via load,
// guaranteeing load runs at most once concurrently per key per shard.
// Errors are never cached.
func (s *Sharded[V]) GetOrLoad(key fingerprint.Fingerprint, load func() (V, error)) (V, error) {
	sh := s.shardFor(key)

	sh.mu.Lock()
	if v, ok := sh.lru.Get(key); ok {
		sh.mu.Unlock()
		return v, nil
	}
	sh.mu.Unlock()

	groupKey := keyString(key)
	v, err, _ := sh.group.Do(groupKey, func() (any, error) {
		// Re-check: another goroutine may have populated it while we
		// waited to enter the singleflight group.
		sh.mu.Lock()
		if v, ok := sh.lru.Get(key); ok {
			sh.mu.Unlock()
			return v, nil
		}
		sh.mu.Unlock()

		val, err := load()
		if err != nil {
			return val, err
		}

		sh.mu.Lock()
		sh.lru.Add(key, val)
		sh.mu.Unlock()
		return val, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Purge evicts every entry, used when a schema generation is replaced
// (§9: "Caches are sharded but do not count — they are per-SchemaState and
// tossed on reload").
func (s *Sharded[V]) Purge() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.lru.Purge()
		sh.mu.Unlock()
	}
}

func keyString(key fingerprint.Fingerprint) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	v := uint64(key)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}
