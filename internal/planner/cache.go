package planner

import (
	"github.com/graphql-hive/federation-router/internal/cache"
	"github.com/graphql-hive/federation-router/internal/fingerprint"
)

// Cache memoizes plans by plan_cache_key = hash(normalized_operation_canonical_form),
// scoped to one schema generation: callers purge it wholesale on reload.
type Cache struct {
	plans *cache.Sharded[*Plan]
}

// NewCache builds a plan cache with capacityPerShard entries per shard.
func NewCache(capacityPerShard int) *Cache {
	return &Cache{plans: cache.New[*Plan](capacityPerShard)}
}

// GetOrBuild returns a cached plan for canonicalForm, building it via
// build on a miss. Concurrent misses on the same key collapse to one build.
func (c *Cache) GetOrBuild(canonicalForm string, build func() (*Plan, error)) (*Plan, error) {
	key := fingerprint.OfCanonicalOperation(canonicalForm)
	return c.plans.GetOrLoad(key, build)
}

// Purge evicts every cached plan, called on schema reload.
func (c *Cache) Purge() { c.plans.Purge() }
