package insights

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/jscharber/costlens/pkg/config"
	"github.com/jscharber/costlens/pkg/costdata"
)

// ResultCache holds recent workflow results keyed by client, date range and
// a fingerprint of the underlying cost data. A changed fingerprint misses
// the cache, so re-collected data always triggers fresh analysis.
type ResultCache struct {
	lru *expirable.LRU[string, *AIInsights]
}

// NewResultCache creates a TTL-bounded LRU cache for workflow results.
func NewResultCache(cfg config.InsightsConfig) *ResultCache {
	if cfg.CacheSize <= 0 {
		cfg = config.Default().Insights
	}
	return &ResultCache{
		lru: expirable.NewLRU[string, *AIInsights](cfg.CacheSize, nil, cfg.CacheTTL),
	}
}

// Get returns a cached result for the key, if fresh.
func (c *ResultCache) Get(key string) (*AIInsights, bool) {
	return c.lru.Get(key)
}

// Put stores a workflow result under the key.
func (c *ResultCache) Put(key string, result *AIInsights) {
	c.lru.Add(key, result)
}

// Len returns the number of live cache entries.
func (c *ResultCache) Len() int {
	return c.lru.Len()
}

// CacheKey builds the cache key for a client, range and record set.
func CacheKey(clientID string, dateRange costdata.DateRange, records []*costdata.UnifiedCostRecord) string {
	return clientID + "|" + dateRange.Start + ".." + dateRange.End + "|" + Fingerprint(records)
}

// Fingerprint hashes the record keys and totals so any re-collection that
// changed the data produces a different key.
func Fingerprint(records []*costdata.UnifiedCostRecord) string {
	lines := make([]string, 0, len(records))
	for _, record := range records {
		lines = append(lines, fmt.Sprintf("%s=%.6f", record.Key(), record.TotalCost))
	}
	sort.Strings(lines)

	hash := sha256.New()
	for _, line := range lines {
		hash.Write([]byte(line))
		hash.Write([]byte{'\n'})
	}
	return hex.EncodeToString(hash.Sum(nil))
}
