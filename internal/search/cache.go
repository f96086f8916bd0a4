package search

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vstream/video-platform-back/internal/domain"
)

type cacheEntry struct {
	results   []domain.SearchResult
	createdAt time.Time
	expiresAt time.Time
}

type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

// ResultsCache keeps recently computed rankings keyed by owner+query so
// a burst of identical submissions does not rescore the same corpus. It
// is an optimization only: job state never depends on a cache hit.
type ResultsCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
}

func NewResultsCache(config CacheConfig) *ResultsCache {
	if config.TTL <= 0 {
		config.TTL = 5 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 1000
	}
	return &ResultsCache{
		entries:    make(map[string]cacheEntry),
		ttl:        config.TTL,
		maxEntries: config.MaxEntries,
	}
}

func (c *ResultsCache) Get(signature string) ([]domain.SearchResult, bool) {
	c.mu.RLock()
	entry, exists := c.entries[signature]
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}
	if time.Now().UTC().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, signature)
		c.mu.Unlock()
		return nil, false
	}
	return append([]domain.SearchResult(nil), entry.results...), true
}

func (c *ResultsCache) Set(signature string, results []domain.SearchResult) {
	now := time.Now().UTC()
	entry := cacheEntry{
		results:   append([]domain.SearchResult(nil), results...),
		createdAt: now,
		expiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[signature] = entry
}

// Signature builds a stable cache key from its normalized parts.
func Signature(parts ...string) string {
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		normalized = append(normalized, strings.TrimSpace(strings.ToLower(part)))
	}
	sum := sha256.Sum256([]byte(strings.Join(normalized, "||")))
	return hex.EncodeToString(sum[:])
}

func (c *ResultsCache) evictOldest() {
	if len(c.entries) == 0 {
		return
	}

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].createdAt.Before(c.entries[keys[j]].createdAt)
	})
	delete(c.entries, keys[0])
}
