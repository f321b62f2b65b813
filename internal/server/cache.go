package server

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/trinitydb/trinity/internal/events"
)

const (
	cacheNumCounters = 1e5
	cacheMaxCost     = 1 << 24 // 16MB of rendered responses
	cacheBufferItems = 64
)

// responseCache holds rendered merge-status and conflict-list responses.
// Entries expire on TTL and are dropped eagerly when the engine publishes
// an event for the merge.
type responseCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func newResponseCache(ttl time.Duration, bus *events.Bus) (*responseCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		return nil, err
	}

	rc := &responseCache{cache: c, ttl: ttl}
	if bus != nil {
		bus.Subscribe("", func(ev events.Event) {
			if ev.MergeID != "" {
				rc.invalidate(ev.MergeID)
			}
		})
	}
	return rc, nil
}

func (rc *responseCache) get(key string) ([]byte, bool) {
	v, ok := rc.cache.Get(key)
	if !ok {
		return nil, false
	}
	body, ok := v.([]byte)
	return body, ok
}

func (rc *responseCache) set(key string, body []byte) {
	rc.cache.SetWithTTL(key, body, int64(len(body)), rc.ttl)
}

func (rc *responseCache) invalidate(mergeID string) {
	rc.cache.Del("status:" + mergeID)
	rc.cache.Del("conflicts:" + mergeID)
}

func (rc *responseCache) close() {
	rc.cache.Close()
}
