package catalog

import (
	"context"
	"time"

	"ai_selector/internal/cache"
	"ai_selector/internal/utils"
)

const snapshotKey = "catalog"

// CachedSource serves a catalog snapshot for up to ttl before reloading it from
// the wrapped source. When a reload fails the previous snapshot keeps being
// served, so callers see stale data rather than an outage. Concurrent reloads
// may race; the last one to finish wins.
type CachedSource struct {
	source Source
	cache  *cache.LRU[string, *Catalog]
	logger *utils.Logger
}

// NewCachedSource wraps source with a TTL cache.
func NewCachedSource(source Source, ttl time.Duration) *CachedSource {
	return &CachedSource{
		source: source,
		cache:  cache.New[string, *Catalog](1, ttl),
		logger: utils.NewLogger("catalog"),
	}
}

// WithClock replaces the cache time source. Intended for tests.
func (s *CachedSource) WithClock(now func() time.Time) *CachedSource {
	s.cache.WithClock(now)
	return s
}

func (s *CachedSource) Load(ctx context.Context) (*Catalog, error) {
	cached, present, fresh := s.cache.Peek(snapshotKey)
	if present && fresh {
		return cached, nil
	}

	c, err := s.source.Load(ctx)
	if err != nil {
		if present {
			s.logger.Warn("Catalog reload failed, serving previous snapshot", "error", err)
			return cached, nil
		}
		return nil, err
	}

	s.cache.Set(snapshotKey, c)
	s.logger.Debug("Catalog loaded", "providers", c.Len())
	return c, nil
}

// Invalidate forces the next Load to hit the wrapped source.
func (s *CachedSource) Invalidate() {
	s.cache.Clear()
}
