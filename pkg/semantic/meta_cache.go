package semantic

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"
)

const (
	// DefaultMetaCacheTTL bounds how stale the schema context handed to the LLM can be.
	DefaultMetaCacheTTL = 5 * time.Minute

	metaCacheKey = "meta"
)

// MetaFetcher fetches cube metadata. Implemented by *Client.
type MetaFetcher interface {
	Meta(ctx context.Context) (*Meta, error)
}

// MetaCache caches /meta responses for a fixed TTL.
// Concurrent misses are collapsed into a single fetch.
type MetaCache struct {
	fetcher MetaFetcher
	ttl     time.Duration
	cache   *ttlcache.Cache[string, *Meta]
	fetchMu sync.Mutex
	logger  *zap.Logger
}

// NewMetaCache creates a cache in front of fetcher. A non-positive ttl uses DefaultMetaCacheTTL.
func NewMetaCache(fetcher MetaFetcher, ttl time.Duration, logger *zap.Logger) *MetaCache {
	if ttl <= 0 {
		ttl = DefaultMetaCacheTTL
	}
	return &MetaCache{
		fetcher: fetcher,
		ttl:     ttl,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, *Meta](ttl),
			ttlcache.WithDisableTouchOnHit[string, *Meta](),
		),
		logger: logger.Named("meta-cache"),
	}
}

// Get returns cached metadata, fetching it when missing or expired.
func (m *MetaCache) Get(ctx context.Context) (*Meta, error) {
	if item := m.cache.Get(metaCacheKey); item != nil {
		return item.Value(), nil
	}

	m.fetchMu.Lock()
	defer m.fetchMu.Unlock()

	if item := m.cache.Get(metaCacheKey); item != nil {
		return item.Value(), nil
	}

	meta, err := m.fetcher.Meta(ctx)
	if err != nil {
		return nil, err
	}
	m.cache.Set(metaCacheKey, meta, ttlcache.DefaultTTL)
	m.logger.Debug("Cached semantic layer meta",
		zap.Int("cubes", len(meta.Cubes)),
		zap.Duration("ttl", m.ttl))
	return meta, nil
}

// SchemaContext returns the cached metadata formatted for LLM prompts.
func (m *MetaCache) SchemaContext(ctx context.Context) (string, error) {
	meta, err := m.Get(ctx)
	if err != nil {
		return "", err
	}
	return FormatMetaForLLM(meta), nil
}

// Invalidate drops the cached metadata so the next Get refetches.
func (m *MetaCache) Invalidate() {
	m.cache.Delete(metaCacheKey)
}
