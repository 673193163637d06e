package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/kapu/sales-intel-go/internal/domain"
	"go.uber.org/zap"
)

const autofillKeyPrefix = "salesintel:autofill:"

// JSONStore is the subset of CacheService the autofill cache needs.
type JSONStore interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

type AutofillEntry struct {
	Result   domain.AutofillResult `json:"result"`
	Provider string                `json:"provider"`
	Model    string                `json:"model"`
	CachedAt time.Time             `json:"cachedAt"`
}

// AutofillCache remembers autofill answers per ordered URL list.
type AutofillCache struct {
	store  JSONStore
	ttl    time.Duration
	logger *zap.Logger
}

func NewAutofillCache(store JSONStore, ttl time.Duration, logger *zap.Logger) *AutofillCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AutofillCache{store: store, ttl: ttl, logger: logger}
}

// AutofillCacheKey hashes the trimmed URLs in order, so a reordered list is a
// different entry.
func AutofillCacheKey(urls []string) string {
	h := sha256.New()
	for _, u := range urls {
		h.Write([]byte(strings.TrimSpace(u)))
		h.Write([]byte{'\n'})
	}
	return autofillKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (c *AutofillCache) Get(ctx context.Context, urls []string) (*AutofillEntry, bool, error) {
	key := AutofillCacheKey(urls)

	var entry AutofillEntry
	found, err := c.store.Get(ctx, key, &entry)
	if err != nil || !found {
		return nil, false, err
	}

	c.logger.Debug("Autofill cache hit", zap.String("key", key))
	return &entry, true, nil
}

// Set stores entry under the URL list. A non-positive TTL disables caching;
// Redis would otherwise keep the key forever.
func (c *AutofillCache) Set(ctx context.Context, urls []string, entry AutofillEntry) error {
	if c.ttl <= 0 {
		return nil
	}
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now()
	}
	return c.store.Set(ctx, AutofillCacheKey(urls), entry, c.ttl)
}

func (c *AutofillCache) Invalidate(ctx context.Context, urls []string) error {
	return c.store.Del(ctx, AutofillCacheKey(urls))
}
