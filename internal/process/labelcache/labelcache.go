// Package labelcache memoizes label resolutions per (supplier, normalized label).
//
// Postgres is the system of record. An optional front layer (redis) serves
// resolved entries; it is filled on read and invalidated on every write, so
// a stale front entry can never shadow a manual override.
package labelcache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	"github.com/lueurxax/catalog-resolver/internal/platform/observability"
)

const (
	layerFront = "front"
	layerStore = "store"

	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"

	logKeySupplier = "supplier_id"
	logKeyLabel    = "label"
)

// Store is the persistent label cache.
// LookupLabel returns nil without error on a miss.
// UpsertLabel never replaces a manual entry with a non-manual one.
type Store interface {
	LookupLabel(ctx context.Context, supplierID int64, normalizedLabel string) (*domain.LabelCacheEntry, error)
	UpsertLabel(ctx context.Context, entry domain.LabelCacheEntry) error
	ListLabelsBySupplier(ctx context.Context, supplierID int64) ([]domain.LabelCacheEntry, error)
}

// Front is a best-effort read-through layer in front of the Store.
// Get returns nil without error on a miss.
type Front interface {
	Get(ctx context.Context, key domain.LabelKey) (*domain.LabelCacheEntry, error)
	Set(ctx context.Context, entry domain.LabelCacheEntry) error
	Delete(ctx context.Context, keys ...domain.LabelKey) error
}

// Cache combines the store and the optional front.
type Cache struct {
	store  Store
	front  Front
	logger *zerolog.Logger
}

// New creates a Cache. front may be nil.
func New(store Store, front Front, logger *zerolog.Logger) *Cache {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Cache{store: store, front: front, logger: logger}
}

// Lookup returns the cached resolution of a label, or nil on a miss.
func (c *Cache) Lookup(ctx context.Context, supplierID int64, normalizedLabel string) (*domain.LabelCacheEntry, error) {
	key := domain.LabelKey{SupplierID: supplierID, NormalizedLabel: normalizedLabel}

	if c.front != nil {
		entry, err := c.front.Get(ctx, key)

		switch {
		case err != nil:
			observability.LabelCacheLookups.WithLabelValues(layerFront, resultError).Inc()
			c.logger.Warn().Err(err).Int64(logKeySupplier, supplierID).Str(logKeyLabel, normalizedLabel).Msg("label cache front read failed")
		case entry != nil:
			observability.LabelCacheLookups.WithLabelValues(layerFront, resultHit).Inc()
			return entry, nil
		default:
			observability.LabelCacheLookups.WithLabelValues(layerFront, resultMiss).Inc()
		}
	}

	entry, err := c.store.LookupLabel(ctx, supplierID, normalizedLabel)
	if err != nil {
		observability.LabelCacheLookups.WithLabelValues(layerStore, resultError).Inc()
		return nil, fmt.Errorf("lookup label cache: %w", err)
	}

	if entry == nil {
		observability.LabelCacheLookups.WithLabelValues(layerStore, resultMiss).Inc()
		return nil, nil
	}

	observability.LabelCacheLookups.WithLabelValues(layerStore, resultHit).Inc()

	if c.front != nil && entry.Resolved() {
		if err := c.front.Set(ctx, *entry); err != nil {
			c.logger.Warn().Err(err).Int64(logKeySupplier, supplierID).Msg("label cache front fill failed")
		}
	}

	return entry, nil
}

// Upsert writes an entry. Manual entries already stored are kept.
func (c *Cache) Upsert(ctx context.Context, entry domain.LabelCacheEntry) error {
	if err := c.store.UpsertLabel(ctx, entry); err != nil {
		return fmt.Errorf("upsert label cache: %w", err)
	}

	c.Forget(ctx, domain.LabelKey{SupplierID: entry.SupplierID, NormalizedLabel: entry.NormalizedLabel})

	return nil
}

// ListBySupplier returns every cached entry of a supplier.
func (c *Cache) ListBySupplier(ctx context.Context, supplierID int64) ([]domain.LabelCacheEntry, error) {
	entries, err := c.store.ListLabelsBySupplier(ctx, supplierID)
	if err != nil {
		return nil, fmt.Errorf("list label cache: %w", err)
	}

	return entries, nil
}

// Forget drops keys from the front layer. Callers that write the store
// through their own transaction call it after commit.
func (c *Cache) Forget(ctx context.Context, keys ...domain.LabelKey) {
	if c.front == nil || len(keys) == 0 {
		return
	}

	if err := c.front.Delete(ctx, keys...); err != nil {
		c.logger.Warn().Err(err).Int("keys", len(keys)).Msg("label cache front invalidation failed")
	}
}
