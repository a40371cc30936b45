package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
)

const labelCacheColumns = `supplier_id, normalized_label, product_id, score, source, attributes, created_at, last_used_at`

// LookupLabel returns the cache entry of a label and refreshes its
// last-used time. A miss returns nil without error.
func (db *DB) LookupLabel(ctx context.Context, supplierID int64, normalizedLabel string) (*domain.LabelCacheEntry, error) {
	entry, err := scanLabelCacheEntry(db.Pool.QueryRow(ctx, `
		UPDATE label_cache
		SET last_used_at = now()
		WHERE supplier_id = $1 AND normalized_label = $2
		RETURNING `+labelCacheColumns,
		supplierID, normalizedLabel))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil,nil indicates a cache miss
		}

		return nil, fmt.Errorf("lookup label cache: %w", err)
	}

	return entry, nil
}

// UpsertLabel writes a cache entry. A stored manual entry is only replaced
// by another manual entry.
func (db *DB) UpsertLabel(ctx context.Context, entry domain.LabelCacheEntry) error {
	return upsertLabel(ctx, db.Pool, entry)
}

// The WHERE clause of the conflict update holds the manual precedence rule;
// mocks.Catalog.UpsertLabel applies the same rule in memory.
func upsertLabel(ctx context.Context, q querier, entry domain.LabelCacheEntry) error {
	attrs, err := marshalAttributes(entry.Attributes)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		INSERT INTO label_cache (supplier_id, normalized_label, product_id, score, source, attributes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (supplier_id, normalized_label) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			score = EXCLUDED.score,
			source = EXCLUDED.source,
			attributes = COALESCE(EXCLUDED.attributes, label_cache.attributes),
			last_used_at = now()
		WHERE label_cache.source <> 'manual' OR EXCLUDED.source = 'manual'
	`, entry.SupplierID, entry.NormalizedLabel, toInt8Ptr(entry.ProductID), entry.Score, string(entry.Source), attrs)
	if err != nil {
		return fmt.Errorf("upsert label cache: %w", err)
	}

	return nil
}

// ListLabelsBySupplier returns all cache entries of a supplier.
func (db *DB) ListLabelsBySupplier(ctx context.Context, supplierID int64) ([]domain.LabelCacheEntry, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+labelCacheColumns+`
		FROM label_cache
		WHERE supplier_id = $1
		ORDER BY normalized_label
	`, supplierID)
	if err != nil {
		return nil, fmt.Errorf("list label cache: %w", err)
	}
	defer rows.Close()

	var entries []domain.LabelCacheEntry

	for rows.Next() {
		e, err := scanLabelCacheEntry(rows)
		if err != nil {
			return nil, err
		}

		entries = append(entries, *e)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate label cache: %w", rows.Err())
	}

	return entries, nil
}

// lockLabel reads the cache row of a label FOR UPDATE inside a transaction.
func lockLabel(ctx context.Context, tx pgx.Tx, key domain.LabelKey) (*domain.LabelCacheEntry, error) {
	entry, err := scanLabelCacheEntry(tx.QueryRow(ctx, `
		SELECT `+labelCacheColumns+`
		FROM label_cache
		WHERE supplier_id = $1 AND normalized_label = $2
		FOR UPDATE
	`, key.SupplierID, key.NormalizedLabel))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil //nolint:nilnil // nil,nil indicates no cached row
		}

		return nil, fmt.Errorf("lock label cache: %w", err)
	}

	return entry, nil
}

func scanLabelCacheEntry(row pgx.Row) (*domain.LabelCacheEntry, error) {
	var (
		e         domain.LabelCacheEntry
		productID pgtype.Int8
		source    string
		attrs     []byte
		createdAt pgtype.Timestamptz
		lastUsed  pgtype.Timestamptz
	)

	if err := row.Scan(&e.SupplierID, &e.NormalizedLabel, &productID, &e.Score, &source, &attrs, &createdAt, &lastUsed); err != nil {
		return nil, fmt.Errorf("scan label cache: %w", err)
	}

	e.ProductID = fromInt8Ptr(productID)
	e.Source = domain.ResolutionSource(source)
	e.CreatedAt = fromTimestamptz(createdAt)
	e.LastUsedAt = fromTimestamptz(lastUsed)

	if len(attrs) > 0 {
		var a domain.Attributes
		if err := json.Unmarshal(attrs, &a); err != nil {
			return nil, fmt.Errorf("decode label cache attributes: %w", err)
		}

		e.Attributes = &a
	}

	return &e, nil
}

func marshalAttributes(a *domain.Attributes) ([]byte, error) {
	if a == nil {
		return nil, nil
	}

	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}

	return data, nil
}
