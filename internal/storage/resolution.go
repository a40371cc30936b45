package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
)

// CommitResolution applies one label decision in a single transaction:
// optional product creation, listing links and the label cache write.
func (db *DB) CommitResolution(ctx context.Context, r domain.Resolution) (domain.CommitResult, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return domain.CommitResult{}, fmt.Errorf(errBeginTx, err)
	}

	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // rollback after commit returns error, this is best-effort cleanup
	}()

	res, err := commitResolutionTx(ctx, tx, r)
	if err != nil {
		return domain.CommitResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.CommitResult{}, fmt.Errorf(errCommitTx, err)
	}

	return res, nil
}

// commitResolutionTx serializes writers of the same label with a
// transaction-scoped advisory lock, then lets an existing resolved entry win
// unless the new resolution is manual. A manual resolution that changes the
// product also moves the listings linked to the previous one.
//
// mocks.Catalog.commitLocked mirrors these rules for the service tests; keep
// both in step.
func commitResolutionTx(ctx context.Context, tx pgx.Tx, r domain.Resolution) (domain.CommitResult, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::bigint::text || ':' || $2::text, 0))`, r.SupplierID, r.NormalizedLabel); err != nil {
		return domain.CommitResult{}, fmt.Errorf("lock label: %w", err)
	}

	existing, err := lockLabel(ctx, tx, r.Key())
	if err != nil {
		return domain.CommitResult{}, err
	}

	var res domain.CommitResult

	switch {
	case existing.Resolved() && r.Source != domain.SourceManual:
		res.ProductID = existing.ProductID
		res.Superseded = true
	case existing != nil && existing.Source == domain.SourceManual && r.Source != domain.SourceManual:
		res.Superseded = true
	case r.ProductID != nil:
		res.ProductID = r.ProductID
	case r.NewProduct != nil:
		id, err := insertProduct(ctx, tx, *r.NewProduct)
		if err != nil {
			return domain.CommitResult{}, err
		}

		res.ProductID = &id
		res.Created = true
	}

	if res.ProductID != nil {
		linked, err := linkListings(ctx, tx, r.ListingIDs, *res.ProductID)
		if err != nil {
			return domain.CommitResult{}, err
		}

		res.Linked = linked
	}

	if movesProduct(existing, r, res.ProductID) {
		moved, err := relinkListings(ctx, tx, r.RelinkIDs, *existing.ProductID, *res.ProductID)
		if err != nil {
			return domain.CommitResult{}, err
		}

		res.Linked += moved
	}

	if res.Superseded {
		return res, nil
	}

	err = upsertLabel(ctx, tx, domain.LabelCacheEntry{
		SupplierID:      r.SupplierID,
		NormalizedLabel: r.NormalizedLabel,
		ProductID:       res.ProductID,
		Score:           r.Score,
		Source:          r.Source,
		Attributes:      r.Attributes,
	})
	if err != nil {
		return domain.CommitResult{}, err
	}

	return res, nil
}

func movesProduct(existing *domain.LabelCacheEntry, r domain.Resolution, productID *int64) bool {
	return r.Source == domain.SourceManual &&
		existing.Resolved() &&
		productID != nil &&
		*existing.ProductID != *productID
}
