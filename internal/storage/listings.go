package db

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
)

// ListUnresolvedListings returns listings that are not linked to a product,
// ordered by id so AfterID pages are stable.
func (db *DB) ListUnresolvedListings(ctx context.Context, filter domain.ListingFilter) ([]domain.Listing, error) {
	return db.listListings(ctx, nil, filter)
}

// ListLinkedListings returns the listings linked to a product, ordered by id.
func (db *DB) ListLinkedListings(ctx context.Context, productID int64, filter domain.ListingFilter) ([]domain.Listing, error) {
	return db.listListings(ctx, &productID, filter)
}

func (db *DB) listListings(ctx context.Context, productID *int64, filter domain.ListingFilter) ([]domain.Listing, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "supplier_id", "label", "ean", "part_number", "supplier_sku", "created_at")
	sb.From("supplier_listings")

	where := []string{sb.IsNull("product_id")}
	if productID != nil {
		where = []string{sb.Equal("product_id", *productID)}
	}

	if filter.SupplierID != nil {
		where = append(where, sb.Equal("supplier_id", *filter.SupplierID))
	}

	if filter.AfterID > 0 {
		where = append(where, sb.GreaterThan("id", filter.AfterID))
	}

	sb.Where(where...)
	sb.OrderBy("id")

	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}

	query, args := sb.Build()

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var listings []domain.Listing

	for rows.Next() {
		var (
			l                            domain.Listing
			ean, partNumber, supplierSKU pgtype.Text
			createdAt                    pgtype.Timestamptz
		)

		if err := rows.Scan(&l.ID, &l.SupplierID, &l.Label, &ean, &partNumber, &supplierSKU, &createdAt); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}

		l.EAN = fromText(ean)
		l.PartNumber = fromText(partNumber)
		l.SupplierSKU = fromText(supplierSKU)
		l.CreatedAt = fromTimestamptz(createdAt)
		listings = append(listings, l)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate listings: %w", rows.Err())
	}

	return listings, nil
}

// LinkListings points still-unlinked listings at a product and returns how
// many rows changed. Listings already linked are left alone.
func (db *DB) LinkListings(ctx context.Context, listingIDs []int64, productID int64) (int64, error) {
	return linkListings(ctx, db.Pool, listingIDs, productID)
}

func linkListings(ctx context.Context, q querier, listingIDs []int64, productID int64) (int64, error) {
	if len(listingIDs) == 0 {
		return 0, nil
	}

	tag, err := q.Exec(ctx, `
		UPDATE supplier_listings
		SET product_id = $1
		WHERE id = ANY($2) AND product_id IS NULL
	`, productID, listingIDs)
	if err != nil {
		return 0, fmt.Errorf("link listings: %w", err)
	}

	return tag.RowsAffected(), nil
}

// relinkListings moves listings from one product to another. Listings no
// longer linked to from are left alone.
func relinkListings(ctx context.Context, q querier, listingIDs []int64, from, to int64) (int64, error) {
	if len(listingIDs) == 0 {
		return 0, nil
	}

	tag, err := q.Exec(ctx, `
		UPDATE supplier_listings
		SET product_id = $1
		WHERE id = ANY($2) AND product_id = $3
	`, to, listingIDs, from)
	if err != nil {
		return 0, fmt.Errorf("relink listings: %w", err)
	}

	return tag.RowsAffected(), nil
}
