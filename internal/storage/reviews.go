package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
)

const reviewColumns = `id, supplier_id, listing_id, source_label, normalized_label, attributes, candidates, status, product_id, created_at, decided_at`

// CreateReview queues a label for human review. When the label already has
// an open review the existing id is returned with created=false.
func (db *DB) CreateReview(ctx context.Context, entry domain.ReviewEntry) (id string, created bool, err error) {
	attrs, err := json.Marshal(entry.Attributes)
	if err != nil {
		return "", false, fmt.Errorf("encode review attributes: %w", err)
	}

	candidates := entry.Candidates
	if candidates == nil {
		candidates = []domain.MatchCandidate{}
	}

	cands, err := json.Marshal(candidates)
	if err != nil {
		return "", false, fmt.Errorf("encode review candidates: %w", err)
	}

	newID := uuid.New()

	var inserted pgtype.UUID

	err = db.Pool.QueryRow(ctx, `
		INSERT INTO pending_reviews (id, supplier_id, listing_id, source_label, normalized_label, attributes, candidates, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		ON CONFLICT (supplier_id, normalized_label) WHERE status IN ('pending', 'rejected') DO NOTHING
		RETURNING id
	`, newID, entry.SupplierID, entry.ListingID, SanitizeUTF8(entry.SourceLabel), entry.NormalizedLabel, attrs, cands).Scan(&inserted)
	if err == nil {
		return uuid.UUID(inserted.Bytes).String(), true, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("insert review: %w", err)
	}

	err = db.Pool.QueryRow(ctx, `
		SELECT id FROM pending_reviews
		WHERE supplier_id = $1 AND normalized_label = $2 AND status IN ('pending', 'rejected')
	`, entry.SupplierID, entry.NormalizedLabel).Scan(&inserted)
	if err != nil {
		return "", false, fmt.Errorf("find open review: %w", err)
	}

	return uuid.UUID(inserted.Bytes).String(), false, nil
}

// GetReview returns one review entry.
func (db *DB) GetReview(ctx context.Context, id string) (domain.ReviewEntry, error) {
	return getReview(ctx, db.Pool, id, false)
}

func getReview(ctx context.Context, q querier, id string, forUpdate bool) (domain.ReviewEntry, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return domain.ReviewEntry{}, fmt.Errorf("%w: review id %q", coreerrors.ErrInvalidInput, id)
	}

	query := `SELECT ` + reviewColumns + ` FROM pending_reviews WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	entry, err := scanReview(q.QueryRow(ctx, query, uid))
	if err != nil {
		return domain.ReviewEntry{}, notFound(err, ErrReviewNotFound)
	}

	return entry, nil
}

// ListReviews returns reviews with the given status, oldest first.
func (db *DB) ListReviews(ctx context.Context, status domain.ReviewStatus, limit int) ([]domain.ReviewEntry, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+reviewColumns+`
		FROM pending_reviews
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var entries []domain.ReviewEntry

	for rows.Next() {
		e, err := scanReview(rows)
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate reviews: %w", rows.Err())
	}

	return entries, nil
}

// ListOpenReviewKeys returns the labels that have a pending or rejected
// review. Such labels wait for a human and are not re-extracted.
func (db *DB) ListOpenReviewKeys(ctx context.Context, supplierID *int64) (map[domain.LabelKey]bool, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT supplier_id, normalized_label
		FROM pending_reviews
		WHERE status IN ('pending', 'rejected')
		  AND ($1::bigint IS NULL OR supplier_id = $1)
	`, toInt8Ptr(supplierID))
	if err != nil {
		return nil, fmt.Errorf("list open reviews: %w", err)
	}
	defer rows.Close()

	keys := make(map[domain.LabelKey]bool)

	for rows.Next() {
		var k domain.LabelKey
		if err := rows.Scan(&k.SupplierID, &k.NormalizedLabel); err != nil {
			return nil, fmt.Errorf("scan open review: %w", err)
		}

		keys[k] = true
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate open reviews: %w", rows.Err())
	}

	return keys, nil
}

// DecideReview applies a review transition. It returns ErrInvalidTransition
// when the stored status does not allow the move.
func (db *DB) DecideReview(ctx context.Context, d domain.ReviewDecision) (domain.ReviewEntry, domain.CommitResult, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return domain.ReviewEntry{}, domain.CommitResult{}, fmt.Errorf(errBeginTx, err)
	}

	defer func() {
		_ = tx.Rollback(ctx) //nolint:errcheck // rollback after commit returns error, this is best-effort cleanup
	}()

	entry, err := getReview(ctx, tx, d.ReviewID, true)
	if err != nil {
		return domain.ReviewEntry{}, domain.CommitResult{}, err
	}

	if !entry.Status.CanTransition(d.To) {
		return entry, domain.CommitResult{}, fmt.Errorf("%w: %s -> %s", coreerrors.ErrInvalidTransition, entry.Status, d.To)
	}

	var res domain.CommitResult

	if d.Resolution != nil {
		res, err = commitResolutionTx(ctx, tx, *d.Resolution)
		if err != nil {
			return entry, domain.CommitResult{}, err
		}
	}

	entry, err = scanReview(tx.QueryRow(ctx, `
		UPDATE pending_reviews
		SET status = $2, product_id = $3, decided_at = now()
		WHERE id = $1
		RETURNING `+reviewColumns,
		entry.ID, string(d.To), toInt8Ptr(res.ProductID)))
	if err != nil {
		return domain.ReviewEntry{}, domain.CommitResult{}, fmt.Errorf("update review: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ReviewEntry{}, domain.CommitResult{}, fmt.Errorf(errCommitTx, err)
	}

	return entry, res, nil
}

func scanReview(row pgx.Row) (domain.ReviewEntry, error) {
	var (
		e         domain.ReviewEntry
		id        pgtype.UUID
		attrs     []byte
		cands     []byte
		status    string
		productID pgtype.Int8
		createdAt pgtype.Timestamptz
		decidedAt pgtype.Timestamptz
	)

	if err := row.Scan(&id, &e.SupplierID, &e.ListingID, &e.SourceLabel, &e.NormalizedLabel, &attrs, &cands, &status, &productID, &createdAt, &decidedAt); err != nil {
		return domain.ReviewEntry{}, fmt.Errorf("scan review: %w", err)
	}

	if err := json.Unmarshal(attrs, &e.Attributes); err != nil {
		return domain.ReviewEntry{}, fmt.Errorf("decode review attributes: %w", err)
	}

	if err := json.Unmarshal(cands, &e.Candidates); err != nil {
		return domain.ReviewEntry{}, fmt.Errorf("decode review candidates: %w", err)
	}

	e.ID = uuid.UUID(id.Bytes).String()
	e.Status = domain.ReviewStatus(status)
	e.ProductID = fromInt8Ptr(productID)
	e.CreatedAt = fromTimestamptz(createdAt)
	e.DecidedAt = fromTimestamptzPtr(decidedAt)

	return e, nil
}
