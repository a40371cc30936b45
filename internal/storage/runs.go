package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
	coreerrors "github.com/lueurxax/catalog-resolver/internal/core/errors"
)

const runColumns = `id, supplier_id, run_limit, status, report, error, created_at, started_at, finished_at`

// CreateRun enqueues a run job and returns its record.
func (db *DB) CreateRun(ctx context.Context, supplierID *int64, limit int) (domain.RunRecord, error) {
	rec, err := scanRun(db.Pool.QueryRow(ctx, `
		INSERT INTO resolution_runs (id, supplier_id, run_limit, status)
		VALUES ($1, $2, $3, 'queued')
		RETURNING `+runColumns,
		uuid.New(), toInt8Ptr(supplierID), limit))
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("create run: %w", err)
	}

	return rec, nil
}

// GetRun returns one run record.
func (db *DB) GetRun(ctx context.Context, id string) (domain.RunRecord, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("%w: run id %q", coreerrors.ErrInvalidInput, id)
	}

	rec, err := scanRun(db.Pool.QueryRow(ctx, `SELECT `+runColumns+` FROM resolution_runs WHERE id = $1`, uid))
	if err != nil {
		return domain.RunRecord{}, notFound(err, ErrRunNotFound)
	}

	return rec, nil
}

// LatestRun returns the most recently created run of a supplier scope.
// A nil supplier selects runs over all suppliers.
func (db *DB) LatestRun(ctx context.Context, supplierID *int64) (domain.RunRecord, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(runColumns).From("resolution_runs")

	if supplierID != nil {
		sb.Where(sb.Equal("supplier_id", *supplierID))
	} else {
		sb.Where(sb.IsNull("supplier_id"))
	}

	sb.OrderBy("created_at DESC").Limit(1)

	query, args := sb.Build()

	rec, err := scanRun(db.Pool.QueryRow(ctx, query, args...))
	if err != nil {
		return domain.RunRecord{}, notFound(err, ErrRunNotFound)
	}

	return rec, nil
}

// ClaimNextRun moves the oldest queued run to running. It returns
// ErrRunNotFound when the queue is empty and ErrRunInProgress when the
// run's scope already holds the lease.
func (db *DB) ClaimNextRun(ctx context.Context) (domain.RunRecord, error) {
	rec, err := scanRun(db.Pool.QueryRow(ctx, `
		UPDATE resolution_runs
		SET status = 'running', started_at = now()
		WHERE id = (
			SELECT id FROM resolution_runs
			WHERE status = 'queued'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+runColumns))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.RunRecord{}, coreerrors.ErrRunInProgress
		}

		return domain.RunRecord{}, notFound(err, ErrRunNotFound)
	}

	return rec, nil
}

// ClaimRun moves a specific queued run to running.
func (db *DB) ClaimRun(ctx context.Context, id string) (domain.RunRecord, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("%w: run id %q", coreerrors.ErrInvalidInput, id)
	}

	rec, err := scanRun(db.Pool.QueryRow(ctx, `
		UPDATE resolution_runs
		SET status = 'running', started_at = now()
		WHERE id = $1 AND status = 'queued'
		RETURNING `+runColumns, uid))
	if err != nil {
		if isUniqueViolation(err) {
			return domain.RunRecord{}, coreerrors.ErrRunInProgress
		}

		return domain.RunRecord{}, notFound(err, ErrRunNotFound)
	}

	return rec, nil
}

// FinishRun stores the terminal status and report of a running run.
func (db *DB) FinishRun(ctx context.Context, id string, status domain.RunStatus, report *domain.RunReport, errText string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: run id %q", coreerrors.ErrInvalidInput, id)
	}

	var reportJSON []byte

	if report != nil {
		if reportJSON, err = json.Marshal(report); err != nil {
			return fmt.Errorf("encode run report: %w", err)
		}
	}

	tag, err := db.Pool.Exec(ctx, `
		UPDATE resolution_runs
		SET status = $2, report = $3, error = $4, finished_at = now()
		WHERE id = $1 AND status = 'running'
	`, uid, string(status), reportJSON, toText(errText))
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}

	return nil
}

// AbandonStaleRuns marks runs that have been running longer than olderThan
// as abandoned, releasing their lease.
func (db *DB) AbandonStaleRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE resolution_runs
		SET status = 'abandoned', error = 'lease expired', finished_at = now()
		WHERE status = 'running' AND started_at < now() - make_interval(secs => $1)
	`, olderThan.Seconds())
	if err != nil {
		return 0, fmt.Errorf("abandon stale runs: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row) (domain.RunRecord, error) {
	var (
		rec        domain.RunRecord
		id         pgtype.UUID
		supplierID pgtype.Int8
		status     string
		report     []byte
		errText    pgtype.Text
		createdAt  pgtype.Timestamptz
		startedAt  pgtype.Timestamptz
		finishedAt pgtype.Timestamptz
	)

	if err := row.Scan(&id, &supplierID, &rec.Limit, &status, &report, &errText, &createdAt, &startedAt, &finishedAt); err != nil {
		return domain.RunRecord{}, fmt.Errorf("scan run: %w", err)
	}

	if len(report) > 0 {
		rec.Report = &domain.RunReport{}
		if err := json.Unmarshal(report, rec.Report); err != nil {
			return domain.RunRecord{}, fmt.Errorf("decode run report: %w", err)
		}
	}

	rec.ID = uuid.UUID(id.Bytes).String()
	rec.SupplierID = fromInt8Ptr(supplierID)
	rec.Status = domain.RunStatus(status)
	rec.Error = fromText(errText)
	rec.CreatedAt = fromTimestamptz(createdAt)
	rec.StartedAt = fromTimestamptzPtr(startedAt)
	rec.FinishedAt = fromTimestamptzPtr(finishedAt)

	return rec, nil
}
