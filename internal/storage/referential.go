package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/catalog-resolver/internal/core/domain"
)

// ListBrands returns every referential brand name.
func (db *DB) ListBrands(ctx context.Context) ([]string, error) {
	return db.listNames(ctx, `SELECT name FROM brands ORDER BY name`, "list brands")
}

// ListStorageOptions returns every referential storage label.
func (db *DB) ListStorageOptions(ctx context.Context) ([]string, error) {
	return db.listNames(ctx, `SELECT label FROM storage_options ORDER BY label`, "list storage options")
}

// ListDeviceTypes returns every referential device type.
func (db *DB) ListDeviceTypes(ctx context.Context) ([]string, error) {
	return db.listNames(ctx, `SELECT name FROM device_types ORDER BY name`, "list device types")
}

func (db *DB) listNames(ctx context.Context, query, op string) ([]string, error) {
	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return names, nil
}

// ListColorSynonyms returns canonical colors with their synonyms.
// Colors without synonyms map to an empty list.
func (db *DB) ListColorSynonyms(ctx context.Context) (map[string][]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT c.name, s.synonym
		FROM colors c
		LEFT JOIN color_synonyms s ON s.color_id = c.id
		ORDER BY c.name, s.synonym
	`)
	if err != nil {
		return nil, fmt.Errorf("list color synonyms: %w", err)
	}
	defer rows.Close()

	colors := make(map[string][]string)

	for rows.Next() {
		var (
			name    string
			synonym pgtype.Text
		)

		if err := rows.Scan(&name, &synonym); err != nil {
			return nil, fmt.Errorf("scan color synonym: %w", err)
		}

		if _, ok := colors[name]; !ok {
			colors[name] = nil
		}

		if synonym.Valid {
			colors[name] = append(colors[name], synonym.String)
		}
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate color synonyms: %w", rows.Err())
	}

	return colors, nil
}

// ListManufacturerCodes returns manufacturer code to commercial name mappings.
func (db *DB) ListManufacturerCodes(ctx context.Context) (map[string]string, error) {
	rows, err := db.Pool.Query(ctx, `SELECT code, commercial_name FROM manufacturer_codes`)
	if err != nil {
		return nil, fmt.Errorf("list manufacturer codes: %w", err)
	}
	defer rows.Close()

	codes := make(map[string]string)

	for rows.Next() {
		var code, name string

		if err := rows.Scan(&code, &name); err != nil {
			return nil, fmt.Errorf("scan manufacturer code: %w", err)
		}

		codes[code] = name
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate manufacturer codes: %w", rows.Err())
	}

	return codes, nil
}

const productColumns = `id, brand, model, storage, color, device_type, region, created_at`

// ListProducts returns the whole product referential.
func (db *DB) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}

		products = append(products, p)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate products: %w", rows.Err())
	}

	return products, nil
}

// GetProduct returns one product or ErrProductNotFound.
func (db *DB) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	return getProduct(ctx, db.Pool, id)
}

func getProduct(ctx context.Context, q querier, id int64) (domain.Product, error) {
	p, err := scanProduct(q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		return domain.Product{}, notFound(err, ErrProductNotFound)
	}

	return p, nil
}

func insertProduct(ctx context.Context, q querier, p domain.Product) (int64, error) {
	var id int64

	err := q.QueryRow(ctx, `
		INSERT INTO products (brand, model, storage, color, device_type, region)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, SanitizeUTF8(p.Brand), SanitizeUTF8(p.Model), toText(p.Storage), toText(p.Color), toText(p.DeviceType), toText(p.Region)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert product: %w", err)
	}

	return id, nil
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		p                                  domain.Product
		storage, color, deviceType, region pgtype.Text
		createdAt                          pgtype.Timestamptz
	)

	if err := row.Scan(&p.ID, &p.Brand, &p.Model, &storage, &color, &deviceType, &region, &createdAt); err != nil {
		return domain.Product{}, fmt.Errorf("scan product: %w", err)
	}

	p.Storage = fromText(storage)
	p.Color = fromText(color)
	p.DeviceType = fromText(deviceType)
	p.Region = fromText(region)
	p.CreatedAt = fromTimestamptz(createdAt)

	return p, nil
}
