package destination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Repository = (*PostgresRepository)(nil)

// Schema creates the destinations table. The partial unique index enforces
// a single active destination.
const Schema = `
CREATE TABLE IF NOT EXISTS destinations (
	id                    TEXT PRIMARY KEY,
	name                  TEXT NOT NULL,
	address               TEXT NOT NULL,
	lat                   DOUBLE PRECISION NOT NULL,
	lng                   DOUBLE PRECISION NOT NULL,
	notify_before_minutes DOUBLE PRECISION NOT NULL DEFAULT 1,
	radius_meters         DOUBLE PRECISION NOT NULL DEFAULT 100,
	is_active             BOOLEAN NOT NULL DEFAULT FALSE,
	arrived_at            TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS destinations_single_active
	ON destinations (is_active) WHERE is_active;
CREATE INDEX IF NOT EXISTS destinations_created_at ON destinations (created_at DESC);
ALTER TABLE destinations
	ALTER COLUMN notify_before_minutes TYPE DOUBLE PRECISION,
	ALTER COLUMN radius_meters TYPE DOUBLE PRECISION;
`

const selectColumns = `
	id, name, address, lat, lng,
	notify_before_minutes, radius_meters,
	is_active, arrived_at, created_at, updated_at
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL destination repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the destinations table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create destinations schema: %w", err)
	}
	return nil
}

// Get retrieves a destination by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Destination, error) {
	query := `SELECT ` + selectColumns + ` FROM destinations WHERE id = $1`
	return scanDestination(r.pool.QueryRow(ctx, query, id))
}

// GetActive retrieves the active destination.
func (r *PostgresRepository) GetActive(ctx context.Context) (*Destination, error) {
	query := `SELECT ` + selectColumns + ` FROM destinations WHERE is_active LIMIT 1`
	return scanDestination(r.pool.QueryRow(ctx, query))
}

// List retrieves all destinations, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]*Destination, error) {
	query := `SELECT ` + selectColumns + ` FROM destinations ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Destination
	for rows.Next() {
		d, err := scanDestination(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Create stores a new, inactive destination.
func (r *PostgresRepository) Create(ctx context.Context, d *Destination) error {
	query := `
		INSERT INTO destinations (
			id, name, address, lat, lng,
			notify_before_minutes, radius_meters,
			is_active, arrived_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, NULL, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		d.ID, d.Name, d.Address, d.Lat, d.Lng,
		d.NotifyBeforeMinutes, d.RadiusMeters,
		d.CreatedAt, d.UpdatedAt,
	)
	return err
}

// Update stores the editable fields of an existing destination.
func (r *PostgresRepository) Update(ctx context.Context, d *Destination) error {
	query := `
		UPDATE destinations SET
			name = $2, address = $3, lat = $4, lng = $5,
			notify_before_minutes = $6, radius_meters = $7,
			updated_at = $8
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		d.ID, d.Name, d.Address, d.Lat, d.Lng,
		d.NotifyBeforeMinutes, d.RadiusMeters, d.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDestinationNotFound
	}
	return nil
}

// Delete deletes a destination by ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM destinations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDestinationNotFound
	}
	return nil
}

// Activate makes id the only active destination.
func (r *PostgresRepository) Activate(ctx context.Context, id string, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin activate: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE destinations SET is_active = FALSE, updated_at = $2 WHERE is_active AND id <> $1`,
		id, at,
	); err != nil {
		return fmt.Errorf("deactivate others: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE destinations SET is_active = TRUE, arrived_at = NULL, updated_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("activate: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDestinationNotFound
	}

	return tx.Commit(ctx)
}

// Deactivate clears IsActive on id.
func (r *PostgresRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE destinations SET is_active = FALSE, updated_at = CASE WHEN is_active THEN $2 ELSE updated_at END WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDestinationNotFound
	}
	return nil
}

// MarkArrived records an arrival once.
func (r *PostgresRepository) MarkArrived(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE destinations SET arrived_at = $2, is_active = FALSE, updated_at = $2 WHERE id = $1 AND arrived_at IS NULL`,
		id, at,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM destinations WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, ErrDestinationNotFound
	}
	return false, nil
}

func scanDestination(row pgx.Row) (*Destination, error) {
	var d Destination
	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Address,
		&d.Lat,
		&d.Lng,
		&d.NotifyBeforeMinutes,
		&d.RadiusMeters,
		&d.IsActive,
		&d.ArrivedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDestinationNotFound
		}
		return nil, err
	}
	return &d, nil
}
