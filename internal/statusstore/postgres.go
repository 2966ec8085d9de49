package statusstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commutedeck/commutedeck/internal/transit"
)

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS railway_status (
		railway_id   TEXT PRIMARY KEY,
		railway_name TEXT NOT NULL,
		operator     TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		status_text  TEXT NOT NULL,
		cause        TEXT NOT NULL DEFAULT '',
		updated_at   TIMESTAMPTZ,
		observed_at  TIMESTAMPTZ NOT NULL
	)
`

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL status repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// EnsureSchema creates the railway_status table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("creating railway_status table: %w", err)
	}
	return nil
}

// Get retrieves the record for a railway.
func (r *PostgresRepository) Get(ctx context.Context, railwayID string) (*Record, error) {
	query := `
		SELECT
			railway_id, railway_name, operator,
			status, status_text, cause,
			updated_at, observed_at
		FROM railway_status
		WHERE railway_id = $1
	`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, railwayID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List retrieves every record ordered by railway ID.
func (r *PostgresRepository) List(ctx context.Context) ([]*Record, error) {
	query := `
		SELECT
			railway_id, railway_name, operator,
			status, status_text, cause,
			updated_at, observed_at
		FROM railway_status
		ORDER BY railway_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Save upserts the records in a single batch.
func (r *PostgresRepository) Save(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	query := `
		INSERT INTO railway_status (
			railway_id, railway_name, operator,
			status, status_text, cause,
			updated_at, observed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (railway_id) DO UPDATE SET
			railway_name = EXCLUDED.railway_name,
			operator = EXCLUDED.operator,
			status = EXCLUDED.status,
			status_text = EXCLUDED.status_text,
			cause = EXCLUDED.cause,
			updated_at = EXCLUDED.updated_at,
			observed_at = EXCLUDED.observed_at
	`

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(query,
			rec.RailwayID,
			rec.RailwayName,
			rec.Operator,
			string(rec.Status),
			rec.StatusText,
			rec.Cause,
			nullableTime(rec.UpdatedAt),
			rec.ObservedAt.UTC(),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("saving status records: %w", err)
	}
	return tx.Commit(ctx)
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	var status string
	var updatedAt *time.Time

	err := row.Scan(
		&rec.RailwayID,
		&rec.RailwayName,
		&rec.Operator,
		&status,
		&rec.StatusText,
		&rec.Cause,
		&updatedAt,
		&rec.ObservedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status, _ = transit.ParseStatus(status)
	if updatedAt != nil {
		rec.UpdatedAt = *updatedAt
	}
	return &rec, nil
}
