package statusstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/commutedeck/commutedeck/internal/transit"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS railway_status (
		railway_id   TEXT PRIMARY KEY,
		railway_name TEXT NOT NULL,
		operator     TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		status_text  TEXT NOT NULL,
		cause        TEXT NOT NULL DEFAULT '',
		updated_at   TEXT,
		observed_at  TEXT NOT NULL
	)
`

// SQLiteRepository is a SQLite implementation of Repository. Timestamps are
// stored as RFC3339 strings.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite status repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// EnsureSchema creates the railway_status table if it does not exist.
func (r *SQLiteRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("creating railway_status table: %w", err)
	}
	return nil
}

// Get retrieves the record for a railway.
func (r *SQLiteRepository) Get(ctx context.Context, railwayID string) (*Record, error) {
	query := `
		SELECT
			railway_id, railway_name, operator,
			status, status_text, cause,
			updated_at, observed_at
		FROM railway_status
		WHERE railway_id = ?
	`

	rec, err := scanSQLiteRecord(r.db.QueryRowContext(ctx, query, railwayID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to query status record: %w", err)
	}
	return rec, nil
}

// List retrieves every record ordered by railway ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Record, error) {
	query := `
		SELECT
			railway_id, railway_name, operator,
			status, status_text, cause,
			updated_at, observed_at
		FROM railway_status
		ORDER BY railway_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query status records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status records: %w", err)
	}
	return records, nil
}

// Save upserts the records in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO railway_status (
			railway_id, railway_name, operator,
			status, status_text, cause,
			updated_at, observed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (railway_id) DO UPDATE SET
			railway_name = excluded.railway_name,
			operator = excluded.operator,
			status = excluded.status,
			status_text = excluded.status_text,
			cause = excluded.cause,
			updated_at = excluded.updated_at,
			observed_at = excluded.observed_at
	`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		var updatedAt *string
		if t := nullableTime(rec.UpdatedAt); t != nil {
			s := t.Format(time.RFC3339)
			updatedAt = &s
		}

		_, err := stmt.ExecContext(ctx,
			rec.RailwayID,
			rec.RailwayName,
			rec.Operator,
			string(rec.Status),
			rec.StatusText,
			rec.Cause,
			updatedAt,
			rec.ObservedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("saving %s: %w", rec.RailwayID, err)
		}
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*Record, error) {
	var rec Record
	var status, observedAt string
	var updatedAt sql.NullString

	err := row.Scan(
		&rec.RailwayID,
		&rec.RailwayName,
		&rec.Operator,
		&status,
		&rec.StatusText,
		&rec.Cause,
		&updatedAt,
		&observedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status, _ = transit.ParseStatus(status)
	if updatedAt.Valid {
		if t, err := time.Parse(time.RFC3339, updatedAt.String); err == nil {
			rec.UpdatedAt = t
		}
	}
	if t, err := time.Parse(time.RFC3339, observedAt); err == nil {
		rec.ObservedAt = t
	}
	return &rec, nil
}
