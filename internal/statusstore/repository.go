package statusstore

import "context"

// Repository defines the interface for status record persistence.
type Repository interface {
	// Get retrieves the record for a railway.
	// Returns ErrRecordNotFound if the railway was never saved.
	Get(ctx context.Context, railwayID string) (*Record, error)

	// List retrieves every record ordered by railway ID.
	List(ctx context.Context) ([]*Record, error)

	// Save inserts or replaces the given records in one transaction.
	Save(ctx context.Context, records []*Record) error
}

// Index returns the records keyed by railway ID.
func Index(records []*Record) map[string]*Record {
	out := make(map[string]*Record, len(records))
	for _, r := range records {
		out[r.RailwayID] = r
	}
	return out
}
