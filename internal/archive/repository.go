package archive

import "context"

// Repository stores archive records.
type Repository interface {
	// Create writes a new record. Returns ErrRecordExists if a record with
	// the same station id and save date is already stored.
	Create(ctx context.Context, rec *Record) error

	// List returns summaries of every readable record, ordered by station
	// id then save date. Unreadable records are skipped.
	List(ctx context.Context) ([]Summary, error)

	// Get returns the record saved for stationID at saveDate.
	// Returns ErrRecordNotFound if there is none.
	Get(ctx context.Context, stationID int, saveDate string) (*Record, error)
}
