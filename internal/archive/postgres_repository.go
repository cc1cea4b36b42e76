package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
// Records are stored whole as JSONB next to their key columns.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresRepository creates a new PostgreSQL archive repository.
func NewPostgresRepository(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresRepository {
	return &PostgresRepository{pool: pool, logger: logger}
}

const schema = `
	CREATE TABLE IF NOT EXISTS station_archives (
		station_id   INTEGER     NOT NULL,
		save_date    TEXT        NOT NULL,
		station_name TEXT        NOT NULL DEFAULT '',
		city_name    TEXT        NOT NULL DEFAULT '',
		address      TEXT        NOT NULL DEFAULT '',
		payload      JSONB       NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (station_id, save_date)
	)
`

// EnsureSchema creates the archive table if it does not exist.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%w: create schema: %v", ErrPersistence, err)
	}
	return nil
}

// Create inserts rec. The primary key rejects duplicates.
func (r *PostgresRepository) Create(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", ErrPersistence, err)
	}

	query := `
		INSERT INTO station_archives (
			station_id, save_date, station_name, city_name, address, payload
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (station_id, save_date) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		rec.StationID,
		rec.SaveDate,
		rec.StationName,
		rec.CityName,
		rec.Address,
		payload,
	)
	if err != nil {
		return fmt.Errorf("%w: insert record: %v", ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordExists
	}
	return nil
}

// List returns summaries of every stored record.
func (r *PostgresRepository) List(ctx context.Context) ([]Summary, error) {
	query := `
		SELECT station_id, save_date, payload
		FROM station_archives
		ORDER BY station_id, save_date
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: list records: %v", ErrPersistence, err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			stationID int
			saveDate  string
			payload   []byte
		)
		if err := rows.Scan(&stationID, &saveDate, &payload); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", ErrPersistence, err)
		}

		var rec Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			r.logger.Warn().
				Err(err).
				Int("station_id", stationID).
				Str("save_date", saveDate).
				Msg("skipping unreadable archive record")
			continue
		}
		out = append(out, rec.Summary())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list records: %v", ErrPersistence, err)
	}

	if out == nil {
		out = []Summary{}
	}
	return out, nil
}

// Get returns the record stored under (stationID, saveDate).
func (r *PostgresRepository) Get(ctx context.Context, stationID int, saveDate string) (*Record, error) {
	query := `
		SELECT payload
		FROM station_archives
		WHERE station_id = $1 AND save_date = $2
	`

	var payload []byte
	err := r.pool.QueryRow(ctx, query, stationID, saveDate).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: get record: %v", ErrPersistence, err)
	}

	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("%w: decode record: %v", ErrPersistence, err)
	}
	if rec.Sensors == nil {
		rec.Sensors = []SensorRecord{}
	}
	return &rec, nil
}
