package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/geonews-etl/internal/domain"
)

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS disaster_events (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	source         TEXT NOT NULL DEFAULT '',
	url            TEXT NOT NULL,
	published_at   TIMESTAMPTZ NOT NULL,
	event_date     DATE NOT NULL,
	disaster_event TEXT NOT NULL,
	country        TEXT NOT NULL DEFAULT '',
	region         TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	location       TEXT NOT NULL,
	location_key   TEXT NOT NULL,
	latitude       DOUBLE PRECISION NOT NULL,
	longitude      DOUBLE PRECISION NOT NULL,
	processed_at   TIMESTAMPTZ NOT NULL,
	CONSTRAINT disaster_events_triple_key UNIQUE (event_date, disaster_event, location_key)
);
CREATE INDEX IF NOT EXISTS disaster_events_published_at_idx ON disaster_events (published_at DESC);
CREATE INDEX IF NOT EXISTS disaster_events_event_idx ON disaster_events (disaster_event, published_at DESC);
`

const insertSQL = `INSERT INTO disaster_events (
	id, title, source, url, published_at, event_date, disaster_event,
	country, region, city, location, location_key, latitude, longitude, processed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT DO NOTHING`

const selectColumns = `SELECT id, title, source, url, published_at, disaster_event,
	country, region, city, location, latitude, longitude, processed_at
FROM disaster_events`

// Store persists disaster records in PostgreSQL. Inserts are idempotent on
// the (date, event, location) triple.
type Store struct {
	pool Pool
}

// NewStore wraps an existing pool.
func NewStore(pool Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// EnsureSchema creates the table and indexes if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Persist inserts records whose triple is new, in one transaction, and
// returns the ones actually inserted. Any failure rolls back the batch.
func (s *Store) Persist(ctx context.Context, records []domain.PersistedRecord) ([]domain.PersistedRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	inserted := make([]domain.PersistedRecord, 0, len(records))
	for _, r := range records {
		tag, err := tx.Exec(ctx, insertSQL, insertArgs(r)...)
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("insert record %s: %w", r.ID, err)
		}
		if tag.RowsAffected() == 1 {
			inserted = append(inserted, r)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return inserted, nil
}

func insertArgs(r domain.PersistedRecord) []any {
	key := r.Key()
	day := r.PublishedAt.UTC()
	return []any{
		r.ID,
		r.Title,
		r.Source,
		r.URL,
		r.PublishedAt.UTC(),
		time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC),
		string(r.DisasterEvent),
		r.Country,
		r.Region,
		r.City,
		r.Location,
		key.Location,
		r.Latitude,
		r.Longitude,
		r.ProcessedAt.UTC(),
	}
}

// QueryEvents returns records published in [q.From, q.To], newest first.
func (s *Store) QueryEvents(ctx context.Context, q domain.EventQuery) ([]domain.PersistedRecord, error) {
	var (
		sb   strings.Builder
		args = []any{q.From.UTC(), q.To.UTC()}
	)
	sb.WriteString(selectColumns)
	sb.WriteString(" WHERE published_at >= $1 AND published_at <= $2")
	if len(q.Events) > 0 {
		events := make([]string, len(q.Events))
		for i, e := range q.Events {
			events[i] = string(e)
		}
		args = append(args, events)
		sb.WriteString(" AND disaster_event = ANY($" + strconv.Itoa(len(args)) + ")")
	}
	sb.WriteString(" ORDER BY published_at DESC, id")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []domain.PersistedRecord
	for rows.Next() {
		var (
			r     domain.PersistedRecord
			event string
		)
		if err := rows.Scan(
			&r.ID, &r.Title, &r.Source, &r.URL, &r.PublishedAt, &event,
			&r.Country, &r.Region, &r.City, &r.Location, &r.Latitude, &r.Longitude, &r.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.DisasterEvent = domain.Label(event)
		r.PublishedAt = r.PublishedAt.UTC()
		r.ProcessedAt = r.ProcessedAt.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
