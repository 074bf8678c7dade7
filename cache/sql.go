package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/ferro-labs/semcache/normalize"
)

// SQLStore persists records to SQLite or Postgres, keyed by the request's
// canonical digest. A zero ttl keeps entries forever.
type SQLStore struct {
	db      *sql.DB
	dialect string
	ttl     time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewSQLiteStore opens (and migrates) a SQLite cache database.
func NewSQLiteStore(dsn string, ttl time.Duration) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "semcache.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite cache store: %w", err)
	}
	// A single connection serializes writers; SQLite rejects concurrent ones.
	db.SetMaxOpenConns(1)
	s := &SQLStore{db: db, dialect: "sqlite", ttl: ttl}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore opens (and migrates) a Postgres cache database.
func NewPostgresStore(dsn string, ttl time.Duration) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres cache store: %w", err)
	}
	s := &SQLStore{db: db, dialect: "postgres", ttl: ttl}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s cache store: %w", s.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key TEXT PRIMARY KEY,
	modality TEXT NOT NULL,
	model TEXT,
	data_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	expires_at INTEGER NOT NULL
);`

	if s.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key TEXT PRIMARY KEY,
	modality TEXT NOT NULL,
	model TEXT,
	data_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at BIGINT NOT NULL
);`
	}

	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize cache schema: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Lookup returns the record stored for req, or false if missing or expired.
func (s *SQLStore) Lookup(ctx context.Context, req *normalize.Request) (Record, bool, error) {
	var (
		rec       Record
		dataType  string
		expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT data_type, payload, expires_at FROM cache_entries WHERE cache_key = ?`),
		req.Key(),
	).Scan(&dataType, &rec.Text, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		s.misses.Add(1)
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("cache lookup: %w", err)
	}
	if expiresAt > 0 && time.Now().UnixNano() > expiresAt {
		s.misses.Add(1)
		return Record{}, false, nil
	}
	rec.Type = DataType(dataType)
	s.hits.Add(1)
	return rec, true, nil
}

// Store upserts rec for req.
func (s *SQLStore) Store(ctx context.Context, req *normalize.Request, rec Record) error {
	now := time.Now().UTC()
	var expiresAt int64
	if s.ttl > 0 {
		expiresAt = now.Add(s.ttl).UnixNano()
	}
	query := s.rebind(`INSERT INTO cache_entries(cache_key, modality, model, data_type, payload, created_at, expires_at)
	VALUES(?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(cache_key) DO UPDATE SET
		data_type = excluded.data_type,
		payload = excluded.payload,
		created_at = excluded.created_at,
		expires_at = excluded.expires_at`)

	_, err := s.db.ExecContext(ctx, query,
		req.Key(),
		string(req.Modality),
		req.Model,
		string(rec.Type),
		rec.Text,
		now,
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}

// Stats returns the entry count and the hit/miss counters of this process.
func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return Stats{Entries: count, Hits: s.hits.Load(), Misses: s.misses.Load()}, nil
}

// Clear removes entries. With expiredOnly only entries past their TTL go.
func (s *SQLStore) Clear(ctx context.Context, expiredOnly bool) error {
	var err error
	if expiredOnly {
		_, err = s.db.ExecContext(ctx,
			s.rebind(`DELETE FROM cache_entries WHERE expires_at > 0 AND expires_at < ?`),
			time.Now().UnixNano())
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	}
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
