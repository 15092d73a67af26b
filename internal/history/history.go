// Package history persists executed scripts to a local sqlite database so
// past commands survive restarts and can be listed or searched from the REPL.
package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/mongopilot/mongopilot/internal/logging"
)

// Entry status values.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Entry is one executed script in the history log.
type Entry struct {
	ID         string    `db:"id"`
	Script     string    `db:"script"`
	Database   string    `db:"db_name"`
	StartedAt  time.Time `db:"started_at"`
	DurationMS int64     `db:"duration_ms"`
	Status     string    `db:"status"`
	Meta       string    `db:"meta"` // JSON blob, see BuildMeta
}

// Target returns the connection target recorded for the entry.
func (e *Entry) Target() string {
	return gjson.Get(e.Meta, "target").String()
}

// ErrorText returns the error message recorded for the entry, if any.
func (e *Entry) ErrorText() string {
	return gjson.Get(e.Meta, "error").String()
}

// BuildMeta assembles the meta JSON blob for an entry. Empty values are
// omitted so the stored blob stays compact.
func BuildMeta(target string, execErr error) string {
	meta := "{}"
	if target != "" {
		meta, _ = sjson.Set(meta, "target", target)
	}
	if execErr != nil {
		meta, _ = sjson.Set(meta, "error", execErr.Error())
	}
	return meta
}

const historySchema = `
CREATE TABLE IF NOT EXISTS history_v1 (
	id TEXT PRIMARY KEY,
	script TEXT NOT NULL,
	db_name TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	meta TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS history_v1_started_at ON history_v1 (started_at);
`

const insertEntrySQL = `
INSERT INTO history_v1 (id, script, db_name, started_at, duration_ms, status, meta)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`

const recentEntriesSQL = `
SELECT id, script, db_name, started_at, duration_ms, status, meta
FROM history_v1
ORDER BY started_at DESC, id DESC
LIMIT $1;
`

const searchEntriesSQL = `
SELECT id, script, db_name, started_at, duration_ms, status, meta
FROM history_v1
WHERE script LIKE $1 ESCAPE '\'
ORDER BY started_at DESC, id DESC
LIMIT $2;
`

const countEntriesSQL = `
SELECT COUNT(*) FROM history_v1;
`

const pruneEntriesSQL = `
DELETE FROM history_v1
WHERE id IN (
	SELECT id FROM history_v1
	ORDER BY started_at ASC, id ASC
	LIMIT $1
);
`

// Store is the sqlite-backed history log. Safe for concurrent use; sqlite
// serializes writers internally.
type Store struct {
	db  *sqlx.DB
	log *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// Open opens the history database at path, creating the schema when needed.
// Use ":memory:" for an ephemeral store.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database %s: %w", path, err)
	}
	// One connection: sqlite allows a single writer, and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}

	s := &Store{db: db, log: logging.NullLogger}
	for _, opt := range opts {
		opt(s)
	}

	s.log.Debug("history database opened at %s", path)
	return s, nil
}

// Append records an executed script. A zero ID is filled in; a zero StartedAt
// becomes the current time.
func (s *Store) Append(e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	if e.Meta == "" {
		e.Meta = "{}"
	}

	_, err := s.db.Exec(insertEntrySQL,
		e.ID, e.Script, e.Database, e.StartedAt, e.DurationMS, e.Status, e.Meta)
	if err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	var entries []Entry
	if err := s.db.Select(&entries, recentEntriesSQL, n); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// Search returns up to n entries whose script contains term, newest first.
func (s *Store) Search(term string, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	var entries []Entry
	pattern := "%" + escapeLike(term) + "%"
	if err := s.db.Select(&entries, searchEntriesSQL, pattern, n); err != nil {
		return nil, fmt.Errorf("search history: %w", err)
	}
	return entries, nil
}

// Count returns the number of stored entries.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.Get(&n, countEntriesSQL); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}

// Prune deletes the oldest entries until at most limit remain. A limit of 0
// or less leaves the store untouched.
func (s *Store) Prune(limit int) (int, error) {
	if limit <= 0 {
		return 0, nil
	}

	total, err := s.Count()
	if err != nil {
		return 0, err
	}
	excess := total - limit
	if excess <= 0 {
		return 0, nil
	}

	res, err := s.db.Exec(pruneEntriesSQL, excess)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	deleted, _ := res.RowsAffected()

	s.log.Debug("pruned %d history entries, keeping %d", deleted, limit)
	return int(deleted), nil
}

// Close closes the history database.
func (s *Store) Close() error {
	return s.db.Close()
}

// escapeLike escapes LIKE wildcards so search terms match literally.
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}
