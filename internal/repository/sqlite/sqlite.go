// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// The board is a single-server app with one collection of requests and one of
// users. SQLite lives inside the binary as a single file: no separate database
// server to run, and ":memory:" gives every test a fresh database.
//
// modernc.org/sqlite is a pure Go translation of the SQLite C code, so the
// binary cross-compiles without a C toolchain.
//
// DOCUMENTS AS TABLES:
// A request "document" is spread over three tables:
//
//	requests      one row per request (status, resolution, location)
//	request_tags  one row per tag, ordered by position
//	responses     one row per response, keyed by (request_id, id)
//
// The parent owns its children: they are written and deleted through the
// request methods only, and the user back-references (a user's requests and
// responses) are read off the author_id and user_id columns.
//
// CASE-INSENSITIVE MATCHING:
// SQLite's lower() folds ASCII only. Every free-text column matched without
// regard to case has a *_folded twin written from Go with fold, and queries
// compare the folded twin against a folded argument.
//
// TIMESTAMPS:
// Times are stored as INTEGER unix nanoseconds so ORDER BY created_at is an
// exact numeric sort. See toUnix/fromUnix below.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements both
// repository.UserRepository and repository.RequestRepository.
type DB struct {
	conn *sql.DB
}

// New opens the SQLite database and runs migrations.
//
// dbPath examples:
//   - "data/aidboard.db"  → file-based database (persistent)
//   - ":memory:"          → in-memory database (tests)
//
// An in-memory database exists per connection, so the pool is pinned to a
// single connection in that case; otherwise each pooled connection would see
// its own empty database.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if dbPath == ":memory:" || strings.Contains(dbPath, "mode=memory") {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Writers wait for the lock instead of failing immediately with SQLITE_BUSY.
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// PingContext reports whether the database is reachable. Used by the
// health check.
func (db *DB) PingContext(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates the schema. CREATE ... IF NOT EXISTS makes it safe to run
// on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id              TEXT PRIMARY KEY,
			external_id     TEXT NOT NULL UNIQUE,
			username        TEXT NOT NULL DEFAULT '',
			username_folded TEXT NOT NULL DEFAULT '',
			display_name    TEXT NOT NULL DEFAULT '',
			avatar          TEXT NOT NULL DEFAULT '',
			email           TEXT NOT NULL DEFAULT '',
			zipcode         TEXT NOT NULL DEFAULT '',
			city            TEXT NOT NULL DEFAULT '',
			state           TEXT NOT NULL DEFAULT '',
			location_label  TEXT NOT NULL DEFAULT '',
			bio             TEXT NOT NULL DEFAULT '',
			contact_methods TEXT NOT NULL DEFAULT '[]',
			skills          TEXT NOT NULL DEFAULT '[]',
			offers          TEXT NOT NULL DEFAULT '[]',
			open_to_help    INTEGER NOT NULL DEFAULT 1,
			points          INTEGER NOT NULL DEFAULT 0,
			helped_count    INTEGER NOT NULL DEFAULT 0,
			created_at      INTEGER NOT NULL,
			updated_at      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_users_state ON users(lower(state));
		CREATE INDEX IF NOT EXISTS idx_users_username ON users(username_folded);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS requests (
			id                      TEXT PRIMARY KEY,
			title                   TEXT NOT NULL,
			title_folded            TEXT NOT NULL DEFAULT '',
			description             TEXT NOT NULL DEFAULT '',
			description_folded      TEXT NOT NULL DEFAULT '',
			author_id               TEXT NOT NULL REFERENCES users(id),
			city                    TEXT NOT NULL DEFAULT '',
			state                   TEXT NOT NULL DEFAULT '',
			status                  TEXT NOT NULL DEFAULT 'open',
			created_at              INTEGER NOT NULL,
			edited_at               INTEGER,
			resolved_by             TEXT REFERENCES users(id),
			resolved_at             INTEGER,
			solved_outside_platform INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_requests_author ON requests(author_id);
		CREATE INDEX IF NOT EXISTS idx_requests_status_created ON requests(status, created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating requests table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS request_tags (
			request_id TEXT NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
			position   INTEGER NOT NULL,
			tag        TEXT NOT NULL,
			tag_folded TEXT NOT NULL,
			PRIMARY KEY (request_id, position)
		);
		CREATE INDEX IF NOT EXISTS idx_request_tags_tag ON request_tags(tag_folded);
	`)
	if err != nil {
		return fmt.Errorf("creating request_tags table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS responses (
			id         TEXT NOT NULL,
			request_id TEXT NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
			user_id    TEXT NOT NULL REFERENCES users(id),
			message    TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			edited_at  INTEGER,
			PRIMARY KEY (request_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_responses_user ON responses(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating responses table: %w", err)
	}

	return nil
}

// toUnix converts t to the stored representation.
func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

// fromUnix converts a stored timestamp back to UTC time.
func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// toNullUnix stores nil as NULL.
func toNullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnix(n.Int64)
	return &t
}

// fold is the case folding used for every *_folded column and for the
// arguments compared against them.
func fold(s string) string {
	return strings.ToLower(s)
}

// escapeLike escapes LIKE wildcards so user input is matched literally.
// Queries using it must declare ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
