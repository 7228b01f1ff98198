// Package ledger remembers which log files were ingested and in what state,
// so unchanged files can be skipped on the next run.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a file has no ledger entry.
var ErrNotFound = errors.New("ledger entry not found")

// Entry is the state of one file at its last successful ingest.
type Entry struct {
	// Target is set on reads; writes always use the ledger's own target.
	Target     string
	Path       string
	Day        string
	Size       int64
	ModTime    time.Time
	Records    int
	RunID      string
	IngestedAt time.Time
}

// Ledger is a SQLite-backed record of ingested files.
type Ledger struct {
	db     *sql.DB
	path   string
	target string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithTarget scopes every read and write to one storage target, typically
// "<store location>/<collection>". A file ingested into one target is still
// new to any other, so switching stores or collections re-ingests it.
func WithTarget(target string) Option {
	return func(l *Ledger) { l.target = target }
}

// Open opens (creating if needed) the ledger database at path.
func Open(path string, opts ...Option) (*Ledger, error) {
	if path == "" {
		return nil, errors.New("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}

	l := &Ledger{db: db, path: path}
	for _, o := range opts {
		o(l)
	}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running ledger migrations: %w", err)
	}
	return l, nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Path returns the database file path.
func (l *Ledger) Path() string {
	return l.path
}

// Target returns the storage target entries are scoped to.
func (l *Ledger) Target() string {
	return l.target
}

// Unchanged reports whether path was ingested before with the same size and
// modification time.
func (l *Ledger) Unchanged(ctx context.Context, path string, size int64, modTime time.Time) (bool, error) {
	e, err := l.Get(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return e.Size == size && e.ModTime.Equal(modTime), nil
}

// Get returns the entry for path.
func (l *Ledger) Get(ctx context.Context, path string) (Entry, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT target, path, day, size, mtime_ns, records, run_id, ingested_ns
		FROM ingested_files WHERE target = ? AND path = ?`, l.target, path)

	var e Entry
	var mtimeNS, ingestedNS int64
	err := row.Scan(&e.Target, &e.Path, &e.Day, &e.Size, &mtimeNS, &e.Records, &e.RunID, &ingestedNS)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("reading ledger entry %s: %w", path, err)
	}
	e.ModTime = time.Unix(0, mtimeNS)
	e.IngestedAt = time.Unix(0, ingestedNS)
	return e, nil
}

// Record stores or replaces the entry for e.Path.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.IngestedAt.IsZero() {
		e.IngestedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO ingested_files (target, path, day, size, mtime_ns, records, run_id, ingested_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(target, path) DO UPDATE SET
			day = excluded.day,
			size = excluded.size,
			mtime_ns = excluded.mtime_ns,
			records = excluded.records,
			run_id = excluded.run_id,
			ingested_ns = excluded.ingested_ns`,
		l.target, e.Path, e.Day, e.Size, e.ModTime.UnixNano(), e.Records, e.RunID, e.IngestedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("recording ledger entry %s: %w", e.Path, err)
	}
	return nil
}

// Clear removes every entry of the ledger's target and returns how many
// there were.
func (l *Ledger) Clear(ctx context.Context) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM ingested_files WHERE target = ?`, l.target)
	if err != nil {
		return 0, fmt.Errorf("clearing ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clearing ledger: %w", err)
	}
	return n, nil
}

func (l *Ledger) migrate() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var current int
	if err := l.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= current {
			continue
		}

		content, err := fs.ReadFile(migrationsFS, "migrations/"+name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := l.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := l.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}
