// Package journal keeps a sqlite record of every analysis the server runs.
package journal

import (
	"database/sql/driver"
	"fmt"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/nedpals/tla-sany-lsp/session"

	_ "embed"

	_ "modernc.org/sqlite"
)

type NullTime struct {
	Time  time.Time
	Valid bool // Valid is true if Time is not NULL
}

// Scan implements the Scanner interface.
func (nt *NullTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case time.Time:
		nt.Time, nt.Valid = v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil
		}
		nt.Time, nt.Valid = t, true
	case []byte:
		return nt.Scan(string(v))
	}
	return nil
}

// Value implements the driver Valuer interface.
func (nt NullTime) Value() (driver.Value, error) {
	if !nt.Valid {
		return time.Now().Format(time.RFC3339Nano), nil
	}
	return nt.Time.Format(time.RFC3339Nano), nil
}

//go:embed init.sql
var initScript string

type Journal struct {
	db *sqlx.DB
}

func OpenMemory() (*Journal, error) {
	return setup(":memory:")
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if !filepath.IsAbs(path) {
		rPath, err := filepath.Abs(path)
		if err != nil {
			return nil, err
		}
		path = rPath
	}
	return setup(path)
}

func setup(dbPath string) (*Journal, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// an in-memory database only lives as long as its connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(initScript); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to initialize journal: %w", err)
	}
	return &Journal{db: db}, nil
}

type Entry struct {
	ID         int       `db:"id,omitempty"`
	URI        string    `db:"uri"`
	Path       string    `db:"path"`
	OK         bool      `db:"ok"`
	ErrorCount int       `db:"error_count"`
	FirstError string    `db:"first_error"`
	DurationMs int64     `db:"duration_ms"`
	CreatedAt  *NullTime `db:"created_at,omitempty"`
}

func (j *Journal) Log(entry Entry) error {
	if entry.CreatedAt == nil || !entry.CreatedAt.Valid || entry.CreatedAt.Time.IsZero() {
		entry.CreatedAt = &NullTime{Time: time.Now(), Valid: true}
	}

	_, err := j.db.NamedExec(`INSERT INTO analyses (
	uri, path, ok, error_count, first_error, duration_ms, created_at
) VALUES (
	:uri, :path, :ok, :error_count, :first_error, :duration_ms, :created_at
)`, &entry)
	return err
}

// RecordAnalysis stores a completed analysis run.
func (j *Journal) RecordAnalysis(run session.Run) error {
	return j.Log(Entry{
		URI:        string(run.URI),
		Path:       run.Path,
		OK:         run.OK,
		ErrorCount: run.ErrorCount,
		FirstError: run.FirstError,
		DurationMs: run.Duration.Milliseconds(),
		CreatedAt:  &NullTime{Time: run.StartedAt, Valid: !run.StartedAt.IsZero()},
	})
}

// Filter narrows Entries. The zero Filter lists everything, newest first.
type Filter struct {
	URI        string
	Path       string
	FailedOnly bool
	Limit      uint64
	Oldest     bool
}

func (f Filter) query() (string, []interface{}, error) {
	q := sq.Select("id", "uri", "path", "ok", "error_count", "first_error", "duration_ms", "created_at").
		From("analyses")

	if len(f.URI) != 0 {
		q = q.Where(sq.Eq{"uri": f.URI})
	}
	if len(f.Path) != 0 {
		q = q.Where(sq.Eq{"path": f.Path})
	}
	if f.FailedOnly {
		q = q.Where(sq.Eq{"ok": false})
	}
	if f.Oldest {
		q = q.OrderBy("id ASC")
	} else {
		q = q.OrderBy("id DESC")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return q.ToSql()
}

// EntryIterator streams entries without loading them all into memory.
type EntryIterator struct {
	rows *sqlx.Rows
}

func (it *EntryIterator) Next() bool {
	res := it.rows.Next()
	if !res {
		it.rows.Close()
	}
	return res
}

func (it *EntryIterator) Value() (Entry, error) {
	var entry Entry
	if err := it.rows.StructScan(&entry); err != nil {
		it.rows.Close()
		return Entry{}, err
	}
	return entry, nil
}

func (it *EntryIterator) List() ([]Entry, error) {
	var entries []Entry
	for it.Next() {
		entry, err := it.Value()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, it.rows.Err()
}

func (j *Journal) Entries(f Filter) (*EntryIterator, error) {
	query, args, err := f.query()
	if err != nil {
		return nil, err
	}

	rows, err := j.db.Queryx(query, args...)
	if err != nil {
		return nil, err
	}
	return &EntryIterator{rows: rows}, nil
}

// Documents lists the distinct document paths in the journal.
func (j *Journal) Documents() ([]string, error) {
	query, args, err := sq.Select("DISTINCT path").From("analyses").OrderBy("path").ToSql()
	if err != nil {
		return nil, err
	}

	var paths []string
	if err := j.db.Select(&paths, query, args...); err != nil {
		return nil, err
	}
	return paths, nil
}

// Reset deletes every entry.
func (j *Journal) Reset() error {
	_, err := j.db.Exec("DELETE FROM analyses")
	return err
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}
