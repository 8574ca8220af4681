// Package archive keeps engine results in SQLite, keyed by the SHA-256 of
// the uploaded document.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when no document has the requested hash.
	ErrNotFound = errors.New("archive: document not found")
	// ErrBusy wraps SQLITE_BUSY failures. Callers may retry.
	ErrBusy = errors.New("archive: database is busy")
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	content_hash    TEXT PRIMARY KEY,
	job_id          TEXT NOT NULL DEFAULT '',
	filename        TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	profile_id      TEXT NOT NULL,
	status          TEXT NOT NULL,
	coverage_ratio  REAL NOT NULL,
	ruleset_version TEXT NOT NULL,
	created_at      TEXT NOT NULL,
	result          BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);
`

// timeLayout is fixed width so created_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Document is one archived result.
type Document struct {
	ContentHash    string          `json:"content_hash"`
	JobID          string          `json:"job_id,omitempty"`
	Filename       string          `json:"filename"`
	Title          string          `json:"title"`
	ProfileID      string          `json:"profile_id"`
	Status         string          `json:"status"`
	CoverageRatio  float64         `json:"coverage_ratio"`
	RulesetVersion string          `json:"ruleset_version"`
	CreatedAt      time.Time       `json:"created_at"`
	Result         json.RawMessage `json:"result,omitempty"`
}

// Store is the SQLite-backed archive.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if path == ":memory:" {
		// Every connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=10000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores doc unless its hash is already archived. It reports whether
// a row was written.
func (s *Store) Save(ctx context.Context, doc Document) (bool, error) {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	result := []byte(doc.Result)
	if result == nil {
		result = []byte("null")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO documents
			(content_hash, job_id, filename, title, profile_id, status,
			 coverage_ratio, ruleset_version, created_at, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ContentHash, doc.JobID, doc.Filename, doc.Title, doc.ProfileID, doc.Status,
		doc.CoverageRatio, doc.RulesetVersion, doc.CreatedAt.UTC().Format(timeLayout), result)
	if err != nil {
		return false, wrap("save document", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("save document", err)
	}
	return n > 0, nil
}

// Exists reports whether a document with hash is archived.
func (s *Store) Exists(ctx context.Context, hash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE content_hash = ?`, hash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrap("lookup document", err)
	}
	return true, nil
}

// Get returns the document with hash, including its full result.
func (s *Store) Get(ctx context.Context, hash string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT content_hash, job_id, filename, title, profile_id, status,
		       coverage_ratio, ruleset_version, created_at, result
		FROM documents WHERE content_hash = ?`, hash)

	var (
		doc     Document
		created string
		result  []byte
	)
	err := row.Scan(&doc.ContentHash, &doc.JobID, &doc.Filename, &doc.Title, &doc.ProfileID,
		&doc.Status, &doc.CoverageRatio, &doc.RulesetVersion, &created, &result)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrap("get document", err)
	}
	if doc.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("get document: bad created_at %q: %w", created, err)
	}
	doc.Result = json.RawMessage(result)
	return &doc, nil
}

// List returns the newest documents first, without their results.
func (s *Store) List(ctx context.Context, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT content_hash, job_id, filename, title, profile_id, status,
		       coverage_ratio, ruleset_version, created_at
		FROM documents
		ORDER BY created_at DESC, content_hash
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, wrap("list documents", err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var (
			doc     Document
			created string
		)
		if err := rows.Scan(&doc.ContentHash, &doc.JobID, &doc.Filename, &doc.Title, &doc.ProfileID,
			&doc.Status, &doc.CoverageRatio, &doc.RulesetVersion, &created); err != nil {
			return nil, wrap("scan document", err)
		}
		doc.CreatedAt, _ = time.Parse(timeLayout, created)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("list documents", err)
	}
	return docs, nil
}

// Count returns the number of archived documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, wrap("count documents", err)
	}
	return n, nil
}

func wrap(op string, err error) error {
	if isBusy(err) {
		return fmt.Errorf("%s: %w: %v", op, ErrBusy, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
