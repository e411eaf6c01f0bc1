package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"
)

// Schema is the subset of the note database this package reads. The store
// itself is owned by the note application; Schema exists so that fixtures and
// empty databases can be created.
const Schema = `
CREATE TABLE IF NOT EXISTS notes (
	noteId          TEXT PRIMARY KEY NOT NULL,
	title           TEXT NOT NULL DEFAULT 'note',
	type            TEXT NOT NULL DEFAULT 'text',
	mime            TEXT NOT NULL DEFAULT 'text/html',
	blobId          TEXT DEFAULT NULL,
	isDeleted       INT NOT NULL DEFAULT 0,
	utcDateCreated  TEXT NOT NULL DEFAULT '',
	utcDateModified TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS branches (
	branchId     TEXT PRIMARY KEY NOT NULL,
	noteId       TEXT NOT NULL,
	parentNoteId TEXT NOT NULL,
	notePosition INTEGER NOT NULL DEFAULT 0,
	isDeleted    INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS blobs (
	blobId          TEXT PRIMARY KEY NOT NULL,
	content         BLOB DEFAULT NULL,
	utcDateModified TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS IDX_branches_parentNoteId ON branches (parentNoteId);
CREATE INDEX IF NOT EXISTS IDX_branches_noteId ON branches (noteId);
`

const noteColumns = `n.noteId, n.title, n.type, n.mime, n.blobId, n.isDeleted, n.utcDateCreated, n.utcDateModified`

// SQLite is a Gateway reading a note database through database/sql.
// The connection pool makes it safe for concurrent use.
type SQLite struct {
	conn *sql.DB
}

var _ Gateway = (*SQLite)(nil)

// OpenSQLite opens the note database at path read-only.
func OpenSQLite(path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000&_query_only=true")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// CreateSQLite creates (or opens) a writable database at path and applies Schema.
func CreateSQLite(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if _, err := conn.Exec(Schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return conn, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// GetNote implements Gateway
func (s *SQLite) GetNote(ctx context.Context, noteID string) (*Note, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes n WHERE n.noteId = ? AND n.isDeleted = 0`, noteID)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get note %s: %w", noteID, err)
	}
	return n, nil
}

// ListChildren implements Gateway
func (s *SQLite) ListChildren(ctx context.Context, parentID string) ([]Note, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM branches b
		JOIN notes n ON n.noteId = b.noteId
		WHERE b.parentNoteId = ? AND b.isDeleted = 0 AND n.isDeleted = 0
		ORDER BY b.notePosition ASC`, parentID)
	if err != nil {
		return nil, fmt.Errorf("store: list children of %s: %w", parentID, err)
	}
	return collectNotes(rows)
}

// HasChildren implements Gateway
func (s *SQLite) HasChildren(ctx context.Context, noteID string) (bool, error) {
	var exists int
	err := s.conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM branches b
			JOIN notes n ON n.noteId = b.noteId
			WHERE b.parentNoteId = ? AND b.isDeleted = 0 AND n.isDeleted = 0
		)`, noteID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: has children %s: %w", noteID, err)
	}
	return exists != 0, nil
}

// GetBlob implements Gateway
func (s *SQLite) GetBlob(ctx context.Context, blobID string) ([]byte, error) {
	var content []byte
	err := s.conn.QueryRowContext(ctx, `SELECT content FROM blobs WHERE blobId = ?`, blobID).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get blob %s: %w", blobID, err)
	}
	if content == nil {
		content = []byte{}
	}
	return content, nil
}

// ListAllNotes implements Gateway
func (s *SQLite) ListAllNotes(ctx context.Context, limit int) ([]Note, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT `+noteColumns+` FROM notes n WHERE n.isDeleted = 0 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	return collectNotes(rows)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNote(row scanner) (*Note, error) {
	var (
		n                 Note
		blobID            sql.NullString
		created, modified string
	)
	err := row.Scan(&n.ID, &n.Title, &n.Type, &n.Mime, &blobID, &n.Deleted, &created, &modified)
	if err != nil {
		return nil, err
	}
	n.BlobID = blobID.String
	n.DateCreated = parseTime(created)
	n.DateModified = parseTime(modified)
	return &n, nil
}

func collectNotes(rows *sql.Rows) ([]Note, error) {
	defer rows.Close()

	var res []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan note: %w", err)
		}
		res = append(res, *n)
	}
	return res, rows.Err()
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.000Z07:00",
	"2006-01-02 15:04:05.000Z",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, l := range timeLayouts {
		t, err := time.Parse(l, s)
		if err == nil {
			return t
		}
	}
	log.WithField("value", s).Debug("cannot parse note timestamp")
	return time.Time{}
}
