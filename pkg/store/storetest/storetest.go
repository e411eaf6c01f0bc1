// Package storetest builds throwaway note databases for tests.
package storetest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/csweichel/notefs/pkg/store"
)

// DB is a writable note database living in a test's temp dir.
type DB struct {
	Path string

	t    *testing.T
	conn *sql.DB
}

// New creates an empty note database.
func New(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "document.db")
	conn, err := store.CreateSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	return &DB{Path: path, t: t, conn: conn}
}

// Note inserts a text note. An empty content leaves the note without blob.
func (db *DB) Note(id, title, content string) *DB {
	db.t.Helper()
	return db.TypedNote(id, title, "text", "text/html", content)
}

// TypedNote inserts a note with an explicit type and mime.
func (db *DB) TypedNote(id, title, typ, mime, content string) *DB {
	db.t.Helper()

	var blobID any
	if content != "" {
		blobID = "blob_" + id
		db.exec(`INSERT INTO blobs (blobId, content) VALUES (?, ?)`, blobID, []byte(content))
	}
	db.exec(`INSERT INTO notes (noteId, title, type, mime, blobId, utcDateCreated, utcDateModified)
		VALUES (?, ?, ?, ?, ?, '2023-01-02 03:04:05.000Z', '2023-02-03 04:05:06.000Z')`,
		id, title, typ, mime, blobID)
	return db
}

// Branch links child under parent at position.
func (db *DB) Branch(parent, child string, position int) *DB {
	db.t.Helper()

	db.exec(`INSERT INTO branches (branchId, noteId, parentNoteId, notePosition) VALUES (?, ?, ?, ?)`,
		parent+"_"+child, child, parent, position)
	return db
}

// DeleteNote soft-deletes a note.
func (db *DB) DeleteNote(id string) *DB {
	db.t.Helper()
	db.exec(`UPDATE notes SET isDeleted = 1 WHERE noteId = ?`, id)
	return db
}

// DeleteBranch soft-deletes the branch between parent and child.
func (db *DB) DeleteBranch(parent, child string) *DB {
	db.t.Helper()
	db.exec(`UPDATE branches SET isDeleted = 1 WHERE parentNoteId = ? AND noteId = ?`, parent, child)
	return db
}

// Exec runs an arbitrary statement against the database.
func (db *DB) Exec(query string, args ...any) *DB {
	db.t.Helper()
	db.exec(query, args...)
	return db
}

// Gateway opens the database read-only as a store.Gateway.
func (db *DB) Gateway() *store.SQLite {
	db.t.Helper()

	gw, err := store.OpenSQLite(db.Path)
	if err != nil {
		db.t.Fatal(err)
	}
	db.t.Cleanup(func() { gw.Close() })
	return gw
}

func (db *DB) exec(query string, args ...any) {
	db.t.Helper()
	if _, err := db.conn.Exec(query, args...); err != nil {
		db.t.Fatalf("cannot exec %q: %v", query, err)
	}
}

// Scenario builds the canonical example tree:
//
//	root
//	└── Folder (no blob)
//	    └── Doc ("hello")
func Scenario(t *testing.T) *DB {
	t.Helper()
	return New(t).
		Note("folder", "Folder", "").
		Note("doc", "Doc", "hello").
		Branch(store.RootID, "folder", 0).
		Branch("folder", "doc", 0)
}
