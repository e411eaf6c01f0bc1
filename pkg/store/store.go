package store

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

// RootID is the reserved id of the synthetic tree root. It has no note row,
// only outgoing branches.
const RootID = "root"

// ErrNotFound is returned when a note or blob does not exist or is deleted.
var ErrNotFound = errors.New("not found")

// Gateway answers the domain queries the filesystem needs.
//
// A mount serving requests with more than one worker calls Gateway methods
// concurrently, so implementations must be safe for concurrent use.
type Gateway interface {
	// GetNote returns the note with the given id. Deleted notes yield ErrNotFound.
	GetNote(ctx context.Context, noteID string) (*Note, error)

	// ListChildren returns the notes reachable through active branches of
	// parentID, ordered by branch position.
	ListChildren(ctx context.Context, parentID string) ([]Note, error)

	// HasChildren reports whether parentID has at least one active branch.
	HasChildren(ctx context.Context, noteID string) (bool, error)

	// GetBlob returns the content of a blob. A blob without content returns
	// an empty slice.
	GetBlob(ctx context.Context, blobID string) ([]byte, error)

	// ListAllNotes returns up to limit non-deleted notes.
	ListAllNotes(ctx context.Context, limit int) ([]Note, error)

	Close() error
}

// Note is a single record of the note collection.
type Note struct {
	ID           string    `json:"noteId"`
	Title        string    `json:"title"`
	Type         string    `json:"type"`
	Mime         string    `json:"mime"`
	BlobID       string    `json:"blobId,omitempty"`
	Deleted      bool      `json:"isDeleted"`
	DateCreated  time.Time `json:"dateCreated"`
	DateModified time.Time `json:"dateModified"`
}

// Branch links a note to its parent at a given position.
type Branch struct {
	NoteID       string `json:"noteId"`
	ParentNoteID string `json:"parentNoteId"`
	Position     int    `json:"notePosition"`
	Deleted      bool   `json:"isDeleted"`
}

// Blob is the content of a note.
type Blob struct {
	ID      string `json:"blobId"`
	Content []byte `json:"-"`
}

// Filename returns a filesystem safe name for the note, including an
// extension derived from its type and mime.
func (n *Note) Filename() string {
	name := sanitize(n.Title)
	if name == "" {
		name = sanitize(n.ID)
	}
	if name == "." || name == ".." {
		name = "_" + name
	}

	ext := n.Extension()
	if strings.HasSuffix(strings.ToLower(name), ext) {
		return name
	}
	return name + ext
}

// Extension returns the file extension used for the note, including the dot.
func (n *Note) Extension() string {
	switch n.Type {
	case "code", "file", "image":
		mime := strings.ToLower(strings.TrimSpace(n.Mime))
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = strings.TrimSpace(mime[:i])
		}
		if ext, ok := mimeExtensions[mime]; ok {
			return ext
		}
		if n.Type != "code" {
			// uploaded files usually keep their original name
			if ext := path.Ext(n.Title); ext != "" && ext != n.Title && !strings.ContainsAny(ext, " /") {
				return strings.ToLower(ext)
			}
		}
	}
	return ".md"
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', 0:
			return '_'
		}
		return r
	}, s)
}

var mimeExtensions = map[string]string{
	"text/plain":             ".txt",
	"text/html":              ".html",
	"text/css":               ".css",
	"text/markdown":          ".md",
	"text/x-markdown":        ".md",
	"text/x-python":          ".py",
	"text/x-go":              ".go",
	"text/x-csrc":            ".c",
	"text/x-c++src":          ".cpp",
	"text/x-java":            ".java",
	"text/x-rustsrc":         ".rs",
	"text/x-sh":              ".sh",
	"text/x-sql":             ".sql",
	"text/x-yaml":            ".yaml",
	"text/x-toml":            ".toml",
	"text/xml":               ".xml",
	"text/csv":               ".csv",
	"application/json":       ".json",
	"application/javascript": ".js",
	"application/typescript": ".ts",
	"application/x-sh":       ".sh",
	"application/xml":        ".xml",
	"application/pdf":        ".pdf",
	"application/zip":        ".zip",
	"image/png":              ".png",
	"image/jpeg":             ".jpg",
	"image/gif":              ".gif",
	"image/webp":             ".webp",
	"image/svg+xml":          ".svg",
}
