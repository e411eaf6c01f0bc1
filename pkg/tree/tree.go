package tree

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/csweichel/notefs/pkg/inode"
	"github.com/csweichel/notefs/pkg/store"
)

// ErrNotFound is returned when an inode or note cannot be resolved.
var ErrNotFound = errors.New("not found")

// Kind is how a note is presented in the filesystem.
type Kind int

const (
	File Kind = iota
	Directory
)

func (k Kind) String() string {
	if k == Directory {
		return "dir"
	}
	return "file"
}

// DefaultScanLimit bounds the note scan used to resolve unknown inodes.
const DefaultScanLimit = 100000

// Tree answers structural questions about the note collection.
type Tree struct {
	gw        store.Gateway
	idx       *inode.Index
	scanLimit int
}

// New produces a tree over the gateway. Inodes are handed out by idx.
func New(gw store.Gateway, idx *inode.Index, scanLimit int) *Tree {
	if scanLimit <= 0 {
		scanLimit = DefaultScanLimit
	}
	return &Tree{gw: gw, idx: idx, scanLimit: scanLimit}
}

// Inode returns the inode of a note.
func (t *Tree) Inode(noteID string) (uint64, error) {
	return t.idx.Assign(noteID)
}

// Resolve returns the id of the note an inode belongs to. Inodes not yet
// known to the index are looked for in a bounded scan of all notes. Deleted
// notes never resolve, even if the index still knows their inode.
func (t *Tree) Resolve(ctx context.Context, ino uint64) (string, error) {
	if ino == inode.Root {
		return store.RootID, nil
	}

	noteID, ok, err := t.idx.NoteID(ino)
	if err != nil {
		return "", err
	}
	if ok {
		// the note may have been deleted since its inode was handed out
		_, err := t.gw.GetNote(ctx, noteID)
		if errors.Is(err, store.ErrNotFound) {
			log.WithField("inode", ino).WithField("noteID", noteID).Debug("indexed note is gone")
			return "", ErrNotFound
		}
		if err != nil {
			return "", err
		}
		return noteID, nil
	}

	notes, err := t.gw.ListAllNotes(ctx, t.scanLimit)
	if err != nil {
		return "", err
	}
	for _, n := range notes {
		nino, err := t.idx.Assign(n.ID)
		if err != nil {
			return "", err
		}
		if nino == ino {
			return n.ID, nil
		}
	}
	log.WithField("inode", ino).WithField("scanned", len(notes)).Debug("inode not found in scan")
	return "", ErrNotFound
}

// Note returns a note by id.
func (t *Tree) Note(ctx context.Context, noteID string) (*store.Note, error) {
	n, err := t.gw.GetNote(ctx, noteID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return n, err
}

// Classify reports whether a note is shown as a directory or a file. A note
// is a directory iff it has at least one active child branch.
func (t *Tree) Classify(ctx context.Context, noteID string) (Kind, error) {
	ok, err := t.gw.HasChildren(ctx, noteID)
	if err != nil {
		return File, err
	}
	if ok {
		return Directory, nil
	}
	return File, nil
}

// Children returns the child notes of a parent in position order.
func (t *Tree) Children(ctx context.Context, parentID string) ([]store.Note, error) {
	return t.gw.ListChildren(ctx, parentID)
}

// Content returns the note's own content. Notes without blob have empty content.
func (t *Tree) Content(ctx context.Context, n *store.Note) ([]byte, error) {
	if n.BlobID == "" {
		return nil, nil
	}
	content, err := t.gw.GetBlob(ctx, n.BlobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cannot read content of %s: %w", n.ID, err)
	}
	return content, nil
}

// Size is the length of the note's own content.
func (t *Tree) Size(ctx context.Context, n *store.Note) (uint64, error) {
	content, err := t.Content(ctx, n)
	if err != nil {
		return 0, err
	}
	return uint64(len(content)), nil
}

// Reset forgets all inode assignments, e.g. after the store changed.
func (t *Tree) Reset() error {
	return t.idx.Reset()
}

// DisplayName is the name a note has in its parent directory.
func DisplayName(n *store.Note, kind Kind) string {
	if kind == Directory {
		return n.Title
	}
	return n.Filename()
}

// HiddenContentName is the name of the file exposing a directory note's own
// content inside that directory.
func HiddenContentName(n *store.Note) string {
	return "." + n.Filename()
}
