package notefs

import (
	"context"
	"path"

	"github.com/csweichel/notefs/pkg/inode"
	"github.com/csweichel/notefs/pkg/tree"
)

// Record is a single entry produced by Walk.
type Record struct {
	Path  string    `json:"path"`
	Inode uint64    `json:"inode"`
	Kind  tree.Kind `json:"-"`
	Type  string    `json:"type"`
	Size  uint64    `json:"size"`
}

// Walk visits every entry below the root in readdir order, depth first,
// including the hidden content files. A directory that appears among its
// own ancestors is reported but not descended into again.
func (fs *FS) Walk(ctx context.Context, fn func(Record) error) error {
	return fs.walk(ctx, inode.Root, "/", map[uint64]bool{inode.Root: true}, fn)
}

func (fs *FS) walk(ctx context.Context, ino uint64, dir string, ancestors map[uint64]bool, fn func(Record) error) error {
	entries, err := fs.Readdir(ctx, ino, 0)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.note == nil {
			continue
		}
		attr, err := fs.EntryAttr(ctx, e)
		if err != nil {
			return err
		}
		p := path.Join(dir, e.Name)
		err = fn(Record{Path: p, Inode: attr.Inode, Kind: attr.Kind, Type: attr.Kind.String(), Size: attr.Size})
		if err != nil {
			return err
		}

		if e.Kind != tree.Directory || ancestors[e.Inode] {
			continue
		}
		ancestors[e.Inode] = true
		err = fs.walk(ctx, e.Inode, p, ancestors, fn)
		delete(ancestors, e.Inode)
		if err != nil {
			return err
		}
	}
	return nil
}
