package notefs

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/csweichel/notefs/pkg/inode"
	"github.com/csweichel/notefs/pkg/store"
	"github.com/csweichel/notefs/pkg/tree"
)

// ErrNotFound is the only error the filesystem operations return. Backend
// failures are reported as ErrNotFound, too.
var ErrNotFound = tree.ErrNotFound

// DefaultAttrTTL is how long the kernel may cache attributes and entries.
const DefaultAttrTTL = time.Second

// Options configure the presentation of the note tree.
type Options struct {
	// DefaultUID and DefaultGID own all files. Zero means the mounting user.
	DefaultUID uint32
	DefaultGID uint32

	AttrTTL time.Duration
}

// New produces a filesystem presenting the tree.
func New(t *tree.Tree, opts Options) *FS {
	if opts.DefaultUID == 0 {
		opts.DefaultUID = uint32(os.Getuid())
	}
	if opts.DefaultGID == 0 {
		opts.DefaultGID = uint32(os.Getgid())
	}
	if opts.AttrTTL <= 0 {
		opts.AttrTTL = DefaultAttrTTL
	}
	return &FS{
		tree:    t,
		opts:    opts,
		metrics: metrics.NewRegistry(),
	}
}

// FS implements lookup, getattr, read and readdir on top of the note tree.
// Every call is computed from the current store contents.
type FS struct {
	tree    *tree.Tree
	opts    Options
	metrics metrics.Registry
}

// Attr describes a single filesystem entry.
type Attr struct {
	Inode uint64
	Kind  tree.Kind
	Size  uint64
	Ctime time.Time
	Mtime time.Time
}

// DirEntry is a single readdir result.
type DirEntry struct {
	Inode uint64
	Kind  tree.Kind
	Name  string

	// note is nil for "." and ".."
	note *store.Note
}

// Lookup finds name in the directory parent.
func (fs *FS) Lookup(ctx context.Context, parent uint64, name string) (res Attr, err error) {
	defer fs.observe("lookup", parent, time.Now(), &err)

	parentID, err := fs.tree.Resolve(ctx, parent)
	if err != nil {
		return
	}

	if parent != inode.Root {
		pn, perr := fs.tree.Note(ctx, parentID)
		if perr == nil && name == tree.HiddenContentName(pn) {
			// the hidden content file shares its inode with the directory
			return fs.attr(ctx, parent, pn, tree.File)
		}
	}

	children, err := fs.tree.Children(ctx, parentID)
	if err != nil {
		return
	}
	for i := range children {
		child := &children[i]
		kind, err := fs.tree.Classify(ctx, child.ID)
		if err != nil {
			return res, err
		}
		if name != tree.DisplayName(child, kind) {
			continue
		}

		ino, err := fs.tree.Inode(child.ID)
		if err != nil {
			return res, err
		}
		return fs.attr(ctx, ino, child, kind)
	}
	return res, ErrNotFound
}

// Getattr returns the attributes of an inode.
func (fs *FS) Getattr(ctx context.Context, ino uint64) (res Attr, err error) {
	defer fs.observe("getattr", ino, time.Now(), &err)

	if ino == inode.Root {
		return Attr{Inode: inode.Root, Kind: tree.Directory}, nil
	}

	noteID, err := fs.tree.Resolve(ctx, ino)
	if err != nil {
		return
	}
	n, err := fs.tree.Note(ctx, noteID)
	if err != nil {
		return
	}
	kind, err := fs.tree.Classify(ctx, noteID)
	if err != nil {
		return
	}
	return fs.attr(ctx, ino, n, kind)
}

// Read returns at most size bytes of the note's content, starting at off.
// Reading at or past the end yields an empty result.
func (fs *FS) Read(ctx context.Context, ino uint64, off int64, size int) (res []byte, err error) {
	defer fs.observe("read", ino, time.Now(), &err)

	noteID, err := fs.tree.Resolve(ctx, ino)
	if err != nil {
		return
	}
	n, err := fs.tree.Note(ctx, noteID)
	if err != nil {
		return
	}
	content, err := fs.tree.Content(ctx, n)
	if err != nil {
		return
	}

	if off < 0 || off >= int64(len(content)) {
		return []byte{}, nil
	}
	end := int64(len(content))
	if size >= 0 && off+int64(size) < end {
		end = off + int64(size)
	}
	return content[off:end], nil
}

// Readdir lists a directory, skipping the first off entries. The listing
// always starts with "." and "..", followed by the hidden content file for
// non-root directories and the children in position order.
func (fs *FS) Readdir(ctx context.Context, ino uint64, off int) (res []DirEntry, err error) {
	defer fs.observe("readdir", ino, time.Now(), &err)

	noteID, err := fs.tree.Resolve(ctx, ino)
	if err != nil {
		return
	}

	entries := []DirEntry{
		{Inode: ino, Kind: tree.Directory, Name: "."},
		{Inode: ino, Kind: tree.Directory, Name: ".."},
	}
	if ino != inode.Root {
		if n, err := fs.tree.Note(ctx, noteID); err == nil {
			entries = append(entries, DirEntry{Inode: ino, Kind: tree.File, Name: tree.HiddenContentName(n), note: n})
		}
	}

	children, err := fs.tree.Children(ctx, noteID)
	if err != nil {
		return
	}
	for i := range children {
		child := &children[i]
		kind, err := fs.tree.Classify(ctx, child.ID)
		if err != nil {
			return nil, err
		}
		cino, err := fs.tree.Inode(child.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, DirEntry{Inode: cino, Kind: kind, Name: tree.DisplayName(child, kind), note: child})
	}

	if off < 0 {
		off = 0
	}
	if off >= len(entries) {
		return []DirEntry{}, nil
	}
	return entries[off:], nil
}

// EntryAttr returns the attributes of a readdir entry without another
// directory scan. It fails for "." and "..".
func (fs *FS) EntryAttr(ctx context.Context, e DirEntry) (Attr, error) {
	if e.note == nil {
		return Attr{}, ErrNotFound
	}
	return fs.attr(ctx, e.Inode, e.note, e.Kind)
}

func (fs *FS) attr(ctx context.Context, ino uint64, n *store.Note, kind tree.Kind) (Attr, error) {
	res := Attr{
		Inode: ino,
		Kind:  kind,
		Ctime: n.DateCreated,
		Mtime: n.DateModified,
	}
	if kind == tree.Directory {
		return res, nil
	}

	size, err := fs.tree.Size(ctx, n)
	if err != nil {
		return Attr{}, err
	}
	res.Size = size
	return res, nil
}

// fillAttr translates an Attr to its FUSE representation.
func (fs *FS) fillAttr(a Attr, out *fuse.Attr) {
	out.Ino = a.Inode
	out.Size = a.Size
	out.Blocks = (a.Size + 511) / 512
	out.Blksize = 4096
	out.Owner = fuse.Owner{Uid: fs.opts.DefaultUID, Gid: fs.opts.DefaultGID}
	if a.Kind == tree.Directory {
		out.Mode = syscall.S_IFDIR | 0755
		out.Nlink = 2
	} else {
		out.Mode = syscall.S_IFREG | 0644
		out.Nlink = 1
	}
	if !a.Mtime.IsZero() {
		out.SetTimes(&a.Mtime, &a.Mtime, &a.Ctime)
	}
}

// observe records latency and folds every failure into ErrNotFound.
func (fs *FS) observe(op string, ino uint64, start time.Time, err *error) {
	metrics.GetOrRegisterTimer(op, fs.metrics).UpdateSince(start)
	if *err == nil {
		return
	}

	if !errors.Is(*err, ErrNotFound) {
		logrus.WithError(*err).WithField("op", op).WithField("inode", ino).Debug("backend error reported as not found")
		metrics.GetOrRegisterCounter(op+".error", fs.metrics).Inc(1)
	}
	metrics.GetOrRegisterCounter(op+".notfound", fs.metrics).Inc(1)
	*err = ErrNotFound
}

// LogStats writes the per-operation statistics gathered so far.
func (fs *FS) LogStats() {
	fs.metrics.Each(func(name string, m interface{}) {
		entry := logrus.WithField("metric", name)
		switch m := m.(type) {
		case metrics.Timer:
			s := m.Snapshot()
			entry.WithField("count", s.Count()).
				WithField("mean", time.Duration(s.Mean())).
				WithField("p99", time.Duration(s.Percentile(0.99))).
				Info("operation latency")
		case metrics.Counter:
			entry.WithField("count", m.Count()).Info("operation outcome")
		}
	})
}
