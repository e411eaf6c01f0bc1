package notefs

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/csweichel/notefs/pkg/bridge"
	"github.com/csweichel/notefs/pkg/tree"
)

// go-fuse calls these methods from its own goroutines. Each call hands its
// work to the bridge and waits for the answer.

// NewRawFileSystem binds fs to the FUSE protocol. Operations that would
// modify the tree are refused.
func NewRawFileSystem(fs *FS, b *bridge.Bridge) fuse.RawFileSystem {
	return &rawFS{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		fs:            fs,
		bridge:        b,
	}
}

type rawFS struct {
	fuse.RawFileSystem

	fs     *FS
	bridge *bridge.Bridge
}

func (r *rawFS) String() string {
	return "notefs"
}

func (r *rawFS) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	attr, err := bridge.Do(r.bridge, func(ctx context.Context) (Attr, error) {
		return r.fs.Lookup(ctx, header.NodeId, name)
	})
	if err != nil {
		return fuse.ENOENT
	}

	r.fillEntry(attr, out)
	return fuse.OK
}

func (r *rawFS) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	attr, err := bridge.Do(r.bridge, func(ctx context.Context) (Attr, error) {
		return r.fs.Getattr(ctx, input.NodeId)
	})
	if err != nil {
		return fuse.ENOENT
	}

	r.fs.fillAttr(attr, &out.Attr)
	out.SetTimeout(r.fs.opts.AttrTTL)
	return fuse.OK
}

func (r *rawFS) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	if input.Mask&unix.W_OK != 0 {
		return fuse.EROFS
	}
	return fuse.OK
}

func (r *rawFS) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	if input.Flags&syscall.O_ACCMODE != syscall.O_RDONLY || input.Flags&(syscall.O_TRUNC|syscall.O_APPEND) != 0 {
		return fuse.EROFS
	}
	return fuse.OK
}

func (r *rawFS) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	data, err := bridge.Do(r.bridge, func(ctx context.Context) ([]byte, error) {
		return r.fs.Read(ctx, input.NodeId, int64(input.Offset), int(input.Size))
	})
	if err != nil {
		return nil, fuse.ENOENT
	}
	return fuse.ReadResultData(data), fuse.OK
}

func (r *rawFS) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	return fuse.OK
}

func (r *rawFS) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	entries, err := bridge.Do(r.bridge, func(ctx context.Context) ([]DirEntry, error) {
		return r.fs.Readdir(ctx, input.NodeId, int(input.Offset))
	})
	if err != nil {
		return fuse.ENOENT
	}

	for i, e := range entries {
		if !out.AddDirEntry(dirEntry(e, input.Offset+uint64(i)+1)) {
			break
		}
	}
	return fuse.OK
}

func (r *rawFS) ReadDirPlus(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	type plusEntry struct {
		DirEntry
		Attr Attr
		Err  error
	}
	entries, err := bridge.Do(r.bridge, func(ctx context.Context) ([]plusEntry, error) {
		entries, err := r.fs.Readdir(ctx, input.NodeId, int(input.Offset))
		if err != nil {
			return nil, err
		}
		res := make([]plusEntry, 0, len(entries))
		for _, e := range entries {
			pe := plusEntry{DirEntry: e}
			// the hidden content file shares the directory's inode, so the kernel
			// must look it up by name instead of caching it as a node here
			if e.note != nil && !(e.Kind == tree.File && e.Inode == input.NodeId) {
				pe.Attr, pe.Err = r.fs.EntryAttr(ctx, e)
			} else {
				pe.Err = ErrNotFound
			}
			res = append(res, pe)
		}
		return res, nil
	})
	if err != nil {
		return fuse.ENOENT
	}

	for i, e := range entries {
		eo := out.AddDirLookupEntry(dirEntry(e.DirEntry, input.Offset+uint64(i)+1))
		if eo == nil {
			break
		}
		if e.Err != nil {
			continue
		}
		r.fillEntry(e.Attr, eo)
	}
	return fuse.OK
}

func (r *rawFS) StatFs(cancel <-chan struct{}, input *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	out.Bsize = 4096
	out.Frsize = 4096
	out.NameLen = 255
	return fuse.OK
}

func (r *rawFS) fillEntry(attr Attr, out *fuse.EntryOut) {
	out.NodeId = attr.Inode
	r.fs.fillAttr(attr, &out.Attr)
	out.SetEntryTimeout(r.fs.opts.AttrTTL)
	out.SetAttrTimeout(r.fs.opts.AttrTTL)
	log.WithField("inode", attr.Inode).WithField("kind", attr.Kind).Debug("entry")
}

func dirEntry(e DirEntry, off uint64) fuse.DirEntry {
	mode := uint32(syscall.S_IFREG)
	if e.Kind == tree.Directory {
		mode = syscall.S_IFDIR
	}
	return fuse.DirEntry{
		Mode: mode,
		Name: e.Name,
		Ino:  e.Inode,
		Off:  off,
	}
}
