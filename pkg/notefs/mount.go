package notefs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hanwen/go-fuse/v2/fuse"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/csweichel/notefs/pkg/bridge"
	"github.com/csweichel/notefs/pkg/tree"
)

// MountOptions configure a mount session.
type MountOptions struct {
	Debug       bool
	AllowOther  bool
	AllowRoot   bool
	AutoUnmount bool

	// Workers is the number of backend workers. One worker serves one
	// request at a time.
	Workers int

	// DBPath is watched for changes. Whenever it changes the inode
	// assignments are dropped. Empty disables watching.
	DBPath string

	// Refresh drops inode assignments periodically. Zero disables it.
	Refresh time.Duration
}

// Server is a mounted note filesystem.
type Server struct {
	*fuse.Server

	fs     *FS
	bridge *bridge.Bridge
	cancel context.CancelFunc
	bg     *errgroup.Group
	once   sync.Once
}

// Mount mounts fs at mountpoint and starts serving requests.
func Mount(mountpoint string, fs *FS, opts MountOptions) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())

	b := bridge.New(opts.Workers)
	b.Start(ctx)

	mo := &fuse.MountOptions{
		FsName:     "notefs",
		Name:       "notefs",
		Debug:      opts.Debug,
		AllowOther: opts.AllowOther,
		Options:    []string{"ro"},
	}
	if opts.DBPath != "" {
		mo.FsName = opts.DBPath
	}
	if opts.AllowRoot {
		mo.Options = append(mo.Options, "allow_root")
	}
	if opts.AutoUnmount {
		mo.Options = append(mo.Options, "auto_unmount")
	}
	// the single worker serialises requests anyway
	mo.SingleThreaded = opts.Workers <= 1

	srv, err := fuse.NewServer(NewRawFileSystem(fs, b), mountpoint, mo)
	if err != nil {
		cancel()
		_ = b.Stop()
		return nil, fmt.Errorf("cannot mount %s: %w", mountpoint, err)
	}
	go srv.Serve()
	if err := srv.WaitMount(); err != nil {
		_ = srv.Unmount()
		cancel()
		_ = b.Stop()
		return nil, fmt.Errorf("cannot mount %s: %w", mountpoint, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.DBPath != "" {
		g.Go(func() error {
			return Watch(gctx, fs.tree, opts.DBPath)
		})
	}
	if opts.Refresh > 0 {
		g.Go(func() error {
			refreshPeriodically(gctx, fs.tree, opts.Refresh)
			return nil
		})
	}

	return &Server{
		Server: srv,
		fs:     fs,
		bridge: b,
		cancel: cancel,
		bg:     g,
	}, nil
}

// Wait blocks until the filesystem is unmounted and then shuts down the
// backend workers.
func (s *Server) Wait() {
	s.Server.Wait()
	s.shutdown()
}

// Unmount unmounts the filesystem and shuts down the backend workers.
func (s *Server) Unmount() error {
	err := s.Server.Unmount()
	if err != nil {
		return err
	}
	s.shutdown()
	return nil
}

func (s *Server) shutdown() {
	s.once.Do(func() {
		s.cancel()
		if err := s.bg.Wait(); err != nil {
			log.WithError(err).Warn("background refresh failed")
		}
		if err := s.bridge.Stop(); err != nil {
			log.WithError(err).Warn("cannot stop bridge")
		}
		s.fs.LogStats()
	})
}

// Watch drops the tree's inode assignments whenever the database at dbPath
// (or its journal) changes, until ctx is cancelled.
func Watch(ctx context.Context, t *tree.Tree, dbPath string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// watch the directory: sqlite replaces and creates journal files next to the db
	dir, base := filepath.Split(dbPath)
	if dir == "" {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		return err
	}
	log.WithField("path", dbPath).Debug("watching database")

	relevant := map[string]struct{}{
		base:              {},
		base + "-wal":     {},
		base + "-journal": {},
	}
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if _, ok := relevant[filepath.Base(ev.Name)]; !ok {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := t.Reset(); err != nil {
				log.WithError(err).Warn("cannot reset inode index")
				continue
			}
			log.WithField("event", ev.String()).Debug("database changed, inode index reset")

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("database watcher error")
		}
	}
}

func refreshPeriodically(ctx context.Context, t *tree.Tree, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.Reset(); err != nil {
				log.WithError(err).Warn("cannot reset inode index")
			}
		}
	}
}

// EnsureMountpoint creates the mountpoint directory if it does not exist.
func EnsureMountpoint(mnt string) error {
	err := os.MkdirAll(mnt, 0755)
	if err != nil {
		return fmt.Errorf("cannot create mountpoint %s: %w", mnt, err)
	}
	return nil
}
