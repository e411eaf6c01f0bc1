package notefs_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/csweichel/notefs/pkg/notefs"
	"github.com/csweichel/notefs/pkg/store"
	"github.com/csweichel/notefs/pkg/store/storetest"
)

func TestCrawl(t *testing.T) {
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("FUSE is not available")
	}

	db := storetest.New(t).
		Note("d1", "d1", "").
		Note("d1f1", "d1f1", "d1f1").
		Note("d1f2", "d1f2", "d1f2").
		Note("d1d1", "d1d1", "").
		Note("d1d1f1", "d1d1f1", "d1d1f1").
		Branch(store.RootID, "d1", 0).
		Branch("d1", "d1f1", 0).
		Branch("d1", "d1f2", 1).
		Branch("d1", "d1d1", 2).
		Branch("d1d1", "d1d1f1", 0)

	tempDir := t.TempDir()
	server, err := notefs.Mount(tempDir, newFS(t, db), notefs.MountOptions{})
	if err != nil {
		t.Skipf("cannot mount: %v", err)
	}
	defer server.Unmount()

	var paths []string
	err = filepath.WalkDir(tempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, _ := filepath.Rel(tempDir, path)
		if relPath == "." {
			return nil
		}
		paths = append(paths, relPath)

		// hidden content files share their directory's inode, stat'ing them
		// would alias the directory in the kernel
		if d.Name()[0] == '.' {
			return nil
		}

		stat, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if exp := fs.FileMode(0755); stat.IsDir() && stat.Mode().Perm() != exp {
			t.Errorf("mode mismatch for %s: %o != %o", relPath, stat.Mode(), exp)
		} else if exp := fs.FileMode(0644); !stat.IsDir() && stat.Mode().Perm() != exp {
			t.Errorf("mode mismatch for %s: %v != %o", relPath, stat.Mode(), exp)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	exp := []string{
		"d1",
		"d1/.d1.md",
		"d1/d1d1",
		"d1/d1d1/.d1d1.md",
		"d1/d1d1/d1d1f1.md",
		"d1/d1f1.md",
		"d1/d1f2.md",
	}
	if diff := cmp.Diff(exp, paths); diff != "" {
		t.Errorf("WalkDir() mismatch (-want +got):\n%s", diff)
	}

	content, err := os.ReadFile(filepath.Join(tempDir, "d1", "d1d1", "d1d1f1.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "d1d1f1" {
		t.Errorf("ReadFile() = %q", content)
	}
}
