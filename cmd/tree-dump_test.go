package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/csweichel/notefs/pkg/inode"
	"github.com/csweichel/notefs/pkg/notefs"
	"github.com/csweichel/notefs/pkg/store/storetest"
	"github.com/csweichel/notefs/pkg/tree"
)

func newTestFS(t *testing.T) *notefs.FS {
	t.Helper()
	idx, err := inode.NewIndex()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return notefs.New(tree.New(storetest.Scenario(t).Gateway(), idx, 0), notefs.Options{})
}

func TestDumpTree(t *testing.T) {
	var out bytes.Buffer
	if err := dumpTree(context.Background(), newTestFS(t), &out); err != nil {
		t.Fatal(err)
	}

	type record struct {
		Path string `json:"path"`
		Type string `json:"type"`
		Size uint64 `json:"size"`
	}
	var act []record
	if err := json.Unmarshal(out.Bytes(), &act); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}

	exp := []record{
		{Path: "/Folder", Type: "dir"},
		{Path: "/Folder/.Folder.md", Type: "file"},
		{Path: "/Folder/Doc.md", Type: "file", Size: 5},
	}
	if diff := cmp.Diff(exp, act); diff != "" {
		t.Errorf("dumpTree() mismatch (-want +got):\n%s", diff)
	}
}

var errWrite = errors.New("disk full")

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errWrite }

func TestDumpTreeWriteError(t *testing.T) {
	err := dumpTree(context.Background(), newTestFS(t), failingWriter{})
	if !errors.Is(err, errWrite) {
		t.Errorf("dumpTree() error = %v, want %v", err, errWrite)
	}
}
