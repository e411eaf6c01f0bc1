package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/csweichel/notefs/pkg/store"
	"github.com/csweichel/notefs/pkg/store/storetest"
	"github.com/google/go-cmp/cmp"
)

func TestFilename(t *testing.T) {
	tests := []struct {
		Name     string
		Note     store.Note
		Expected string
	}{
		{Name: "text default", Note: store.Note{ID: "a", Title: "Doc", Type: "text"}, Expected: "Doc.md"},
		{Name: "no type", Note: store.Note{ID: "a", Title: "Doc"}, Expected: "Doc.md"},
		{Name: "code python", Note: store.Note{ID: "a", Title: "script", Type: "code", Mime: "text/x-python"}, Expected: "script.py"},
		{Name: "code with mime params", Note: store.Note{ID: "a", Title: "app", Type: "code", Mime: "application/javascript;env=frontend"}, Expected: "app.js"},
		{Name: "code unknown mime", Note: store.Note{ID: "a", Title: "x", Type: "code", Mime: "text/x-brainfuck"}, Expected: "x.md"},
		{Name: "image", Note: store.Note{ID: "a", Title: "photo", Type: "image", Mime: "image/png"}, Expected: "photo.png"},
		{Name: "extension not doubled", Note: store.Note{ID: "a", Title: "photo.PNG", Type: "image", Mime: "image/png"}, Expected: "photo.PNG"},
		{Name: "file keeps own extension", Note: store.Note{ID: "a", Title: "archive.tar", Type: "file", Mime: "application/x-unknown"}, Expected: "archive.tar"},
		{Name: "slash replaced", Note: store.Note{ID: "a", Title: "a/b", Type: "text"}, Expected: "a_b.md"},
		{Name: "empty title", Note: store.Note{ID: "abc123", Title: "  "}, Expected: "abc123.md"},
		{Name: "dot title", Note: store.Note{ID: "a", Title: ".."}, Expected: "_...md"},
	}
	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			if act := test.Note.Filename(); act != test.Expected {
				t.Errorf("Filename() = %q, want %q", act, test.Expected)
			}
		})
	}
}

func TestSQLiteGateway(t *testing.T) {
	db := storetest.New(t).
		Note("a", "A", "").
		Note("b", "B", "bee").
		Note("c", "C", "").
		Note("gone", "Gone", "").
		Note("z", "Z", "").
		Branch(store.RootID, "a", 20).
		Branch(store.RootID, "c", 10).
		Branch(store.RootID, "gone", 5).
		Branch("a", "b", 0).
		Branch("c", "z", 0).
		DeleteNote("gone").
		DeleteBranch("c", "z")
	gw := db.Gateway()
	ctx := context.Background()

	t.Run("ListChildren orders by position", func(t *testing.T) {
		children, err := gw.ListChildren(ctx, store.RootID)
		if err != nil {
			t.Fatal(err)
		}
		var ids []string
		for _, c := range children {
			ids = append(ids, c.ID)
		}
		if diff := cmp.Diff([]string{"c", "a"}, ids); diff != "" {
			t.Errorf("ListChildren() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("HasChildren", func(t *testing.T) {
		for id, exp := range map[string]bool{"a": true, "b": false, "c": false, store.RootID: true} {
			act, err := gw.HasChildren(ctx, id)
			if err != nil {
				t.Fatal(err)
			}
			if act != exp {
				t.Errorf("HasChildren(%s) = %v, want %v", id, act, exp)
			}
		}
	})

	t.Run("GetNote", func(t *testing.T) {
		n, err := gw.GetNote(ctx, "b")
		if err != nil {
			t.Fatal(err)
		}
		exp := &store.Note{
			ID:           "b",
			Title:        "B",
			Type:         "text",
			Mime:         "text/html",
			BlobID:       "blob_b",
			DateCreated:  time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC),
			DateModified: time.Date(2023, 2, 3, 4, 5, 6, 0, time.UTC),
		}
		if diff := cmp.Diff(exp, n); diff != "" {
			t.Errorf("GetNote() mismatch (-want +got):\n%s", diff)
		}

		_, err = gw.GetNote(ctx, "gone")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetNote(gone) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("GetBlob", func(t *testing.T) {
		content, err := gw.GetBlob(ctx, "blob_b")
		if err != nil {
			t.Fatal(err)
		}
		if string(content) != "bee" {
			t.Errorf("GetBlob() = %q, want %q", content, "bee")
		}
		_, err = gw.GetBlob(ctx, "nope")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("GetBlob(nope) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("ListAllNotes excludes deleted and honours limit", func(t *testing.T) {
		all, err := gw.ListAllNotes(ctx, 100)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 4 {
			t.Errorf("ListAllNotes() returned %d notes, want 4", len(all))
		}
		for _, n := range all {
			if n.ID == "gone" {
				t.Error("ListAllNotes() returned a deleted note")
			}
		}

		some, err := gw.ListAllNotes(ctx, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(some) != 2 {
			t.Errorf("ListAllNotes(2) returned %d notes", len(some))
		}
	})
}
