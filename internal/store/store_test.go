package store

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "recordings.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recordings.db")

	s1, err := Open(path, nil)
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	s1.Close()

	s2, err := Open(path, nil)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	defer s2.Close()

	var count int
	if err := s2.conn.QueryRow("SELECT COUNT(*) FROM _migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations error = %v", err)
	}
	if count != 1 {
		t.Errorf("migration count = %d, want 1", count)
	}
}

func TestPutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Put(ctx, "demo", "", strings.NewReader("first"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if rec.Key != "demo" || rec.Size != 5 || rec.ContentType != "video/webm" || rec.ID == "" {
		t.Errorf("Put() = %+v", rec)
	}

	// Replacing keeps the id and swaps the blob.
	again, err := s.Put(ctx, "demo", "video/mp4", strings.NewReader("second take"))
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if again.ID != rec.ID {
		t.Errorf("id changed on replace: %s -> %s", rec.ID, again.ID)
	}

	r, got, err := s.Get(ctx, "demo")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	data, _ := io.ReadAll(r)
	if string(data) != "second take" || got.Size != 11 || got.ContentType != "video/mp4" {
		t.Errorf("Get() = %q %+v", data, got)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestPut_EmptyKey(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Put(context.Background(), "", "", strings.NewReader("x")); err == nil {
		t.Error("Put() error = nil")
	}
}

func TestMaterialize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Put(ctx, "clip", "video/mp4", strings.NewReader("mp4 bytes")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	dir := filepath.Join(t.TempDir(), "work")
	path, err := s.Materialize(ctx, "clip", dir)
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if filepath.Ext(path) != ".mp4" || filepath.Dir(path) != dir {
		t.Errorf("Materialize() path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "mp4 bytes" {
		t.Errorf("materialized %q", data)
	}
}

func TestListDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, k := range []string{"b", "a", "c"} {
		if _, err := s.Put(ctx, k, "", strings.NewReader(k)); err != nil {
			t.Fatalf("Put(%s) error = %v", k, err)
		}
	}
	if err := s.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].Key != "a" || list[1].Key != "c" {
		t.Errorf("List() = %+v", list)
	}
	if list[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not parsed")
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"take.MP4":     "video/mp4",
		"screen.mov":   "video/quicktime",
		"a/b/c.mkv":    "video/x-matroska",
		"capture.webm": "video/webm",
		"no-extension": "video/webm",
		"strange.ogv":  "video/webm",
	}
	for path, want := range tests {
		if got := ContentTypeFor(path); got != want {
			t.Errorf("ContentTypeFor(%q) = %s, want %s", path, got, want)
		}
	}
}
