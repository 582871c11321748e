package fileserve

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vango-dev/getserve/pkg/protocol"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		target string
		want   string
		ok     bool
	}{
		{"/index.html", "index.html", true},
		{"index.html", "index.html", true},
		{"./notes.txt", "notes.txt", true},
		{"//a//b.txt", "a/b.txt", true},
		{"/a/./b/../c.txt", "a/c.txt", true},
		{"/../../etc/passwd", "etc/passwd", true},
		{"../../../etc/passwd", "etc/passwd", true},
		{"/a/../../..", "", true},
		{"/", "", true},
		{"", "", true},
		{"/file.txt?x=1", "file.txt", true},
		{"/bad\x00name", "", false},
		{"/..\\..\\windows", "", false},
	}
	for _, tt := range tests {
		got, ok := CleanPath(tt.target)
		if got != tt.want || ok != tt.ok {
			t.Errorf("CleanPath(%q) = %q, %v; want %q, %v", tt.target, got, ok, tt.want, tt.ok)
		}
	}
}

func TestContentType(t *testing.T) {
	tests := map[string]string{
		"a.txt":       "text/plain",
		"page.HTML":   "text/html",
		"s/style.css": "text/css",
		"app.js":      "text/javascript",
		"README":      "text/plain",
		"data.bin":    "text/plain",
		"table.csv":   "text/csv",
	}
	for name, want := range tests {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func newTestRoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"existing.txt":     "known bytes\n",
		"index.html":       "<h1>home</h1>",
		"sub/nested.css":   "body{}",
		"sub/deeper/x.txt": "x",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestDirStore_ReadFile(t *testing.T) {
	store, err := OpenDir(newTestRoot(t), 0)
	if err != nil {
		t.Fatalf("OpenDir() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	got, err := store.ReadFile(ctx, "existing.txt")
	if err != nil || string(got) != "known bytes\n" {
		t.Fatalf("ReadFile(existing.txt) = %q, %v", got, err)
	}
	got, err = store.ReadFile(ctx, "sub/nested.css")
	if err != nil || string(got) != "body{}" {
		t.Fatalf("ReadFile(sub/nested.css) = %q, %v", got, err)
	}

	for _, name := range []string{"missing.txt", "sub", "sub/deeper"} {
		if _, err := store.ReadFile(ctx, name); !errors.Is(err, ErrNotFound) {
			t.Errorf("ReadFile(%q) err = %v, want ErrNotFound", name, err)
		}
	}
}

func TestDirStore_MaxSize(t *testing.T) {
	store, err := OpenDir(newTestRoot(t), 4)
	if err != nil {
		t.Fatalf("OpenDir() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if _, err := store.ReadFile(context.Background(), "existing.txt"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("ReadFile() over limit err = %v", err)
	}
	if _, err := store.ReadFile(context.Background(), "sub/deeper/x.txt"); err != nil {
		t.Fatalf("ReadFile() under limit err = %v", err)
	}
}

func TestDirStore_SymlinkEscape(t *testing.T) {
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("secret"), 0o644); err != nil {
		t.Fatal(err)
	}
	dir := newTestRoot(t)
	if err := os.Symlink(secret, filepath.Join(dir, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	store, err := OpenDir(dir, 0)
	if err != nil {
		t.Fatalf("OpenDir() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if body, err := store.ReadFile(context.Background(), "link.txt"); err == nil {
		t.Fatalf("read %q through a symlink leaving the root", body)
	}
}

func TestOpenDir_Missing(t *testing.T) {
	if _, err := OpenDir(filepath.Join(t.TempDir(), "nope"), 0); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestHandler_ServeRequest(t *testing.T) {
	store, err := OpenDir(newTestRoot(t), 0)
	if err != nil {
		t.Fatalf("OpenDir() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	h := NewHandler(store)
	ctx := context.Background()

	tests := []struct {
		target string
		status protocol.Status
		body   string
		ct     string
	}{
		{"/existing.txt", protocol.StatusOK, "known bytes\n", "text/plain"},
		{"/", protocol.StatusOK, "<h1>home</h1>", "text/html"},
		{"./sub/nested.css", protocol.StatusOK, "body{}", "text/css"},
		{"/missing.txt", protocol.StatusNotFound, "", "text/plain"},
		{"/../../etc/passwd", protocol.StatusNotFound, "", "text/plain"},
		{"/../existing.txt", protocol.StatusOK, "known bytes\n", "text/plain"},
		{"/a\x00b", protocol.StatusNotFound, "", "text/plain"},
	}
	for _, tt := range tests {
		resp := h.ServeRequest(ctx, &protocol.Request{Method: protocol.MethodGet, Target: tt.target})
		if resp.Status != tt.status || string(resp.Body) != tt.body || resp.ContentType != tt.ct {
			t.Errorf("ServeRequest(%q) = %s %q %q; want %s %q %q",
				tt.target, resp.Status, resp.ContentType, resp.Body, tt.status, tt.ct, tt.body)
		}
	}
}

func TestHandler_NoIndex(t *testing.T) {
	h := NewHandler(StoreFunc(func(context.Context, string) ([]byte, error) {
		t.Fatal("store must not be consulted")
		return nil, nil
	}), WithIndex(""))

	resp := h.ServeRequest(context.Background(), &protocol.Request{Method: protocol.MethodGet, Target: "/"})
	if resp.Status != protocol.StatusNotFound {
		t.Fatalf("status = %s, want 404", resp.Status)
	}
}

func TestHandler_StoreFailureIsNotFound(t *testing.T) {
	h := NewHandler(StoreFunc(func(context.Context, string) ([]byte, error) {
		return nil, errors.New("disk on fire")
	}))

	resp := h.ServeRequest(context.Background(), &protocol.Request{Method: protocol.MethodGet, Target: "/x.txt"})
	if resp.Status != protocol.StatusNotFound {
		t.Fatalf("status = %s, want 404", resp.Status)
	}
}
