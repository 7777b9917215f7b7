package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/sokuin/internal/config"
)

type recordingSink struct {
	mu       sync.Mutex
	imported []string
	removed  []string
	err      error
}

func (s *recordingSink) ImportFile(_ context.Context, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imported = append(s.imported, path)
	return 1, s.err
}

func (s *recordingSink) RemoveFile(_ context.Context, path string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, path)
	return 1, s.err
}

func (s *recordingSink) snapshot() (imported, removed []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.imported...), append([]string(nil), s.removed...)
}

func newTestWatcher(t *testing.T, dirs, exts []string, sink Sink) *Watcher {
	t.Helper()
	w := New(config.WatchConfig{Directories: dirs, Extensions: exts}, sink, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func hasSuffix(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, nil, []string{".txt"}, &recordingSink{})

	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || dirs[0] != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}

	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 0 {
		t.Errorf("after remove: %v", w.Directories())
	}
	if err := w.RemoveDirectory(dir); err != nil {
		t.Errorf("removing an unwatched directory: %v", err)
	}
}

func TestWatcher_DebounceAndExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	newTestWatcher(t, []string{dir}, []string{".txt"}, sink)

	fPath := filepath.Join(sub, "f.txt")
	for _, body := range []string{"a", "ab", "abc"} {
		if err := os.WriteFile(fPath, []byte(body), 0600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(sub, "skip.xyz"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { imported, _ := sink.snapshot(); return len(imported) > 0 }) {
		t.Fatal("expected an import callback")
	}
	time.Sleep(150 * time.Millisecond)
	imported, _ := sink.snapshot()
	if len(imported) != 1 || imported[0] != fPath {
		t.Errorf("imported = %v, want one call for %s", imported, fPath)
	}
}

func TestWatcher_RemoveAndRename(t *testing.T) {
	dir := t.TempDir()
	gone := filepath.Join(dir, "gone.txt")
	moved := filepath.Join(dir, "moved.txt")
	for _, p := range []string{gone, moved} {
		if err := os.WriteFile(p, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	sink := &recordingSink{}
	newTestWatcher(t, []string{dir}, []string{".txt"}, sink)

	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(moved, filepath.Join(dir, "renamed.txt")); err != nil {
		t.Fatal(err)
	}
	ok := waitFor(t, func() bool {
		imported, removed := sink.snapshot()
		return hasSuffix(removed, "gone.txt") && hasSuffix(removed, "moved.txt") && hasSuffix(imported, "renamed.txt")
	})
	if !ok {
		imported, removed := sink.snapshot()
		t.Errorf("imported=%v removed=%v", imported, removed)
	}
}

func TestWatcher_SinkErrorsDoNotStopWatching(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{err: errors.New("engine down")}
	newTestWatcher(t, []string{dir}, nil, sink)

	for _, name := range []string{"a.txt", "b.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0600); err != nil {
			t.Fatal(err)
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !waitFor(t, func() bool { imported, _ := sink.snapshot(); return len(imported) >= 2 }) {
		imported, _ := sink.snapshot()
		t.Errorf("imported = %v, want both files", imported)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{".txt"}, true},
		{"/a/b.json", []string{"json"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
		{"/tmp/a", "/tmp/ab", false},
	}
	for _, tt := range tests {
		got := inDir(tt.dir, tt.path)
		if got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ignore.xyz"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	w := newTestWatcher(t, []string{dir}, []string{".txt"}, sink)
	w.SyncExistingFiles()

	imported, _ := sink.snapshot()
	if len(imported) != 1 || !strings.HasSuffix(imported[0], "a.txt") {
		t.Errorf("expected one imported file a.txt, got %v", imported)
	}
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	newTestWatcher(t, []string{root}, []string{".txt"}, &recordingSink{})
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestWatcher_NewDirectoryIsImported(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	newTestWatcher(t, []string{dir}, []string{".txt", ".md"}, sink)

	// build the folder elsewhere and move it in, like a copy from a file manager
	staging := filepath.Join(t.TempDir(), "new-folder")
	nested := filepath.Join(staging, "level1")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	for path, body := range map[string]string{
		filepath.Join(staging, "doc1.txt"):   "hello",
		filepath.Join(staging, "doc2.md"):    "world",
		filepath.Join(staging, "ignore.xyz"): "skip",
		filepath.Join(nested, "deep.txt"):    "deep",
	} {
		if err := os.WriteFile(path, []byte(body), 0600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Rename(staging, filepath.Join(dir, "new-folder")); err != nil {
		t.Fatal(err)
	}

	ok := waitFor(t, func() bool {
		imported, _ := sink.snapshot()
		return hasSuffix(imported, "doc1.txt") && hasSuffix(imported, "doc2.md") && hasSuffix(imported, "deep.txt")
	})
	imported, _ := sink.snapshot()
	if !ok {
		t.Errorf("expected doc1.txt, doc2.md and deep.txt, got %v", imported)
	}
	if hasSuffix(imported, "ignore.xyz") {
		t.Errorf("ignore.xyz should not be imported")
	}
}
