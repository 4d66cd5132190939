package fs

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/faredit/faredit/pkg/fserr"
	"github.com/faredit/faredit/pkg/models"
)

// fakeStorage scripts the local storage primitives so metadata failures can
// be exercised deterministically.
type fakeStorage struct {
	dirs    map[string][]string
	stats   map[string]StatInfo
	statErr map[string]error
	files   map[string]string
	listErr map[string]error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		dirs:    make(map[string][]string),
		stats:   make(map[string]StatInfo),
		statErr: make(map[string]error),
		files:   make(map[string]string),
		listErr: make(map[string]error),
	}
}

func (f *fakeStorage) List(path string) ([]string, error) {
	if err := f.listErr[path]; err != nil {
		return nil, err
	}
	names, ok := f.dirs[path]
	if !ok {
		return nil, errors.New("no such directory")
	}
	return names, nil
}

func (f *fakeStorage) Stat(path string) (StatInfo, error) {
	if err := f.statErr[path]; err != nil {
		return StatInfo{}, err
	}
	return f.stats[path], nil
}

func (f *fakeStorage) ReadText(path string) (string, error) {
	content, ok := f.files[path]
	if !ok {
		return "", errors.New("no such file")
	}
	return content, nil
}

func (f *fakeStorage) WriteText(path string, content string) error {
	f.files[path] = content
	return nil
}

func (f *fakeStorage) addDir(path string, names ...string) {
	f.dirs[path] = names
	f.stats[path] = StatInfo{Exists: true, IsDir: true}
}

func (f *fakeStorage) addFile(path string, size int64) {
	f.stats[path] = StatInfo{Exists: true, Size: size, ModTime: time.Unix(1700000000, 0)}
}

func TestLocalListDir_Ordering(t *testing.T) {
	st := newFakeStorage()
	st.addDir("/work", "b.txt", "zeta", "B.txt", "Alpha", "a.txt")
	st.stats["/work/zeta"] = StatInfo{Exists: true, IsDir: true}
	st.stats["/work/Alpha"] = StatInfo{Exists: true, IsDir: true}
	st.addFile("/work/b.txt", 10)
	st.addFile("/work/B.txt", 20)
	st.addFile("/work/a.txt", 30)

	l := NewLocalFS(st)
	entries, err := l.ListDir(context.Background(), "/work")
	if err != nil {
		t.Fatalf("ListDir() error = %v", err)
	}

	// Directories first, then files; each group case-sensitive lexicographic.
	want := []string{"Alpha", "zeta", "B.txt", "a.txt", "b.txt"}
	if len(entries) != len(want) {
		t.Fatalf("ListDir() returned %d entries, want %d", len(entries), len(want))
	}
	for i, name := range want {
		if entries[i].Name != name {
			t.Fatalf("entries[%d].Name = %q, want %q (full order %v)", i, entries[i].Name, name, entryNames(entries))
		}
	}
	if !entries[0].IsDir || !entries[1].IsDir {
		t.Fatalf("expected the first two entries to be directories")
	}
	for _, e := range entries[2:] {
		if !e.IsFile {
			t.Fatalf("entry %q should be a file", e.Name)
		}
	}
}

func TestLocalListDir_StatFailureKeepsEntry(t *testing.T) {
	st := newFakeStorage()
	st.addDir("/work", "ok.txt", "broken.txt")
	st.addFile("/work/ok.txt", 5)
	st.statErr["/work/broken.txt"] = errors.New("permission denied")

	l := NewLocalFS(st)
	entries, err := l.ListDir(context.Background(), "/work")
	if err != nil {
		t.Fatalf("ListDir() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ListDir() returned %d entries, want 2 (listing must stay complete)", len(entries))
	}

	var broken *models.Entry
	for i := range entries {
		if entries[i].Name == "broken.txt" {
			broken = &entries[i]
		}
	}
	if broken == nil {
		t.Fatalf("entry with failed stat was dropped: %v", entryNames(entries))
	}
	if !broken.IsFile || broken.IsDir {
		t.Fatalf("failed-stat entry classified as %+v, want file", broken)
	}
	if broken.Size >= 0 {
		t.Fatalf("failed-stat entry Size = %d, want unknown (negative)", broken.Size)
	}
}

func TestLocalListDir_MissingPath(t *testing.T) {
	l := NewLocalFS(newFakeStorage())
	_, err := l.ListDir(context.Background(), "/nowhere")
	if !errors.Is(err, fserr.ErrIO) {
		t.Fatalf("ListDir(missing) error = %v, want ErrIO", err)
	}
}

func TestLocalChangeDir(t *testing.T) {
	st := newFakeStorage()
	st.addDir("/work")
	st.addFile("/work/notes.txt", 1)

	l := NewLocalFS(st)
	start := l.CurrentPath(context.Background())

	if err := l.ChangeDir(context.Background(), "/missing"); !errors.Is(err, fserr.ErrNotFound) {
		t.Fatalf("ChangeDir(missing) error = %v, want ErrNotFound", err)
	}
	if got := l.CurrentPath(context.Background()); got != start {
		t.Fatalf("failed ChangeDir mutated current path to %q", got)
	}

	if err := l.ChangeDir(context.Background(), "/work/notes.txt"); !errors.Is(err, fserr.ErrNotADirectory) {
		t.Fatalf("ChangeDir(file) error = %v, want ErrNotADirectory", err)
	}

	if err := l.ChangeDir(context.Background(), "/work"); err != nil {
		t.Fatalf("ChangeDir(/work) error = %v", err)
	}
	if got := l.CurrentPath(context.Background()); got != "/work" {
		t.Fatalf("CurrentPath() = %q after ChangeDir, want /work", got)
	}

	// ListDir with an empty path lists the current directory.
	if _, err := l.ListDir(context.Background(), ""); err != nil {
		t.Fatalf("ListDir(\"\") error = %v", err)
	}
}

func TestLocalReadWrite_RoundTripOnDisk(t *testing.T) {
	dir := t.TempDir()
	l := NewLocalFS(nil)

	path := filepath.ToSlash(filepath.Join(dir, "draft.txt"))
	content := "line one\nline two\n"

	if err := l.WriteFile(context.Background(), path, content); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := l.ReadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got != content {
		t.Fatalf("ReadFile() = %q, want %q", got, content)
	}

	// Overwrite and read back again.
	if err := l.WriteFile(context.Background(), path, "replaced"); err != nil {
		t.Fatalf("WriteFile(overwrite) error = %v", err)
	}
	got, err = l.ReadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got != "replaced" {
		t.Fatalf("ReadFile() after overwrite = %q, want %q", got, "replaced")
	}
}

func TestLocalReadFile_Missing(t *testing.T) {
	l := NewLocalFS(nil)
	_, err := l.ReadFile(context.Background(), filepath.Join(t.TempDir(), "absent.txt"))
	if !errors.Is(err, fserr.ErrIO) {
		t.Fatalf("ReadFile(missing) error = %v, want ErrIO", err)
	}
}

func TestLocalStatus(t *testing.T) {
	l := NewLocalFS(newFakeStorage())
	if !l.Connected() {
		t.Fatalf("Connected() = false, local storage is always connected")
	}
	info := l.ConnectionInfo()
	if !info.Connected || info.Source != models.BackendLocal {
		t.Fatalf("ConnectionInfo() = %+v", info)
	}
	if got := l.CurrentPath(context.Background()); got == "" {
		t.Fatalf("CurrentPath() must never be empty")
	}
}

func entryNames(entries []models.Entry) []string {
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}
