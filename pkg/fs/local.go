package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faredit/faredit/pkg/fserr"
	"github.com/faredit/faredit/pkg/models"
)

// StatInfo is the metadata the local backend needs about one path.
type StatInfo struct {
	Exists  bool
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Storage is the on-device primitive layer the local backend delegates to.
// The default implementation wraps the os package; tests substitute fakes to
// exercise partial metadata failure.
type Storage interface {
	List(path string) ([]string, error)
	Stat(path string) (StatInfo, error)
	ReadText(path string) (string, error)
	WriteText(path string, content string) error
}

// osStorage implements Storage against the host filesystem.
//
// NOTE: This is NOT sandboxed.
type osStorage struct{}

func (osStorage) List(path string) ([]string, error) {
	des, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(des))
	for _, de := range des {
		names = append(names, de.Name())
	}
	return names, nil
}

func (osStorage) Stat(path string) (StatInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return StatInfo{}, nil
		}
		return StatInfo{}, err
	}
	return StatInfo{Exists: true, IsDir: fi.IsDir(), Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

func (osStorage) ReadText(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (osStorage) WriteText(path string, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

// LocalFS implements FileSystem for on-device storage. Operations never touch
// the network; the backend is always "connected".
type LocalFS struct {
	storage Storage

	mu          sync.Mutex
	currentPath string
}

// NewLocalFS builds a local backend rooted at the user's home directory
// (falling back to "/"). A nil storage selects the os-backed default.
func NewLocalFS(storage Storage) *LocalFS {
	if storage == nil {
		storage = osStorage{}
	}
	return &LocalFS{storage: storage, currentPath: defaultLocalPath()}
}

func defaultLocalPath() string {
	h, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(h) == "" {
		return "/"
	}
	return filepath.ToSlash(h)
}

func (l *LocalFS) CurrentPath(ctx context.Context) string {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.currentPath == "" {
		return "/"
	}
	return l.currentPath
}

// ListDir tolerates per-entry stat failures: an entry whose metadata cannot
// be read is still included, classified as a file of unknown size, so
// listings stay complete under partial failure.
func (l *LocalFS) ListDir(ctx context.Context, p string) ([]models.Entry, error) {
	if strings.TrimSpace(p) == "" {
		p = l.CurrentPath(ctx)
	}

	names, err := l.storage.List(p)
	if err != nil {
		return nil, fmt.Errorf("list directory %s: %s: %w", p, err, fserr.ErrIO)
	}

	entries := make([]models.Entry, 0, len(names))
	for _, name := range names {
		if name == "." || name == ".." {
			continue
		}
		child := joinPath(p, name)
		info, err := l.storage.Stat(child)
		if err != nil || !info.Exists {
			entries = append(entries, models.Entry{Name: name, Path: child, IsFile: true, Size: -1})
			continue
		}
		entries = append(entries, models.Entry{
			Name:    name,
			Path:    child,
			IsFile:  !info.IsDir,
			IsDir:   info.IsDir,
			Size:    info.Size,
			ModTime: info.ModTime,
		})
	}

	SortEntries(entries)
	return entries, nil
}

// ChangeDir validates the target before mutating any state.
func (l *LocalFS) ChangeDir(ctx context.Context, p string) error {
	info, err := l.storage.Stat(p)
	if err != nil {
		return fmt.Errorf("change directory %s: %s: %w", p, err, fserr.ErrIO)
	}
	if !info.Exists {
		return fmt.Errorf("change directory %s: %w", p, fserr.ErrNotFound)
	}
	if !info.IsDir {
		return fmt.Errorf("change directory %s: %w", p, fserr.ErrNotADirectory)
	}
	if _, err := l.ListDir(ctx, p); err != nil {
		return err
	}

	l.mu.Lock()
	l.currentPath = filepath.ToSlash(p)
	l.mu.Unlock()
	return nil
}

func (l *LocalFS) ReadFile(ctx context.Context, p string) (string, error) {
	_ = ctx
	content, err := l.storage.ReadText(p)
	if err != nil {
		return "", fmt.Errorf("read file %s: %s: %w", p, err, fserr.ErrIO)
	}
	return content, nil
}

func (l *LocalFS) WriteFile(ctx context.Context, p string, content string) error {
	_ = ctx
	if err := l.storage.WriteText(p, content); err != nil {
		return fmt.Errorf("write file %s: %s: %w", p, err, fserr.ErrIO)
	}
	return nil
}

// Connected always reports true: local storage has no connection concept.
func (l *LocalFS) Connected() bool { return true }

func (l *LocalFS) ConnectionInfo() models.ConnectionInfo {
	return models.ConnectionInfo{Connected: true, Source: models.BackendLocal}
}

var _ FileSystem = (*LocalFS)(nil)

// joinPath joins a directory and a base name with a single '/' separator.
func joinPath(dir string, base string) string {
	dir = filepath.ToSlash(dir)
	if dir == "" {
		return "/" + strings.TrimPrefix(base, "/")
	}
	if strings.HasSuffix(dir, "/") {
		return dir + strings.TrimPrefix(base, "/")
	}
	return dir + "/" + strings.TrimPrefix(base, "/")
}
