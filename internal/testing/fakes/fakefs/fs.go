// Package fakefs provides an in-memory ports.FileSystem for tests.
package fakefs

import (
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"github.com/acolita/devremote/internal/ports"
)

// FS is an in-memory filesystem with its own environment.
type FS struct {
	mu      sync.RWMutex
	files   map[string]fakeFile
	dirs    map[string]bool
	homeDir string
	env     map[string]string
}

type fakeFile struct {
	data []byte
	mode fs.FileMode
}

// New creates an empty filesystem with home directory /home/test.
func New() *FS {
	return &FS{
		files:   make(map[string]fakeFile),
		dirs:    map[string]bool{"/": true},
		homeDir: "/home/test",
		env:     make(map[string]string),
	}
}

// ReadFile returns a copy of the named file's contents.
func (f *FS) ReadFile(name string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	file, ok := f.files[filepath.Clean(name)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), file.data...), nil
}

// WriteFile stores a copy of data. The parent directory must exist.
func (f *FS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	name = filepath.Clean(name)
	if !f.dirs[filepath.Dir(name)] {
		return &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	f.files[name] = fakeFile{data: append([]byte(nil), data...), mode: perm}
	return nil
}

// MkdirAll records path and its parents as directories.
func (f *FS) MkdirAll(path string, perm fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mkdirAllLocked(path)
	return nil
}

func (f *FS) mkdirAllLocked(path string) {
	for p := filepath.Clean(path); !f.dirs[p]; p = filepath.Dir(p) {
		f.dirs[p] = true
	}
}

// UserHomeDir returns the configured home directory.
func (f *FS) UserHomeDir() (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.homeDir, nil
}

// Getenv returns a variable set with SetEnv.
func (f *FS) Getenv(key string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.env[key]
}

// --- Test helpers ---

// AddFile adds a file, creating its parent directories.
func (f *FS) AddFile(name string, data []byte, mode fs.FileMode) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name = filepath.Clean(name)
	f.mkdirAllLocked(filepath.Dir(name))
	f.files[name] = fakeFile{data: append([]byte(nil), data...), mode: mode}
}

// Mode returns the permissions a file was written with.
func (f *FS) Mode(name string) (fs.FileMode, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	file, ok := f.files[filepath.Clean(name)]
	return file.mode, ok
}

// IsDir reports whether path was created as a directory.
func (f *FS) IsDir(path string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dirs[filepath.Clean(path)]
}

// SetHomeDir sets the directory returned by UserHomeDir.
func (f *FS) SetHomeDir(dir string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.homeDir = dir
}

// SetEnv sets an environment variable.
func (f *FS) SetEnv(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.env[key] = value
}

// Files returns every file path in sorted order.
func (f *FS) Files() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	paths := make([]string, 0, len(f.files))
	for path := range f.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

var _ ports.FileSystem = (*FS)(nil)
