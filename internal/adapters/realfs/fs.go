// Package realfs implements ports.FileSystem with the os package.
package realfs

import (
	"io/fs"
	"os"
)

// FS implements ports.FileSystem.
type FS struct{}

// New returns a real FS.
func New() *FS {
	return &FS{}
}

func (f *FS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (f *FS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (f *FS) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (f *FS) UserHomeDir() (string, error) {
	return os.UserHomeDir()
}

func (f *FS) Getenv(key string) string {
	return os.Getenv(key)
}
