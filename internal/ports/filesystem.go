package ports

import "io/fs"

// FileSystem is the local file and environment access of the transport and
// the configuration layer.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm fs.FileMode) error
	MkdirAll(path string, perm fs.FileMode) error

	// UserHomeDir is used to expand ~ in configured paths.
	UserHomeDir() (string, error)
	Getenv(key string) string
}
