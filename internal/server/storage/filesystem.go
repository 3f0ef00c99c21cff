package storage

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Store defines the interface for file storage backends.
// This allows swapping the local directory for S3 or similar later.
type Store interface {
	Save(name string, data io.Reader) (int64, error)
	Path(name string) string
	Stat(name string) (fs.FileInfo, error)
	Delete(name string) error
	List() ([]fs.DirEntry, error)
	EnsureDir() error
}

// FileSystemStore keeps every file in a single flat directory. Filenames are
// the only index: originals as staged, outputs under a "compressed-" prefix.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the storage directory if it doesn't exist.
func (s *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(s.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", s.basePath, err)
	}
	return nil
}

// Save writes data from a reader to the named file.
// Returns the number of bytes written.
func (s *FileSystemStore) Save(name string, data io.Reader) (int64, error) {
	filePath := s.Path(name)

	file, err := os.Create(filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file %s: %w", filePath, err)
	}
	defer file.Close()

	n, err := io.Copy(file, data)
	if err != nil {
		// Clean up partial file on error
		os.Remove(filePath)
		return 0, fmt.Errorf("failed to write file: %w", err)
	}

	return n, nil
}

// Path returns the path a name maps to inside the storage directory. It does
// not check existence; callers wanting that use Stat.
func (s *FileSystemStore) Path(name string) string {
	return filepath.Join(s.basePath, name)
}

// Stat returns file info for a stored name, or an error if it does not exist.
func (s *FileSystemStore) Stat(name string) (fs.FileInfo, error) {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s", name)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return info, nil
}

// Delete removes the named file. Deleting a missing file is not an error.
func (s *FileSystemStore) Delete(name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file %s: %w", name, err)
	}
	return nil
}

// List returns the storage directory entries.
func (s *FileSystemStore) List() ([]fs.DirEntry, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}
	return entries, nil
}

// ValidName reports whether name is safe to resolve against the storage
// directory: a bare filename with no traversal potential. Joining the base
// path with anything that passes cannot escape the directory.
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	return true
}
