// Package localstore manages each leaf's private file directory,
// "Leaves/Leaf <id>/" relative to the process's working directory.
package localstore

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/abeynet/filemesh/internal/protocol"
)

// Store is the file-backed content a single leaf owns. No sharing occurs
// between leaves; each gets its own directory.
type Store struct {
	dir string
}

// Open creates (if needed) and returns the storage directory for leafID.
func Open(leafID int) (*Store, error) {
	dir := filepath.Join("Leaves", leafDirName(leafID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func leafDirName(leafID int) string {
	return "Leaf " + strconv.Itoa(leafID)
}

// Write saves data under name, overwriting any existing file.
func (s *Store) Write(name string, data []byte) error {
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return protocol.NewReadError(err.Error())
	}
	return nil
}

// Read returns the bytes stored under name, or protocol.NotFound /
// protocol.ReadError.
func (s *Store) Read(name string) ([]byte, error) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, protocol.NewNotFound(name)
		}
		return nil, protocol.NewReadError(err.Error())
	}
	return data, nil
}

// Has reports whether name exists locally.
func (s *Store) Has(name string) bool {
	_, err := os.Stat(filepath.Join(s.dir, name))
	return err == nil
}

// Dir returns the leaf's storage directory.
func (s *Store) Dir() string { return s.dir }
