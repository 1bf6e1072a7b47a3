package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"main/internal/errors"
)

// FileStore keeps one JSON blob per key under a data directory. Writes go to
// a temp file first and are renamed into place so a crash mid-write never
// leaves a truncated blob.
type FileStore struct {
	dir string
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("store dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create store dir")
	}
	return &FileStore{dir: dir}, nil
}

// Load implements KV.
func (s *FileStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	blob, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "load %s", key)
	}
	return blob, true, nil
}

// Save implements KV.
func (s *FileStore) Save(_ context.Context, key string, blob []byte) error {
	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", key)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "rename %s", key)
	}
	return nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, sanitize(key)+".json")
}

// sanitize maps a store key onto a flat filename.
func sanitize(key string) string {
	r := strings.NewReplacer("#", "", ":", "_", "/", "_", "\\", "_")
	return r.Replace(key)
}
