package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalFileStorage is an Engine implementation that stores payloads on the
// local filesystem under a content-addressed layout rooted at dataDir.
// Objects are addressed by their full SHA-256 hexadecimal hash, with the
// first two characters used as a subdirectory prefix.
type LocalFileStorage struct {
	dataDir string
}

// NewLocalFileStorage creates a new LocalFileStorage rooted at dataDir.
func NewLocalFileStorage(dataDir string) *LocalFileStorage {
	return &LocalFileStorage{dataDir: dataDir}
}

func (s *LocalFileStorage) objectPath(hashHex string) (string, error) {
	if len(hashHex) < 2 {
		return "", fmt.Errorf("invalid hash length: %d", len(hashHex))
	}
	subdir := hashHex[:2]
	return filepath.Join(s.dataDir, subdir, hashHex), nil
}

func (s *LocalFileStorage) PutObject(ctx context.Context, hashHex string, data []byte) error {
	objPath, err := s.objectPath(hashHex)
	if err != nil {
		return err
	}

	// Content-addressed payloads are immutable; if the path already holds a
	// regular file it must contain the same bytes, so leave it alone.
	if info, err := os.Stat(objPath); err == nil && info.Mode().IsRegular() {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return err
	}

	// Write to a temp file first and rename into place so a crashed write
	// never leaves a truncated payload at the final path.
	tmp, err := os.CreateTemp(filepath.Dir(objPath), "."+hashHex+".*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), objPath)
}

func (s *LocalFileStorage) GetObject(ctx context.Context, hashHex string) ([]byte, error) {
	objPath, err := s.objectPath(hashHex)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(objPath)
}

func (s *LocalFileStorage) DeleteObject(ctx context.Context, hashHex string) error {
	objPath, err := s.objectPath(hashHex)
	if err != nil {
		return err
	}

	if err := os.Remove(objPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
