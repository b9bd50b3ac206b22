package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore keeps one configuration domain in a single file.
// Writes go to a temp file that is renamed over the record, so a crash
// leaves either the old or the new record on disk.
type FileStore[C any] struct {
	path  string
	codec Codec
}

// NewFileStore creates a CBOR file store for the record at path.
func NewFileStore[C any](path string) *FileStore[C] {
	return NewFileStoreWithCodec[C](path, CBOR)
}

// NewFileStoreWithCodec creates a file store using the given codec.
func NewFileStoreWithCodec[C any](path string, codec Codec) *FileStore[C] {
	return &FileStore[C]{path: path, codec: codec}
}

// Path returns the file path used by this store.
func (s *FileStore[C]) Path() string { return s.path }

// Load reads the record from disk. A missing or undecodable record is
// reported as absent.
func (s *FileStore[C]) Load() (C, bool, error) {
	var v C
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return v, false, nil
		}
		return v, false, &StorageError{Op: "read", Path: s.path, Err: err}
	}

	if err := s.codec.Unmarshal(data, &v); err != nil {
		slog.Warn("config: corrupt record, treating as absent", "path", s.path, "err", err)
		var zero C
		return zero, false, nil
	}
	return v, true, nil
}

// Save encodes v and atomically replaces the record.
func (s *FileStore[C]) Save(v C) error {
	data, err := s.codec.Marshal(v)
	if err != nil {
		return &StorageError{Op: "encode", Path: s.path, Err: err}
	}
	if err := s.writeAtomic(data); err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}

func (s *FileStore[C]) writeAtomic(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmpPath := s.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	// Flash-backed filesystems may reorder the rename before the data.
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := syncDir(dir); err != nil {
		slog.Debug("config: directory sync failed", "dir", dir, "err", err)
	}
	return nil
}

// Ensure FileStore implements Store
var _ Store[struct{}] = (*FileStore[struct{}])(nil)
