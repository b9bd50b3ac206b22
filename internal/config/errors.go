package config

import "fmt"

// StorageError is returned when a record cannot be encoded, written or read.
// A record that fails to decode is not a StorageError; Load reports it as absent.
type StorageError struct {
	Op   string // "encode", "write" or "read"
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("config: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
