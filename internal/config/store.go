// Package config persists configuration domains as durable records.
//
// Each domain (device settings, Wi-Fi credentials, ...) lives in its own
// record at a fixed path and is always replaced wholesale.
package config

// Store is the durable save/load contract for one configuration domain.
type Store[C any] interface {
	// Save replaces the persisted record with v. Readers never observe a
	// partially written record.
	Save(v C) error

	// Load returns the persisted value. ok is false when nothing has been
	// saved yet or when the record does not decode; neither case is an error.
	Load() (v C, ok bool, err error)

	// Path returns the location of the record.
	Path() string
}
