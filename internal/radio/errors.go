package radio

import (
	"errors"
	"fmt"
)

var (
	// ErrNotStarted is returned by operations that need a running radio.
	ErrNotStarted = errors.New("radio: not started")

	// ErrNoClientConfig is returned when the station side is not configured.
	ErrNoClientConfig = errors.New("radio: no client configuration")

	// ErrNotConnected is returned when the station is not associated.
	ErrNotConnected = errors.New("radio: not connected")
)

// DriverError is returned when the radio hardware or its control API fails.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string { return fmt.Sprintf("radio: %s: %v", e.Op, e.Err) }

func (e *DriverError) Unwrap() error { return e.Err }

func driverErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DriverError{Op: op, Err: err}
}
