//go:build !linux

package hardware

import "errors"

// GPIOLED is unavailable off Linux.
type GPIOLED struct{}

func NewGPIOLED(pin string, activeLow bool) (*GPIOLED, error) {
	return nil, errors.New("gpio: only supported on linux")
}

func (l *GPIOLED) Set(on bool) error { return nil }

func (l *GPIOLED) Close() error { return nil }
