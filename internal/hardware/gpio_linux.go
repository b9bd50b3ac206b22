//go:build linux

package hardware

import (
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIOLED is an LED on a GPIO pin, addressed by its BCM name (e.g. "GPIO17").
type GPIOLED struct {
	pin       gpio.PinIO
	activeLow bool
}

// NewGPIOLED initializes the GPIO host driver and claims pin as an output,
// starting with the LED off.
func NewGPIOLED(pin string, activeLow bool) (*GPIOLED, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio: host init failed: %w", err)
	}
	p := gpioreg.ByName(pin)
	if p == nil {
		return nil, fmt.Errorf("gpio: failed to open %s", pin)
	}
	led := &GPIOLED{pin: p, activeLow: activeLow}
	if err := led.Set(false); err != nil {
		return nil, err
	}
	slog.Debug("gpio: status led ready", "pin", pin, "active_low", activeLow)
	return led, nil
}

func (l *GPIOLED) Set(on bool) error {
	level := gpio.Level(on != l.activeLow)
	if err := l.pin.Out(level); err != nil {
		return fmt.Errorf("gpio: drive %s: %w", l.pin.Name(), err)
	}
	return nil
}

// Close turns the LED off and releases the pin.
func (l *GPIOLED) Close() error {
	if err := l.Set(false); err != nil {
		return err
	}
	return l.pin.Halt()
}
