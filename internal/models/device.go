// Package models defines the persisted configuration domains of the device
// and the error type the HTTP API renders.
package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultDeviceName is the name a device carries until the user renames it.
const DefaultDeviceName = "Laser Security"

// MaxDeviceNameLen bounds the device name; it is advertised in an mDNS TXT record.
const MaxDeviceNameLen = 63

// Mode is the provisioning state of the device.
type Mode int

const (
	// ModePair: no usable network, the provisioning access point is up.
	ModePair Mode = iota
	// ModeConnected: the device joined a provisioned network.
	ModeConnected
)

func (m Mode) String() string {
	if m == ModeConnected {
		return "connected"
	}
	return "pair"
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "pair":
		*m = ModePair
	case "connected":
		*m = ModeConnected
	default:
		return fmt.Errorf("models: unknown mode %q", text)
	}
	return nil
}

// DeviceSettings is the device configuration domain.
type DeviceSettings struct {
	ID   uuid.UUID `json:"id" cbor:"id"`
	Name string    `json:"name" cbor:"name"`
	Mode Mode      `json:"mode" cbor:"mode"`
}

// DefaultDeviceSettings returns fresh settings with a new random ID.
func DefaultDeviceSettings() DeviceSettings {
	return DeviceSettings{
		ID:   uuid.New(),
		Name: DefaultDeviceName,
		Mode: ModePair,
	}
}

// ValidateDeviceName checks a user supplied device name.
func ValidateDeviceName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrBadRequest("name must not be empty")
	}
	if len(name) > MaxDeviceNameLen {
		return ErrBadRequest(fmt.Sprintf("name must be at most %d bytes", MaxDeviceNameLen))
	}
	return nil
}
