// Package radio defines the Wi-Fi radio capability the connectivity
// orchestrator drives, together with a mock and a NetworkManager backed driver.
package radio

import (
	"context"
	"net"
	"net/netip"
)

// HWAddr is a 6-byte hardware address as reported by the radio.
type HWAddr [6]byte

func (a HWAddr) String() string { return net.HardwareAddr(a[:]).String() }

// MarshalText renders the address in colon notation.
func (a HWAddr) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// AccessPointInfo is one scan result, or the access point the client is associated with.
type AccessPointInfo struct {
	SSID           string     `json:"ssid"`
	BSSID          HWAddr     `json:"bssid"`
	SignalStrength int8       `json:"signal_strength"` // dBm
	Channel        uint8      `json:"channel"`
	Auth           AuthMethod `json:"auth_method"`
}

// Interface selects the station or the access point side of the radio.
type Interface int

const (
	InterfaceSTA Interface = iota
	InterfaceAP
)

func (i Interface) String() string {
	if i == InterfaceAP {
		return "ap"
	}
	return "sta"
}

// IPInfo is the IPv4 configuration of one interface.
type IPInfo struct {
	Address netip.Prefix `json:"address"`
	Gateway netip.Addr   `json:"gateway"`
	DNS     []netip.Addr `json:"dns,omitempty"`
}

// Driver is the radio hardware abstraction. Implementations are not required
// to be safe for concurrent use; the orchestrator owns the only handle.
type Driver interface {
	// Start powers the radio up and applies the current configuration.
	Start(ctx context.Context) error

	// Stop powers the radio down. The configuration is kept.
	Stop(ctx context.Context) error

	// IsStarted reports the run state, which is independent of the configuration.
	IsStarted() (bool, error)

	// Configuration returns the installed configuration.
	Configuration() (Configuration, error)

	// SetConfiguration installs cfg as the sole configuration.
	SetConfiguration(cfg Configuration) error

	// Connect associates the station side with the configured network.
	Connect(ctx context.Context) error

	// Disconnect drops the station association.
	Disconnect(ctx context.Context) error

	// IsConnected reports whether the station side is associated.
	IsConnected() (bool, error)

	// Scan lists the access points in range. The station side must be configured.
	Scan(ctx context.Context) ([]AccessPointInfo, error)

	// WaitNetifUp blocks until the station interface has an address.
	WaitNetifUp(ctx context.Context) error

	// APInfo describes the access point the station is associated with.
	APInfo() (AccessPointInfo, error)

	// IPInfo returns the address configuration of one side.
	IPInfo(iface Interface) (IPInfo, error)
}
