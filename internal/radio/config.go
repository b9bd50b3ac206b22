package radio

import (
	"fmt"
	"strings"
)

// AuthMethod is the link-layer security of a network.
type AuthMethod int

const (
	AuthNone AuthMethod = iota
	AuthWEP
	AuthWPAPersonal
	AuthWPA2Personal
	AuthWPAWPA2Personal
	AuthWPA3Personal
	AuthWPA2Enterprise
)

var authNames = map[AuthMethod]string{
	AuthNone:            "none",
	AuthWEP:             "wep",
	AuthWPAPersonal:     "wpa-personal",
	AuthWPA2Personal:    "wpa2-personal",
	AuthWPAWPA2Personal: "wpa-wpa2-personal",
	AuthWPA3Personal:    "wpa3-personal",
	AuthWPA2Enterprise:  "wpa2-enterprise",
}

func (a AuthMethod) String() string {
	if s, ok := authNames[a]; ok {
		return s
	}
	return fmt.Sprintf("auth(%d)", int(a))
}

// MarshalText renders the auth method by name.
func (a AuthMethod) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText parses a name produced by MarshalText.
func (a *AuthMethod) UnmarshalText(text []byte) error {
	for k, v := range authNames {
		if strings.EqualFold(v, string(text)) {
			*a = k
			return nil
		}
	}
	return fmt.Errorf("radio: unknown auth method %q", text)
}

// AuthForPSK picks the auth method for a pre-shared key: an empty key means
// an open network, anything else WPA/WPA2-Personal.
func AuthForPSK(psk string) AuthMethod {
	if psk == "" {
		return AuthNone
	}
	return AuthWPAWPA2Personal
}

// ClientConfig is the station side of a configuration.
type ClientConfig struct {
	SSID     string
	Password string
	Auth     AuthMethod
	BSSID    *HWAddr
	Channel  *uint8
}

// APConfig is the access point side of a configuration.
type APConfig struct {
	SSID             string
	Password         string
	Auth             AuthMethod
	Hidden           bool
	MaxConnections   uint16
	Channel          uint8
	SecondaryChannel *uint8
}

// Mode names the shape of a Configuration.
type Mode int

const (
	ModeDisabled Mode = iota
	ModeClient
	ModeAccessPoint
	ModeMixed
)

func (m Mode) String() string {
	switch m {
	case ModeClient:
		return "client"
	case ModeAccessPoint:
		return "access_point"
	case ModeMixed:
		return "mixed"
	default:
		return "disabled"
	}
}

// MarshalText renders the mode by name.
func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// Configuration is the sum of Disabled, Client, AccessPoint and Mixed:
// whichever sides are non-nil are active.
type Configuration struct {
	Client      *ClientConfig
	AccessPoint *APConfig
}

// ClientOnly returns a Client configuration.
func ClientOnly(c ClientConfig) Configuration { return Configuration{Client: &c} }

// AccessPointOnly returns an AccessPoint configuration.
func AccessPointOnly(ap APConfig) Configuration { return Configuration{AccessPoint: &ap} }

// Mixed returns a configuration with both sides active.
func Mixed(c ClientConfig, ap APConfig) Configuration {
	return Configuration{Client: &c, AccessPoint: &ap}
}

// Mode reports which variant c is.
func (c Configuration) Mode() Mode {
	switch {
	case c.Client != nil && c.AccessPoint != nil:
		return ModeMixed
	case c.Client != nil:
		return ModeClient
	case c.AccessPoint != nil:
		return ModeAccessPoint
	default:
		return ModeDisabled
	}
}

// MergeClient replaces the client side and keeps the access point side.
func (c Configuration) MergeClient(cc ClientConfig) Configuration {
	return Configuration{Client: &cc, AccessPoint: c.AccessPoint}
}

// MergeAccessPoint replaces the access point side and keeps the client side.
func (c Configuration) MergeAccessPoint(ap APConfig) Configuration {
	return Configuration{Client: c.Client, AccessPoint: &ap}
}

// STAEnabled reports whether the client side is active.
func (c Configuration) STAEnabled() bool { return c.Client != nil }

// APEnabled reports whether the access point side is active.
func (c Configuration) APEnabled() bool { return c.AccessPoint != nil }

// Clone returns a deep copy of c.
func (c Configuration) Clone() Configuration {
	var out Configuration
	if c.Client != nil {
		cc := *c.Client
		if cc.BSSID != nil {
			b := *cc.BSSID
			cc.BSSID = &b
		}
		if cc.Channel != nil {
			ch := *cc.Channel
			cc.Channel = &ch
		}
		out.Client = &cc
	}
	if c.AccessPoint != nil {
		ap := *c.AccessPoint
		if ap.SecondaryChannel != nil {
			ch := *ap.SecondaryChannel
			ap.SecondaryChannel = &ch
		}
		out.AccessPoint = &ap
	}
	return out
}
