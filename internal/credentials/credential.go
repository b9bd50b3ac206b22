// Package credentials keeps the set of Wi-Fi networks the device has been
// provisioned for.
package credentials

import (
	"bytes"
	"fmt"
	"net"
	"sort"
)

// BSSID is the 6-byte hardware address of an access point.
type BSSID [6]byte

// ParseBSSID parses "aa:bb:cc:dd:ee:ff" (or any 48-bit form net.ParseMAC accepts).
func ParseBSSID(s string) (BSSID, error) {
	var b BSSID
	hw, err := net.ParseMAC(s)
	if err != nil {
		return b, err
	}
	if len(hw) != len(b) {
		return b, fmt.Errorf("credentials: bssid %q is not 6 bytes", s)
	}
	copy(b[:], hw)
	return b, nil
}

func (b BSSID) String() string {
	return net.HardwareAddr(b[:]).String()
}

// MarshalText renders the BSSID in colon notation for JSON.
func (b BSSID) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText accepts colon notation.
func (b *BSSID) UnmarshalText(text []byte) error {
	parsed, err := ParseBSSID(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Credential is one provisioned network.
type Credential struct {
	SSID  string `cbor:"ssid" json:"ssid"`
	PSK   string `cbor:"psk" json:"psk"`
	BSSID BSSID  `cbor:"bssid" json:"bssid"`
}

// Key identifies a credential inside a Set. The PSK is deliberately not part
// of it: saving the same network again only replaces the secret.
type Key struct {
	SSID  string
	BSSID BSSID
}

// Key returns the set identity of c.
func (c Credential) Key() Key {
	return Key{SSID: c.SSID, BSSID: c.BSSID}
}

// Set is a collection of credentials with no two sharing a Key.
// It is a value type: every mutator returns a new Set and leaves the receiver untouched.
type Set struct {
	Credentials []Credential `cbor:"credentials" json:"credentials"`
}

// NewSet builds a Set from creds; later duplicates replace earlier ones.
func NewSet(creds ...Credential) Set {
	var s Set
	for _, c := range creds {
		s = s.Replace(c)
	}
	return s
}

// Len returns the number of credentials.
func (s Set) Len() int { return len(s.Credentials) }

// Find returns the credential stored under k.
func (s Set) Find(k Key) (Credential, bool) {
	for _, c := range s.Credentials {
		if c.Key() == k {
			return c, true
		}
	}
	return Credential{}, false
}

// Replace inserts c, overwriting any credential with the same Key.
func (s Set) Replace(c Credential) Set {
	out := Set{Credentials: make([]Credential, 0, len(s.Credentials)+1)}
	replaced := false
	for _, existing := range s.Credentials {
		if existing.Key() == c.Key() {
			out.Credentials = append(out.Credentials, c)
			replaced = true
			continue
		}
		out.Credentials = append(out.Credentials, existing)
	}
	if !replaced {
		out.Credentials = append(out.Credentials, c)
	}
	return out
}

// Retain keeps only the credentials for which keep returns true.
func (s Set) Retain(keep func(Credential) bool) Set {
	out := Set{Credentials: make([]Credential, 0, len(s.Credentials))}
	for _, c := range s.Credentials {
		if keep(c) {
			out.Credentials = append(out.Credentials, c)
		}
	}
	return out
}

// Sorted returns a copy of the credentials ordered by SSID, then BSSID.
func (s Set) Sorted() []Credential {
	out := make([]Credential, len(s.Credentials))
	copy(out, s.Credentials)
	sort.Slice(out, func(i, j int) bool {
		if out[i].SSID != out[j].SSID {
			return out[i].SSID < out[j].SSID
		}
		return bytes.Compare(out[i].BSSID[:], out[j].BSSID[:]) < 0
	})
	return out
}

// Normalize drops duplicate keys that may have been written by hand or by an
// older build, keeping the last occurrence.
func (s Set) Normalize() Set {
	return NewSet(s.Credentials...)
}
