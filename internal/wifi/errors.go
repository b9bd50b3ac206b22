package wifi

import "fmt"

// ValidationError is returned when credential text exceeds what the radio accepts.
type ValidationError struct {
	Field string
	Limit int
	Len   int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("wifi: %s is %d bytes, limit is %d", e.Field, e.Len, e.Limit)
}

func validateCredential(ssid, psk string) error {
	if len(ssid) > MaxSSIDLen {
		return &ValidationError{Field: "ssid", Limit: MaxSSIDLen, Len: len(ssid)}
	}
	if len(psk) > MaxPSKLen {
		return &ValidationError{Field: "psk", Limit: MaxPSKLen, Len: len(psk)}
	}
	return nil
}
