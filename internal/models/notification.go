package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	MaxRecipients    = 5
	MaxMessageLen    = 160
	DefaultCooldown  = 5 * time.Minute
	DefaultSMSBody   = "Laser tripwire triggered at {time}"
	minCooldownValue = 10 * time.Second
)

// Duration is a time.Duration that reads and writes as "5m0s" in JSON.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("models: invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// NotificationSettings configures the alert sent when the tripwire fires.
type NotificationSettings struct {
	Enabled    bool     `json:"enabled" cbor:"enabled"`
	Recipients []string `json:"recipients" cbor:"recipients"`
	Message    string   `json:"message" cbor:"message"`
	Cooldown   Duration `json:"cooldown" cbor:"cooldown"`
}

// DefaultNotificationSettings disables alerts until recipients are set.
func DefaultNotificationSettings() NotificationSettings {
	return NotificationSettings{
		Enabled:    false,
		Recipients: []string{},
		Message:    DefaultSMSBody,
		Cooldown:   Duration(DefaultCooldown),
	}
}

// Validate checks the settings before they are stored.
func (n NotificationSettings) Validate() error {
	if len(n.Recipients) > MaxRecipients {
		return &AppError{Code: "BAD_REQUEST", Field: "recipients",
			Message: fmt.Sprintf("at most %d recipients", MaxRecipients), Status: 400}
	}
	for _, r := range n.Recipients {
		if !validPhone(r) {
			return &AppError{Code: "BAD_REQUEST", Field: "recipients",
				Message: fmt.Sprintf("invalid phone number %q", r), Status: 400}
		}
	}
	if n.Enabled && len(n.Recipients) == 0 {
		return &AppError{Code: "BAD_REQUEST", Field: "recipients",
			Message: "enabled notifications need a recipient", Status: 400}
	}
	if len(n.Message) > MaxMessageLen {
		return &AppError{Code: "BAD_REQUEST", Field: "message",
			Message: fmt.Sprintf("message must be at most %d bytes", MaxMessageLen), Status: 400}
	}
	if time.Duration(n.Cooldown) < minCooldownValue {
		return &AppError{Code: "BAD_REQUEST", Field: "cooldown",
			Message: fmt.Sprintf("cooldown must be at least %s", minCooldownValue), Status: 400}
	}
	return nil
}

// validPhone accepts E.164-ish numbers: an optional leading + and 7 to 15 digits.
func validPhone(s string) bool {
	s = strings.TrimPrefix(s, "+")
	if len(s) < 7 || len(s) > 15 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
