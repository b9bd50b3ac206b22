package models

import (
	"fmt"
	"time"
)

// TimeOfDay is a wall clock time in minutes after midnight.
type TimeOfDay uint16

const minutesPerDay = 24 * 60

// NewTimeOfDay returns hh:mm.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("models: invalid time of day %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("models: time of day %q out of range", s)
	}
	return NewTimeOfDay(h, m), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute()) }

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(text []byte) error {
	v, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Of returns the time of day of ts in ts's location.
func Of(ts time.Time) TimeOfDay {
	return NewTimeOfDay(ts.Hour(), ts.Minute())
}

// ActivationWindow is the daily period in which the tripwire is armed.
type ActivationWindow struct {
	Enabled bool      `json:"enabled" cbor:"enabled"`
	Start   TimeOfDay `json:"start" cbor:"start"`
	End     TimeOfDay `json:"end" cbor:"end"`
}

// DefaultActivationWindow arms the tripwire around the clock; when enabled
// without changes it covers the night from 18:00 to 06:00.
func DefaultActivationWindow() ActivationWindow {
	return ActivationWindow{
		Enabled: false,
		Start:   NewTimeOfDay(18, 0),
		End:     NewTimeOfDay(6, 0),
	}
}

// Contains reports whether ts falls inside the window. A disabled window
// contains every instant; Start == End covers the whole day. The window may
// wrap past midnight, End is exclusive.
func (w ActivationWindow) Contains(ts time.Time) bool {
	if !w.Enabled || w.Start == w.End {
		return true
	}
	now := Of(ts)
	if w.Start < w.End {
		return now >= w.Start && now < w.End
	}
	return now >= w.Start || now < w.End
}

// Validate checks both ends lie within a day.
func (w ActivationWindow) Validate() error {
	if w.Start >= minutesPerDay || w.End >= minutesPerDay {
		return &AppError{Code: "BAD_REQUEST", Field: "window", Message: "time of day out of range", Status: 400}
	}
	return nil
}
