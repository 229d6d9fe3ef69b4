// Package sleep classifies instants into sleep-cycle phases and keeps review
// times out of a user's sleep window.
package sleep

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidClock is returned for a malformed HH:MM value.
var ErrInvalidClock = errors.New("sleep: invalid clock time")

// ClockTime is a time of day with minute precision.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" in 24-hour form.
func ParseClock(s string) (ClockTime, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || len(m) != 2 || minute < 0 || minute > 59 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return ClockTime{Hour: hour, Minute: minute}, nil
}

// Minutes returns minutes since midnight.
func (c ClockTime) Minutes() int { return c.Hour*60 + c.Minute }

func (c ClockTime) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// MarshalText implements encoding.TextMarshaler.
func (c ClockTime) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *ClockTime) UnmarshalText(text []byte) error {
	v, err := ParseClock(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Schedule is a user's nightly sleep window.
type Schedule struct {
	Sleep ClockTime `json:"sleep_time"`
	Wake  ClockTime `json:"wake_time"`
}

// DefaultSchedule is used for users who never set one.
func DefaultSchedule() Schedule {
	return Schedule{Sleep: ClockTime{Hour: 23}, Wake: ClockTime{Hour: 7}}
}

// NewSchedule parses and validates a sleep/wake pair.
func NewSchedule(sleepAt, wakeAt string) (Schedule, error) {
	s, err := ParseClock(sleepAt)
	if err != nil {
		return Schedule{}, err
	}
	w, err := ParseClock(wakeAt)
	if err != nil {
		return Schedule{}, err
	}
	if s == w {
		return Schedule{}, fmt.Errorf("%w: sleep and wake both %s", ErrInvalidClock, s)
	}
	return Schedule{Sleep: s, Wake: w}, nil
}

// Shift moves candidate out of the sleep window. An instant before wake time
// moves to one hour after waking on the same date. When sleep starts before
// midnight, an instant after sleep time moves to one hour after waking on the
// following date. Anything else is returned unchanged.
func (s Schedule) Shift(candidate time.Time) time.Time {
	m := candidate.Hour()*60 + candidate.Minute()
	wake := s.Wake.Minutes()
	target := wake + 60
	if target > 23*60+59 {
		target = 23*60 + 59
	}

	y, mo, d := candidate.Date()
	at := func(day int) time.Time {
		return time.Date(y, mo, day, target/60, target%60, 0, 0, candidate.Location())
	}
	switch {
	case m < wake:
		return at(d)
	case s.Sleep.Minutes() > wake && m >= s.Sleep.Minutes():
		return at(d + 1)
	}
	return candidate
}

// Asleep reports whether t falls inside the sleep window.
func (s Schedule) Asleep(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	sl, wk := s.Sleep.Minutes(), s.Wake.Minutes()
	if sl > wk {
		return m >= sl || m < wk
	}
	return m >= sl && m < wk
}
