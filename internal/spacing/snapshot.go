package spacing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Dimension is a categorical context attribute that correlations are learned for.
type Dimension int

const (
	Location Dimension = iota + 1
	TimeOfDay
	Device
)

// Dimensions lists every learned dimension in a stable order.
var Dimensions = []Dimension{Location, TimeOfDay, Device}

var dimensionNames = [...]string{Location: "location", TimeOfDay: "time_of_day", Device: "device"}

func (d Dimension) String() string {
	if d >= Location && d <= Device {
		return dimensionNames[d]
	}
	return fmt.Sprintf("Dimension(%d)", int(d))
}

// MarshalText implements encoding.TextMarshaler so Dimension can key JSON maps.
func (d Dimension) MarshalText() ([]byte, error) {
	if d < Location || d > Device {
		return nil, fmt.Errorf("spacing: invalid dimension %d", int(d))
	}
	return []byte(dimensionNames[d]), nil
}

// Snapshot is the study context at the moment of a review. Empty strings and
// nil pointers mean the dimension was not observed.
type Snapshot struct {
	Location  string   `json:"location,omitempty"`
	TimeOfDay string   `json:"time_of_day,omitempty"`
	Device    string   `json:"device,omitempty"`
	Energy    *float64 `json:"energy,omitempty"`
	Stress    *float64 `json:"stress,omitempty"`
}

// Value returns the snapshot's value for d, or "" if unobserved.
func (s Snapshot) Value(d Dimension) string {
	switch d {
	case Location:
		return s.Location
	case TimeOfDay:
		return s.TimeOfDay
	case Device:
		return s.Device
	default:
		return ""
	}
}

// IsZero reports whether no dimension was observed.
func (s Snapshot) IsZero() bool {
	return s.Location == "" && s.TimeOfDay == "" && s.Device == "" && s.Energy == nil && s.Stress == nil
}

// ParseSnapshot converts a loosely typed context map into a Snapshot.
// Unknown keys and values of the wrong type are ignored. A numeric
// time_of_day is read as an hour and bucketed.
func ParseSnapshot(m map[string]any) Snapshot {
	var s Snapshot
	for k, v := range m {
		switch strings.ToLower(k) {
		case "location":
			s.Location = normalize(v)
		case "device":
			s.Device = normalize(v)
		case "time_of_day", "timeofday":
			if h, ok := number(v); ok {
				s.TimeOfDay = BucketHour(int(h))
			} else {
				s.TimeOfDay = normalize(v)
			}
		case "energy":
			if f, ok := number(v); ok {
				s.Energy = &f
			}
		case "stress":
			if f, ok := number(v); ok {
				s.Stress = &f
			}
		}
	}
	return s
}

// SnapshotAt fills TimeOfDay from t when the caller did not supply it.
func (s Snapshot) SnapshotAt(t time.Time) Snapshot {
	if s.TimeOfDay == "" {
		s.TimeOfDay = BucketHour(t.Hour())
	}
	return s
}

// BucketHour maps an hour of day to morning, afternoon, evening or night.
func BucketHour(h int) string {
	h = ((h % 24) + 24) % 24
	switch {
	case h >= 5 && h < 12:
		return "morning"
	case h >= 12 && h < 17:
		return "afternoon"
	case h >= 17 && h < 22:
		return "evening"
	default:
		return "night"
	}
}

func normalize(v any) string {
	switch x := v.(type) {
	case string:
		return strings.ToLower(strings.TrimSpace(x))
	case fmt.Stringer:
		return strings.ToLower(strings.TrimSpace(x.String()))
	default:
		return ""
	}
}

func number(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
