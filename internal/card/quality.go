package card

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/nidhogg/nuka-recall/internal/fsrs"
)

// ErrInvalidQuality is returned for a review grade outside the quality set.
var ErrInvalidQuality = errors.New("card: invalid quality")

// Quality is the learner's self-assessment of a review.
type Quality int

const (
	Forgot Quality = iota + 1
	Difficult
	Moderate
	Easy
	Perfect
)

// Qualities lists every quality in grade order.
var Qualities = []Quality{Forgot, Difficult, Moderate, Easy, Perfect}

var qualityNames = [...]string{
	Forgot:    "forgot",
	Difficult: "difficult",
	Moderate:  "moderate",
	Easy:      "easy",
	Perfect:   "perfect",
}

// IsValid reports whether q is a known quality.
func (q Quality) IsValid() bool {
	return q >= Forgot && q <= Perfect
}

func (q Quality) String() string {
	if q.IsValid() {
		return qualityNames[q]
	}
	return fmt.Sprintf("Quality(%d)", int(q))
}

// Rating maps the quality onto the forgetting model's four grades. Easy and
// Perfect both map to fsrs.Easy.
func (q Quality) Rating() (fsrs.Rating, error) {
	switch q {
	case Forgot:
		return fsrs.Again, nil
	case Difficult:
		return fsrs.Hard, nil
	case Moderate:
		return fsrs.Good, nil
	case Easy, Perfect:
		return fsrs.Easy, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidQuality, int(q))
	}
}

// ParseQuality maps a case-insensitive name to a Quality.
func ParseQuality(s string) (Quality, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, q := range Qualities {
		if qualityNames[q] == name {
			return q, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidQuality, s)
}

// MarshalText implements encoding.TextMarshaler.
func (q Quality) MarshalText() ([]byte, error) {
	if !q.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQuality, int(q))
	}
	return []byte(qualityNames[q]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *Quality) UnmarshalText(text []byte) error {
	v, err := ParseQuality(string(text))
	if err != nil {
		return err
	}
	*q = v
	return nil
}

// MarshalJSON encodes the quality as a JSON string.
func (q Quality) MarshalJSON() ([]byte, error) {
	text, err := q.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON decodes the quality from a JSON string.
func (q *Quality) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidQuality, data)
	}
	return q.UnmarshalText([]byte(s))
}
