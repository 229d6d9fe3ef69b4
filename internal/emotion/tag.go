package emotion

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTag is returned by ParseTag for names outside the tag set.
var ErrUnknownTag = errors.New("emotion: unknown tag")

// Tag is the learner's reported emotional state while studying a card.
type Tag int

const (
	Excited Tag = iota + 1
	Confident
	Curious
	Happy
	Calm
	Neutral
	Bored
	Anxious
	Confused
	Frustrated
)

var (
	tagNames = [...]string{
		Excited:    "excited",
		Confident:  "confident",
		Curious:    "curious",
		Happy:      "happy",
		Calm:       "calm",
		Neutral:    "neutral",
		Bored:      "bored",
		Anxious:    "anxious",
		Confused:   "confused",
		Frustrated: "frustrated",
	}

	// baseBoost is the interval multiplier for a tag at full intensity.
	// Engaged states consolidate better; stress and confusion do not.
	baseBoost = [...]float64{
		Excited:    1.3,
		Confident:  1.25,
		Curious:    1.2,
		Happy:      1.15,
		Calm:       1.05,
		Neutral:    1.0,
		Bored:      0.9,
		Anxious:    0.85,
		Confused:   0.85,
		Frustrated: 0.8,
	}
)

// IsValid reports whether t is a known tag.
func (t Tag) IsValid() bool {
	return t >= Excited && t <= Frustrated
}

func (t Tag) String() string {
	if t.IsValid() {
		return tagNames[t]
	}
	return fmt.Sprintf("Tag(%d)", int(t))
}

// BaseBoost returns the tag's multiplier in [0.8, 1.3], or 1 for unknown tags.
func (t Tag) BaseBoost() float64 {
	if !t.IsValid() {
		return 1
	}
	return baseBoost[t]
}

// ParseTag maps a case-insensitive name to a Tag.
func ParseTag(s string) (Tag, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t := Excited; t <= Frustrated; t++ {
		if tagNames[t] == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTag, s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Tag) MarshalText() ([]byte, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTag, int(t))
	}
	return []byte(tagNames[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tag) UnmarshalText(text []byte) error {
	v, err := ParseTag(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// MarshalJSON encodes the tag as a JSON string.
func (t Tag) MarshalJSON() ([]byte, error) {
	text, err := t.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON decodes a tag from a JSON string.
func (t *Tag) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownTag, data)
	}
	return t.UnmarshalText([]byte(s))
}
