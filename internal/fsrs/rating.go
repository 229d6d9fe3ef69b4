package fsrs

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Rating is the graded outcome of a single review.
type Rating int

const (
	Again Rating = iota + 1 // Forgot.
	Hard                    // Recalled with serious difficulty.
	Good                    // Recalled with some effort.
	Easy                    // Recalled effortlessly.
)

var (
	ratingNames  = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}
	ratingByName = map[string]Rating{
		"again": Again,
		"hard":  Hard,
		"good":  Good,
		"easy":  Easy,
	}
)

// IsValid reports whether r is one of Again, Hard, Good, Easy.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Easy
}

// String returns the lower-case rating name, or "Rating(n)" for invalid values.
func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// ParseRating accepts either a name ("good") or a numeric grade ("3").
func ParseRating(s string) (Rating, error) {
	if r, ok := ratingByName[s]; ok {
		return r, nil
	}
	if n, err := strconv.Atoi(s); err == nil && Rating(n).IsValid() {
		return Rating(n), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidRating, s)
}

// MarshalText implements encoding.TextMarshaler.
func (r Rating) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
	}
	return []byte(ratingNames[r]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rating) UnmarshalText(text []byte) error {
	v, err := ParseRating(string(text))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// MarshalJSON encodes the rating as a JSON string.
func (r Rating) MarshalJSON() ([]byte, error) {
	text, err := r.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON accepts a JSON string or a JSON number in 1..4.
func (r *Rating) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return r.UnmarshalText([]byte(s))
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRating, data)
	}
	if !Rating(n).IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidRating, n)
	}
	*r = Rating(n)
	return nil
}
