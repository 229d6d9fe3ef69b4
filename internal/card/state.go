package card

import (
	"encoding/json"
	"fmt"
)

// State is the card's position in the learning lifecycle.
type State int

const (
	New        State = iota + 1 // Never reviewed.
	Learning                    // First recalls were hard.
	Young                       // Recalled, interval under MatureInterval days.
	Mature                      // Recalled, interval of MatureInterval days or more.
	Relearning                  // Lapsed on the most recent review.
)

// MatureInterval is the interval in days at which a card counts as mature.
const MatureInterval = 21

var (
	stateNames  = [...]string{New: "new", Learning: "learning", Young: "young", Mature: "mature", Relearning: "relearning"}
	stateByName = map[string]State{
		"new":        New,
		"learning":   Learning,
		"young":      Young,
		"mature":     Mature,
		"relearning": Relearning,
	}
)

// IsValid reports whether s is a known state.
func (s State) IsValid() bool {
	return s >= New && s <= Relearning
}

func (s State) String() string {
	if s.IsValid() {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, fmt.Errorf("card: invalid state: %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	v, ok := stateByName[string(text)]
	if !ok {
		return fmt.Errorf("card: invalid state: %q", text)
	}
	*s = v
	return nil
}

// MarshalJSON encodes the state as a JSON string.
func (s State) MarshalJSON() ([]byte, error) {
	text, err := s.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON decodes the state from a JSON string.
func (s *State) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("card: invalid state: %s", data)
	}
	return s.UnmarshalText([]byte(str))
}

// Transition returns the state after a review. Any lapse moves to
// Relearning. Successes climb New → Learning/Young → Mature and never step
// back down the ladder; a Hard first recall parks the card in Learning, and
// a success from Relearning re-enters at Young or Mature by interval.
func Transition(cur State, lapsed, hard bool, interval int) State {
	if lapsed {
		return Relearning
	}
	ladder := Young
	if interval >= MatureInterval {
		ladder = Mature
	}
	switch cur {
	case New, Learning:
		if hard {
			return Learning
		}
		return ladder
	case Mature:
		return Mature
	default:
		return ladder
	}
}
