package sleep

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nidhogg/nuka-recall/internal/card"
)

// Phase is a sleep-cycle phase of the day.
type Phase int

const (
	PreSleep     Phase = iota + 1 // last hour before sleep
	EarlyMorning                  // first two hours after waking
	Midday
	Afternoon
	Evening
)

var phaseNames = [...]string{
	PreSleep:     "pre_sleep",
	EarlyMorning: "early_morning",
	Midday:       "midday",
	Afternoon:    "afternoon",
	Evening:      "evening",
}

func (p Phase) String() string {
	if p >= PreSleep && p <= Evening {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// MarshalJSON encodes the phase as a JSON string.
func (p Phase) MarshalJSON() ([]byte, error) {
	if p < PreSleep || p > Evening {
		return nil, fmt.Errorf("sleep: invalid phase %d", int(p))
	}
	return json.Marshal(phaseNames[p])
}

// RetentionBoost is the relative retention weight of reviewing in this phase.
func (p Phase) RetentionBoost() float64 {
	switch p {
	case PreSleep:
		return 1.3
	case EarlyMorning:
		return 1.15
	case Midday:
		return 1.0
	case Afternoon:
		return 0.9
	case Evening:
		return 1.05
	default:
		return 1.0
	}
}

// PreferredKinds lists the card kinds best studied in this phase.
func (p Phase) PreferredKinds() []card.Kind {
	switch p {
	case PreSleep, Evening:
		return []card.Kind{card.KindNew}
	case EarlyMorning, Afternoon:
		return []card.Kind{card.KindReview}
	case Midday:
		return []card.Kind{card.KindDifficult}
	default:
		return nil
	}
}

// Prefers reports whether k is among the phase's preferred kinds.
func (p Phase) Prefers(k card.Kind) bool {
	for _, pk := range p.PreferredKinds() {
		if pk == k {
			return true
		}
	}
	return false
}

// PhaseAt classifies t to the minute against the schedule. The last 60
// minutes before sleep win over every other phase.
func (s Schedule) PhaseAt(t time.Time) Phase {
	const day = 24 * 60
	m := t.Hour()*60 + t.Minute()
	wake := s.Wake.Minutes()
	toSleep := (s.Sleep.Minutes() - m + day) % day
	switch {
	case toSleep > 0 && toSleep <= 60:
		return PreSleep
	case (m-wake+day)%day < 120:
		return EarlyMorning
	case m >= wake+120 && m < 14*60:
		return Midday
	case m >= 14*60 && m < 18*60:
		return Afternoon
	default:
		return Evening
	}
}
