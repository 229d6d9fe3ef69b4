package card

// Kind groups cards for time-of-day affinity.
type Kind string

const (
	KindNew       Kind = "new"       // not yet past first recall
	KindReview    Kind = "review"    // established, routine review
	KindDifficult Kind = "difficult" // hard or recently lapsed
)

// DifficultThreshold is the difficulty at which a card counts as difficult.
const DifficultThreshold = 7.0

// Kind classifies the card.
func (c *Card) Kind() Kind {
	switch c.State {
	case New, Learning:
		return KindNew
	case Relearning:
		return KindDifficult
	}
	if c.Difficulty >= DifficultThreshold {
		return KindDifficult
	}
	return KindReview
}
