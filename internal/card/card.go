// Package card defines the reviewable card entity, its lifecycle and the
// in-memory store that serializes writes per card.
package card

import (
	"time"

	"github.com/nidhogg/nuka-recall/internal/emotion"
	"github.com/nidhogg/nuka-recall/internal/fsrs"
	"github.com/nidhogg/nuka-recall/internal/spacing"
)

const (
	// DefaultDifficulty and DefaultStability seed a card before its first review.
	DefaultDifficulty = 5.0
	DefaultStability  = 1.0

	// maxContexts caps the context snapshots kept on a card.
	maxContexts = 20
)

// Card is a single reviewable item and its scheduling state.
type Card struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Front  string `json:"front"`
	Back   string `json:"back"`

	Difficulty float64 `json:"difficulty"`
	Stability  float64 `json:"stability"`
	// Retrievability is filled in when a snapshot is taken; see RetrievabilityAt.
	Retrievability float64 `json:"retrievability"`
	Interval       int     `json:"interval"`
	State          State   `json:"state"`
	Repetitions    int     `json:"repetitions"`
	Lapses         int     `json:"lapses"`

	CreatedAt  time.Time  `json:"created_at"`
	LastReview *time.Time `json:"last_review,omitempty"`
	NextReview time.Time  `json:"next_review"`

	Emotions []emotion.Record   `json:"emotions,omitempty"`
	Contexts []spacing.Snapshot `json:"contexts,omitempty"`

	// Seq is the store-assigned creation order, used as a stable tie-break.
	Seq int64 `json:"seq"`
}

// ElapsedDays returns days since the last review, or 0 if never reviewed.
func (c *Card) ElapsedDays(now time.Time) float64 {
	if c.LastReview == nil {
		return 0
	}
	d := now.Sub(*c.LastReview).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

// RetrievabilityAt computes recall probability at now. A card that has never
// been reviewed has retrievability 1.
func (c *Card) RetrievabilityAt(now time.Time) float64 {
	if c.LastReview == nil {
		return 1
	}
	return fsrs.Retrievability(c.Stability, c.ElapsedDays(now))
}

// IsDue reports whether the card's next review is at or before now.
func (c *Card) IsDue(now time.Time) bool {
	return !c.NextReview.After(now)
}

// AddContext appends a context snapshot, keeping the most recent few.
func (c *Card) AddContext(s spacing.Snapshot) {
	c.Contexts = append(c.Contexts, s)
	if len(c.Contexts) > maxContexts {
		c.Contexts = append([]spacing.Snapshot(nil), c.Contexts[len(c.Contexts)-maxContexts:]...)
	}
}

// Clone returns a deep copy.
func (c Card) Clone() Card {
	out := c
	if c.LastReview != nil {
		v := *c.LastReview
		out.LastReview = &v
	}
	if c.Emotions != nil {
		out.Emotions = append([]emotion.Record(nil), c.Emotions...)
	}
	if c.Contexts != nil {
		out.Contexts = make([]spacing.Snapshot, len(c.Contexts))
		for i, s := range c.Contexts {
			out.Contexts[i] = cloneSnapshot(s)
		}
	}
	return out
}

func cloneSnapshot(s spacing.Snapshot) spacing.Snapshot {
	if s.Energy != nil {
		v := *s.Energy
		s.Energy = &v
	}
	if s.Stress != nil {
		v := *s.Stress
		s.Stress = &v
	}
	return s
}
