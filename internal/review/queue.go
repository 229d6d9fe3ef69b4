package review

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/nidhogg/nuka-recall/internal/card"
	"github.com/nidhogg/nuka-recall/internal/sleep"
)

// DueCards returns the user's cards whose next review is at or before now,
// most urgent (lowest retrievability) first. Equal retrievability keeps
// creation order. limit <= 0 means DefaultDueLimit.
func (s *Service) DueCards(userID string, limit int) []card.Card {
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	due := s.due(userID, s.now())
	if len(due) > limit {
		due = due[:limit]
	}
	return due
}

// due returns every due card sorted by urgency. ListByUser yields creation
// order, which the stable sort preserves for ties.
func (s *Service) due(userID string, now time.Time) []card.Card {
	var due []card.Card
	for _, c := range s.cards.ListByUser(userID) {
		if !c.IsDue(now) {
			continue
		}
		c.Retrievability = c.RetrievabilityAt(now)
		due = append(due, c)
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].Retrievability < due[j].Retrievability
	})
	return due
}

// DueCount returns how many of the user's cards are due at now.
func (s *Service) DueCount(userID string) int {
	return s.dueCount(userID, s.now())
}

func (s *Service) dueCount(userID string, now time.Time) int {
	n := 0
	for _, c := range s.cards.ListByUser(userID) {
		if c.IsDue(now) {
			n++
		}
	}
	return n
}

// Load classifies a day's review volume.
type Load int

const (
	Light  Load = iota + 1 // fewer than 10 cards
	Medium                 // fewer than 30 cards
	Heavy
)

var loadNames = [...]string{Light: "light", Medium: "medium", Heavy: "heavy"}

// LoadFor classifies a due count.
func LoadFor(count int) Load {
	switch {
	case count < 10:
		return Light
	case count < 30:
		return Medium
	default:
		return Heavy
	}
}

func (l Load) String() string {
	if l >= Light && l <= Heavy {
		return loadNames[l]
	}
	return fmt.Sprintf("Load(%d)", int(l))
}

// MarshalJSON encodes the load as a JSON string.
func (l Load) MarshalJSON() ([]byte, error) {
	if l < Light || l > Heavy {
		return nil, fmt.Errorf("review: invalid load %d", int(l))
	}
	return json.Marshal(loadNames[l])
}

// ForecastDay is the expected workload of one calendar day.
type ForecastDay struct {
	Date             string `json:"date"` // YYYY-MM-DD in the service clock's location
	DueCount         int    `json:"due_count"`
	EstimatedMinutes int    `json:"estimated_minutes"`
	Load             Load   `json:"load"`
}

// Forecast returns days+1 entries, one per calendar day from today through
// today+days, counting cards whose next review falls on that date. Cards
// already overdue from earlier dates are not counted. days is clamped to
// [0, max interval]; no card is ever scheduled further out.
func (s *Service) Forecast(userID string, days int) []ForecastDay {
	if days < 0 {
		days = 0
	}
	if limit := s.model.MaxInterval(); days > limit {
		days = limit
	}
	now := s.now()
	loc := now.Location()
	y, m, d := now.Date()

	out := make([]ForecastDay, days+1)
	index := make(map[string]int, days+1)
	for i := range out {
		date := time.Date(y, m, d+i, 0, 0, 0, 0, loc).Format(time.DateOnly)
		out[i].Date = date
		index[date] = i
	}

	for _, c := range s.cards.ListByUser(userID) {
		if i, ok := index[c.NextReview.In(loc).Format(time.DateOnly)]; ok {
			out[i].DueCount++
		}
	}
	for i := range out {
		out[i].EstimatedMinutes = int(math.Ceil(float64(out[i].DueCount*s.reviewSeconds) / 60))
		out[i].Load = LoadFor(out[i].DueCount)
	}
	return out
}

// Suggestion is the due queue reordered for the user's current phase.
type Suggestion struct {
	Phase sleep.Info  `json:"phase"`
	Cards []card.Card `json:"cards"`
}

// SuggestForPhase returns due cards with kinds preferred in the current
// sleep phase first; within each group the due-queue order is kept.
func (s *Service) SuggestForPhase(userID string, limit int) Suggestion {
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	now := s.now()
	phase := s.sleep.Get(userID).PhaseAt(now)
	due := s.due(userID, now)

	sort.SliceStable(due, func(i, j int) bool {
		return phase.Prefers(due[i].Kind()) && !phase.Prefers(due[j].Kind())
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return Suggestion{Phase: s.sleep.CurrentPhase(userID, now), Cards: due}
}

// Stats summarizes a user's collection.
type Stats struct {
	UserID             string         `json:"user_id"`
	Total              int            `json:"total"`
	ByState            map[string]int `json:"by_state"`
	DueNow             int            `json:"due_now"`
	Lapses             int            `json:"lapses"`
	MeanRetrievability float64        `json:"mean_retrievability"`
}

// Stats computes a collection summary at now.
func (s *Service) Stats(userID string) Stats {
	now := s.now()
	st := Stats{UserID: userID, ByState: make(map[string]int)}
	var sumR float64
	for _, c := range s.cards.ListByUser(userID) {
		st.Total++
		st.ByState[c.State.String()]++
		if c.IsDue(now) {
			st.DueNow++
		}
		st.Lapses += c.Lapses
		sumR += c.RetrievabilityAt(now)
	}
	if st.Total > 0 {
		st.MeanRetrievability = sumR / float64(st.Total)
	}
	return st
}
