package review

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/nuka-recall/internal/card"
	"github.com/nidhogg/nuka-recall/internal/emotion"
	"github.com/nidhogg/nuka-recall/internal/fsrs"
	"github.com/nidhogg/nuka-recall/internal/relation"
	"github.com/nidhogg/nuka-recall/internal/spacing"
)

// EmotionInput is the learner's emotional state reported with a review.
type EmotionInput struct {
	Tag       emotion.Tag
	Intensity float64
}

// Request is one review of one card.
type Request struct {
	CardID  string
	Quality card.Quality
	Context *spacing.Snapshot // optional
	Emotion *EmotionInput     // optional
}

// Result is what a review produced.
type Result struct {
	NewInterval   int                `json:"new_interval"`
	NextReview    time.Time          `json:"next_review"`
	Difficulty    float64            `json:"difficulty"`
	Stability     float64            `json:"stability"`
	State         card.State         `json:"state"`
	RelatedRecall []relation.Related `json:"related_recall"`

	// Card is the committed card, for hosts that persist it.
	Card card.Card `json:"-"`
}

// plan is the scheduling outcome of a rating before it is committed.
type plan struct {
	difficulty float64
	stability  float64
	interval   int
	next       time.Time
}

// Review grades a card and reschedules it. The quality is validated before
// anything changes, and the card's fields are committed together or not at
// all. Reviews of one card are serialized; different cards proceed in
// parallel.
func (s *Service) Review(req Request) (Result, error) {
	rating, err := req.Quality.Rating()
	if err != nil {
		return Result{}, err
	}

	now := s.now()
	var ctx *spacing.Snapshot
	if req.Context != nil && !req.Context.IsZero() {
		snap := req.Context.SnapshotAt(now)
		ctx = &snap
	}

	c, err := s.cards.Update(req.CardID, func(c *card.Card) error {
		// An unknown tag leaves both the records and the interval untouched.
		useEmotion := req.Emotion != nil && req.Emotion.Tag.IsValid()
		emotions := c.Emotions
		if useEmotion {
			emotions = s.emotions.Append(c.Emotions, req.Emotion.Tag, req.Emotion.Intensity, now)
		}
		p, err := s.plan(c, rating, ctx, emotions, useEmotion, now)
		if err != nil {
			return err
		}

		lapsed := rating == fsrs.Again
		c.Difficulty = p.difficulty
		c.Stability = p.stability
		c.Interval = p.interval
		c.NextReview = p.next
		c.Emotions = emotions
		if lapsed {
			c.Lapses++
			c.Repetitions = 0
		} else {
			c.Repetitions++
		}
		c.State = card.Transition(c.State, lapsed, rating == fsrs.Hard, c.Interval)
		reviewed := now
		c.LastReview = &reviewed
		c.Retrievability = 1
		if ctx != nil {
			c.AddContext(*ctx)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if ctx != nil {
		retention := 1.0
		if rating == fsrs.Again {
			retention = 0
		}
		s.context.Record(c.UserID, *ctx, retention, now)
	}

	related := s.graph.TriggerRecall(c.ID)

	s.logger.Debug("card reviewed",
		zap.String("card", c.ID),
		zap.String("user", c.UserID),
		zap.Stringer("quality", req.Quality),
		zap.Int("interval", c.Interval),
		zap.Stringer("state", c.State),
		zap.Int("related", len(related)))

	return Result{
		NewInterval:   c.Interval,
		NextReview:    c.NextReview,
		Difficulty:    c.Difficulty,
		Stability:     c.Stability,
		State:         c.State,
		RelatedRecall: related,
		Card:          c,
	}, nil
}

// plan runs the scheduling pipeline: forgetting model, context adjustment,
// emotion modifier, rounding and clamping, then the sleep shift.
func (s *Service) plan(c *card.Card, rating fsrs.Rating, ctx *spacing.Snapshot, emotions []emotion.Record, useEmotion bool, now time.Time) (plan, error) {
	var (
		d, st float64
		err   error
	)
	// A card that has never been reviewed takes first-exposure parameters.
	// After a lapse the card keeps its history and goes through NextDS.
	if c.LastReview == nil {
		d, st, err = s.model.InitDS(rating)
	} else {
		d, st, err = s.model.NextDS(c.Difficulty, c.Stability, c.RetrievabilityAt(now), rating)
	}
	if err != nil {
		return plan{}, err
	}

	ivl := s.model.NextInterval(st)
	if ctx != nil {
		ivl = s.context.AdjustInterval(c.UserID, ivl, *ctx)
	}
	if useEmotion {
		ivl *= s.emotions.Modifier(emotions)
	}
	days := clampInterval(ivl, s.model.MaxInterval())

	next := s.sleep.ScheduleWithSleep(c.UserID, now.AddDate(0, 0, days))
	return plan{difficulty: d, stability: st, interval: days, next: next}, nil
}

func clampInterval(ivl float64, max int) int {
	if math.IsNaN(ivl) || ivl < 1 {
		return 1
	}
	r := math.Round(ivl)
	if r > float64(max) {
		return max
	}
	return int(r)
}

// PreviewEntry is the outcome one quality would produce.
type PreviewEntry struct {
	Quality    card.Quality `json:"quality"`
	Interval   int          `json:"interval"`
	NextReview time.Time    `json:"next_review"`
	Difficulty float64      `json:"difficulty"`
	Stability  float64      `json:"stability"`
	State      card.State   `json:"state"`
}

// Preview computes what each quality would do to the card without changing
// it. Context and emotion modifiers are not applied.
func (s *Service) Preview(cardID string) ([]PreviewEntry, error) {
	c, err := s.cards.Get(cardID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]PreviewEntry, 0, len(card.Qualities))
	for _, q := range card.Qualities {
		rating, err := q.Rating()
		if err != nil {
			return nil, err
		}
		p, err := s.plan(&c, rating, nil, nil, false, now)
		if err != nil {
			return nil, err
		}
		out = append(out, PreviewEntry{
			Quality:    q,
			Interval:   p.interval,
			NextReview: p.next,
			Difficulty: p.difficulty,
			Stability:  p.stability,
			State:      card.Transition(c.State, rating == fsrs.Again, rating == fsrs.Hard, p.interval),
		})
	}
	return out, nil
}
