// Package review composes the forgetting model, context spacing, emotional
// tagging, related-recall graph and sleep scheduler into the operations a
// host calls: creating and reviewing cards, and querying what is due.
package review

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/nuka-recall/internal/card"
	"github.com/nidhogg/nuka-recall/internal/emotion"
	"github.com/nidhogg/nuka-recall/internal/fsrs"
	"github.com/nidhogg/nuka-recall/internal/relation"
	"github.com/nidhogg/nuka-recall/internal/sleep"
	"github.com/nidhogg/nuka-recall/internal/spacing"
)

// ErrInvalidArgument is returned for missing or malformed inputs.
var ErrInvalidArgument = errors.New("review: invalid argument")

const (
	// DefaultDueLimit is the due-queue size when the caller gives none.
	DefaultDueLimit = 20
	// DefaultForecastDays is the forecast horizon when the caller gives none.
	DefaultForecastDays = 7
	// DefaultReviewSeconds is the estimated time spent per card.
	DefaultReviewSeconds = 30
)

// Config configures a Service. Zero values take defaults.
type Config struct {
	Model         fsrs.Config
	Spacing       spacing.Config
	Emotion       emotion.Config
	Sleep         sleep.Schedule   // fallback for users without one
	ReviewSeconds int              // per card, for forecasts
	Now           func() time.Time // nil → time.Now
}

// Service owns the card store and every modifier engine.
type Service struct {
	model         *fsrs.Model
	cards         *card.Store
	context       *spacing.Engine
	emotions      *emotion.Engine
	graph         *relation.Graph
	sleep         *sleep.Scheduler
	reviewSeconds int
	now           func() time.Time
	logger        *zap.Logger
}

// NewService builds a service with empty state.
func NewService(cfg Config, logger *zap.Logger) (*Service, error) {
	model, err := fsrs.NewModel(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("forgetting model: %w", err)
	}
	if cfg.ReviewSeconds <= 0 {
		cfg.ReviewSeconds = DefaultReviewSeconds
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		model:         model,
		cards:         card.NewStore(logger.Named("cards")),
		context:       spacing.NewEngine(cfg.Spacing, logger.Named("context")),
		emotions:      emotion.NewEngine(cfg.Emotion, logger.Named("emotion")),
		graph:         relation.NewGraph(logger.Named("relations")),
		sleep:         sleep.NewScheduler(cfg.Sleep, logger.Named("sleep")),
		reviewSeconds: cfg.ReviewSeconds,
		now:           cfg.Now,
		logger:        logger,
	}, nil
}

// Context exposes the context engine, e.g. to register it on a clock.
func (s *Service) Context() *spacing.Engine { return s.context }

// Now returns the service's current time.
func (s *Service) Now() time.Time { return s.now() }

// Restore loads persisted state. Cards must be in creation order.
func (s *Service) Restore(cards []card.Card, edges []relation.Edge, schedules map[string]sleep.Schedule) error {
	for _, c := range cards {
		if err := s.cards.Insert(c); err != nil {
			return fmt.Errorf("restore card %s: %w", c.ID, err)
		}
	}
	s.graph.Load(edges)
	for user, sched := range schedules {
		s.sleep.Set(user, sched)
	}
	s.logger.Info("state restored",
		zap.Int("cards", len(cards)),
		zap.Int("edges", len(edges)),
		zap.Int("schedules", len(schedules)))
	return nil
}

// CreateCard adds a new card for userID, due immediately.
func (s *Service) CreateCard(userID, front, back string) (card.Card, error) {
	if strings.TrimSpace(userID) == "" {
		return card.Card{}, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	c := s.cards.Create(userID, front, back, s.now())
	s.logger.Info("card created",
		zap.String("card", c.ID),
		zap.String("user", userID))
	return c, nil
}

// GetCard returns the card with retrievability computed at now.
func (s *Service) GetCard(id string) (card.Card, error) {
	c, err := s.cards.Get(id)
	if err != nil {
		return card.Card{}, err
	}
	c.Retrievability = c.RetrievabilityAt(s.now())
	return c, nil
}

// ListCards returns the user's cards in creation order with fresh
// retrievability.
func (s *Service) ListCards(userID string) []card.Card {
	now := s.now()
	cards := s.cards.ListByUser(userID)
	for i := range cards {
		cards[i].Retrievability = cards[i].RetrievabilityAt(now)
	}
	return cards
}

// DeleteCard removes the card and every relationship touching it. It
// returns the removed card and edges so the host can drop them from storage.
func (s *Service) DeleteCard(id string) (card.Card, []relation.Edge, error) {
	c, err := s.cards.Delete(id)
	if err != nil {
		return card.Card{}, nil, err
	}
	edges := s.graph.RemoveCard(id)
	s.logger.Info("card deleted",
		zap.String("card", id),
		zap.String("user", c.UserID),
		zap.Int("edges", len(edges)))
	return c, edges, nil
}

// Users returns every user owning at least one card.
func (s *Service) Users() []string { return s.cards.Users() }

// TagEmotion records an emotion on a card outside a review. Unknown tags are
// ignored and the card is returned unchanged.
func (s *Service) TagEmotion(cardID string, tag emotion.Tag, intensity float64) (card.Card, error) {
	now := s.now()
	c, err := s.cards.Update(cardID, func(c *card.Card) error {
		c.Emotions = s.emotions.Append(c.Emotions, tag, intensity, now)
		return nil
	})
	if err != nil {
		return card.Card{}, err
	}
	c.Retrievability = c.RetrievabilityAt(now)
	return c, nil
}

// RecordContext feeds an external retention observation to the context engine.
func (s *Service) RecordContext(userID string, ctx spacing.Snapshot, retention float64) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	now := s.now()
	s.context.Record(userID, ctx.SnapshotAt(now), retention, now)
	return nil
}

// ContextCorrelations returns the user's learned correlation table.
func (s *Service) ContextCorrelations(userID string) spacing.Correlations {
	return s.context.Correlations(userID)
}

// CreateRelationship links two existing cards. Re-creating the same
// (a, b, type) edge in either direction overwrites its strength.
func (s *Service) CreateRelationship(a, b, typ string, strength float64) (relation.Edge, error) {
	if err := s.requireCards(a, b); err != nil {
		return relation.Edge{}, err
	}
	return s.graph.Create(a, b, typ, strength, s.now())
}

// StrengthenRelationship adds delta to the edges between a and b.
func (s *Service) StrengthenRelationship(a, b, typ string, delta float64) ([]relation.Edge, error) {
	return s.graph.Strengthen(a, b, typ, delta, s.now())
}

// Related lists cards linked to cardID at or above minStrength.
func (s *Service) Related(cardID string, minStrength float64) ([]relation.Related, error) {
	if err := s.requireCards(cardID); err != nil {
		return nil, err
	}
	return s.graph.Related(cardID, minStrength), nil
}

// Edges returns every relationship.
func (s *Service) Edges() []relation.Edge { return s.graph.Edges() }

// SetSleepSchedule parses and stores the user's sleep window.
func (s *Service) SetSleepSchedule(userID, sleepAt, wakeAt string) (sleep.Schedule, error) {
	if strings.TrimSpace(userID) == "" {
		return sleep.Schedule{}, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	sched, err := sleep.NewSchedule(sleepAt, wakeAt)
	if err != nil {
		return sleep.Schedule{}, err
	}
	s.sleep.Set(userID, sched)
	return sched, nil
}

// SleepSchedule returns the user's schedule or the fallback.
func (s *Service) SleepSchedule(userID string) sleep.Schedule { return s.sleep.Get(userID) }

// CurrentPhase returns the user's sleep-cycle phase at now.
func (s *Service) CurrentPhase(userID string) sleep.Info {
	return s.sleep.CurrentPhase(userID, s.now())
}

func (s *Service) requireCards(ids ...string) error {
	for _, id := range ids {
		if !s.cards.Exists(id) {
			return fmt.Errorf("%w: %s", card.ErrCardNotFound, id)
		}
	}
	return nil
}
