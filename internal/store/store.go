// Package store persists engine state for the host process. The engine keeps
// everything in memory; a Repository snapshots cards, relationships and
// sleep schedules after each change and restores them at startup.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nidhogg/nuka-recall/internal/card"
	"github.com/nidhogg/nuka-recall/internal/emotion"
	"github.com/nidhogg/nuka-recall/internal/relation"
	"github.com/nidhogg/nuka-recall/internal/sleep"
	"github.com/nidhogg/nuka-recall/internal/spacing"
)

// Repository is a durable snapshot of engine state.
type Repository interface {
	SaveCard(ctx context.Context, c card.Card) error
	LoadCards(ctx context.Context) ([]card.Card, error) // creation order
	DeleteCard(ctx context.Context, id string) error

	SaveEdge(ctx context.Context, e relation.Edge) error
	LoadEdges(ctx context.Context) ([]relation.Edge, error)

	SaveSleepSchedule(ctx context.Context, userID string, s sleep.Schedule) error
	LoadSleepSchedules(ctx context.Context) (map[string]sleep.Schedule, error)

	Close()
}

// cardBlobs holds the JSON-encoded collections of a card.
type cardBlobs struct {
	emotions []byte
	contexts []byte
}

func encodeBlobs(c card.Card) (cardBlobs, error) {
	em := c.Emotions
	if em == nil {
		em = []emotion.Record{}
	}
	ctx := c.Contexts
	if ctx == nil {
		ctx = []spacing.Snapshot{}
	}
	emotions, err := json.Marshal(em)
	if err != nil {
		return cardBlobs{}, fmt.Errorf("marshal emotions: %w", err)
	}
	contexts, err := json.Marshal(ctx)
	if err != nil {
		return cardBlobs{}, fmt.Errorf("marshal contexts: %w", err)
	}
	return cardBlobs{emotions: emotions, contexts: contexts}, nil
}

func decodeBlobs(c *card.Card, b cardBlobs) error {
	if len(b.emotions) > 0 {
		if err := json.Unmarshal(b.emotions, &c.Emotions); err != nil {
			return fmt.Errorf("unmarshal emotions: %w", err)
		}
	}
	if len(b.contexts) > 0 {
		if err := json.Unmarshal(b.contexts, &c.Contexts); err != nil {
			return fmt.Errorf("unmarshal contexts: %w", err)
		}
	}
	if len(c.Emotions) == 0 {
		c.Emotions = nil
	}
	if len(c.Contexts) == 0 {
		c.Contexts = nil
	}
	return nil
}

func parseState(s string) (card.State, error) {
	var st card.State
	if err := st.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return st, nil
}
