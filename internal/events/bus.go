// Package events publishes review activity to per-user Redis Streams so
// downstream consumers (dashboards, gamification hosts) can react to it.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Kind names an event.
type Kind string

const (
	KindReviewed     Kind = "reviewed"
	KindDue          Kind = "due"
	KindCardCreated  Kind = "card_created"
	KindRelationship Kind = "relationship"
)

// Event is one message on a user's stream. Fields unused by a kind are empty.
type Event struct {
	Kind       Kind       `json:"kind"`
	UserID     string     `json:"user_id"`
	CardID     string     `json:"card_id,omitempty"`
	Quality    string     `json:"quality,omitempty"`
	State      string     `json:"state,omitempty"`
	Interval   int        `json:"interval,omitempty"`
	NextReview *time.Time `json:"next_review,omitempty"`
	DueCount   int        `json:"due_count,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

const streamPrefix = "nuka-recall:user:"

// maxStreamLen bounds each user's stream; trimming is approximate.
const maxStreamLen = 1000

// Bus is a Redis Streams publisher and subscriber.
type Bus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewBus connects to redisURL and verifies the connection.
func NewBus(ctx context.Context, redisURL string, logger *zap.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Bus{rdb: rdb, logger: logger}, nil
}

// Stream returns the stream key for a user.
func Stream(userID string) string { return streamPrefix + userID }

// Publish appends ev to its user's stream.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	stream := Stream(ev.UserID)
	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind": string(ev.Kind),
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}

	b.logger.Debug("published event",
		zap.String("user", ev.UserID),
		zap.String("kind", string(ev.Kind)),
		zap.String("card", ev.CardID))
	return nil
}

// Subscribe streams events for userID published after the call. Cancel ctx
// to stop; the channel is closed when the reader exits.
func (b *Bus) Subscribe(ctx context.Context, userID string) <-chan Event {
	ch := make(chan Event, 16)
	stream := Stream(userID)

	go func() {
		defer close(ch)
		lastID := "$"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if errors.Is(err, redis.Nil) {
					continue
				}
				b.logger.Warn("stream read failed", zap.String("stream", stream), zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Second):
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev Event
					if json.Unmarshal([]byte(data), &ev) != nil {
						continue
					}
					select {
					case ch <- ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (b *Bus) Close() error {
	return b.rdb.Close()
}
