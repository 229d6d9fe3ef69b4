package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-recall/internal/card"
	"github.com/nidhogg/nuka-recall/internal/relation"
	"github.com/nidhogg/nuka-recall/internal/sleep"
)

// Postgres is a Repository backed by a pgx connection pool.
type Postgres struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres connects to dsn and verifies the connection.
func NewPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	logger.Info("PostgreSQL connected")
	return &Postgres{db: pool, logger: logger}, nil
}

// Migrate executes every *.up.sql file in migrationsDir in name order.
func (s *Postgres) Migrate(ctx context.Context, migrationsDir string) error {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(migrationsDir, f))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", f, err)
		}
		if _, err := s.db.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("exec migration %s: %w", f, err)
		}
		s.logger.Info("Migration applied", zap.String("file", f))
	}
	return nil
}

// SaveCard upserts a card.
func (s *Postgres) SaveCard(ctx context.Context, c card.Card) error {
	blobs, err := encodeBlobs(c)
	if err != nil {
		return fmt.Errorf("save card %s: %w", c.ID, err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO cards (id, user_id, front, back, difficulty, stability, interval_days, state,
		                   repetitions, lapses, created_at, last_review, next_review, emotions, contexts, seq, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now())
		ON CONFLICT (id) DO UPDATE SET
			front = EXCLUDED.front,
			back = EXCLUDED.back,
			difficulty = EXCLUDED.difficulty,
			stability = EXCLUDED.stability,
			interval_days = EXCLUDED.interval_days,
			state = EXCLUDED.state,
			repetitions = EXCLUDED.repetitions,
			lapses = EXCLUDED.lapses,
			last_review = EXCLUDED.last_review,
			next_review = EXCLUDED.next_review,
			emotions = EXCLUDED.emotions,
			contexts = EXCLUDED.contexts,
			updated_at = now()`,
		c.ID, c.UserID, c.Front, c.Back, c.Difficulty, c.Stability, c.Interval, c.State.String(),
		c.Repetitions, c.Lapses, c.CreatedAt, c.LastReview, c.NextReview, blobs.emotions, blobs.contexts, c.Seq,
	)
	if err != nil {
		return fmt.Errorf("save card %s: %w", c.ID, err)
	}
	return nil
}

// LoadCards returns every card ordered by creation sequence.
func (s *Postgres) LoadCards(ctx context.Context) ([]card.Card, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, front, back, difficulty, stability, interval_days, state,
		       repetitions, lapses, created_at, last_review, next_review, emotions, contexts, seq
		FROM cards ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("load cards: %w", err)
	}
	defer rows.Close()

	var cards []card.Card
	for rows.Next() {
		var (
			c     card.Card
			state string
			last  *time.Time
			blobs cardBlobs
		)
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Front, &c.Back, &c.Difficulty, &c.Stability, &c.Interval, &state,
			&c.Repetitions, &c.Lapses, &c.CreatedAt, &last, &c.NextReview, &blobs.emotions, &blobs.contexts, &c.Seq,
		); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		if c.State, err = parseState(state); err != nil {
			return nil, fmt.Errorf("card %s: %w", c.ID, err)
		}
		c.LastReview = last
		if err := decodeBlobs(&c, blobs); err != nil {
			return nil, fmt.Errorf("card %s: %w", c.ID, err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// DeleteCard removes a card and its relationships.
func (s *Postgres) DeleteCard(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM cards WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete card %s: %w", id, err)
	}
	return nil
}

// SaveEdge upserts a relationship.
func (s *Postgres) SaveEdge(ctx context.Context, e relation.Edge) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO card_relations (card_a, card_b, type, strength, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (card_a, card_b, type) DO UPDATE SET
			strength = EXCLUDED.strength,
			updated_at = EXCLUDED.updated_at`,
		e.A, e.B, e.Type, e.Strength, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save relation %s-%s: %w", e.A, e.B, err)
	}
	return nil
}

// LoadEdges returns every relationship.
func (s *Postgres) LoadEdges(ctx context.Context) ([]relation.Edge, error) {
	rows, err := s.db.Query(ctx, `
		SELECT card_a, card_b, type, strength, updated_at
		FROM card_relations ORDER BY card_a, card_b, type`)
	if err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}
	defer rows.Close()

	var edges []relation.Edge
	for rows.Next() {
		var e relation.Edge
		if err := rows.Scan(&e.A, &e.B, &e.Type, &e.Strength, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// SaveSleepSchedule upserts a user's sleep window.
func (s *Postgres) SaveSleepSchedule(ctx context.Context, userID string, sched sleep.Schedule) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sleep_schedules (user_id, sleep_time, wake_time, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id) DO UPDATE SET
			sleep_time = EXCLUDED.sleep_time,
			wake_time = EXCLUDED.wake_time,
			updated_at = now()`,
		userID, sched.Sleep.String(), sched.Wake.String(),
	)
	if err != nil {
		return fmt.Errorf("save sleep schedule %s: %w", userID, err)
	}
	return nil
}

// LoadSleepSchedules returns every stored schedule keyed by user.
func (s *Postgres) LoadSleepSchedules(ctx context.Context) (map[string]sleep.Schedule, error) {
	rows, err := s.db.Query(ctx, `SELECT user_id, sleep_time, wake_time FROM sleep_schedules`)
	if err != nil {
		return nil, fmt.Errorf("load sleep schedules: %w", err)
	}
	defer rows.Close()

	out := make(map[string]sleep.Schedule)
	for rows.Next() {
		var user, sl, wk string
		if err := rows.Scan(&user, &sl, &wk); err != nil {
			return nil, fmt.Errorf("scan sleep schedule: %w", err)
		}
		sched, err := sleep.NewSchedule(sl, wk)
		if err != nil {
			s.logger.Warn("skipping invalid sleep schedule", zap.String("user", user), zap.Error(err))
			continue
		}
		out[user] = sched
	}
	return out, rows.Err()
}

// Close shuts down the connection pool.
func (s *Postgres) Close() {
	s.db.Close()
}
