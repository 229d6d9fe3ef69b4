package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-recall/internal/card"
	"github.com/nidhogg/nuka-recall/internal/relation"
	"github.com/nidhogg/nuka-recall/internal/sleep"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cards (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	front         TEXT NOT NULL DEFAULT '',
	back          TEXT NOT NULL DEFAULT '',
	difficulty    REAL NOT NULL,
	stability     REAL NOT NULL,
	interval_days INTEGER NOT NULL DEFAULT 1,
	state         TEXT NOT NULL DEFAULT 'new',
	repetitions   INTEGER NOT NULL DEFAULT 0,
	lapses        INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	last_review   INTEGER,
	next_review   INTEGER NOT NULL,
	emotions      TEXT NOT NULL DEFAULT '[]',
	contexts      TEXT NOT NULL DEFAULT '[]',
	seq           INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cards_user_next_review ON cards(user_id, next_review);
CREATE INDEX IF NOT EXISTS idx_cards_seq ON cards(seq);

CREATE TABLE IF NOT EXISTS card_relations (
	card_a     TEXT NOT NULL,
	card_b     TEXT NOT NULL,
	type       TEXT NOT NULL,
	strength   REAL NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (card_a, card_b, type),
	FOREIGN KEY (card_a) REFERENCES cards(id) ON DELETE CASCADE,
	FOREIGN KEY (card_b) REFERENCES cards(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS sleep_schedules (
	user_id    TEXT PRIMARY KEY,
	sleep_time TEXT NOT NULL,
	wake_time  TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLite is a single-file Repository for local and development use.
// Timestamps are stored as Unix nanoseconds.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenSQLite creates or opens the database at path and applies the schema.
func OpenSQLite(path string, logger *zap.Logger) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // one writer at a time

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	logger.Info("SQLite opened", zap.String("path", path))
	return &SQLite{db: db, logger: logger}, nil
}

// SaveCard upserts a card.
func (s *SQLite) SaveCard(ctx context.Context, c card.Card) error {
	blobs, err := encodeBlobs(c)
	if err != nil {
		return fmt.Errorf("save card %s: %w", c.ID, err)
	}
	var last sql.NullInt64
	if c.LastReview != nil {
		last = sql.NullInt64{Int64: c.LastReview.UnixNano(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cards (id, user_id, front, back, difficulty, stability, interval_days, state,
		                   repetitions, lapses, created_at, last_review, next_review, emotions, contexts, seq, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			front = excluded.front,
			back = excluded.back,
			difficulty = excluded.difficulty,
			stability = excluded.stability,
			interval_days = excluded.interval_days,
			state = excluded.state,
			repetitions = excluded.repetitions,
			lapses = excluded.lapses,
			last_review = excluded.last_review,
			next_review = excluded.next_review,
			emotions = excluded.emotions,
			contexts = excluded.contexts,
			updated_at = excluded.updated_at`,
		c.ID, c.UserID, c.Front, c.Back, c.Difficulty, c.Stability, c.Interval, c.State.String(),
		c.Repetitions, c.Lapses, c.CreatedAt.UnixNano(), last, c.NextReview.UnixNano(),
		string(blobs.emotions), string(blobs.contexts), c.Seq, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save card %s: %w", c.ID, err)
	}
	return nil
}

// LoadCards returns every card ordered by creation sequence.
func (s *SQLite) LoadCards(ctx context.Context) ([]card.Card, error) {
	rows, err := s.db.QueryContext(ctx, `
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
			c                  card.Card
			state              string
			created, next      int64
			last               sql.NullInt64
			emotions, contexts string
		)
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Front, &c.Back, &c.Difficulty, &c.Stability, &c.Interval, &state,
			&c.Repetitions, &c.Lapses, &created, &last, &next, &emotions, &contexts, &c.Seq,
		); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		if c.State, err = parseState(state); err != nil {
			return nil, fmt.Errorf("card %s: %w", c.ID, err)
		}
		c.CreatedAt = time.Unix(0, created).UTC()
		c.NextReview = time.Unix(0, next).UTC()
		if last.Valid {
			t := time.Unix(0, last.Int64).UTC()
			c.LastReview = &t
		}
		if err := decodeBlobs(&c, cardBlobs{emotions: []byte(emotions), contexts: []byte(contexts)}); err != nil {
			return nil, fmt.Errorf("card %s: %w", c.ID, err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// DeleteCard removes a card and its relationships.
func (s *SQLite) DeleteCard(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete card %s: %w", id, err)
	}
	return nil
}

// SaveEdge upserts a relationship.
func (s *SQLite) SaveEdge(ctx context.Context, e relation.Edge) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO card_relations (card_a, card_b, type, strength, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(card_a, card_b, type) DO UPDATE SET
			strength = excluded.strength,
			updated_at = excluded.updated_at`,
		e.A, e.B, e.Type, e.Strength, e.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save relation %s-%s: %w", e.A, e.B, err)
	}
	return nil
}

// LoadEdges returns every relationship.
func (s *SQLite) LoadEdges(ctx context.Context) ([]relation.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT card_a, card_b, type, strength, updated_at
		FROM card_relations ORDER BY card_a, card_b, type`)
	if err != nil {
		return nil, fmt.Errorf("load relations: %w", err)
	}
	defer rows.Close()

	var edges []relation.Edge
	for rows.Next() {
		var (
			e       relation.Edge
			updated int64
		)
		if err := rows.Scan(&e.A, &e.B, &e.Type, &e.Strength, &updated); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		e.UpdatedAt = time.Unix(0, updated).UTC()
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// SaveSleepSchedule upserts a user's sleep window.
func (s *SQLite) SaveSleepSchedule(ctx context.Context, userID string, sched sleep.Schedule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sleep_schedules (user_id, sleep_time, wake_time, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			sleep_time = excluded.sleep_time,
			wake_time = excluded.wake_time,
			updated_at = excluded.updated_at`,
		userID, sched.Sleep.String(), sched.Wake.String(), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save sleep schedule %s: %w", userID, err)
	}
	return nil
}

// LoadSleepSchedules returns every stored schedule keyed by user.
func (s *SQLite) LoadSleepSchedules(ctx context.Context) (map[string]sleep.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, sleep_time, wake_time FROM sleep_schedules`)
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

// Close closes the database.
func (s *SQLite) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Warn("sqlite close failed", zap.Error(err))
	}
}
