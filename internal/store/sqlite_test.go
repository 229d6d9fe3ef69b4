package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/nuka-recall/internal/card"
	"github.com/nidhogg/nuka-recall/internal/emotion"
	"github.com/nidhogg/nuka-recall/internal/relation"
	"github.com/nidhogg/nuka-recall/internal/sleep"
	"github.com/nidhogg/nuka-recall/internal/spacing"
)

var _ Repository = (*SQLite)(nil)
var _ Repository = (*Postgres)(nil)

func openTemp(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "recall.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(db.Close)
	return db
}

func TestSQLiteCardsKeepOrderAndFields(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	created := time.Date(2025, 4, 1, 9, 30, 0, 123, time.UTC)
	last := created.Add(48 * time.Hour)
	energy := 0.7

	first := card.Card{
		ID: "b-card", UserID: "u1", Front: "f", Back: "b", Difficulty: 6.2, Stability: 12.5,
		Interval: 12, State: card.Young, Repetitions: 3, Lapses: 1,
		CreatedAt: created, LastReview: &last, NextReview: last.AddDate(0, 0, 12),
		Emotions: []emotion.Record{{Tag: emotion.Curious, Intensity: 0.5, At: last}},
		Contexts: []spacing.Snapshot{{Location: "library", Energy: &energy}},
		Seq:      1,
	}
	second := card.Card{
		ID: "a-card", UserID: "u1", Difficulty: 5, Stability: 1, Interval: 1,
		State: card.New, CreatedAt: created, NextReview: created, Seq: 2,
	}
	for _, c := range []card.Card{second, first} {
		if err := db.SaveCard(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	first.Repetitions = 4
	if err := db.SaveCard(ctx, first); err != nil {
		t.Fatal(err)
	}

	cards, err := db.LoadCards(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cards) != 2 || cards[0].ID != "b-card" || cards[1].ID != "a-card" {
		t.Fatalf("cards = %+v", cards)
	}
	got := cards[0]
	if got.Repetitions != 4 || got.State != card.Young || !got.LastReview.Equal(last) || !got.CreatedAt.Equal(created) {
		t.Errorf("card = %+v", got)
	}
	if len(got.Emotions) != 1 || got.Emotions[0].Tag != emotion.Curious {
		t.Errorf("emotions = %+v", got.Emotions)
	}
	if len(got.Contexts) != 1 || got.Contexts[0].Energy == nil || *got.Contexts[0].Energy != 0.7 {
		t.Errorf("contexts = %+v", got.Contexts)
	}
	if cards[1].LastReview != nil || cards[1].Emotions != nil {
		t.Errorf("new card = %+v", cards[1])
	}
}

func TestSQLiteEdgesAndSchedules(t *testing.T) {
	db := openTemp(t)
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b"} {
		if err := db.SaveCard(ctx, card.Card{ID: id, UserID: "u1", Difficulty: 5, Stability: 1, Interval: 1, State: card.New, CreatedAt: now, NextReview: now}); err != nil {
			t.Fatal(err)
		}
	}

	edge := relation.Edge{A: "a", B: "b", Type: "similar", Strength: 0.4, UpdatedAt: now}
	if err := db.SaveEdge(ctx, edge); err != nil {
		t.Fatal(err)
	}
	edge.Strength = 0.9
	if err := db.SaveEdge(ctx, edge); err != nil {
		t.Fatal(err)
	}
	edges, err := db.LoadEdges(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 || edges[0].Strength != 0.9 {
		t.Errorf("edges = %+v", edges)
	}

	if err := db.DeleteCard(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if edges, _ := db.LoadEdges(ctx); len(edges) != 0 {
		t.Errorf("edges should cascade with card delete: %+v", edges)
	}

	sched, _ := sleep.NewSchedule("22:30", "06:15")
	if err := db.SaveSleepSchedule(ctx, "u1", sched); err != nil {
		t.Fatal(err)
	}
	all, err := db.LoadSleepSchedules(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if all["u1"] != sched {
		t.Errorf("schedule = %+v, want %+v", all["u1"], sched)
	}
}
