package relation

import (
	"errors"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"
)

var now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newGraph() *Graph { return NewGraph(zap.NewNop()) }

func TestCreateIsIdempotentByKey(t *testing.T) {
	g := newGraph()
	if _, err := g.Create("a", "b", "prerequisite", 0.3, now); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Create("b", "a", "prerequisite", 0.7, now); err != nil {
		t.Fatal(err)
	}
	if g.Len() != 1 {
		t.Fatalf("Len = %d, want 1", g.Len())
	}
	for _, id := range []string{"a", "b"} {
		rel := g.Related(id, 0)
		if len(rel) != 1 || rel[0].Strength != 0.7 {
			t.Errorf("Related(%s) = %+v, want one edge at 0.7", id, rel)
		}
	}
}

func TestCreateDistinctTypes(t *testing.T) {
	g := newGraph()
	g.Create("a", "b", "similar", 0.5, now)
	g.Create("a", "b", "contrast", 0.5, now)
	if g.Len() != 2 {
		t.Errorf("Len = %d, want 2", g.Len())
	}
}

func TestCreateRejectsSelf(t *testing.T) {
	g := newGraph()
	if _, err := g.Create("a", "a", "x", 0.5, now); !errors.Is(err, ErrSelfRelation) {
		t.Errorf("err = %v, want ErrSelfRelation", err)
	}
}

func TestCreateClampsStrength(t *testing.T) {
	g := newGraph()
	e, _ := g.Create("a", "b", "x", 1.7, now)
	if e.Strength != 1 {
		t.Errorf("Strength = %f, want 1", e.Strength)
	}
	e, _ = g.Create("a", "b", "x", -0.2, now)
	if e.Strength != 0 {
		t.Errorf("Strength = %f, want 0", e.Strength)
	}
}

func TestRelatedOrderingAndThreshold(t *testing.T) {
	g := newGraph()
	g.Create("a", "b", "x", 0.4, now)
	g.Create("a", "c", "x", 0.9, now)
	g.Create("d", "a", "x", 0.6, now)
	g.Create("a", "e", "x", 0.6, now)

	rel := g.Related("a", 0.5)
	want := []string{"c", "d", "e"}
	if len(rel) != len(want) {
		t.Fatalf("len = %d, want %d", len(rel), len(want))
	}
	for i, id := range want {
		if rel[i].CardID != id {
			t.Errorf("position %d = %s, want %s", i, rel[i].CardID, id)
		}
	}
}

func TestTriggerRecallCapsAtThree(t *testing.T) {
	g := newGraph()
	for i, id := range []string{"b", "c", "d", "e", "f"} {
		g.Create("a", id, "x", 0.5+float64(i)*0.1, now)
	}
	rel := g.TriggerRecall("a")
	if len(rel) != MaxRecallPrompts {
		t.Fatalf("len = %d, want %d", len(rel), MaxRecallPrompts)
	}
	if rel[0].CardID != "f" || rel[2].CardID != "d" {
		t.Errorf("unexpected prompts: %+v", rel)
	}
}

func TestStrengthenClampsAtOne(t *testing.T) {
	g := newGraph()
	g.Create("a", "b", "x", 0.6, now)

	if rel := g.TriggerRecall("a"); len(rel) != 1 || rel[0].CardID != "b" {
		t.Fatalf("TriggerRecall = %+v, want b", rel)
	}
	edges, err := g.Strengthen("b", "a", "", 0.5, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 || edges[0].Strength != 1 {
		t.Errorf("edges = %+v, want strength 1", edges)
	}
	for _, id := range []string{"a", "b"} {
		if s := g.Related(id, 0)[0].Strength; s != 1 {
			t.Errorf("Related(%s) strength = %f, want 1", id, s)
		}
	}
}

func TestStrengthenByType(t *testing.T) {
	g := newGraph()
	g.Create("a", "b", "x", 0.2, now)
	g.Create("a", "b", "y", 0.2, now)
	edges, err := g.Strengthen("a", "b", "y", 0.3, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 1 || edges[0].Type != "y" || math.Abs(edges[0].Strength-0.5) > 1e-9 {
		t.Errorf("edges = %+v", edges)
	}
}

func TestStrengthenUnknown(t *testing.T) {
	g := newGraph()
	g.Create("a", "b", "x", 0.2, now)
	if _, err := g.Strengthen("a", "c", "", 0.1, now); !errors.Is(err, ErrEdgeNotFound) {
		t.Errorf("err = %v, want ErrEdgeNotFound", err)
	}
}

func TestLoadAndEdges(t *testing.T) {
	g := newGraph()
	g.Load([]Edge{
		{A: "z", B: "m", Type: "X", Strength: 0.8},
		{A: "m", B: "z", Type: "x", Strength: 0.4},
		{A: "q", B: "q", Type: "x", Strength: 1},
	})
	edges := g.Edges()
	if len(edges) != 1 {
		t.Fatalf("len = %d, want 1", len(edges))
	}
	if edges[0].A != "m" || edges[0].B != "z" || edges[0].Strength != 0.4 {
		t.Errorf("edge = %+v", edges[0])
	}
	if rel := g.Related("z", 0); len(rel) != 1 || rel[0].CardID != "m" {
		t.Errorf("Related(z) = %+v", rel)
	}
}

func TestRemoveCard(t *testing.T) {
	g := newGraph()
	g.Create("a", "b", "x", 0.6, now)
	g.Create("c", "a", "y", 0.7, now)
	g.Create("b", "c", "x", 0.8, now)

	removed := g.RemoveCard("a")
	if len(removed) != 2 || removed[0].B != "b" || removed[1].B != "c" {
		t.Fatalf("removed = %+v", removed)
	}
	if g.Len() != 1 {
		t.Errorf("Len = %d, want 1", g.Len())
	}
	if rel := g.Related("a", 0); len(rel) != 0 {
		t.Errorf("Related(a) = %+v", rel)
	}
	if rel := g.Related("b", 0); len(rel) != 1 || rel[0].CardID != "c" {
		t.Errorf("Related(b) = %+v", rel)
	}
	if removed := g.RemoveCard("a"); len(removed) != 0 {
		t.Errorf("second remove = %+v", removed)
	}
}

func TestMergeEdgesKeepsNewer(t *testing.T) {
	older := now.Add(-time.Hour)
	stored := []Edge{
		{A: "a", B: "b", Type: "x", Strength: 0.9, UpdatedAt: now},
		{A: "a", B: "c", Type: "x", Strength: 0.2, UpdatedAt: older},
		{A: "a", B: "d", Type: "x", Strength: 0.5, UpdatedAt: now},
	}
	mirror := []Edge{
		{A: "b", B: "a", Type: "X", Strength: 0.1},                   // stale, no timestamp
		{A: "a", B: "c", Type: "x", Strength: 0.6, UpdatedAt: now},   // newer
		{A: "a", B: "d", Type: "x", Strength: 0.3, UpdatedAt: now},   // tie
		{A: "e", B: "a", Type: "x", Strength: 0.4, UpdatedAt: older}, // mirror only
	}
	merged := MergeEdges(stored, mirror)
	want := map[string]float64{"b": 0.9, "c": 0.6, "d": 0.5, "e": 0.4}
	if len(merged) != len(want) {
		t.Fatalf("merged = %+v", merged)
	}
	for _, e := range merged {
		if e.A != "a" || want[e.B] != e.Strength {
			t.Errorf("edge %+v, want strength %v", e, want[e.B])
		}
	}
}
