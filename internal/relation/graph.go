// Package relation keeps the undirected, weighted graph of related cards used
// to surface recall prompts after a review.
package relation

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrSelfRelation = errors.New("relation: card cannot relate to itself")
	ErrEdgeNotFound = errors.New("relation: edge not found")
)

const (
	// DefaultStrength is used when a relationship is created without one.
	DefaultStrength = 0.5
	// RecallThreshold is the minimum strength for a recall prompt.
	RecallThreshold = 0.5
	// MaxRecallPrompts caps the prompts returned after a review.
	MaxRecallPrompts = 3
)

// Edge is one undirected relationship. A and B are stored in sorted order so
// the pair is order-independent.
type Edge struct {
	A         string    `json:"card_a"`
	B         string    `json:"card_b"`
	Type      string    `json:"type"`
	Strength  float64   `json:"strength"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Other returns the endpoint opposite id.
func (e Edge) Other(id string) string {
	if e.A == id {
		return e.B
	}
	return e.A
}

// Related is an edge seen from one of its endpoints.
type Related struct {
	CardID   string  `json:"card_id"`
	Type     string  `json:"relationship"`
	Strength float64 `json:"strength"`
}

type edgeKey struct {
	lo, hi, typ string
}

func keyFor(a, b, typ string) edgeKey {
	if b < a {
		a, b = b, a
	}
	return edgeKey{lo: a, hi: b, typ: typ}
}

// Graph holds relationships in memory. Each edge is stored once; the
// adjacency index lists the keys touching each card.
type Graph struct {
	edges  map[edgeKey]*Edge
	adj    map[string]map[edgeKey]struct{}
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewGraph creates an empty graph.
func NewGraph(logger *zap.Logger) *Graph {
	return &Graph{
		edges:  make(map[edgeKey]*Edge),
		adj:    make(map[string]map[edgeKey]struct{}),
		logger: logger,
	}
}

// Create inserts the edge between a and b, or overwrites its strength if the
// (a, b, type) edge already exists in either direction.
func (g *Graph) Create(a, b, typ string, strength float64, now time.Time) (Edge, error) {
	if a == b {
		return Edge{}, fmt.Errorf("%w: %s", ErrSelfRelation, a)
	}
	typ = normalizeType(typ)
	k := keyFor(a, b, typ)

	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.edges[k]
	if !ok {
		e = &Edge{A: k.lo, B: k.hi, Type: typ}
		g.edges[k] = e
		g.link(k.lo, k)
		g.link(k.hi, k)
	}
	e.Strength = clamp(strength)
	e.UpdatedAt = now

	g.logger.Debug("relationship set",
		zap.String("a", e.A),
		zap.String("b", e.B),
		zap.String("type", typ),
		zap.Float64("strength", e.Strength))
	return *e, nil
}

// Load inserts persisted edges, overwriting any with the same key.
func (g *Graph) Load(edges []Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, in := range edges {
		if in.A == in.B {
			continue
		}
		typ := normalizeType(in.Type)
		k := keyFor(in.A, in.B, typ)
		e := &Edge{A: k.lo, B: k.hi, Type: typ, Strength: clamp(in.Strength), UpdatedAt: in.UpdatedAt}
		if _, ok := g.edges[k]; !ok {
			g.link(k.lo, k)
			g.link(k.hi, k)
		}
		g.edges[k] = e
	}
}

// Related returns every edge touching card with strength >= minStrength,
// strongest first. Ties are ordered by related card id, then type.
func (g *Graph) Related(card string, minStrength float64) []Related {
	g.mu.RLock()
	out := make([]Related, 0, len(g.adj[card]))
	for k := range g.adj[card] {
		e := g.edges[k]
		if e.Strength < minStrength {
			continue
		}
		out = append(out, Related{CardID: e.Other(card), Type: e.Type, Strength: e.Strength})
	}
	g.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Strength != out[j].Strength {
			return out[i].Strength > out[j].Strength
		}
		if out[i].CardID != out[j].CardID {
			return out[i].CardID < out[j].CardID
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// TriggerRecall returns up to MaxRecallPrompts of the strongest relationships
// at or above RecallThreshold.
func (g *Graph) TriggerRecall(card string) []Related {
	rel := g.Related(card, RecallThreshold)
	if len(rel) > MaxRecallPrompts {
		rel = rel[:MaxRecallPrompts]
	}
	return rel
}

// Strengthen adds delta to every edge between a and b, clamping to [0, 1].
// An empty typ matches all types.
func (g *Graph) Strengthen(a, b, typ string, delta float64, now time.Time) ([]Edge, error) {
	if a == b {
		return nil, fmt.Errorf("%w: %s", ErrSelfRelation, a)
	}
	lo, hi := a, b
	if hi < lo {
		lo, hi = hi, lo
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var out []Edge
	for k := range g.adj[lo] {
		if k.lo != lo || k.hi != hi {
			continue
		}
		if typ != "" && k.typ != normalizeType(typ) {
			continue
		}
		e := g.edges[k]
		e.Strength = clamp(e.Strength + delta)
		e.UpdatedAt = now
		out = append(out, *e)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s-%s", ErrEdgeNotFound, a, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

// Edges returns a copy of every edge, ordered by endpoints then type.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	out := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		out = append(out, *e)
	}
	g.mu.RUnlock()

	sortEdges(out)
	return out
}

// MergeEdges combines two edge sets keyed like the graph. On a key collision
// the edge with the later UpdatedAt wins; ties go to primary. The result is
// sorted by key.
func MergeEdges(primary, secondary []Edge) []Edge {
	merged := make(map[edgeKey]Edge, len(primary)+len(secondary))
	order := make([]edgeKey, 0, len(primary)+len(secondary))
	add := func(e Edge, preferExisting bool) {
		if e.A == e.B {
			return
		}
		k := keyFor(e.A, e.B, normalizeType(e.Type))
		e.A, e.B, e.Type = k.lo, k.hi, k.typ
		cur, ok := merged[k]
		if !ok {
			order = append(order, k)
			merged[k] = e
			return
		}
		if e.UpdatedAt.After(cur.UpdatedAt) || (!preferExisting && e.UpdatedAt.Equal(cur.UpdatedAt)) {
			merged[k] = e
		}
	}
	for _, e := range primary {
		add(e, false)
	}
	for _, e := range secondary {
		add(e, true)
	}

	out := make([]Edge, 0, len(order))
	for _, k := range order {
		out = append(out, merged[k])
	}
	sortEdges(out)
	return out
}

// sortEdges orders edges by key.
func sortEdges(out []Edge) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		if out[i].B != out[j].B {
			return out[i].B < out[j].B
		}
		return out[i].Type < out[j].Type
	})
}

// Len returns the number of edges.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// RemoveCard drops every edge touching card and returns them.
func (g *Graph) RemoveCard(card string) []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()

	keys := g.adj[card]
	removed := make([]Edge, 0, len(keys))
	for k := range keys {
		if e, ok := g.edges[k]; ok {
			removed = append(removed, *e)
			delete(g.edges, k)
		}
		other := k.lo
		if other == card {
			other = k.hi
		}
		if set := g.adj[other]; set != nil {
			delete(set, k)
			if len(set) == 0 {
				delete(g.adj, other)
			}
		}
	}
	delete(g.adj, card)
	sortEdges(removed)
	return removed
}

func (g *Graph) link(card string, k edgeKey) {
	set, ok := g.adj[card]
	if !ok {
		set = make(map[edgeKey]struct{})
		g.adj[card] = set
	}
	set[k] = struct{}{}
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return "related"
	}
	return t
}

func clamp(s float64) float64 {
	switch {
	case s != s || s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
