package relation

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// Neo4jStore mirrors the in-memory graph into Neo4j. Each undirected edge is
// one RELATED_TO relationship from the lower card id to the higher.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewNeo4jStore wraps an open driver.
func NewNeo4jStore(driver neo4j.DriverWithContext, logger *zap.Logger) *Neo4jStore {
	return &Neo4jStore{driver: driver, logger: logger}
}

// Connect opens a driver and verifies connectivity. An empty user connects
// without authentication.
func Connect(ctx context.Context, uri, user, password string) (neo4j.DriverWithContext, error) {
	auth := neo4j.NoAuth()
	if user != "" {
		auth = neo4j.BasicAuth(user, password, "")
	}
	driver, err := neo4j.NewDriverWithContext(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connect: %w", err)
	}
	return driver, nil
}

// SaveEdge upserts an edge.
func (s *Neo4jStore) SaveEdge(ctx context.Context, e Edge) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	k := keyFor(e.A, e.B, e.Type)
	_, err := session.Run(ctx,
		`MERGE (a:Card {id: $lo})
		 MERGE (b:Card {id: $hi})
		 MERGE (a)-[r:RELATED_TO {type: $type}]->(b)
		 SET r.strength = $strength, r.updated_at = datetime($updated)`,
		map[string]any{
			"lo":       k.lo,
			"hi":       k.hi,
			"type":     k.typ,
			"strength": e.Strength,
			"updated":  e.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		})
	if err != nil {
		return fmt.Errorf("save edge: %w", err)
	}
	return nil
}

// LoadEdges reads every persisted edge.
func (s *Neo4jStore) LoadEdges(ctx context.Context) ([]Edge, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (a:Card)-[r:RELATED_TO]->(b:Card)
		 RETURN a.id, b.id, r.type, r.strength, r.updated_at`, nil)
	if err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}

	var edges []Edge
	for result.Next(ctx) {
		rec := result.Record()
		a, _ := rec.Get("a.id")
		b, _ := rec.Get("b.id")
		typ, _ := rec.Get("r.type")
		strength, _ := rec.Get("r.strength")

		aID, ok1 := a.(string)
		bID, ok2 := b.(string)
		if !ok1 || !ok2 {
			continue
		}
		t, _ := typ.(string)
		st, _ := strength.(float64)
		e := Edge{A: aID, B: bID, Type: t, Strength: st}
		if updated, _ := rec.Get("r.updated_at"); updated != nil {
			if ts, ok := updated.(time.Time); ok {
				e.UpdatedAt = ts.UTC()
			}
		}
		edges = append(edges, e)
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("load edges: %w", err)
	}
	return edges, nil
}

// DeleteCard removes a card node and all of its edges.
func (s *Neo4jStore) DeleteCard(ctx context.Context, cardID string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	_, err := session.Run(ctx,
		`MATCH (c:Card {id: $id}) DETACH DELETE c`,
		map[string]any{"id": cardID})
	if err != nil {
		return fmt.Errorf("delete card node: %w", err)
	}
	return nil
}
