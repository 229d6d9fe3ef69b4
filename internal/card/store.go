package card

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sentinel errors for the card store.
var (
	ErrCardNotFound = errors.New("card: not found")
	ErrDuplicateID  = errors.New("card: duplicate id")
)

// entry guards one card. Holding mu serializes reviews of that card.
type entry struct {
	mu   sync.Mutex
	card Card
}

// Store owns all cards in memory. Writes to a card go through Update, which
// holds that card's lock for the whole read-modify-write; different cards
// never contend beyond the brief map lookup.
type Store struct {
	cards  map[string]*entry
	byUser map[string][]string // creation order
	seq    int64
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewStore creates an empty card store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		cards:  make(map[string]*entry),
		byUser: make(map[string][]string),
		logger: logger,
	}
}

// Create adds a new card in state New, due immediately.
func (s *Store) Create(userID, front, back string, now time.Time) Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	c := Card{
		ID:             uuid.New().String(),
		UserID:         userID,
		Front:          front,
		Back:           back,
		Difficulty:     DefaultDifficulty,
		Stability:      DefaultStability,
		Retrievability: 1,
		Interval:       1,
		State:          New,
		CreatedAt:      now,
		NextReview:     now,
		Seq:            s.seq,
	}
	s.cards[c.ID] = &entry{card: c}
	s.byUser[userID] = append(s.byUser[userID], c.ID)

	s.logger.Debug("card created",
		zap.String("card", c.ID),
		zap.String("user", userID))
	return c.Clone()
}

// Insert restores a previously persisted card. Cards must be inserted in
// creation order per user; Seq is reassigned when zero.
func (s *Store) Insert(c Card) error {
	if c.ID == "" {
		return fmt.Errorf("card: insert without id")
	}
	if !c.State.IsValid() {
		c.State = New
	}
	if c.Interval < 1 {
		c.Interval = 1
	}
	c.Difficulty = clampDifficulty(c.Difficulty)
	if c.Stability <= 0 {
		c.Stability = DefaultStability
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cards[c.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, c.ID)
	}
	if c.Seq == 0 {
		c.Seq = s.seq + 1
	}
	if c.Seq > s.seq {
		s.seq = c.Seq
	}
	s.cards[c.ID] = &entry{card: c.Clone()}
	s.byUser[c.UserID] = append(s.byUser[c.UserID], c.ID)
	return nil
}

// Get returns a copy of the card.
func (s *Store) Get(id string) (Card, error) {
	e := s.entry(id)
	if e == nil {
		return Card{}, fmt.Errorf("%w: %s", ErrCardNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.card.Clone(), nil
}

// Exists reports whether id is a known card.
func (s *Store) Exists(id string) bool {
	return s.entry(id) != nil
}

// Update applies fn to a copy of the card under the card's lock and commits
// the copy only if fn returns nil. Either every field fn changed is written
// or none is.
func (s *Store) Update(id string, fn func(c *Card) error) (Card, error) {
	e := s.entry(id)
	if e == nil {
		return Card{}, fmt.Errorf("%w: %s", ErrCardNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.card.Clone()
	if err := fn(&next); err != nil {
		return Card{}, err
	}
	next.ID = e.card.ID
	next.UserID = e.card.UserID
	next.Seq = e.card.Seq
	e.card = next
	return next.Clone(), nil
}

// Delete removes the card and returns its last committed state.
func (s *Store) Delete(id string) (Card, error) {
	s.mu.Lock()
	e, ok := s.cards[id]
	if !ok {
		s.mu.Unlock()
		return Card{}, fmt.Errorf("%w: %s", ErrCardNotFound, id)
	}
	delete(s.cards, id)
	user := e.card.UserID // immutable after creation
	ids := s.byUser[user]
	for i, cid := range ids {
		if cid == id {
			ids = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.byUser, user)
	} else {
		s.byUser[user] = ids
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.card.Clone(), nil
}

// ListByUser returns copies of the user's cards in creation order.
func (s *Store) ListByUser(userID string) []Card {
	s.mu.RLock()
	ids := append([]string(nil), s.byUser[userID]...)
	entries := make([]*entry, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.cards[id]; ok {
			entries = append(entries, e)
		}
	}
	s.mu.RUnlock()

	out := make([]Card, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.card.Clone())
		e.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Users returns every user id that owns at least one card, sorted.
func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.byUser))
	for u := range s.byUser {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Len returns the number of cards.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cards)
}

func (s *Store) entry(id string) *entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cards[id]
}

func clampDifficulty(d float64) float64 {
	switch {
	case d < 1:
		return 1
	case d > 10:
		return 10
	default:
		return d
	}
}
