package card

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

var t0 = time.Date(2025, 5, 10, 12, 0, 0, 0, time.UTC)

func newStore() *Store { return NewStore(zap.NewNop()) }

func TestCreateDefaults(t *testing.T) {
	s := newStore()
	c := s.Create("u1", "front", "back", t0)
	if c.ID == "" {
		t.Fatal("Create should assign an id")
	}
	if c.State != New || c.Repetitions != 0 || c.Lapses != 0 {
		t.Errorf("unexpected lifecycle fields: %+v", c)
	}
	if c.Difficulty != DefaultDifficulty || c.Stability != DefaultStability || c.Interval != 1 {
		t.Errorf("unexpected defaults: d=%f s=%f i=%d", c.Difficulty, c.Stability, c.Interval)
	}
	if !c.IsDue(t0) {
		t.Error("a new card should be due immediately")
	}
	if c.RetrievabilityAt(t0.Add(72*time.Hour)) != 1 {
		t.Error("an unreviewed card should report retrievability 1")
	}
}

func TestGetUnknown(t *testing.T) {
	s := newStore()
	if _, err := s.Get("missing"); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("err = %v, want ErrCardNotFound", err)
	}
	if _, err := s.Update("missing", func(*Card) error { return nil }); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("Update err = %v, want ErrCardNotFound", err)
	}
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	s := newStore()
	c := s.Create("u1", "f", "b", t0)

	boom := errors.New("boom")
	_, err := s.Update(c.ID, func(c *Card) error {
		c.Difficulty = 9
		c.Interval = 40
		c.Repetitions = 3
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	got, _ := s.Get(c.ID)
	if got.Difficulty != DefaultDifficulty || got.Interval != 1 || got.Repetitions != 0 {
		t.Errorf("failed update leaked fields: %+v", got)
	}

	updated, err := s.Update(c.ID, func(c *Card) error {
		c.Interval = 4
		c.ID = "hijack"
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Interval != 4 || updated.ID != c.ID {
		t.Errorf("unexpected committed card: %+v", updated)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := newStore()
	c := s.Create("u1", "f", "b", t0)
	_, _ = s.Update(c.ID, func(c *Card) error {
		now := t0
		c.LastReview = &now
		return nil
	})
	a, _ := s.Get(c.ID)
	*a.LastReview = t0.Add(time.Hour)
	b, _ := s.Get(c.ID)
	if !b.LastReview.Equal(t0) {
		t.Error("mutating a returned card must not affect the store")
	}
}

func TestListByUserCreationOrder(t *testing.T) {
	s := newStore()
	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, s.Create("u1", "f", "b", t0).ID)
	}
	s.Create("u2", "f", "b", t0)

	list := s.ListByUser("u1")
	if len(list) != 5 {
		t.Fatalf("len = %d, want 5", len(list))
	}
	for i, c := range list {
		if c.ID != ids[i] {
			t.Errorf("position %d: %s, want %s", i, c.ID, ids[i])
		}
	}
	if users := s.Users(); len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Errorf("Users = %v", users)
	}
}

func TestInsert(t *testing.T) {
	s := newStore()
	last := t0.Add(-48 * time.Hour)
	err := s.Insert(Card{
		ID: "c1", UserID: "u1", Difficulty: 14, Stability: -2, Interval: 0,
		State: Young, LastReview: &last, NextReview: t0, Seq: 7,
	})
	if err != nil {
		t.Fatal(err)
	}
	c, _ := s.Get("c1")
	if c.Difficulty != 10 || c.Stability != DefaultStability || c.Interval != 1 {
		t.Errorf("Insert should clamp degenerate fields: %+v", c)
	}
	if err := s.Insert(Card{ID: "c1", UserID: "u1"}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("err = %v, want ErrDuplicateID", err)
	}
	next := s.Create("u1", "f", "b", t0)
	if next.Seq <= 7 {
		t.Errorf("Seq after insert = %d, want > 7", next.Seq)
	}
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	s := newStore()
	c := s.Create("u1", "f", "b", t0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(c.ID, func(c *Card) error {
				c.Repetitions++
				return nil
			})
		}()
	}
	wg.Wait()
	got, _ := s.Get(c.ID)
	if got.Repetitions != 50 {
		t.Errorf("Repetitions = %d, want 50", got.Repetitions)
	}
}

func TestAddContextCaps(t *testing.T) {
	var c Card
	for i := 0; i < maxContexts+5; i++ {
		c.AddContext(spacingSnapshot("loc"))
	}
	if len(c.Contexts) != maxContexts {
		t.Errorf("len = %d, want %d", len(c.Contexts), maxContexts)
	}
}

func TestDelete(t *testing.T) {
	s := newStore()
	a := s.Create("u1", "a", "1", t0)
	b := s.Create("u1", "b", "2", t0)
	only := s.Create("u2", "c", "3", t0)

	got, err := s.Delete(a.ID)
	if err != nil || got.ID != a.ID {
		t.Fatalf("Delete = %+v, %v", got, err)
	}
	if s.Exists(a.ID) || s.Len() != 2 {
		t.Errorf("card still present, Len = %d", s.Len())
	}
	if list := s.ListByUser("u1"); len(list) != 1 || list[0].ID != b.ID {
		t.Errorf("ListByUser = %+v", list)
	}
	if _, err := s.Update(a.ID, func(*Card) error { return nil }); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("Update after delete err = %v", err)
	}
	if _, err := s.Delete(a.ID); !errors.Is(err, ErrCardNotFound) {
		t.Errorf("second Delete err = %v", err)
	}

	s.Delete(only.ID)
	if users := s.Users(); len(users) != 1 || users[0] != "u1" {
		t.Errorf("Users = %v", users)
	}
}
