package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/nuka-recall/internal/card"
	"github.com/nidhogg/nuka-recall/internal/events"
	"github.com/nidhogg/nuka-recall/internal/relation"
	"github.com/nidhogg/nuka-recall/internal/review"
	"github.com/nidhogg/nuka-recall/internal/sleep"
)

var fixedNow = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

// memRepo is an in-memory store.Repository that records writes.
type memRepo struct {
	mu        sync.Mutex
	cards     map[string]card.Card
	edges     []relation.Edge
	schedules map[string]sleep.Schedule
}

func newMemRepo() *memRepo {
	return &memRepo{cards: map[string]card.Card{}, schedules: map[string]sleep.Schedule{}}
}

func (m *memRepo) SaveCard(_ context.Context, c card.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cards[c.ID] = c
	return nil
}

func (m *memRepo) LoadCards(context.Context) ([]card.Card, error) { return nil, nil }

func (m *memRepo) DeleteCard(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cards, id)
	return nil
}

func (m *memRepo) SaveEdge(_ context.Context, e relation.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = append(m.edges, e)
	return nil
}

func (m *memRepo) LoadEdges(context.Context) ([]relation.Edge, error) { return nil, nil }

func (m *memRepo) SaveSleepSchedule(_ context.Context, user string, s sleep.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[user] = s
	return nil
}

func (m *memRepo) LoadSleepSchedules(context.Context) (map[string]sleep.Schedule, error) {
	return nil, nil
}

func (m *memRepo) Close() {}

type memBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *memBus) Publish(_ context.Context, ev events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return nil
}

func (b *memBus) kinds() []events.Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.Kind, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Kind
	}
	return out
}

type memMirror struct {
	mu      sync.Mutex
	saved   int
	deleted []string
}

func (m *memMirror) SaveEdge(context.Context, relation.Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved++
	return nil
}

func (m *memMirror) DeleteCard(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	return nil
}

type testEnv struct {
	ts   *httptest.Server
	svc  *review.Service
	repo *memRepo
	bus  *memBus
}

// newTestEnv creates a Handler wired with in-memory deps (no Postgres/Neo4j/Redis).
func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	svc, err := review.NewService(review.Config{Now: func() time.Time { return fixedNow }}, logger)
	if err != nil {
		t.Fatal(err)
	}
	repo := newMemRepo()
	bus := &memBus{}
	opts = append([]Option{WithRepository(repo), WithPublisher(bus)}, opts...)
	h := NewHandler(svc, logger, opts...)
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, svc: svc, repo: repo, bus: bus}
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, _ := http.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	return doJSON(t, http.MethodPost, ts.URL+path, body)
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		t.Fatalf("expected %d, got %d (%v)", want, resp.StatusCode, body)
	}
}

func createCard(t *testing.T, env *testEnv, user string) card.Card {
	t.Helper()
	resp := postJSON(t, env.ts, "/api/cards", map[string]string{"user_id": user, "front": "q", "back": "a"})
	expectStatus(t, resp, http.StatusCreated)
	var c card.Card
	decodeJSON(t, resp, &c)
	return c
}

// --- Tests ---

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	resp := getJSON(t, env.ts, "/api/health")
	expectStatus(t, resp, http.StatusOK)
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestCardCreateAndGet(t *testing.T) {
	env := newTestEnv(t)
	c := createCard(t, env, "u1")
	if c.ID == "" || c.State != card.New {
		t.Fatalf("unexpected card %+v", c)
	}
	if _, ok := env.repo.cards[c.ID]; !ok {
		t.Error("created card was not persisted")
	}

	resp := getJSON(t, env.ts, "/api/cards/"+c.ID)
	expectStatus(t, resp, http.StatusOK)
	var got card.Card
	decodeJSON(t, resp, &got)
	if got.ID != c.ID || got.Retrievability != 1 {
		t.Errorf("got %+v", got)
	}

	resp = getJSON(t, env.ts, "/api/cards/missing")
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = postJSON(t, env.ts, "/api/cards", map[string]string{"front": "x"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = getJSON(t, env.ts, "/api/users/u1/cards")
	var list []card.Card
	decodeJSON(t, resp, &list)
	if len(list) != 1 {
		t.Errorf("expected 1 card, got %d", len(list))
	}
}

func TestReviewFlow(t *testing.T) {
	env := newTestEnv(t)
	c := createCard(t, env, "u1")

	resp := postJSON(t, env.ts, "/api/cards/"+c.ID+"/review", map[string]interface{}{
		"quality": "easy",
		"context": map[string]interface{}{"location": "Library", "device": "phone", "energy": 0.8},
		"emotion": "mystified",
	})
	expectStatus(t, resp, http.StatusOK)
	var res struct {
		NewInterval   int                `json:"new_interval"`
		NextReview    time.Time          `json:"next_review"`
		Difficulty    float64            `json:"difficulty"`
		Stability     float64            `json:"stability"`
		State         string             `json:"state"`
		RelatedRecall []relation.Related `json:"related_recall"`
	}
	decodeJSON(t, resp, &res)
	if res.NewInterval != 6 || res.State != "young" {
		t.Errorf("result = %+v", res)
	}
	if !res.NextReview.Equal(fixedNow.AddDate(0, 0, 6)) {
		t.Errorf("next_review = %v", res.NextReview)
	}
	if res.RelatedRecall == nil {
		t.Error("related_recall should be an empty list, not null")
	}

	saved := env.repo.cards[c.ID]
	if saved.Repetitions != 1 || len(saved.Contexts) != 1 || saved.Contexts[0].Location != "library" {
		t.Errorf("persisted card = %+v", saved)
	}
	kinds := env.bus.kinds()
	if len(kinds) != 2 || kinds[1] != events.KindReviewed {
		t.Errorf("events = %v", kinds)
	}

	resp = getJSON(t, env.ts, "/api/users/u1/due")
	var due []card.Card
	decodeJSON(t, resp, &due)
	if len(due) != 0 {
		t.Errorf("reviewed card still due: %d", len(due))
	}
}

func TestReviewErrors(t *testing.T) {
	env := newTestEnv(t)
	c := createCard(t, env, "u1")

	resp := postJSON(t, env.ts, "/api/cards/"+c.ID+"/review", map[string]string{"quality": "superb"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = postJSON(t, env.ts, "/api/cards/nope/review", map[string]string{"quality": "easy"})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, env.ts.URL+"/api/cards/"+c.ID+"/review", "not an object")
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	got, _ := env.svc.GetCard(c.ID)
	if got.LastReview != nil {
		t.Error("failed reviews must not touch the card")
	}
}

func TestEmotionTagging(t *testing.T) {
	env := newTestEnv(t)
	c := createCard(t, env, "u1")

	resp := postJSON(t, env.ts, "/api/cards/"+c.ID+"/emotions", map[string]interface{}{"tag": "Curious", "intensity": 0.4})
	expectStatus(t, resp, http.StatusOK)
	var got card.Card
	decodeJSON(t, resp, &got)
	if len(got.Emotions) != 1 || got.Emotions[0].Intensity != 0.4 {
		t.Errorf("emotions = %+v", got.Emotions)
	}

	resp = postJSON(t, env.ts, "/api/cards/"+c.ID+"/emotions", map[string]string{"tag": "mystified"})
	expectStatus(t, resp, http.StatusOK)
	decodeJSON(t, resp, &got)
	if len(got.Emotions) != 1 {
		t.Errorf("unknown tag should be ignored, emotions = %+v", got.Emotions)
	}
}

func TestRelationships(t *testing.T) {
	env := newTestEnv(t)
	a := createCard(t, env, "u1")
	b := createCard(t, env, "u1")

	resp := postJSON(t, env.ts, "/api/relationships", map[string]interface{}{"card_a": a.ID, "card_b": b.ID, "type": "similar"})
	expectStatus(t, resp, http.StatusCreated)
	var e relation.Edge
	decodeJSON(t, resp, &e)
	if e.Strength != relation.DefaultStrength {
		t.Errorf("default strength = %f", e.Strength)
	}

	resp = postJSON(t, env.ts, "/api/relationships", map[string]interface{}{"card_a": b.ID, "card_b": a.ID, "type": "similar", "strength": 0.6})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = getJSON(t, env.ts, "/api/cards/"+a.ID+"/related?min_strength=0.5")
	var rel []relation.Related
	decodeJSON(t, resp, &rel)
	if len(rel) != 1 || rel[0].CardID != b.ID || rel[0].Strength != 0.6 {
		t.Fatalf("related = %+v", rel)
	}

	resp = postJSON(t, env.ts, "/api/cards/"+a.ID+"/review", map[string]string{"quality": "moderate"})
	var res review.Result
	decodeJSON(t, resp, &res)
	if len(res.RelatedRecall) != 1 || res.RelatedRecall[0].CardID != b.ID {
		t.Errorf("related_recall = %+v", res.RelatedRecall)
	}

	resp = postJSON(t, env.ts, "/api/relationships/strengthen", map[string]interface{}{"card_a": a.ID, "card_b": b.ID, "delta": 0.5})
	expectStatus(t, resp, http.StatusOK)
	var edges []relation.Edge
	decodeJSON(t, resp, &edges)
	if len(edges) != 1 || edges[0].Strength != 1 {
		t.Errorf("strengthened = %+v", edges)
	}
	if len(env.repo.edges) != 3 {
		t.Errorf("persisted edge writes = %d, want 3", len(env.repo.edges))
	}

	resp = postJSON(t, env.ts, "/api/relationships", map[string]interface{}{"card_a": a.ID, "card_b": a.ID, "type": "x"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = postJSON(t, env.ts, "/api/relationships", map[string]interface{}{"card_a": a.ID, "card_b": "ghost", "type": "x"})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = postJSON(t, env.ts, "/api/relationships/strengthen", map[string]interface{}{"card_a": a.ID, "card_b": "ghost", "delta": 0.1})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestForecastAndQueues(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		createCard(t, env, "u1")
	}

	resp := getJSON(t, env.ts, "/api/users/u1/forecast")
	expectStatus(t, resp, http.StatusOK)
	var days []struct {
		Date             string `json:"date"`
		DueCount         int    `json:"due_count"`
		EstimatedMinutes int    `json:"estimated_minutes"`
		Load             string `json:"load"`
	}
	decodeJSON(t, resp, &days)
	if len(days) != 8 || days[0].DueCount != 3 || days[0].Load != "light" || days[0].EstimatedMinutes != 2 {
		t.Errorf("forecast = %+v", days)
	}

	resp = getJSON(t, env.ts, "/api/users/u1/due?limit=2")
	var due []card.Card
	decodeJSON(t, resp, &due)
	if len(due) != 2 {
		t.Errorf("due = %d, want 2", len(due))
	}

	resp = getJSON(t, env.ts, "/api/users/u1/due?limit=lots")
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = getJSON(t, env.ts, "/api/users/u1/suggestions")
	expectStatus(t, resp, http.StatusOK)
	var sug struct {
		Phase struct {
			Phase string `json:"phase"`
		} `json:"phase"`
		Cards []card.Card `json:"cards"`
	}
	decodeJSON(t, resp, &sug)
	if sug.Phase.Phase != "midday" || len(sug.Cards) != 3 {
		t.Errorf("suggestions = %+v", sug)
	}

	resp = getJSON(t, env.ts, "/api/users/u1/stats")
	var st review.Stats
	decodeJSON(t, resp, &st)
	if st.Total != 3 || st.DueNow != 3 || st.ByState["new"] != 3 {
		t.Errorf("stats = %+v", st)
	}

	resp = getJSON(t, env.ts, "/api/users/nobody/due")
	var empty []card.Card
	decodeJSON(t, resp, &empty)
	if empty == nil || len(empty) != 0 {
		t.Errorf("expected empty list, got %v", empty)
	}
}

func TestSleepScheduleAndPhase(t *testing.T) {
	env := newTestEnv(t)

	resp := doJSON(t, http.MethodPut, env.ts.URL+"/api/users/u1/sleep", map[string]string{"sleep_time": "11:00", "wake_time": "03:00"})
	expectStatus(t, resp, http.StatusOK)
	var sched map[string]string
	decodeJSON(t, resp, &sched)
	if sched["sleep_time"] != "11:00" || sched["wake_time"] != "03:00" {
		t.Errorf("schedule = %v", sched)
	}
	if _, ok := env.repo.schedules["u1"]; !ok {
		t.Error("schedule was not persisted")
	}

	// 10:00 is the hour before an 11:00 bedtime.
	resp = getJSON(t, env.ts, "/api/users/u1/phase")
	var info map[string]interface{}
	decodeJSON(t, resp, &info)
	if info["phase"] != "pre_sleep" {
		t.Errorf("phase = %v", info)
	}

	resp = doJSON(t, http.MethodPut, env.ts.URL+"/api/users/u1/sleep", map[string]string{"sleep_time": "bed", "wake_time": "07:00"})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestRecordContext(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 10; i++ {
		resp := postJSON(t, env.ts, "/api/users/u1/context", map[string]interface{}{
			"context":   map[string]interface{}{"location": "cafe", "time_of_day": 9},
			"retention": 0.4,
		})
		expectStatus(t, resp, http.StatusAccepted)
		resp.Body.Close()
	}

	resp := getJSON(t, env.ts, "/api/users/u1/correlations")
	var corr map[string]map[string]float64
	decodeJSON(t, resp, &corr)
	if v := corr["location"]["cafe"]; v < 0.39 || v > 0.41 {
		t.Errorf("correlations = %v", corr)
	}
	if _, ok := corr["time_of_day"]["morning"]; !ok {
		t.Errorf("time of day should be bucketed: %v", corr)
	}
}

func TestDueNotify(t *testing.T) {
	env := newTestEnv(t)
	resp := postJSON(t, env.ts, "/api/due/notify", nil)
	expectStatus(t, resp, http.StatusServiceUnavailable)
	resp.Body.Close()

	logger := zap.NewNop()
	svc, err := review.NewService(review.Config{Now: func() time.Time { return fixedNow }}, logger)
	if err != nil {
		t.Fatal(err)
	}
	var mu sync.Mutex
	notified := map[string]int{}
	watcher := review.NewDueWatcher(svc, time.Minute, func(_ context.Context, user string, due int, _ time.Time) error {
		mu.Lock()
		defer mu.Unlock()
		notified[user] = due
		return nil
	}, logger)
	ts := httptest.NewServer(NewHandler(svc, logger, WithDueWatcher(watcher)).Router())
	defer ts.Close()
	if _, err := svc.CreateCard("u1", "q", "a"); err != nil {
		t.Fatal(err)
	}

	resp = postJSON(t, ts, "/api/due/notify", nil)
	expectStatus(t, resp, http.StatusOK)
	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	if body["users_notified"] != float64(1) {
		t.Errorf("body = %v", body)
	}
	mu.Lock()
	defer mu.Unlock()
	if notified["u1"] != 1 {
		t.Errorf("notified = %v", notified)
	}
}

func TestDeleteCard(t *testing.T) {
	mirror := &memMirror{}
	env := newTestEnv(t, WithGraphMirror(mirror))
	a := createCard(t, env, "u1")
	b := createCard(t, env, "u1")
	resp := postJSON(t, env.ts, "/api/relationships", map[string]interface{}{"card_a": a.ID, "card_b": b.ID, "type": "similar"})
	expectStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, env.ts.URL+"/api/cards/"+a.ID, nil)
	expectStatus(t, resp, http.StatusOK)
	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	if body["card_id"] != a.ID || body["relationships"] != float64(1) {
		t.Errorf("body = %v", body)
	}

	if _, ok := env.repo.cards[a.ID]; ok {
		t.Error("card still in repository")
	}
	if len(mirror.deleted) != 1 || mirror.deleted[0] != a.ID {
		t.Errorf("mirror deletes = %v", mirror.deleted)
	}

	resp = getJSON(t, env.ts, "/api/cards/"+a.ID)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()

	resp = getJSON(t, env.ts, "/api/cards/"+b.ID+"/related")
	var rel []relation.Related
	decodeJSON(t, resp, &rel)
	if len(rel) != 0 {
		t.Errorf("related after delete = %+v", rel)
	}

	resp = getJSON(t, env.ts, "/api/users/u1/cards")
	var list []card.Card
	decodeJSON(t, resp, &list)
	if len(list) != 1 || list[0].ID != b.ID {
		t.Errorf("cards after delete = %+v", list)
	}

	resp = doJSON(t, http.MethodDelete, env.ts.URL+"/api/cards/"+a.ID, nil)
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestForecastDaysBounded(t *testing.T) {
	env := newTestEnv(t)
	createCard(t, env, "u1")
	resp := getJSON(t, env.ts, "/api/users/u1/forecast?days=1000000000")
	expectStatus(t, resp, http.StatusOK)
	var days []map[string]interface{}
	decodeJSON(t, resp, &days)
	if len(days) != 36501 {
		t.Errorf("len = %d, want 36501", len(days))
	}
}
