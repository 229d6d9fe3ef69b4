package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-recall/internal/card"
	"github.com/nidhogg/nuka-recall/internal/emotion"
	"github.com/nidhogg/nuka-recall/internal/events"
	"github.com/nidhogg/nuka-recall/internal/fsrs"
	"github.com/nidhogg/nuka-recall/internal/relation"
	"github.com/nidhogg/nuka-recall/internal/review"
	"github.com/nidhogg/nuka-recall/internal/sleep"
	"github.com/nidhogg/nuka-recall/internal/store"
)

// GraphMirror receives every relationship change, e.g. a Neo4j store.
type GraphMirror interface {
	SaveEdge(ctx context.Context, e relation.Edge) error
	DeleteCard(ctx context.Context, cardID string) error
}

// Publisher receives review activity, e.g. the Redis event bus.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Handler holds dependencies for HTTP handlers. Every dependency except the
// service is optional; side effects on them are best effort and logged.
type Handler struct {
	svc     *review.Service
	repo    store.Repository
	graph   GraphMirror
	bus     Publisher
	watcher *review.DueWatcher
	logger  *zap.Logger
}

// Option configures optional Handler dependencies.
type Option func(*Handler)

// WithRepository persists cards, relationships and schedules after changes.
func WithRepository(repo store.Repository) Option { return func(h *Handler) { h.repo = repo } }

// WithGraphMirror mirrors relationship changes.
func WithGraphMirror(g GraphMirror) Option { return func(h *Handler) { h.graph = g } }

// WithPublisher publishes review events.
func WithPublisher(p Publisher) Option { return func(h *Handler) { h.bus = p } }

// WithDueWatcher enables the manual due-notification trigger.
func WithDueWatcher(w *review.DueWatcher) Option { return func(h *Handler) { h.watcher = w } }

// NewHandler creates a new API handler.
func NewHandler(svc *review.Service, logger *zap.Logger, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: logger}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		// Cards
		r.Post("/cards", h.createCard)
		r.Get("/cards/{id}", h.getCard)
		r.Delete("/cards/{id}", h.deleteCard)
		r.Post("/cards/{id}/review", h.reviewCard)
		r.Get("/cards/{id}/preview", h.previewCard)
		r.Post("/cards/{id}/emotions", h.tagEmotion)
		r.Get("/cards/{id}/related", h.getRelated)

		// Relationships
		r.Post("/relationships", h.createRelationship)
		r.Post("/relationships/strengthen", h.strengthenRelationship)

		// Per-user queues and settings
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/cards", h.listCards)
			r.Get("/due", h.getDueCards)
			r.Get("/forecast", h.getForecast)
			r.Get("/suggestions", h.getSuggestions)
			r.Get("/stats", h.getStats)
			r.Get("/sleep", h.getSleepSchedule)
			r.Put("/sleep", h.setSleepSchedule)
			r.Get("/phase", h.getPhase)
			r.Post("/context", h.recordContext)
			r.Get("/correlations", h.getCorrelations)
		})

		r.Post("/due/notify", h.triggerDueNotify)
	})
	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "nuka-recall"})
}

func (h *Handler) triggerDueNotify(w http.ResponseWriter, r *http.Request) {
	if h.watcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "due watcher not initialized"})
		return
	}
	now := h.svc.Now()
	fired := h.watcher.FireNow(now)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "due check triggered",
		"users_notified": fired,
		"at":             now.Format(time.RFC3339),
	})
}

// persistCard snapshots c to the repository, if any.
func (h *Handler) persistCard(ctx context.Context, c card.Card) {
	if h.repo == nil {
		return
	}
	if err := h.repo.SaveCard(ctx, c); err != nil {
		h.logger.Warn("persist card failed", zap.String("card", c.ID), zap.Error(err))
	}
}

// persistEdges writes edges to the repository and graph mirror, if any.
func (h *Handler) persistEdges(ctx context.Context, edges ...relation.Edge) {
	for _, e := range edges {
		if h.repo != nil {
			if err := h.repo.SaveEdge(ctx, e); err != nil {
				h.logger.Warn("persist relationship failed", zap.String("a", e.A), zap.String("b", e.B), zap.Error(err))
			}
		}
		if h.graph != nil {
			if err := h.graph.SaveEdge(ctx, e); err != nil {
				h.logger.Warn("mirror relationship failed", zap.String("a", e.A), zap.String("b", e.B), zap.Error(err))
			}
		}
	}
}

func (h *Handler) publish(ctx context.Context, ev events.Event) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Publish(ctx, ev); err != nil {
		h.logger.Warn("publish event failed",
			zap.String("kind", string(ev.Kind)),
			zap.String("user", ev.UserID),
			zap.Error(err))
	}
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, card.ErrCardNotFound), errors.Is(err, relation.ErrEdgeNotFound):
		return http.StatusNotFound
	case errors.Is(err, card.ErrInvalidQuality),
		errors.Is(err, fsrs.ErrInvalidRating),
		errors.Is(err, emotion.ErrUnknownTag),
		errors.Is(err, relation.ErrSelfRelation),
		errors.Is(err, sleep.ErrInvalidClock),
		errors.Is(err, review.ErrInvalidArgument),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

var errBadRequest = errors.New("bad request")

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// queryInt reads an integer query parameter, returning def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return n, nil
}

// queryFloat reads a float query parameter, returning def when absent.
func queryFloat(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", errBadRequest, name)
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
