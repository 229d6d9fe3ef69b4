package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-recall/internal/card"
	"github.com/nidhogg/nuka-recall/internal/emotion"
	"github.com/nidhogg/nuka-recall/internal/events"
	"github.com/nidhogg/nuka-recall/internal/relation"
	"github.com/nidhogg/nuka-recall/internal/review"
	"github.com/nidhogg/nuka-recall/internal/spacing"
)

type createCardRequest struct {
	UserID string `json:"user_id"`
	Front  string `json:"front"`
	Back   string `json:"back"`
}

func (h *Handler) createCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.svc.CreateCard(req.UserID, req.Front, req.Back)
	if err != nil {
		writeError(w, err)
		return
	}
	h.persistCard(r.Context(), c)
	h.publish(r.Context(), events.Event{
		Kind:      events.KindCardCreated,
		UserID:    c.UserID,
		CardID:    c.ID,
		Timestamp: c.CreatedAt,
	})
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) getCard(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetCard(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) deleteCard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, edges, err := h.svc.DeleteCard(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.repo != nil {
		if err := h.repo.DeleteCard(r.Context(), id); err != nil {
			h.logger.Warn("delete card from repository failed", zap.String("card", id), zap.Error(err))
		}
	}
	if h.graph != nil {
		if err := h.graph.DeleteCard(r.Context(), id); err != nil {
			h.logger.Warn("delete card from graph mirror failed", zap.String("card", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "deleted",
		"card_id":       c.ID,
		"relationships": len(edges),
	})
}

// reviewRequest carries an optional loosely typed context map and an
// optional emotion name. Unknown context keys and emotion names are ignored.
type reviewRequest struct {
	Quality          string         `json:"quality"`
	Context          map[string]any `json:"context,omitempty"`
	Emotion          string         `json:"emotion,omitempty"`
	EmotionIntensity *float64       `json:"emotion_intensity,omitempty"`
}

func (h *Handler) reviewCard(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	q, err := card.ParseQuality(req.Quality)
	if err != nil {
		writeError(w, err)
		return
	}

	rr := review.Request{CardID: chi.URLParam(r, "id"), Quality: q}
	if len(req.Context) > 0 {
		snap := spacing.ParseSnapshot(req.Context)
		rr.Context = &snap
	}
	if req.Emotion != "" {
		rr.Emotion = h.emotionInput(req.Emotion, req.EmotionIntensity)
	}

	res, err := h.svc.Review(rr)
	if err != nil {
		writeError(w, err)
		return
	}

	h.persistCard(r.Context(), res.Card)
	next := res.NextReview
	h.publish(r.Context(), events.Event{
		Kind:       events.KindReviewed,
		UserID:     res.Card.UserID,
		CardID:     res.Card.ID,
		Quality:    q.String(),
		State:      res.State.String(),
		Interval:   res.NewInterval,
		NextReview: &next,
		Timestamp:  *res.Card.LastReview,
	})
	if res.RelatedRecall == nil {
		res.RelatedRecall = []relation.Related{}
	}
	writeJSON(w, http.StatusOK, res)
}

// emotionInput parses an emotion name; unknown names yield nil so the review
// proceeds without an emotion. Intensity defaults to 1.
func (h *Handler) emotionInput(name string, intensity *float64) *review.EmotionInput {
	tag, err := emotion.ParseTag(name)
	if err != nil {
		h.logger.Debug("ignoring unknown emotion", zap.String("emotion", name))
		return nil
	}
	in := &review.EmotionInput{Tag: tag, Intensity: 1}
	if intensity != nil {
		in.Intensity = *intensity
	}
	return in
}

type tagEmotionRequest struct {
	Tag       string   `json:"tag"`
	Intensity *float64 `json:"intensity,omitempty"`
}

func (h *Handler) tagEmotion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req tagEmotionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	in := h.emotionInput(req.Tag, req.Intensity)
	if in == nil {
		// Unknown tags leave the card as it is.
		c, err := h.svc.GetCard(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
		return
	}
	c, err := h.svc.TagEmotion(id, in.Tag, in.Intensity)
	if err != nil {
		writeError(w, err)
		return
	}
	h.persistCard(r.Context(), c)
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) previewCard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.Preview(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) getRelated(w http.ResponseWriter, r *http.Request) {
	minStrength, err := queryFloat(r, "min_strength", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	rel, err := h.svc.Related(chi.URLParam(r, "id"), minStrength)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}

type relationshipRequest struct {
	CardA    string   `json:"card_a"`
	CardB    string   `json:"card_b"`
	Type     string   `json:"type"`
	Strength *float64 `json:"strength,omitempty"`
}

func (h *Handler) createRelationship(w http.ResponseWriter, r *http.Request) {
	var req relationshipRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.CardA == "" || req.CardB == "" {
		writeError(w, fmt.Errorf("%w: card_a and card_b are required", errBadRequest))
		return
	}
	strength := relation.DefaultStrength
	if req.Strength != nil {
		strength = *req.Strength
	}
	e, err := h.svc.CreateRelationship(req.CardA, req.CardB, req.Type, strength)
	if err != nil {
		writeError(w, err)
		return
	}
	h.persistEdges(r.Context(), e)
	if c, err := h.svc.GetCard(req.CardA); err == nil {
		h.publish(r.Context(), events.Event{
			Kind:      events.KindRelationship,
			UserID:    c.UserID,
			CardID:    c.ID,
			Timestamp: e.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusCreated, e)
}

type strengthenRequest struct {
	CardA string  `json:"card_a"`
	CardB string  `json:"card_b"`
	Type  string  `json:"type,omitempty"`
	Delta float64 `json:"delta"`
}

func (h *Handler) strengthenRelationship(w http.ResponseWriter, r *http.Request) {
	var req strengthenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.CardA) == "" || strings.TrimSpace(req.CardB) == "" {
		writeError(w, fmt.Errorf("%w: card_a and card_b are required", errBadRequest))
		return
	}
	edges, err := h.svc.StrengthenRelationship(req.CardA, req.CardB, req.Type, req.Delta)
	if err != nil {
		writeError(w, err)
		return
	}
	h.persistEdges(r.Context(), edges...)
	writeJSON(w, http.StatusOK, edges)
}
