package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nidhogg/nuka-recall/internal/card"
	"github.com/nidhogg/nuka-recall/internal/review"
	"github.com/nidhogg/nuka-recall/internal/spacing"
)

func (h *Handler) listCards(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.svc.ListCards(chi.URLParam(r, "userID"))))
}

func (h *Handler) getDueCards(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", review.DefaultDueLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.svc.DueCards(chi.URLParam(r, "userID"), limit)))
}

func (h *Handler) getForecast(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", review.DefaultForecastDays)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Forecast(chi.URLParam(r, "userID"), days))
}

func (h *Handler) getSuggestions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", review.DefaultDueLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	sug := h.svc.SuggestForPhase(chi.URLParam(r, "userID"), limit)
	sug.Cards = nonNil(sug.Cards)
	writeJSON(w, http.StatusOK, sug)
}

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats(chi.URLParam(r, "userID")))
}

type sleepRequest struct {
	SleepTime string `json:"sleep_time"`
	WakeTime  string `json:"wake_time"`
}

func (h *Handler) getSleepSchedule(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.SleepSchedule(chi.URLParam(r, "userID")))
}

func (h *Handler) setSleepSchedule(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req sleepRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sched, err := h.svc.SetSleepSchedule(userID, req.SleepTime, req.WakeTime)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.repo != nil {
		if err := h.repo.SaveSleepSchedule(r.Context(), userID, sched); err != nil {
			h.logger.Warn("persist sleep schedule failed", zap.String("user", userID), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, sched)
}

func (h *Handler) getPhase(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.CurrentPhase(chi.URLParam(r, "userID")))
}

type contextRequest struct {
	Context   map[string]any `json:"context"`
	Retention float64        `json:"retention"`
}

func (h *Handler) recordContext(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	var req contextRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.RecordContext(userID, spacing.ParseSnapshot(req.Context), req.Retention); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "recorded",
		"samples": h.svc.Context().SampleCount(userID),
	})
}

func (h *Handler) getCorrelations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ContextCorrelations(chi.URLParam(r, "userID")))
}

func nonNil(cards []card.Card) []card.Card {
	if cards == nil {
		return []card.Card{}
	}
	return cards
}
