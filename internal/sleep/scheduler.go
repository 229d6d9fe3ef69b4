package sleep

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Info describes the phase a user is in at some instant.
type Info struct {
	Phase          Phase    `json:"phase"`
	RetentionBoost float64  `json:"retention_boost"`
	PreferredKinds []string `json:"preferred_kinds"`
}

// Scheduler holds per-user sleep schedules.
type Scheduler struct {
	schedules map[string]Schedule
	fallback  Schedule
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewScheduler creates a scheduler. Users without a schedule use fallback.
func NewScheduler(fallback Schedule, logger *zap.Logger) *Scheduler {
	if fallback.Sleep == fallback.Wake {
		fallback = DefaultSchedule()
	}
	return &Scheduler{
		schedules: make(map[string]Schedule),
		fallback:  fallback,
		logger:    logger,
	}
}

// Set stores the user's schedule, replacing any previous one.
func (s *Scheduler) Set(userID string, sched Schedule) {
	s.mu.Lock()
	s.schedules[userID] = sched
	s.mu.Unlock()

	s.logger.Info("sleep schedule set",
		zap.String("user", userID),
		zap.Stringer("sleep", sched.Sleep),
		zap.Stringer("wake", sched.Wake))
}

// Get returns the user's schedule, or the fallback.
func (s *Scheduler) Get(userID string) Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sched, ok := s.schedules[userID]; ok {
		return sched
	}
	return s.fallback
}

// All returns a copy of every explicitly set schedule.
func (s *Scheduler) All() map[string]Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Schedule, len(s.schedules))
	for u, sched := range s.schedules {
		out[u] = sched
	}
	return out
}

// ScheduleWithSleep shifts candidate out of the user's sleep window.
func (s *Scheduler) ScheduleWithSleep(userID string, candidate time.Time) time.Time {
	return s.Get(userID).Shift(candidate)
}

// CurrentPhase describes the user's phase at now.
func (s *Scheduler) CurrentPhase(userID string, now time.Time) Info {
	p := s.Get(userID).PhaseAt(now)
	kinds := p.PreferredKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return Info{Phase: p, RetentionBoost: p.RetentionBoost(), PreferredKinds: names}
}
