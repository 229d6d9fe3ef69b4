package review

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DueFunc is called when a user's due count changes.
type DueFunc func(ctx context.Context, userID string, due int, now time.Time) error

// DueWatcher is a clock listener that reports per-user due counts. It fires
// at most once per interval and only for users whose count changed since the
// last report.
type DueWatcher struct {
	svc      *Service
	interval time.Duration
	notify   DueFunc
	lastRun  time.Time
	last     map[string]int
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewDueWatcher creates a due watcher.
func NewDueWatcher(svc *Service, interval time.Duration, notify DueFunc, logger *zap.Logger) *DueWatcher {
	return &DueWatcher{
		svc:      svc,
		interval: interval,
		notify:   notify,
		last:     make(map[string]int),
		logger:   logger,
	}
}

// OnTick implements clock.Listener.
func (w *DueWatcher) OnTick(now time.Time) {
	w.mu.Lock()
	if !w.lastRun.IsZero() && now.Sub(w.lastRun) < w.interval {
		w.mu.Unlock()
		return
	}
	w.lastRun = now
	w.mu.Unlock()

	w.FireNow(now)
}

// FireNow checks every user immediately and returns how many were notified.
func (w *DueWatcher) FireNow(now time.Time) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fired := 0
	for _, user := range w.svc.Users() {
		due := w.svc.dueCount(user, now)

		w.mu.Lock()
		prev, seen := w.last[user]
		w.mu.Unlock()
		if seen && prev == due {
			continue
		}

		if err := w.notify(ctx, user, due, now); err != nil {
			w.logger.Warn("due notification failed",
				zap.String("user", user),
				zap.Error(err))
			continue
		}
		w.mu.Lock()
		w.last[user] = due
		w.mu.Unlock()
		fired++
		w.logger.Debug("due notification sent",
			zap.String("user", user),
			zap.Int("due", due))
	}
	return fired
}
