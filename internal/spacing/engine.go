// Package spacing learns which study contexts a user retains well in and
// scales review intervals accordingly.
package spacing

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sample is one observed retention outcome in a given context.
type Sample struct {
	Context   Snapshot  `json:"context"`
	Retention float64   `json:"retention"` // 0-1
	At        time.Time `json:"at"`
}

// Correlations holds mean retention per observed value of each dimension.
type Correlations map[Dimension]map[string]float64

// Config controls correlation learning and interval adjustment.
type Config struct {
	MinSamples    int     // samples needed before adjusting (default 10)
	Window        int     // rolling samples kept per user (default 500)
	HighRetention float64 // mean above this boosts (default 0.8)
	LowRetention  float64 // mean below this dampens (default 0.6)
	BoostFactor   float64 // default 1.2
	DampFactor    float64 // default 0.8
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MinSamples:    10,
		Window:        500,
		HighRetention: 0.8,
		LowRetention:  0.6,
		BoostFactor:   1.2,
		DampFactor:    0.8,
	}
}

type history struct {
	mu      sync.Mutex
	samples []Sample
	table   Correlations
	dirty   bool
}

// Engine keeps per-user context histories and their correlation tables.
type Engine struct {
	cfg    Config
	users  map[string]*history
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewEngine creates a context engine. Zero config fields take defaults.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = def.MinSamples
	}
	if cfg.Window < cfg.MinSamples {
		cfg.Window = def.Window
		if cfg.Window < cfg.MinSamples {
			cfg.Window = cfg.MinSamples
		}
	}
	if cfg.HighRetention == 0 {
		cfg.HighRetention = def.HighRetention
	}
	if cfg.LowRetention == 0 {
		cfg.LowRetention = def.LowRetention
	}
	if cfg.BoostFactor == 0 {
		cfg.BoostFactor = def.BoostFactor
	}
	if cfg.DampFactor == 0 {
		cfg.DampFactor = def.DampFactor
	}
	return &Engine{
		cfg:    cfg,
		users:  make(map[string]*history),
		logger: logger,
	}
}

// Record appends a retention observation for the user. Retention is clamped
// to [0, 1]; snapshots with no observed dimension are dropped.
func (e *Engine) Record(userID string, ctx Snapshot, retention float64, at time.Time) {
	if ctx.IsZero() {
		return
	}
	if retention < 0 {
		retention = 0
	} else if retention > 1 {
		retention = 1
	}

	h := e.getOrCreate(userID)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = append(h.samples, Sample{Context: ctx, Retention: retention, At: at})
	if len(h.samples) > e.cfg.Window {
		h.samples = append([]Sample(nil), h.samples[len(h.samples)-e.cfg.Window:]...)
	}
	h.dirty = true
}

// SampleCount returns how many samples are held for the user.
func (e *Engine) SampleCount(userID string) int {
	h := e.get(userID)
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}

// Correlations returns a copy of the user's correlation table, rebuilding it
// first if samples arrived since the last build. It is empty until
// MinSamples samples exist.
func (e *Engine) Correlations(userID string) Correlations {
	h := e.get(userID)
	if h == nil {
		return Correlations{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	e.rebuildLocked(h)

	out := make(Correlations, len(h.table))
	for d, vals := range h.table {
		m := make(map[string]float64, len(vals))
		for k, v := range vals {
			m[k] = v
		}
		out[d] = m
	}
	return out
}

// Multiplier is the compounded factor for ctx: per dimension present in both
// ctx and the learned table, BoostFactor above HighRetention, DampFactor
// below LowRetention, 1 otherwise. With no history it is 1.
func (e *Engine) Multiplier(userID string, ctx Snapshot) float64 {
	h := e.get(userID)
	if h == nil {
		return 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	e.rebuildLocked(h)

	mult := 1.0
	for _, d := range Dimensions {
		v := ctx.Value(d)
		if v == "" {
			continue
		}
		mean, ok := h.table[d][v]
		if !ok {
			continue
		}
		switch {
		case mean > e.cfg.HighRetention:
			mult *= e.cfg.BoostFactor
		case mean < e.cfg.LowRetention:
			mult *= e.cfg.DampFactor
		}
	}
	return mult
}

// AdjustInterval scales a base interval (days) by Multiplier.
func (e *Engine) AdjustInterval(userID string, base float64, ctx Snapshot) float64 {
	return base * e.Multiplier(userID, ctx)
}

// RebuildAll rebuilds every dirty table and returns how many were rebuilt.
func (e *Engine) RebuildAll() int {
	e.mu.RLock()
	hs := make([]*history, 0, len(e.users))
	for _, h := range e.users {
		hs = append(hs, h)
	}
	e.mu.RUnlock()

	rebuilt := 0
	for _, h := range hs {
		h.mu.Lock()
		if e.rebuildLocked(h) {
			rebuilt++
		}
		h.mu.Unlock()
	}
	return rebuilt
}

// OnTick rebuilds dirty correlation tables so reviews hit a warm table.
func (e *Engine) OnTick(now time.Time) {
	if n := e.RebuildAll(); n > 0 {
		e.logger.Debug("context correlations rebuilt",
			zap.Int("users", n),
			zap.Time("at", now))
	}
}

// rebuildLocked recomputes h.table if dirty. Caller holds h.mu.
func (e *Engine) rebuildLocked(h *history) bool {
	if !h.dirty {
		return false
	}
	h.dirty = false
	if len(h.samples) < e.cfg.MinSamples {
		h.table = nil
		return true
	}

	type acc struct {
		sum float64
		n   int
	}
	sums := make(map[Dimension]map[string]*acc)
	for _, s := range h.samples {
		for _, d := range Dimensions {
			v := s.Context.Value(d)
			if v == "" {
				continue
			}
			if sums[d] == nil {
				sums[d] = make(map[string]*acc)
			}
			a := sums[d][v]
			if a == nil {
				a = &acc{}
				sums[d][v] = a
			}
			a.sum += s.Retention
			a.n++
		}
	}

	table := make(Correlations, len(sums))
	for d, vals := range sums {
		table[d] = make(map[string]float64, len(vals))
		for v, a := range vals {
			table[d][v] = a.sum / float64(a.n)
		}
	}
	h.table = table
	return true
}

func (e *Engine) get(userID string) *history {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.users[userID]
}

func (e *Engine) getOrCreate(userID string) *history {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.users[userID]
	if !ok {
		h = &history{}
		e.users[userID] = h
	}
	return h
}
