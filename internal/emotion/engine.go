// Package emotion scales review intervals by the learner's recent emotional
// state on a card.
package emotion

import (
	"math"
	"time"

	"go.uber.org/zap"
)

// Record is one emotion observation on a card.
type Record struct {
	Tag       Tag       `json:"tag"`
	Intensity float64   `json:"intensity"` // 0-1
	At        time.Time `json:"at"`
}

// Config controls how many records are kept and scored.
type Config struct {
	Window     int // records scored, most recent first (default 5)
	MaxRecords int // records retained per card (default 50)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Window:     5,
		MaxRecords: 50,
	}
}

// Engine appends emotion records and turns them into an interval modifier.
// Records live on the card they describe, so Engine itself is stateless and
// safe for concurrent use.
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// NewEngine creates an emotion engine. Zero config fields take defaults.
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxRecords < cfg.Window {
		cfg.MaxRecords = def.MaxRecords
		if cfg.MaxRecords < cfg.Window {
			cfg.MaxRecords = cfg.Window
		}
	}
	return &Engine{cfg: cfg, logger: logger}
}

// Boost is the effective multiplier of a single observation:
// base(tag) * (0.5 + intensity*0.5), with intensity clamped to [0, 1].
func Boost(tag Tag, intensity float64) float64 {
	return tag.BaseBoost() * (0.5 + clampIntensity(intensity)*0.5)
}

// Append returns records with a new observation added, trimmed to
// MaxRecords. Unknown tags leave records unchanged. The input slice is not
// modified.
func (e *Engine) Append(records []Record, tag Tag, intensity float64, at time.Time) []Record {
	if !tag.IsValid() {
		e.logger.Debug("ignoring unknown emotion tag", zap.Int("tag", int(tag)))
		return records
	}
	out := make([]Record, 0, len(records)+1)
	out = append(out, records...)
	out = append(out, Record{Tag: tag, Intensity: clampIntensity(intensity), At: at})
	if len(out) > e.cfg.MaxRecords {
		out = out[len(out)-e.cfg.MaxRecords:]
	}
	return out
}

// Modifier is the mean boost of the most recent Window records, or 1 when
// there are none. Records are assumed to be in append order.
func (e *Engine) Modifier(records []Record) float64 {
	if len(records) == 0 {
		return 1
	}
	recent := records
	if len(recent) > e.cfg.Window {
		recent = recent[len(recent)-e.cfg.Window:]
	}
	var sum float64
	for _, r := range recent {
		sum += Boost(r.Tag, r.Intensity)
	}
	return sum / float64(len(recent))
}

func clampIntensity(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(math.Max(v, 0), 1)
}
