package fsrs

import (
	"fmt"
	"math"
)

const (
	// decay and factor fix R(t, S) = (1 + factor*t/S)^decay = (1 + t/(9S))^-1.
	decay  = -1.0
	factor = 1.0 / 9.0

	// MinStability is the floor applied to any stability input or output.
	MinStability = 0.01

	// DefaultTargetRetention is the recall probability intervals aim for.
	DefaultTargetRetention = 0.9

	// DefaultMaxInterval caps intervals at roughly 100 years.
	DefaultMaxInterval = 36500

	minDifficulty = 1.0
	maxDifficulty = 10.0
)

// Config configures a Model. Zero values take defaults.
type Config struct {
	Weights         Weights `json:"weights"`          // zero → DefaultWeights
	TargetRetention float64 `json:"target_retention"` // zero → 0.9
	MaxInterval     int     `json:"max_interval"`     // zero → 36500 days
}

// Model holds validated weights and interval bounds.
type Model struct {
	w               Weights
	targetRetention float64
	maxInterval     float64
}

// NewModel validates cfg and returns a Model.
func NewModel(cfg Config) (*Model, error) {
	w := cfg.Weights
	if w == (Weights{}) {
		w = DefaultWeights
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	tr := cfg.TargetRetention
	if tr == 0 {
		tr = DefaultTargetRetention
	}
	if tr <= 0 || tr >= 1 {
		return nil, fmt.Errorf("%w: target retention %f out of range (0, 1)", ErrInvalidConfig, tr)
	}

	maxIvl := cfg.MaxInterval
	if maxIvl == 0 {
		maxIvl = DefaultMaxInterval
	}
	if maxIvl < 1 {
		return nil, fmt.Errorf("%w: max interval %d must be positive", ErrInvalidConfig, maxIvl)
	}

	return &Model{w: w, targetRetention: tr, maxInterval: float64(maxIvl)}, nil
}

// MustModel is NewModel with the default config. It panics only if the
// built-in defaults fail validation.
func MustModel() *Model {
	m, err := NewModel(Config{})
	if err != nil {
		panic(err)
	}
	return m
}

// Weights returns the model's weight table.
func (m *Model) Weights() Weights { return m.w }

// TargetRetention returns the retention the interval formula aims for.
func (m *Model) TargetRetention() float64 { return m.targetRetention }

// MaxInterval returns the interval cap in days.
func (m *Model) MaxInterval() int { return int(m.maxInterval) }

// Retrievability returns R(t, S) = (1 + t/(9S))^-1. It is 1 at t = 0 and
// strictly decreasing in t. Stability below MinStability and negative
// elapsed days are clamped.
func Retrievability(stability, elapsedDays float64) float64 {
	s := clampS(stability)
	t := math.Max(elapsedDays, 0)
	return math.Pow(1+factor*t/s, decay)
}

// InitDS returns the difficulty and stability of a card after its first review.
//
//	S0(G) = w[G-1]
//	D0(G) = w4 - (G-3)*w5, clamped to [1, 10]
func (m *Model) InitDS(r Rating) (difficulty, stability float64, err error) {
	if !r.IsValid() {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidRating, int(r))
	}
	return m.initDifficulty(r), clampS(m.w.InitStability[r-1]), nil
}

// NextDS returns the difficulty and stability after a review with the given
// rating, starting from d, s and the retrievability r at review time.
func (m *Model) NextDS(d, s, r float64, rating Rating) (difficulty, stability float64, err error) {
	if !rating.IsValid() {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidRating, int(rating))
	}
	d = clampD(d)
	s = clampS(s)
	r = math.Min(math.Max(r, 0), 1)

	difficulty = m.nextDifficulty(d, rating)
	if rating == Again {
		stability = m.forgetStability(d, s, r)
	} else {
		stability = m.RecallStability(d, s, r, rating)
	}
	return difficulty, stability, nil
}

// NextInterval converts stability into days until retrievability falls to the
// target retention, clamped to [1, max interval]. The result is not rounded.
//
//	I(S) = S/factor * (target^(1/decay) - 1)
func (m *Model) NextInterval(stability float64) float64 {
	s := clampS(stability)
	ivl := s / factor * (math.Pow(m.targetRetention, 1/decay) - 1)
	return math.Min(math.Max(ivl, 1), m.maxInterval)
}

// RecallStability is the success branch of NextDS. Hard applies the hard
// penalty and Easy the easy bonus. It never returns less than s.
//
//	S' = S * (1 + e^w8 * (11-D) * S^-w9 * (e^(w10*(1-R)) - 1) * penalty * bonus)
func (m *Model) RecallStability(d, s, r float64, rating Rating) float64 {
	d = clampD(d)
	s = clampS(s)
	hardPenalty := 1.0
	if rating == Hard {
		hardPenalty = m.w.HardPenalty
	}
	easyBonus := 1.0
	if rating == Easy {
		easyBonus = m.w.EasyBonus
	}
	growth := math.Exp(m.w.RecallScale) *
		(11 - d) *
		math.Pow(s, -m.w.RecallStabilityEx) *
		(math.Exp((1-r)*m.w.RecallRetrievEx) - 1) *
		hardPenalty * easyBonus
	return clampS(s * (1 + growth))
}

// forgetStability is the lapse branch. The post-lapse stability never
// exceeds the pre-lapse value.
//
//	S' = w11 * D^-w12 * ((S+1)^w13 - 1) * e^(w14*(1-R))
func (m *Model) forgetStability(d, s, r float64) float64 {
	next := m.w.ForgetScale *
		math.Pow(d, -m.w.ForgetDifficultyX) *
		(math.Pow(s+1, m.w.ForgetStabilityX) - 1) *
		math.Exp((1-r)*m.w.ForgetRetrievX)
	return clampS(math.Min(next, s))
}

func (m *Model) initDifficulty(r Rating) float64 {
	return clampD(m.w.InitDifficulty - float64(r-3)*m.w.InitDifficultySlope)
}

// nextDifficulty shifts D by -w6*(G-3) and reverts it slightly towards D0(Good).
func (m *Model) nextDifficulty(d float64, r Rating) float64 {
	next := d - m.w.DifficultyStep*float64(r-3)
	next = m.w.MeanReversion*m.w.InitDifficulty + (1-m.w.MeanReversion)*next
	return clampD(next)
}

func clampS(s float64) float64 {
	if math.IsNaN(s) {
		return MinStability
	}
	return math.Max(s, MinStability)
}

func clampD(d float64) float64 {
	if math.IsNaN(d) {
		return minDifficulty
	}
	return math.Min(math.Max(d, minDifficulty), maxDifficulty)
}
