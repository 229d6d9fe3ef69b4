package fsrs

import "fmt"

// Weights is the 17-parameter table of the forgetting model. Field comments
// give the conventional wN position of each parameter.
type Weights struct {
	InitStability [4]float64 // w0..w3: S0 for Again, Hard, Good, Easy

	InitDifficulty      float64 // w4: D0 for Good, also the mean reversion target
	InitDifficultySlope float64 // w5: D0 shift per grade away from Good
	DifficultyStep      float64 // w6: D shift per grade away from Good
	MeanReversion       float64 // w7: pull of D towards InitDifficulty

	RecallScale       float64 // w8: exp(w8) scales stability growth
	RecallStabilityEx float64 // w9: S^-w9 damping of growth for stable cards
	RecallRetrievEx   float64 // w10: exp(w10*(1-R)) - 1, desirable difficulty

	ForgetScale       float64 // w11
	ForgetDifficultyX float64 // w12: D^-w12
	ForgetStabilityX  float64 // w13: (S+1)^w13 - 1
	ForgetRetrievX    float64 // w14: exp(w14*(1-R))

	HardPenalty float64 // w15
	EasyBonus   float64 // w16
}

// DefaultWeights are the published FSRS v4 defaults.
var DefaultWeights = Weights{
	InitStability:       [4]float64{0.4, 0.6, 2.4, 5.8},
	InitDifficulty:      4.93,
	InitDifficultySlope: 0.94,
	DifficultyStep:      0.86,
	MeanReversion:       0.01,
	RecallScale:         1.49,
	RecallStabilityEx:   0.14,
	RecallRetrievEx:     0.94,
	ForgetScale:         2.18,
	ForgetDifficultyX:   0.05,
	ForgetStabilityX:    0.34,
	ForgetRetrievX:      1.26,
	HardPenalty:         0.29,
	EasyBonus:           2.61,
}

// Array returns the weights in w0..w16 order.
func (w Weights) Array() [17]float64 {
	return [17]float64{
		w.InitStability[0], w.InitStability[1], w.InitStability[2], w.InitStability[3],
		w.InitDifficulty, w.InitDifficultySlope, w.DifficultyStep, w.MeanReversion,
		w.RecallScale, w.RecallStabilityEx, w.RecallRetrievEx,
		w.ForgetScale, w.ForgetDifficultyX, w.ForgetStabilityX, w.ForgetRetrievX,
		w.HardPenalty, w.EasyBonus,
	}
}

// WeightsFromArray builds Weights from a w0..w16 table.
func WeightsFromArray(a [17]float64) Weights {
	return Weights{
		InitStability:       [4]float64{a[0], a[1], a[2], a[3]},
		InitDifficulty:      a[4],
		InitDifficultySlope: a[5],
		DifficultyStep:      a[6],
		MeanReversion:       a[7],
		RecallScale:         a[8],
		RecallStabilityEx:   a[9],
		RecallRetrievEx:     a[10],
		ForgetScale:         a[11],
		ForgetDifficultyX:   a[12],
		ForgetStabilityX:    a[13],
		ForgetRetrievX:      a[14],
		HardPenalty:         a[15],
		EasyBonus:           a[16],
	}
}

var (
	lowerBounds = [17]float64{
		0.01, 0.01, 0.01, 0.01,
		1, 0.1, 0.1, 0,
		0, 0, 0.01,
		0.1, 0.01, 0.01, 0.01,
		0, 1,
	}
	upperBounds = [17]float64{
		100, 100, 100, 100,
		10, 5, 5, 0.5,
		3, 0.8, 2.5,
		5, 0.2, 0.9, 4,
		1, 10,
	}
)

// Validate checks every weight against its allowed range and requires the
// initial stabilities to be non-decreasing by grade.
func (w Weights) Validate() error {
	a := w.Array()
	for i, v := range a {
		if v < lowerBounds[i] || v > upperBounds[i] {
			return fmt.Errorf("%w: w%d = %f, bounds [%f, %f]",
				ErrInvalidWeights, i, v, lowerBounds[i], upperBounds[i])
		}
	}
	for i := 1; i < 4; i++ {
		if w.InitStability[i] < w.InitStability[i-1] {
			return fmt.Errorf("%w: initial stability for grade %d below grade %d", ErrInvalidWeights, i+1, i)
		}
	}
	return nil
}
