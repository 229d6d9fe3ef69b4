package fsrs

import "errors"

// Sentinel errors for the fsrs package.
var (
	ErrInvalidRating  = errors.New("fsrs: invalid rating")
	ErrInvalidWeights = errors.New("fsrs: weights out of bounds")
	ErrInvalidConfig  = errors.New("fsrs: invalid config")
)
