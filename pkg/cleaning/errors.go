package cleaning

import "errors"

var (
	// ErrInvalidInput reports an empty volume, a volume without foreground
	// reaching the scorer, or mismatched shapes between a volume and a mask.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConvergenceBound reports that the neighbour expansion did not reach
	// a fixed point within its iteration cap.
	ErrConvergenceBound = errors.New("convergence bound exceeded")

	// ErrConfiguration reports an out-of-range cleaning parameter.
	ErrConfiguration = errors.New("invalid configuration")
)
