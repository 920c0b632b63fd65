package fitting

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// scaler maps varying parameters between physical units and the unit box the
// solver iterates in, and normalizes the observed signal by its mean so the
// amplitude-like leading parameter is O(1). Parameters whose natural ranges
// span orders of magnitude would otherwise leave the normal equations badly
// conditioned.
type scaler struct {
	lo, hi []float64
}

func newScaler(lo, hi []float64) *scaler {
	return &scaler{lo: lo, hi: hi}
}

// toPhysical converts unit-box coordinates to physical parameters.
func (s *scaler) toPhysical(x, dst []float64) {
	for i := range x {
		dst[i] = s.lo[i] + x[i]*(s.hi[i]-s.lo[i])
	}
}

// toUnit converts physical parameters to unit-box coordinates.
func (s *scaler) toUnit(p, dst []float64) {
	for i := range p {
		span := s.hi[i] - s.lo[i]
		if span == 0 {
			dst[i] = 0
			continue
		}
		dst[i] = (p[i] - s.lo[i]) / span
	}
}

// span returns the physical width of parameter i; it is the chain-rule
// factor between unit-box and physical derivatives.
func (s *scaler) span(i int) float64 {
	return s.hi[i] - s.lo[i]
}

// clampUnit projects unit-box coordinates back into [0,1]. Bound violations
// during iteration are clamped, not rejected.
func clampUnit(x []float64) {
	for i := range x {
		if x[i] < 0 {
			x[i] = 0
		} else if x[i] > 1 {
			x[i] = 1
		}
	}
}

// signalScale estimates the gain of one voxel's observed signal: the mean of
// its samples. The solver fits data divided by this scale, keeping the
// amplitude-like parameter O(1); residuals are converted back to signal units
// and the scale itself is reported per voxel. A non-positive or non-finite
// estimate means the voxel carries no usable signal and is failed without
// invoking the solver.
func signalScale(observed []float64) (float64, bool) {
	finite := make([]float64, 0, len(observed))
	for _, v := range observed {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			finite = append(finite, v)
		}
	}
	if len(finite) < len(observed) {
		// Partial data cannot be fitted: the model predicts every
		// observation of the protocol.
		return 0, false
	}
	scale := floats.Sum(finite) / float64(len(finite))
	if scale <= 0 || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return 0, false
	}
	return scale, true
}
