// Package models provides the signal models shipped with qmapfit. Each model
// implements the fitting.Model contract for one acquisition protocol: a pure
// signal function plus parameter names, bounds and starting values. Models
// with smooth closed-form signals also implement the dual-number path so the
// solver can differentiate them exactly.
package models

import (
	"math"

	"gonum.org/v1/gonum/num/dual"

	"qmapfit/pkg/sequence"
)

// MultiEcho is the mono-exponential T2 decay model for multi-echo spin-echo
// data: S(TE) = PD * exp(-TE / T2).
type MultiEcho struct {
	seq *sequence.MultiEcho
}

// NewMultiEcho builds the model for a given echo train.
func NewMultiEcho(seq *sequence.MultiEcho) *MultiEcho {
	return &MultiEcho{seq: seq}
}

func (m *MultiEcho) Name() string            { return "multiecho" }
func (m *MultiEcho) NVarying() int           { return 2 }
func (m *MultiEcho) NFixed() int             { return 0 }
func (m *MultiEcho) InputSize() int          { return m.seq.Size() }
func (m *MultiEcho) VaryingNames() []string  { return []string{"PD", "T2"} }
func (m *MultiEcho) FixedNames() []string    { return nil }
func (m *MultiEcho) FixedDefaults() []float64 { return nil }

func (m *MultiEcho) Bounds() (lo, hi []float64) {
	return []float64{1e-3, 1e-3}, []float64{20, 5}
}

func (m *MultiEcho) Start() []float64 {
	return []float64{1, 0.05}
}

func (m *MultiEcho) Predict(varying, _ []float64) []float64 {
	pd, t2 := varying[0], varying[1]
	signal := make([]float64, len(m.seq.TE))
	for i, te := range m.seq.TE {
		signal[i] = pd * math.Exp(-te/t2)
	}
	return signal
}

func (m *MultiEcho) PredictDual(varying []dual.Number, _ []float64) []dual.Number {
	pd, t2 := varying[0], varying[1]
	signal := make([]dual.Number, len(m.seq.TE))
	for i, te := range m.seq.TE {
		// exp(-TE / T2)
		decay := dual.Exp(dual.Scale(-te, dual.Inv(t2)))
		signal[i] = dual.Mul(pd, decay)
	}
	return signal
}

// DerivedNames declares the relaxation rate map.
func (m *MultiEcho) DerivedNames() []string { return []string{"R2"} }

// Derive converts the fitted time constant to a rate.
func (m *MultiEcho) Derive(varying, _ []float64) []float64 {
	return []float64{1.0 / varying[1]}
}
