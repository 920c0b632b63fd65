package models

import (
	"math"

	"gonum.org/v1/gonum/num/dual"

	"qmapfit/pkg/sequence"
)

// SPGR is the spoiled gradient-echo T1 model for variable-flip-angle data:
//
//	S(a) = PD * sin(B1*a) * (1 - E1) / (1 - E1*cos(B1*a)),  E1 = exp(-TR/T1)
//
// B1 is a fixed covariate (the transmit-field ratio); when no B1 map is
// supplied the nominal flip angles are used unchanged.
type SPGR struct {
	seq *sequence.SPGR
}

// NewSPGR builds the model for a given flip-angle schedule.
func NewSPGR(seq *sequence.SPGR) *SPGR {
	return &SPGR{seq: seq}
}

func (m *SPGR) Name() string             { return "spgr" }
func (m *SPGR) NVarying() int            { return 2 }
func (m *SPGR) NFixed() int              { return 1 }
func (m *SPGR) InputSize() int           { return m.seq.Size() }
func (m *SPGR) VaryingNames() []string   { return []string{"PD", "T1"} }
func (m *SPGR) FixedNames() []string     { return []string{"B1"} }
func (m *SPGR) FixedDefaults() []float64 { return []float64{1.0} }

func (m *SPGR) Bounds() (lo, hi []float64) {
	return []float64{1e-3, 1e-2}, []float64{20, 10}
}

func (m *SPGR) Start() []float64 {
	return []float64{1, 1}
}

func (m *SPGR) Predict(varying, fixed []float64) []float64 {
	pd, t1 := varying[0], varying[1]
	b1 := fixed[0]
	e1 := math.Exp(-m.seq.TR / t1)
	signal := make([]float64, len(m.seq.FA))
	for i, fa := range m.seq.FA {
		sa, ca := math.Sincos(b1 * fa)
		signal[i] = pd * sa * (1 - e1) / (1 - e1*ca)
	}
	return signal
}

func (m *SPGR) PredictDual(varying []dual.Number, fixed []float64) []dual.Number {
	pd, t1 := varying[0], varying[1]
	b1 := fixed[0]
	one := dual.Number{Real: 1}
	e1 := dual.Exp(dual.Scale(-m.seq.TR, dual.Inv(t1)))
	signal := make([]dual.Number, len(m.seq.FA))
	for i, fa := range m.seq.FA {
		sa, ca := math.Sincos(b1 * fa)
		num := dual.Scale(sa, dual.Sub(one, e1))
		den := dual.Sub(one, dual.Scale(ca, e1))
		signal[i] = dual.Mul(pd, dual.Mul(num, dual.Inv(den)))
	}
	return signal
}

// DerivedNames declares the longitudinal relaxation rate map.
func (m *SPGR) DerivedNames() []string { return []string{"R1"} }

// Derive converts T1 to R1, clamped to [0, 100] s^-1. The clamp range is
// this model's policy for suppressing unphysical rates near the T1 lower
// bound, not an engine rule.
func (m *SPGR) Derive(varying, _ []float64) []float64 {
	r1 := 1.0 / varying[1]
	if r1 < 0 {
		r1 = 0
	} else if r1 > 100 {
		r1 = 100
	}
	return []float64{r1}
}
