package models

import (
	"math"

	"gonum.org/v1/gonum/num/dual"

	"qmapfit/pkg/sequence"
)

// Ellipse fits the SSFP signal ellipse directly. The complex steady-state
// signal over the RF phase increments is parameterized by the ellipse
// quantities G, a, b and the angles theta0 (off-resonance) and psi0 (common
// phase); real and imaginary parts are stacked into one real observation
// vector, so an acquisition supplies 2*len(PhaseInc) channels (real parts
// first). Relaxation times and the off-resonance frequency are recovered
// from the ellipse as derived quantities.
type Ellipse struct {
	seq *sequence.SSFP
}

// NewEllipse builds the model for a given phase-increment schedule.
func NewEllipse(seq *sequence.SSFP) *Ellipse {
	return &Ellipse{seq: seq}
}

func (m *Ellipse) Name() string             { return "ellipse" }
func (m *Ellipse) NVarying() int            { return 5 }
func (m *Ellipse) NFixed() int              { return 0 }
func (m *Ellipse) InputSize() int           { return m.seq.Size() }
func (m *Ellipse) FixedNames() []string     { return nil }
func (m *Ellipse) FixedDefaults() []float64 { return nil }

func (m *Ellipse) VaryingNames() []string {
	return []string{"G", "a", "b", "theta0", "psi0"}
}

func (m *Ellipse) Bounds() (lo, hi []float64) {
	lo = []float64{1e-3, 1e-3, 1e-3, -math.Pi, -math.Pi}
	hi = []float64{20, 0.99, 0.99, math.Pi, math.Pi}
	return lo, hi
}

func (m *Ellipse) Start() []float64 {
	return []float64{1, 0.7, 0.5, 0, 0}
}

// Predict maps the ellipse parameters to the stacked real/imaginary signal.
// For each phase increment phi:
//
//	theta = theta0 - phi, psi = theta0/2 + psi0
//	re = (cos psi - a*(cos theta cos psi - sin theta sin psi)) * G / (1 - b cos theta)
//	im = (sin psi - a*(cos theta sin psi + sin theta cos psi)) * G / (1 - b cos theta)
func (m *Ellipse) Predict(varying, _ []float64) []float64 {
	g, a, b, theta0, psi0 := varying[0], varying[1], varying[2], varying[3], varying[4]
	n := len(m.seq.PhaseInc)
	signal := make([]float64, 2*n)
	sinPsi, cosPsi := math.Sincos(theta0/2 + psi0)
	for i, phi := range m.seq.PhaseInc {
		sinTh, cosTh := math.Sincos(theta0 - phi)
		scale := g / (1 - b*cosTh)
		signal[i] = (cosPsi - a*(cosTh*cosPsi-sinTh*sinPsi)) * scale
		signal[n+i] = (sinPsi - a*(cosTh*sinPsi+sinTh*cosPsi)) * scale
	}
	return signal
}

func (m *Ellipse) PredictDual(varying []dual.Number, _ []float64) []dual.Number {
	g, a, b := varying[0], varying[1], varying[2]
	theta0, psi0 := varying[3], varying[4]
	one := dual.Number{Real: 1}
	n := len(m.seq.PhaseInc)
	signal := make([]dual.Number, 2*n)

	psi := dual.Add(dual.Scale(0.5, theta0), psi0)
	sinPsi, cosPsi := dual.Sin(psi), dual.Cos(psi)
	for i, phi := range m.seq.PhaseInc {
		theta := dual.Sub(theta0, dual.Number{Real: phi})
		sinTh, cosTh := dual.Sin(theta), dual.Cos(theta)
		scale := dual.Mul(g, dual.Inv(dual.Sub(one, dual.Mul(b, cosTh))))
		re := dual.Sub(cosPsi, dual.Mul(a, dual.Sub(dual.Mul(cosTh, cosPsi), dual.Mul(sinTh, sinPsi))))
		im := dual.Sub(sinPsi, dual.Mul(a, dual.Add(dual.Mul(cosTh, sinPsi), dual.Mul(sinTh, cosPsi))))
		signal[i] = dual.Mul(re, scale)
		signal[n+i] = dual.Mul(im, scale)
	}
	return signal
}

// DerivedNames declares the relaxometry maps recovered from the ellipse.
func (m *Ellipse) DerivedNames() []string { return []string{"T1", "T2", "f0"} }

// Derive converts the ellipse semiaxes to T1, T2 and the off-resonance
// frequency. An ellipse outside the physically meaningful range (which the
// solver can reach on noisy voxels) yields zeros for the affected map; the
// [0, 20] s clamp on the time constants is this model's policy.
func (m *Ellipse) Derive(varying, _ []float64) []float64 {
	a, b, theta0 := varying[1], varying[2], varying[3]
	ca := math.Cos(m.seq.FA)

	t2 := 0.0
	if a > 0 && a < 1 {
		t2 = clampTime(-m.seq.TR / math.Log(a))
	}

	t1 := 0.0
	den := a*(1+ca-a*b) - b*ca
	if den != 0 {
		e1 := (a*(1+ca-a*b*ca) - b) / den
		if e1 > 0 && e1 < 1 {
			t1 = clampTime(-m.seq.TR / math.Log(e1))
		}
	}

	f0 := theta0 / (2 * math.Pi * m.seq.TR)
	return []float64{t1, t2, f0}
}

func clampTime(t float64) float64 {
	if t < 0 || math.IsNaN(t) {
		return 0
	}
	if t > 20 {
		return 20
	}
	return t
}
