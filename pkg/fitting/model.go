// Package fitting implements the voxel-wise model-fitting engine: a pluggable
// signal-model contract, parameter scaling, a bounded Levenberg-Marquardt
// voxel solver, a chunked parallel executor and output-volume assembly. Every
// voxel of the input volumes poses an independent bounded nonlinear
// least-squares problem; the engine solves them in parallel and scatters the
// results into per-parameter output volumes.
package fitting

import (
	"gonum.org/v1/gonum/num/dual"
)

// Model is a pure signal function mapping a varying-parameter vector and a
// vector of fixed covariates to a predicted signal vector. Implementations
// must be stateless with respect to Predict so a single model value can be
// shared by all worker goroutines without synchronization.
//
// Complex-valued signals follow the stacked-real convention: the model
// predicts the real parts followed by the imaginary parts as one real vector,
// and the corresponding acquisition supplies two input channels. The engine
// itself never handles complex numbers.
type Model interface {
	// Name identifies the model in configuration and output naming.
	Name() string

	// NVarying is the number of parameters solved for per voxel.
	NVarying() int

	// NFixed is the number of fixed covariates the model consumes per voxel.
	NFixed() int

	// InputSize is the number of observations the model predicts. It is
	// determined by the acquisition protocol the model was constructed with,
	// not hard-coded.
	InputSize() int

	// VaryingNames returns one name per varying parameter, used to label
	// output channels. Length equals NVarying.
	VaryingNames() []string

	// FixedNames returns one name per fixed covariate. Length equals NFixed.
	FixedNames() []string

	// FixedDefaults returns the values substituted for absent fixed-covariate
	// channels. Length equals NFixed.
	FixedDefaults() []float64

	// Bounds returns the default lower and upper parameter bounds.
	// Both have length NVarying and satisfy lo <= hi componentwise.
	Bounds() (lo, hi []float64)

	// Start returns the default starting parameter vector,
	// with lo <= start <= hi componentwise.
	Start() []float64

	// Predict evaluates the signal. varying has length NVarying, fixed has
	// length NFixed and the result has length InputSize.
	Predict(varying, fixed []float64) []float64
}

// DerivedModel is implemented by models that compute secondary quantities
// from the converged parameters (for example converting a rate to a time
// constant). Derive is a pure post-processing step; if a derived quantity
// needs clamping to a physical range that is the model's own policy.
type DerivedModel interface {
	Model

	// DerivedNames returns one name per derived quantity.
	DerivedNames() []string

	// Derive computes the derived quantities from a converged fit.
	Derive(varying, fixed []float64) []float64
}

// GradientModel is implemented by models whose signal function is also
// written over dual numbers, enabling exact forward-mode differentiation.
// PredictDual must compute the same signal as Predict; the solver seeds one
// parameter's infinitesimal part at a time to assemble the Jacobian. Models
// without this capability are differentiated by central finite differences.
type GradientModel interface {
	Model

	// PredictDual evaluates the signal with derivative-carrying parameters.
	PredictDual(varying []dual.Number, fixed []float64) []dual.Number
}
