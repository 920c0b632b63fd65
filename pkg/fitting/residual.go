package fitting

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/dual"
)

// fdStep is the central-difference step in unit-box coordinates, used for
// models without a dual-number signal function.
const fdStep = 1e-6

// residualFn wraps one voxel's observations and fixed covariates into the
// residual-vector form the solver consumes: observed minus predicted signal,
// optionally weighted, evaluated in unit-box parameter coordinates. One
// instance is owned by one worker and reused across its voxels.
type residualFn struct {
	model Model
	grad  GradientModel // nil when the model has no dual signal path
	scale *scaler

	observed []float64 // gain-normalized copy of the voxel's samples
	fixed    []float64
	weights  []float64 // nil means unweighted

	phys  []float64 // scratch: physical parameter vector
	duals []dual.Number
	plus  []float64 // scratch for finite differences
	minus []float64
}

func newResidualFn(model Model, scale *scaler, weights []float64) *residualFn {
	r := &residualFn{
		model:    model,
		scale:    scale,
		weights:  weights,
		observed: make([]float64, model.InputSize()),
		fixed:    make([]float64, model.NFixed()),
		phys:     make([]float64, model.NVarying()),
		plus:     make([]float64, model.InputSize()),
		minus:    make([]float64, model.InputSize()),
	}
	if gm, ok := model.(GradientModel); ok {
		r.grad = gm
		r.duals = make([]dual.Number, model.NVarying())
	}
	return r
}

// setVoxel loads one voxel's samples and covariates. observed is copied and
// divided by gain.
func (r *residualFn) setVoxel(observed, fixed []float64, gain float64) {
	for i, v := range observed {
		r.observed[i] = v / gain
	}
	copy(r.fixed, fixed)
}

// eval writes the residual vector at unit-box coordinates x into dst.
func (r *residualFn) eval(x, dst []float64) {
	r.scale.toPhysical(x, r.phys)
	pred := r.model.Predict(r.phys, r.fixed)
	for i := range dst {
		dst[i] = r.observed[i] - pred[i]
		if r.weights != nil {
			dst[i] *= r.weights[i]
		}
	}
}

// cost returns half the squared residual norm at x, using dst as scratch.
func (r *residualFn) cost(x, dst []float64) float64 {
	r.eval(x, dst)
	sum := 0.0
	for _, v := range dst {
		sum += v * v
	}
	return 0.5 * sum
}

// jacobian writes d residual_i / d x_j into J, differentiating the model
// with dual numbers when available and central differences otherwise. The
// affine unit-box scaling is folded in through the dual seed magnitude and
// the finite-difference step respectively.
func (r *residualFn) jacobian(x []float64, J *mat.Dense) {
	m, n := J.Dims()
	if r.grad != nil {
		r.scale.toPhysical(x, r.phys)
		for j := 0; j < n; j++ {
			for k := range r.duals {
				r.duals[k] = dual.Number{Real: r.phys[k]}
			}
			r.duals[j].Emag = r.scale.span(j)
			pred := r.grad.PredictDual(r.duals, r.fixed)
			for i := 0; i < m; i++ {
				d := -pred[i].Emag
				if r.weights != nil {
					d *= r.weights[i]
				}
				J.Set(i, j, d)
			}
		}
		return
	}

	for j := 0; j < n; j++ {
		orig := x[j]
		x[j] = orig + fdStep
		r.eval(x, r.plus)
		x[j] = orig - fdStep
		r.eval(x, r.minus)
		x[j] = orig
		for i := 0; i < m; i++ {
			J.Set(i, j, (r.plus[i]-r.minus[i])/(2*fdStep))
		}
	}
}
