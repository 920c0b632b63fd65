package fitting

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Levenberg-Marquardt damping schedule.
const (
	lambdaInit = 1e-3
	lambdaUp   = 10.0
	lambdaDown = 0.3
	lambdaMax  = 1e12
	maxRejects = 8
)

// Outcome is the result of fitting one voxel. It is produced exactly once
// per voxel and immutable afterwards.
type Outcome struct {
	// Varying holds the fitted parameters in physical units, always within
	// the configured bounds, even when Success is false.
	Varying []float64

	// Derived holds the model's derived quantities, nil when the model
	// declares none.
	Derived []float64

	// Residuals is the per-observation residual vector (observed minus
	// predicted, in input signal units). Only populated when requested.
	Residuals []float64

	// ResidualNorm is the Euclidean norm of the residual vector.
	ResidualNorm float64

	// Scale is the estimated signal gain the observations were normalized by.
	Scale float64

	// Covariance is the diagonal of the parameter covariance estimate in
	// physical units. Only populated when requested.
	Covariance []float64

	// Success is true when the solve converged.
	Success bool

	// Iterations is the number of accepted solver iterations. Zero for
	// voxels failed before the solver ran.
	Iterations int
}

// voxelSolver runs one bounded nonlinear least-squares solve per voxel.
// Iteration happens in unit-box coordinates; bound violations are clamped,
// never rejected. Each worker owns its own instance: all scratch storage is
// reused across voxels without synchronization.
type voxelSolver struct {
	model   Model
	derived DerivedModel // nil when the model has no derived quantities
	scale   *scaler
	fn      *residualFn

	maxIter   int
	tol       float64
	scaled    bool
	wantCov   bool
	wantResid bool

	// scratch, sized once per solver
	x, xNew, step []float64
	r, rNew       []float64
	jac           *mat.Dense
	jtj           *mat.SymDense
	damped        *mat.SymDense
	grad          *mat.VecDense
	delta         *mat.VecDense
	chol          mat.Cholesky
}

func newVoxelSolver(model Model, lo, hi []float64, opts *Options) *voxelSolver {
	m := model.InputSize()
	n := model.NVarying()
	sc := newScaler(lo, hi)
	s := &voxelSolver{
		model:     model,
		scale:     sc,
		fn:        newResidualFn(model, sc, nil),
		maxIter:   opts.MaxIterations,
		tol:       opts.Tolerance,
		scaled:    opts.ScaleSignal,
		wantCov:   opts.Covariance,
		wantResid: opts.Residuals,
		x:         make([]float64, n),
		xNew:      make([]float64, n),
		step:      make([]float64, n),
		r:         make([]float64, m),
		rNew:      make([]float64, m),
		jac:       mat.NewDense(m, n, nil),
		jtj:       mat.NewSymDense(n, nil),
		damped:    mat.NewSymDense(n, nil),
		grad:      mat.NewVecDense(n, nil),
		delta:     mat.NewVecDense(n, nil),
	}
	if dm, ok := model.(DerivedModel); ok {
		s.derived = dm
	}
	return s
}

// solve fits one voxel. observed has length InputSize, fixed length NFixed,
// start is the starting vector in physical units. It always returns an
// outcome; a voxel that cannot be fitted comes back with Success false and
// zero-valued or best-effort fields rather than an error.
func (s *voxelSolver) solve(observed, fixed, start []float64) Outcome {
	gain := 1.0
	if s.scaled {
		g, ok := signalScale(observed)
		if !ok {
			return s.failBeforeSolve()
		}
		gain = g
	} else if !allFinite(observed) {
		return s.failBeforeSolve()
	}
	if !allFinite(fixed) {
		return s.failBeforeSolve()
	}

	s.fn.setVoxel(observed, fixed, gain)
	s.scale.toUnit(start, s.x)
	clampUnit(s.x)

	cost := s.fn.cost(s.x, s.r)
	if math.IsNaN(cost) || math.IsInf(cost, 0) {
		out := s.failBeforeSolve()
		out.Scale = gain
		return out
	}

	lambda := lambdaInit
	iterations := 0
	converged := false

	for iterations < s.maxIter && !converged {
		s.fn.jacobian(s.x, s.jac)
		s.buildNormalEquations()

		accepted := false
		for reject := 0; reject < maxRejects; reject++ {
			if !s.solveStep(lambda) {
				lambda *= lambdaUp
				if lambda > lambdaMax {
					break
				}
				continue
			}

			for i := range s.xNew {
				s.xNew[i] = s.x[i] + s.step[i]
			}
			clampUnit(s.xNew)

			newCost := s.fn.cost(s.xNew, s.rNew)
			if !math.IsNaN(newCost) && newCost < cost {
				relDrop := (cost - newCost) / math.Max(cost, 1e-300)
				copy(s.x, s.xNew)
				copy(s.r, s.rNew)
				if relDrop < s.tol || maxAbs(s.step) < s.tol {
					converged = true
				}
				cost = newCost
				lambda = math.Max(lambda*lambdaDown, 1e-12)
				accepted = true
				break
			}

			lambda *= lambdaUp
			if lambda > lambdaMax {
				break
			}
		}
		iterations++

		if !accepted {
			// No damping level produced a decrease: the iterate is at a
			// (possibly bound-constrained) local minimum.
			converged = true
		}
	}

	return s.finish(cost, gain, iterations, converged)
}

// failBeforeSolve builds the outcome for a voxel rejected before the solver
// ran: non-finite samples or covariates, or no usable signal. Every output
// field is zero so such voxels are indistinguishable from skipped ones in
// the output volumes, matching the zero-iterations accounting.
func (s *voxelSolver) failBeforeSolve() Outcome {
	out := Outcome{
		Varying: make([]float64, s.model.NVarying()),
		Success: false,
	}
	if s.derived != nil {
		out.Derived = make([]float64, len(s.derived.DerivedNames()))
	}
	if s.wantResid {
		out.Residuals = make([]float64, s.model.InputSize())
	}
	if s.wantCov {
		out.Covariance = make([]float64, s.model.NVarying())
	}
	return out
}

func (s *voxelSolver) finish(cost, gain float64, iterations int, converged bool) Outcome {
	n := s.model.NVarying()
	out := Outcome{
		Varying:    make([]float64, n),
		Scale:      gain,
		Success:    converged,
		Iterations: iterations,
	}
	s.scale.toPhysical(s.x, out.Varying)

	norm := 0.0
	for _, v := range s.r {
		norm += v * v
	}
	out.ResidualNorm = math.Sqrt(norm) * gain

	if !allFinite(out.Varying) || math.IsNaN(cost) {
		out.Success = false
	}

	if s.wantResid {
		out.Residuals = make([]float64, len(s.r))
		for i, v := range s.r {
			out.Residuals[i] = v * gain
		}
	}

	if s.derived != nil {
		fixed := s.fn.fixed
		out.Derived = s.derived.Derive(out.Varying, fixed)
	}

	if s.wantCov {
		out.Covariance = s.covarianceDiag(cost)
	}
	return out
}

// buildNormalEquations computes JtJ and the gradient Jt r for the current
// Jacobian and residual.
func (s *voxelSolver) buildNormalEquations() {
	m, n := s.jac.Dims()
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sum := 0.0
			for k := 0; k < m; k++ {
				sum += s.jac.At(k, i) * s.jac.At(k, j)
			}
			s.jtj.SetSym(i, j, sum)
		}
		g := 0.0
		for k := 0; k < m; k++ {
			g += s.jac.At(k, i) * s.r[k]
		}
		s.grad.SetVec(i, g)
	}
}

// solveStep solves (JtJ + lambda*diag(JtJ)) step = -Jt r for the current
// damping. Returns false when the damped system is not positive definite.
func (s *voxelSolver) solveStep(lambda float64) bool {
	n := s.jtj.SymmetricDim()
	s.damped.CopySym(s.jtj)
	for i := 0; i < n; i++ {
		d := s.jtj.At(i, i)
		if d == 0 {
			d = 1
		}
		s.damped.SetSym(i, i, s.jtj.At(i, i)+lambda*d)
	}
	if ok := s.chol.Factorize(s.damped); !ok {
		return false
	}
	if err := s.chol.SolveVecTo(s.delta, s.grad); err != nil {
		return false
	}
	for i := 0; i < n; i++ {
		s.step[i] = -s.delta.AtVec(i)
	}
	return allFinite(s.step)
}

// covarianceDiag estimates diag((JtJ)^-1) * s^2 at the solution, rescaled to
// physical units. Returns zeros when the system is singular.
func (s *voxelSolver) covarianceDiag(cost float64) []float64 {
	m := s.model.InputSize()
	n := s.model.NVarying()
	diag := make([]float64, n)

	s.fn.jacobian(s.x, s.jac)
	s.buildNormalEquations()
	if ok := s.chol.Factorize(s.jtj); !ok {
		return diag
	}

	dof := m - n
	if dof < 1 {
		dof = 1
	}
	variance := 2 * cost / float64(dof)

	e := mat.NewVecDense(n, nil)
	col := mat.NewVecDense(n, nil)
	for j := 0; j < n; j++ {
		e.Zero()
		e.SetVec(j, 1)
		if err := s.chol.SolveVecTo(col, e); err != nil {
			return make([]float64, n)
		}
		// Scale gain cancels out of the unit-box Jacobian, so only the
		// parameter spans convert the estimate to physical units.
		span := s.scale.span(j)
		diag[j] = col.AtVec(j) * variance * span * span
	}
	return diag
}

func allFinite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func maxAbs(v []float64) float64 {
	m := 0.0
	for _, x := range v {
		if a := math.Abs(x); a > m {
			m = a
		}
	}
	return m
}
