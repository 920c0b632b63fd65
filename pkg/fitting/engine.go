package fitting

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"qmapfit/pkg/volume"
)

// Options configures a fitting engine. The zero value is not usable;
// start from DefaultOptions.
type Options struct {
	// MaxIterations bounds the solver iterations per voxel.
	MaxIterations int

	// Tolerance is the relative cost-reduction / parameter-step threshold
	// below which a voxel is considered converged.
	Tolerance float64

	// Threads is the worker count. Zero means runtime.NumCPU().
	Threads int

	// ScaleSignal normalizes each voxel's observations by their mean before
	// fitting, so the amplitude-like leading parameter is O(1).
	ScaleSignal bool

	// Residuals requests per-observation residual volumes.
	Residuals bool

	// Covariance requests parameter covariance-diagonal volumes.
	Covariance bool

	// IterationMap requests a per-voxel iteration-count volume.
	IterationMap bool

	// ScaleMap requests a per-voxel signal-gain volume.
	ScaleMap bool

	// Subregion restricts processing to an index-space box. Nil means the
	// whole volume.
	Subregion *volume.Subregion

	// LowerBounds, UpperBounds and Start override the model's defaults when
	// non-nil. Lengths must match the model's varying-parameter count.
	LowerBounds []float64
	UpperBounds []float64
	Start       []float64

	// Logger receives structured run diagnostics. Nil means silent.
	Logger Logger

	// Monitor receives progress callbacks from the coordinator goroutine.
	// Nil disables progress reporting.
	Monitor Monitor
}

// DefaultOptions returns engine options with the standard solver tuning.
func DefaultOptions() *Options {
	return &Options{
		MaxIterations: 50,
		Tolerance:     1e-8,
		ScaleSignal:   true,
	}
}

// Inputs bundles the per-voxel data for a fit run. Channels supplies the
// observed signal, one volume per observation. Fixed supplies the model's
// fixed covariates, one volume per covariate; nil entries (or a nil slice)
// fall back to the model's declared defaults. Mask, when non-nil, gates
// which voxels are fitted.
type Inputs struct {
	Channels []*volume.Volume
	Fixed    []*volume.Volume
	Mask     *volume.Volume
}

// Engine fits a model to every voxel of a set of input volumes.
type Engine struct {
	model Model
	opts  Options
	log   Logger
	lo    []float64
	hi    []float64
	start []float64
}

// New validates the model/options pairing and builds an engine. Bound and
// start overrides are checked here, before any voxel is touched.
func New(model Model, opts *Options) (*Engine, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	o := *opts
	if o.MaxIterations <= 0 {
		o.MaxIterations = 50
	}
	if o.Tolerance <= 0 {
		o.Tolerance = 1e-8
	}
	if o.Threads <= 0 {
		o.Threads = runtime.NumCPU()
	}
	log := o.Logger
	if log == nil {
		log = nopLogger{}
	}

	n := model.NVarying()
	lo, hi := model.Bounds()
	start := model.Start()
	if o.LowerBounds != nil {
		lo = o.LowerBounds
	}
	if o.UpperBounds != nil {
		hi = o.UpperBounds
	}
	if o.Start != nil {
		start = o.Start
	}
	if len(lo) != n || len(hi) != n || len(start) != n {
		return nil, fmt.Errorf("%w: model %s declares %d varying parameters, got lo=%d hi=%d start=%d",
			ErrParameterCount, model.Name(), n, len(lo), len(hi), len(start))
	}
	for i := 0; i < n; i++ {
		if !(lo[i] <= start[i] && start[i] <= hi[i]) {
			return nil, fmt.Errorf("%w: parameter %q needs lo <= start <= hi, got %g <= %g <= %g",
				ErrInvalidBounds, model.VaryingNames()[i], lo[i], start[i], hi[i])
		}
	}

	return &Engine{model: model, opts: o, log: log, lo: lo, hi: hi, start: start}, nil
}

// Fit runs the whole-volume fit. Configuration and resource errors abort
// before any voxel is processed; per-voxel failures are contained and
// reported through Results.Failed.
func (e *Engine) Fit(in Inputs) (*Results, error) {
	region, err := e.validate(in)
	if err != nil {
		return nil, err
	}
	ref := in.Channels[0]

	asm, err := newAssembler(e.model, ref.Nx, ref.Ny, ref.Nz, &e.opts)
	if err != nil {
		return nil, err
	}

	coords := volume.NewWalker(region, in.Mask).Collect()
	e.log.Info("starting fit",
		"model", e.model.Name(),
		"voxels", len(coords),
		"threads", e.opts.Threads)

	started := time.Now()
	failed := e.run(coords, func() *voxelSolver {
		return newVoxelSolver(e.model, e.lo, e.hi, &e.opts)
	}, func(s *voxelSolver, c volume.Coord, observed, fixed []float64) bool {
		gather(in, c, observed, fixed, e.model.FixedDefaults())
		out := s.solve(observed, fixed, e.start)
		asm.write(c, &out)
		return out.Success
	})

	asm.results.Fitted = len(coords)
	asm.results.Failed = failed
	asm.results.Elapsed = time.Since(started)
	e.log.Info("fit finished",
		"fitted", asm.results.Fitted,
		"failed", asm.results.Failed,
		"elapsed", asm.results.Elapsed)
	return asm.results, nil
}

// validate checks geometry and channel counts, returning the effective
// processing region.
func (e *Engine) validate(in Inputs) (volume.Subregion, error) {
	var none volume.Subregion
	if len(in.Channels) == 0 || in.Channels[0] == nil {
		return none, fmt.Errorf("%w: no input channels", ErrMissingInput)
	}
	ref := in.Channels[0]
	if len(in.Channels) != e.model.InputSize() {
		return none, fmt.Errorf("%w: model %s expects %d observations, got %d channels",
			ErrInputSize, e.model.Name(), e.model.InputSize(), len(in.Channels))
	}
	for i, ch := range in.Channels {
		if ch == nil {
			return none, fmt.Errorf("%w: channel %d is nil", ErrMissingInput, i)
		}
		if !ref.SameGeometry(ch) {
			return none, fmt.Errorf("%w: channel %d is %dx%dx%d, expected %dx%dx%d",
				ErrGeometryMismatch, i, ch.Nx, ch.Ny, ch.Nz, ref.Nx, ref.Ny, ref.Nz)
		}
	}
	if in.Fixed != nil && len(in.Fixed) != e.model.NFixed() {
		return none, fmt.Errorf("%w: model %s expects %d fixed covariates, got %d",
			ErrParameterCount, e.model.Name(), e.model.NFixed(), len(in.Fixed))
	}
	for i, f := range in.Fixed {
		if f != nil && !ref.SameGeometry(f) {
			return none, fmt.Errorf("%w: fixed input %q", ErrGeometryMismatch, e.model.FixedNames()[i])
		}
	}
	if in.Mask != nil && !ref.SameGeometry(in.Mask) {
		return none, fmt.Errorf("%w: mask", ErrGeometryMismatch)
	}

	region := volume.FullRegion(ref.Nx, ref.Ny, ref.Nz)
	if e.opts.Subregion != nil {
		region = *e.opts.Subregion
		if err := region.Validate(ref.Nx, ref.Ny, ref.Nz); err != nil {
			return none, fmt.Errorf("invalid subregion: %w", err)
		}
	}
	return region, nil
}

// gather copies one voxel's samples and covariates out of the input volumes.
func gather(in Inputs, c volume.Coord, observed, fixed, fixedDefaults []float64) {
	for i, ch := range in.Channels {
		observed[i] = ch.At(c.X, c.Y, c.Z)
	}
	for i := range fixed {
		if in.Fixed != nil && in.Fixed[i] != nil {
			fixed[i] = in.Fixed[i].At(c.X, c.Y, c.Z)
		} else {
			fixed[i] = fixedDefaults[i]
		}
	}
}

// run partitions the coordinate list into contiguous chunks, one per worker,
// and processes them in parallel. Workers own their solver and scratch
// storage and write results at disjoint coordinates, so the only shared
// channel is the per-voxel completion stream consumed by the coordinator,
// which is the sole caller of the progress monitor.
func (e *Engine) run(coords []volume.Coord,
	makeSolver func() *voxelSolver,
	process func(*voxelSolver, volume.Coord, []float64, []float64) bool) int {

	total := len(coords)
	if total == 0 {
		if e.opts.Monitor != nil {
			e.opts.Monitor(0, 0, 0)
		}
		return 0
	}

	workers := e.opts.Threads
	if workers > total {
		workers = total
	}
	chunk := (total + workers - 1) / workers

	events := make(chan bool, 4*workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		begin := w * chunk
		end := begin + chunk
		if end > total {
			end = total
		}
		if begin >= end {
			continue
		}
		wg.Add(1)
		go func(part []volume.Coord) {
			defer wg.Done()
			solver := makeSolver()
			observed := make([]float64, e.model.InputSize())
			fixed := make([]float64, e.model.NFixed())
			for _, c := range part {
				events <- process(solver, c, observed, fixed)
			}
		}(coords[begin:end])
	}
	go func() {
		wg.Wait()
		close(events)
	}()

	// Coordinator: the single consumer of completion events and the only
	// goroutine that calls the monitor.
	done, failed := 0, 0
	step := total / 100
	if step == 0 {
		step = 1
	}
	for ok := range events {
		done++
		if !ok {
			failed++
		}
		if e.opts.Monitor != nil && (done%step == 0 || done == total) {
			e.opts.Monitor(done, total, failed)
		}
	}
	return failed
}
