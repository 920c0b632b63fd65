package fitting

import (
	"fmt"
	"time"

	"qmapfit/pkg/volume"
)

// Results holds the output volumes of a fit run. Every volume shares the
// input geometry; voxels outside the mask or subregion are zero.
type Results struct {
	// Maps holds one volume per varying and derived parameter, keyed by the
	// model's parameter names.
	Maps map[string]*volume.Volume

	// ResidualNorm is the per-voxel Euclidean norm of the residual vector.
	ResidualNorm *volume.Volume

	// Residuals holds one volume per observation. Nil unless requested.
	Residuals []*volume.Volume

	// Covariance holds one volume per varying parameter with the covariance
	// diagonal, keyed "<name>_var". Nil unless requested.
	Covariance map[string]*volume.Volume

	// Iterations records solver iteration counts. Nil unless requested.
	Iterations *volume.Volume

	// Scale records the per-voxel signal gain estimate. Nil unless requested.
	Scale *volume.Volume

	// Fitted is the number of voxels the solver was invoked on.
	Fitted int

	// Failed is the number of voxels whose fit did not converge, including
	// voxels rejected for non-finite input.
	Failed int

	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration
}

// assembler allocates the requested output channels and scatters voxel
// outcomes into them. Each voxel coordinate is written by exactly one worker,
// so the disjoint-index writes need no locking.
type assembler struct {
	model   Model
	results *Results
	names   []string // varying then derived, in output order
}

func newAssembler(model Model, nx, ny, nz int, opts *Options) (*assembler, error) {
	alloc := func() (*volume.Volume, error) {
		v, err := volume.New(nx, ny, nz)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAllocate, err)
		}
		return v, nil
	}

	res := &Results{Maps: make(map[string]*volume.Volume)}
	names := append([]string{}, model.VaryingNames()...)
	if dm, ok := model.(DerivedModel); ok {
		names = append(names, dm.DerivedNames()...)
	}
	for _, name := range names {
		v, err := alloc()
		if err != nil {
			return nil, err
		}
		res.Maps[name] = v
	}

	var err error
	if res.ResidualNorm, err = alloc(); err != nil {
		return nil, err
	}
	if opts.Residuals {
		res.Residuals = make([]*volume.Volume, model.InputSize())
		for i := range res.Residuals {
			if res.Residuals[i], err = alloc(); err != nil {
				return nil, err
			}
		}
	}
	if opts.Covariance {
		res.Covariance = make(map[string]*volume.Volume)
		for _, name := range model.VaryingNames() {
			v, err := alloc()
			if err != nil {
				return nil, err
			}
			res.Covariance[name+"_var"] = v
		}
	}
	if opts.IterationMap {
		if res.Iterations, err = alloc(); err != nil {
			return nil, err
		}
	}
	if opts.ScaleMap {
		if res.Scale, err = alloc(); err != nil {
			return nil, err
		}
	}
	return &assembler{model: model, results: res, names: names}, nil
}

// write scatters one voxel's outcome into every allocated channel.
func (a *assembler) write(c volume.Coord, out *Outcome) {
	varying := a.model.VaryingNames()
	for i, name := range varying {
		a.results.Maps[name].Set(c.X, c.Y, c.Z, out.Varying[i])
	}
	for i, v := range out.Derived {
		a.results.Maps[a.names[len(varying)+i]].Set(c.X, c.Y, c.Z, v)
	}
	a.results.ResidualNorm.Set(c.X, c.Y, c.Z, out.ResidualNorm)
	if a.results.Residuals != nil {
		for i, v := range out.Residuals {
			a.results.Residuals[i].Set(c.X, c.Y, c.Z, v)
		}
	}
	if a.results.Covariance != nil {
		for i, name := range varying {
			a.results.Covariance[name+"_var"].Set(c.X, c.Y, c.Z, out.Covariance[i])
		}
	}
	if a.results.Iterations != nil {
		a.results.Iterations.Set(c.X, c.Y, c.Z, float64(out.Iterations))
	}
	if a.results.Scale != nil {
		a.results.Scale.Set(c.X, c.Y, c.Z, out.Scale)
	}
}
