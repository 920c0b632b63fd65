package fitting

import "errors"

// Fatal error categories. Configuration and resource errors abort the whole
// run before any voxel is processed and before any output volume is exposed;
// per-voxel fit failures are never surfaced as errors, only counted in the
// run summary.
var (
	// ErrGeometryMismatch indicates input, fixed or mask volumes that do not
	// share the same dimensions.
	ErrGeometryMismatch = errors.New("input volumes have mismatched geometry")

	// ErrMissingInput indicates a required input channel is absent.
	ErrMissingInput = errors.New("required input volume is missing")

	// ErrParameterCount indicates user-supplied bounds or starting values
	// whose length does not match the model's declared dimensionality.
	ErrParameterCount = errors.New("parameter vector length does not match model")

	// ErrInvalidBounds indicates bounds that do not satisfy
	// lo <= start <= hi componentwise.
	ErrInvalidBounds = errors.New("invalid parameter bounds")

	// ErrInputSize indicates that the supplied input channels do not add up
	// to the model's declared observation count.
	ErrInputSize = errors.New("input channel count does not match model input size")

	// ErrAllocate indicates failure to allocate an output volume.
	ErrAllocate = errors.New("failed to allocate output volume")
)
