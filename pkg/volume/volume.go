// Package volume provides the in-memory representation of 3D image volumes
// used throughout qmapfit: a flat float64 data array in x-fastest raster
// order plus integer dimensions and physical voxel spacing. It also provides
// mask handling, rectangular subregions and the raster coordinate walker that
// drives voxel-wise processing.
package volume

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Volume represents a 3D scalar volume as a 1D array in row-major
// (x-fastest) order together with its dimensions.
type Volume struct {
	// Data is the voxel data as a 1D array, indexed z*Nx*Ny + y*Nx + x.
	Data []float64

	// Nx, Ny, Nz are the volume dimensions in voxels.
	Nx, Ny, Nz int

	// VoxelSize is the physical size of each voxel in mm.
	VoxelSize struct {
		X, Y, Z float64
	}
}

// New allocates a zero-filled volume with the given dimensions.
// Dimensions must be positive.
func New(nx, ny, nz int) (*Volume, error) {
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("volume dimensions must be positive, got %dx%dx%d", nx, ny, nz)
	}
	v := &Volume{
		Data: make([]float64, nx*ny*nz),
		Nx:   nx,
		Ny:   ny,
		Nz:   nz,
	}
	v.VoxelSize.X = 1.0
	v.VoxelSize.Y = 1.0
	v.VoxelSize.Z = 1.0
	return v, nil
}

// MustNew is New for known-good dimensions; it panics on error.
// Intended for tests and literals.
func MustNew(nx, ny, nz int) *Volume {
	v, err := New(nx, ny, nz)
	if err != nil {
		panic(err)
	}
	return v
}

// Len returns the total number of voxels.
func (v *Volume) Len() int { return v.Nx * v.Ny * v.Nz }

// Index converts a coordinate to its flat data index.
func (v *Volume) Index(x, y, z int) int {
	return z*v.Nx*v.Ny + y*v.Nx + x
}

// At returns the value at the given coordinate.
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Set stores a value at the given coordinate.
func (v *Volume) Set(x, y, z int, val float64) {
	v.Data[v.Index(x, y, z)] = val
}

// SameGeometry reports whether two volumes share dimensions.
func (v *Volume) SameGeometry(o *Volume) bool {
	return o != nil && v.Nx == o.Nx && v.Ny == o.Ny && v.Nz == o.Nz
}

// Fill sets every voxel to the given value.
func (v *Volume) Fill(val float64) {
	for i := range v.Data {
		v.Data[i] = val
	}
}

// MinMax returns the smallest and largest finite values in the volume.
// Returns (0, 0) if the volume contains no finite values.
func (v *Volume) MinMax() (min, max float64) {
	found := false
	for _, val := range v.Data {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			continue
		}
		if !found {
			min, max = val, val
			found = true
			continue
		}
		if val < min {
			min = val
		}
		if val > max {
			max = val
		}
	}
	return min, max
}

const rawMagic = uint32(0x714d4630) // "qMF0"

// WriteRaw saves the volume to a self-describing little-endian binary file:
// magic, three uint32 dimensions, three float64 voxel sizes, then the data.
func (v *Volume) WriteRaw(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create volume file: %w", err)
	}
	defer file.Close()

	header := []interface{}{
		rawMagic,
		uint32(v.Nx), uint32(v.Ny), uint32(v.Nz),
		v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z,
	}
	for _, field := range header {
		if err := binary.Write(file, binary.LittleEndian, field); err != nil {
			return fmt.Errorf("failed to write volume header: %w", err)
		}
	}
	if err := binary.Write(file, binary.LittleEndian, v.Data); err != nil {
		return fmt.Errorf("failed to write volume data: %w", err)
	}
	return nil
}

// ReadRaw loads a volume previously saved with WriteRaw.
func ReadRaw(path string) (*Volume, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open volume file: %w", err)
	}
	defer file.Close()

	var magic uint32
	if err := binary.Read(file, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("failed to read volume header: %w", err)
	}
	if magic != rawMagic {
		return nil, fmt.Errorf("%s is not a qmapfit raw volume", path)
	}

	var nx, ny, nz uint32
	var sx, sy, sz float64
	for _, field := range []interface{}{&nx, &ny, &nz, &sx, &sy, &sz} {
		if err := binary.Read(file, binary.LittleEndian, field); err != nil {
			return nil, fmt.Errorf("failed to read volume header: %w", err)
		}
	}

	v, err := New(int(nx), int(ny), int(nz))
	if err != nil {
		return nil, fmt.Errorf("invalid header in %s: %w", path, err)
	}
	v.VoxelSize.X, v.VoxelSize.Y, v.VoxelSize.Z = sx, sy, sz
	if err := binary.Read(file, binary.LittleEndian, v.Data); err != nil {
		return nil, fmt.Errorf("failed to read volume data: %w", err)
	}
	return v, nil
}
