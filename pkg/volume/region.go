package volume

import "fmt"

// Subregion is an axis-aligned box in index space restricting which voxels
// are processed. The zero value is not valid; use FullRegion for a whole
// volume.
type Subregion struct {
	// X, Y, Z is the index-space offset of the box.
	X, Y, Z int

	// SizeX, SizeY, SizeZ is the extent of the box in voxels.
	SizeX, SizeY, SizeZ int
}

// FullRegion returns the subregion covering an entire volume of the given
// dimensions.
func FullRegion(nx, ny, nz int) Subregion {
	return Subregion{SizeX: nx, SizeY: ny, SizeZ: nz}
}

// Validate checks that the subregion lies within a volume of the given
// dimensions.
func (r Subregion) Validate(nx, ny, nz int) error {
	if r.X < 0 || r.Y < 0 || r.Z < 0 {
		return fmt.Errorf("subregion offset must be non-negative, got (%d,%d,%d)", r.X, r.Y, r.Z)
	}
	if r.SizeX <= 0 || r.SizeY <= 0 || r.SizeZ <= 0 {
		return fmt.Errorf("subregion size must be positive, got (%d,%d,%d)", r.SizeX, r.SizeY, r.SizeZ)
	}
	if r.X+r.SizeX > nx || r.Y+r.SizeY > ny || r.Z+r.SizeZ > nz {
		return fmt.Errorf("subregion (%d,%d,%d)+(%d,%d,%d) exceeds volume %dx%dx%d",
			r.X, r.Y, r.Z, r.SizeX, r.SizeY, r.SizeZ, nx, ny, nz)
	}
	return nil
}

// NumVoxels returns the number of voxels inside the subregion.
func (r Subregion) NumVoxels() int {
	return r.SizeX * r.SizeY * r.SizeZ
}

// Coord is a voxel coordinate in index space.
type Coord struct {
	X, Y, Z int
}

// Walker enumerates the voxel coordinates of a subregion in raster order
// (x fastest, then y, then z), skipping voxels where the optional mask is
// zero. The sequence is lazy and can be restarted with Reset. Consumers must
// not rely on any stronger ordering: the parallel executor completes voxels
// out of order.
type Walker struct {
	region Subregion
	mask   *Volume
	x      int
	y      int
	z      int
	done   bool
}

// NewWalker creates a walker over the given subregion. mask may be nil, in
// which case every coordinate in the region is yielded. A voxel is yielded
// when its mask value is non-zero.
func NewWalker(region Subregion, mask *Volume) *Walker {
	w := &Walker{region: region, mask: mask}
	w.Reset()
	return w
}

// Reset restarts the walker at the beginning of the region.
func (w *Walker) Reset() {
	w.x = w.region.X
	w.y = w.region.Y
	w.z = w.region.Z
	w.done = w.region.NumVoxels() == 0
}

// Next returns the next coordinate to process. The second return value is
// false once the region is exhausted.
func (w *Walker) Next() (Coord, bool) {
	for !w.done {
		c := Coord{X: w.x, Y: w.y, Z: w.z}
		w.advance()
		if w.mask == nil || w.mask.At(c.X, c.Y, c.Z) != 0 {
			return c, true
		}
	}
	return Coord{}, false
}

func (w *Walker) advance() {
	w.x++
	if w.x < w.region.X+w.region.SizeX {
		return
	}
	w.x = w.region.X
	w.y++
	if w.y < w.region.Y+w.region.SizeY {
		return
	}
	w.y = w.region.Y
	w.z++
	if w.z >= w.region.Z+w.region.SizeZ {
		w.done = true
	}
}

// Collect drains the walker into a coordinate slice. The walker is left
// exhausted; call Reset to reuse it.
func (w *Walker) Collect() []Coord {
	coords := make([]Coord, 0, w.region.NumVoxels())
	for {
		c, ok := w.Next()
		if !ok {
			return coords
		}
		coords = append(coords, c)
	}
}
