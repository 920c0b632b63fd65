// Package visualization renders parameter maps for quick quality assurance:
// axis-aligned slices of a fitted volume exported as grayscale JPEG
// sequences. Parameter maps are not normalized, so values are windowed to
// the volume's finite min/max before conversion.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"qmapfit/pkg/volume"
)

// Viewer extracts and saves 2D slices of a parameter map.
type Viewer struct {
	vol *volume.Volume

	// window for mapping values to grayscale
	min, max float64
}

// NewViewer creates a viewer for the given volume, windowed to its finite
// value range.
func NewViewer(vol *volume.Volume) *Viewer {
	min, max := vol.MinMax()
	return &Viewer{vol: vol, min: min, max: max}
}

// SetWindow overrides the grayscale display window.
func (v *Viewer) SetWindow(min, max float64) {
	v.min, v.max = min, max
}

func (v *Viewer) gray(val float64) color.Gray16 {
	if v.max <= v.min {
		return color.Gray16{}
	}
	norm := (val - v.min) / (v.max - v.min)
	if norm < 0 {
		norm = 0
	} else if norm > 1 {
		norm = 1
	}
	return color.Gray16{Y: uint16(norm * 65535)}
}

// ExtractSlice extracts a 2D slice from the volume along the specified axis.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	vol := v.vol
	var img *image.Gray16

	switch axis {
	case "x", "X":
		if position >= vol.Nx {
			return nil, fmt.Errorf("position %d exceeds width %d", position, vol.Nx)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Nz, vol.Ny))
		for y := 0; y < vol.Ny; y++ {
			for z := 0; z < vol.Nz; z++ {
				img.SetGray16(z, y, v.gray(vol.At(position, y, z)))
			}
		}

	case "y", "Y":
		if position >= vol.Ny {
			return nil, fmt.Errorf("position %d exceeds height %d", position, vol.Ny)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Nx, vol.Nz))
		for z := 0; z < vol.Nz; z++ {
			for x := 0; x < vol.Nx; x++ {
				img.SetGray16(x, z, v.gray(vol.At(x, position, z)))
			}
		}

	case "z", "Z":
		if position >= vol.Nz {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Nz)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Nx, vol.Ny))
		for y := 0; y < vol.Ny; y++ {
			for x := 0; x < vol.Nx; x++ {
				img.SetGray16(x, y, v.gray(vol.At(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// SaveSliceSequence extracts every slice along the given axis and saves the
// sequence as numbered JPEG files in outputDir.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var count int
	switch axis {
	case "x", "X":
		count = v.vol.Nx
	case "y", "Y":
		count = v.vol.Ny
	case "z", "Z":
		count = v.vol.Nz
	default:
		return fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for i := 0; i < count; i++ {
		img, err := v.ExtractSlice(axis, i)
		if err != nil {
			return err
		}
		path := filepath.Join(outputDir, fmt.Sprintf("%03d.jpg", i))
		if err := saveJPEG(path, img); err != nil {
			return err
		}
	}
	return nil
}

func saveJPEG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	defer file.Close()

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}
	return nil
}
