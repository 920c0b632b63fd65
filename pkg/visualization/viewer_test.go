package visualization

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"qmapfit/pkg/volume"
)

func gradientVolume(nx, ny, nz int) *volume.Volume {
	v := volume.MustNew(nx, ny, nz)
	for i := range v.Data {
		v.Data[i] = float64(i)
	}
	return v
}

// TestExtractSliceDimensions verifies the slice geometry per axis
func TestExtractSliceDimensions(t *testing.T) {
	v := NewViewer(gradientVolume(4, 3, 2))

	tests := []struct {
		axis string
		w, h int
	}{
		{"x", 2, 3}, // depth x height
		{"y", 4, 2}, // width x depth
		{"z", 4, 3}, // width x height
	}
	for _, tt := range tests {
		img, err := v.ExtractSlice(tt.axis, 0)
		if err != nil {
			t.Fatalf("Failed to extract %s slice: %v", tt.axis, err)
		}
		b := img.Bounds()
		if b.Dx() != tt.w || b.Dy() != tt.h {
			t.Errorf("Axis %s: expected %dx%d slice, got %dx%d", tt.axis, tt.w, tt.h, b.Dx(), b.Dy())
		}
	}
}

// TestExtractSliceWindowing verifies the grayscale mapping hits both ends of
// the window
func TestExtractSliceWindowing(t *testing.T) {
	vol := gradientVolume(2, 1, 1) // values 0 and 1
	v := NewViewer(vol)

	img, err := v.ExtractSlice("z", 0)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	lo := color.Gray16Model.Convert(img.At(0, 0)).(color.Gray16)
	hi := color.Gray16Model.Convert(img.At(1, 0)).(color.Gray16)
	if lo.Y != 0 {
		t.Errorf("Expected minimum value to map to black, got %d", lo.Y)
	}
	if hi.Y != 65535 {
		t.Errorf("Expected maximum value to map to white, got %d", hi.Y)
	}

	// Values outside an explicit window clamp instead of wrapping.
	v.SetWindow(0.25, 0.75)
	img, err = v.ExtractSlice("z", 0)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	lo = color.Gray16Model.Convert(img.At(0, 0)).(color.Gray16)
	hi = color.Gray16Model.Convert(img.At(1, 0)).(color.Gray16)
	if lo.Y != 0 || hi.Y != 65535 {
		t.Errorf("Expected clamped window endpoints, got %d and %d", lo.Y, hi.Y)
	}
}

// TestExtractSliceErrors verifies bounds and axis validation
func TestExtractSliceErrors(t *testing.T) {
	v := NewViewer(gradientVolume(2, 2, 2))

	if _, err := v.ExtractSlice("z", -1); err == nil {
		t.Error("Expected error for negative position")
	}
	if _, err := v.ExtractSlice("z", 2); err == nil {
		t.Error("Expected error for out-of-range position")
	}
	if _, err := v.ExtractSlice("w", 0); err == nil {
		t.Error("Expected error for invalid axis")
	}
}

// TestSaveSliceSequence verifies the numbered JPEG export
func TestSaveSliceSequence(t *testing.T) {
	v := NewViewer(gradientVolume(2, 2, 3))
	dir := filepath.Join(t.TempDir(), "slices")

	if err := v.SaveSliceSequence("z", dir); err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}

	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, fmt.Sprintf("%03d.jpg", i))
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Expected slice file %s: %v", path, err)
		}
		if info.Size() == 0 {
			t.Errorf("Slice file %s is empty", path)
		}
	}

	if err := v.SaveSliceSequence("bad", dir); err == nil {
		t.Error("Expected error for invalid axis")
	}
}
