package volume

import "testing"

// TestSubregionValidate verifies subregion bounds checking
func TestSubregionValidate(t *testing.T) {
	tests := []struct {
		name    string
		region  Subregion
		wantErr bool
	}{
		{"full volume", FullRegion(4, 4, 4), false},
		{"interior box", Subregion{X: 1, Y: 1, Z: 1, SizeX: 2, SizeY: 2, SizeZ: 2}, false},
		{"single voxel", Subregion{X: 3, Y: 3, Z: 3, SizeX: 1, SizeY: 1, SizeZ: 1}, false},
		{"negative offset", Subregion{X: -1, SizeX: 1, SizeY: 1, SizeZ: 1}, true},
		{"zero size", Subregion{SizeX: 0, SizeY: 1, SizeZ: 1}, true},
		{"exceeds volume", Subregion{X: 2, SizeX: 3, SizeY: 1, SizeZ: 1}, true},
	}

	for _, tt := range tests {
		err := tt.region.Validate(4, 4, 4)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

// TestWalkerRasterOrder verifies the x-fastest lexicographic ordering
func TestWalkerRasterOrder(t *testing.T) {
	w := NewWalker(FullRegion(2, 2, 2), nil)
	expected := []Coord{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0},
		{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
	}

	coords := w.Collect()
	if len(coords) != len(expected) {
		t.Fatalf("Expected %d coordinates, got %d", len(expected), len(coords))
	}
	for i, c := range coords {
		if c != expected[i] {
			t.Errorf("Coordinate %d: expected %v, got %v", i, expected[i], c)
		}
	}
}

// TestWalkerSubregion verifies that only the subregion is walked
func TestWalkerSubregion(t *testing.T) {
	region := Subregion{X: 1, Y: 1, Z: 0, SizeX: 1, SizeY: 1, SizeZ: 1}
	coords := NewWalker(region, nil).Collect()

	if len(coords) != 1 {
		t.Fatalf("Expected 1 coordinate, got %d", len(coords))
	}
	if coords[0] != (Coord{1, 1, 0}) {
		t.Errorf("Expected (1,1,0), got %v", coords[0])
	}
}

// TestWalkerMask verifies mask filtering
func TestWalkerMask(t *testing.T) {
	mask := MustNew(2, 2, 1)
	mask.Set(0, 0, 0, 1)
	mask.Set(1, 1, 0, 0.5) // any non-zero value passes

	coords := NewWalker(FullRegion(2, 2, 1), mask).Collect()
	if len(coords) != 2 {
		t.Fatalf("Expected 2 masked-in coordinates, got %d", len(coords))
	}
	if coords[0] != (Coord{0, 0, 0}) || coords[1] != (Coord{1, 1, 0}) {
		t.Errorf("Unexpected coordinates: %v", coords)
	}

	// Fully masked-out volume yields nothing.
	empty := MustNew(2, 2, 1)
	if got := NewWalker(FullRegion(2, 2, 1), empty).Collect(); len(got) != 0 {
		t.Errorf("Expected no coordinates for zero mask, got %d", len(got))
	}
}

// TestWalkerReset verifies the walker is restartable
func TestWalkerReset(t *testing.T) {
	w := NewWalker(FullRegion(2, 1, 1), nil)
	first := w.Collect()
	if _, ok := w.Next(); ok {
		t.Error("Expected exhausted walker to stop")
	}

	w.Reset()
	second := w.Collect()
	if len(first) != len(second) {
		t.Fatalf("Expected %d coordinates after reset, got %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("Coordinate %d differs after reset: %v vs %v", i, first[i], second[i])
		}
	}
}
