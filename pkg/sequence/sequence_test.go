package sequence

import (
	"math"
	"path/filepath"
	"testing"
)

// TestValidate verifies descriptor validation
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		seq     interface{ Validate() error }
		wantErr bool
	}{
		{"valid multiecho", &MultiEcho{TR: 2.5, TE: []float64{0.01, 0.02}}, false},
		{"multiecho no echoes", &MultiEcho{TR: 2.5}, true},
		{"multiecho negative echo", &MultiEcho{TR: 2.5, TE: []float64{0.01, -0.02}}, true},
		{"valid spgr", &SPGR{TR: 0.01, FA: []float64{0.1, 0.2}}, false},
		{"spgr zero TR", &SPGR{FA: []float64{0.1}}, true},
		{"spgr no angles", &SPGR{TR: 0.01}, true},
		{"valid ssfp", &SSFP{TR: 0.005, FA: 0.35, PhaseInc: []float64{0, math.Pi}}, false},
		{"ssfp zero TR", &SSFP{FA: 0.35, PhaseInc: []float64{0}}, true},
		{"ssfp no increments", &SSFP{TR: 0.005, FA: 0.35}, true},
	}

	for _, tt := range tests {
		err := tt.seq.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

// TestSize verifies the observation counts, including the doubled SSFP count
// for stacked real and imaginary channels
func TestSize(t *testing.T) {
	if got := (&MultiEcho{TE: []float64{0.01, 0.02, 0.03}}).Size(); got != 3 {
		t.Errorf("Expected multiecho size 3, got %d", got)
	}
	if got := (&SPGR{FA: []float64{0.1, 0.2}}).Size(); got != 2 {
		t.Errorf("Expected SPGR size 2, got %d", got)
	}
	if got := (&SSFP{PhaseInc: []float64{0, math.Pi / 2, math.Pi}}).Size(); got != 6 {
		t.Errorf("Expected SSFP size 6 (real and imaginary), got %d", got)
	}
}

// TestFileRoundTrip verifies YAML save and load
func TestFileRoundTrip(t *testing.T) {
	f := &File{
		MultiEcho: &MultiEcho{TR: 2.5, TE: []float64{0.01, 0.02, 0.04}},
		SSFP:      &SSFP{TR: 0.005, FA: 0.35, PhaseInc: []float64{0, math.Pi}},
	}

	path := filepath.Join(t.TempDir(), "seq.yaml")
	if err := Save(f, path); err != nil {
		t.Fatalf("Failed to save sequence file: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load sequence file: %v", err)
	}
	if loaded.SPGR != nil {
		t.Error("Expected absent SPGR descriptor to stay nil")
	}
	if loaded.MultiEcho == nil || loaded.MultiEcho.TR != 2.5 {
		t.Fatalf("MultiEcho descriptor not preserved: %+v", loaded.MultiEcho)
	}
	if len(loaded.MultiEcho.TE) != 3 || loaded.MultiEcho.TE[2] != 0.04 {
		t.Errorf("Echo times not preserved: %v", loaded.MultiEcho.TE)
	}
	if loaded.SSFP == nil || loaded.SSFP.FA != 0.35 || len(loaded.SSFP.PhaseInc) != 2 {
		t.Errorf("SSFP descriptor not preserved: %+v", loaded.SSFP)
	}
}

// TestLoadMissingFile verifies the error path
func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Expected error loading a missing sequence file")
	}
}
