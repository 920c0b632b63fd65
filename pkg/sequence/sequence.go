// Package sequence defines acquisition protocol descriptors. A sequence
// carries the pulse-sequence timing parameters of an acquisition and, through
// its Size, determines how many observations a model predicts per voxel.
// Descriptors are plain structs with YAML tags so protocols can be loaded
// from the same configuration files as the rest of qmapfit.
package sequence

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MultiEcho describes a multi-echo spin-echo acquisition.
type MultiEcho struct {
	// TR is the repetition time in seconds.
	TR float64 `yaml:"tr"`

	// TE lists the echo times in seconds, one per observation.
	TE []float64 `yaml:"te"`
}

// Size returns the number of observations per voxel.
func (s *MultiEcho) Size() int { return len(s.TE) }

// Validate checks the descriptor for physically meaningful values.
func (s *MultiEcho) Validate() error {
	if len(s.TE) == 0 {
		return fmt.Errorf("multi-echo sequence needs at least one echo time")
	}
	for i, te := range s.TE {
		if te <= 0 {
			return fmt.Errorf("echo time %d must be positive, got %g", i, te)
		}
	}
	return nil
}

// SPGR describes a spoiled gradient-echo acquisition with a set of flip
// angles (variable flip angle T1 mapping).
type SPGR struct {
	// TR is the repetition time in seconds.
	TR float64 `yaml:"tr"`

	// FA lists the nominal flip angles in radians, one per observation.
	FA []float64 `yaml:"fa"`
}

// Size returns the number of observations per voxel.
func (s *SPGR) Size() int { return len(s.FA) }

// Validate checks the descriptor for physically meaningful values.
func (s *SPGR) Validate() error {
	if s.TR <= 0 {
		return fmt.Errorf("SPGR TR must be positive, got %g", s.TR)
	}
	if len(s.FA) == 0 {
		return fmt.Errorf("SPGR sequence needs at least one flip angle")
	}
	return nil
}

// SSFP describes a balanced steady-state free-precession acquisition with a
// set of RF phase increments at a single flip angle. Complex data acquired
// with this sequence is stored as separate real and imaginary channels, so
// the observation count is twice the number of phase increments.
type SSFP struct {
	// TR is the repetition time in seconds.
	TR float64 `yaml:"tr"`

	// FA is the nominal flip angle in radians.
	FA float64 `yaml:"fa"`

	// PhaseInc lists the RF phase increments in radians.
	PhaseInc []float64 `yaml:"phase_inc"`
}

// Size returns the number of real-valued observations per voxel
// (real and imaginary parts stacked).
func (s *SSFP) Size() int { return 2 * len(s.PhaseInc) }

// Validate checks the descriptor for physically meaningful values.
func (s *SSFP) Validate() error {
	if s.TR <= 0 {
		return fmt.Errorf("SSFP TR must be positive, got %g", s.TR)
	}
	if len(s.PhaseInc) == 0 {
		return fmt.Errorf("SSFP sequence needs at least one phase increment")
	}
	return nil
}

// File is the on-disk sequence document. Exactly one descriptor should be
// present for a given protocol; which one is consulted depends on the model
// selected at run time.
type File struct {
	MultiEcho *MultiEcho `yaml:"multiecho,omitempty"`
	SPGR      *SPGR      `yaml:"spgr,omitempty"`
	SSFP      *SSFP      `yaml:"ssfp,omitempty"`
}

// Load reads a sequence document from a YAML file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading sequence file: %w", err)
	}
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("error parsing sequence file: %w", err)
	}
	return f, nil
}

// Save writes a sequence document to a YAML file.
func Save(f *File, path string) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("error marshaling sequence: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing sequence file: %w", err)
	}
	return nil
}
