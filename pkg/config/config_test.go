package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig verifies the default values
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Fitting.MaxIterations != 50 {
		t.Errorf("Expected default max iterations 50, got %d", cfg.Fitting.MaxIterations)
	}
	if cfg.Fitting.Tolerance != 1e-8 {
		t.Errorf("Expected default tolerance 1e-8, got %g", cfg.Fitting.Tolerance)
	}
	if !cfg.Fitting.ScaleSignal {
		t.Error("Expected signal scaling on by default")
	}
	if cfg.Fitting.Threads < 1 {
		t.Errorf("Expected at least one thread, got %d", cfg.Fitting.Threads)
	}
	if cfg.Region.Subregion != nil {
		t.Error("Expected no subregion by default")
	}
	if cfg.Output.Residuals || cfg.Output.Covariance {
		t.Error("Expected optional outputs off by default")
	}
}

// TestLoadConfigMissingFile verifies missing files fall back to defaults
func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for missing config, got error: %v", err)
	}
	if cfg.Fitting.MaxIterations != 50 {
		t.Errorf("Expected default max iterations 50, got %d", cfg.Fitting.MaxIterations)
	}
}

// TestConfigRoundTrip verifies save and load preserve all sections
func TestConfigRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fitting.MaxIterations = 120
	cfg.Fitting.Threads = 3
	cfg.Region.Subregion = &SubregionConfig{X: 1, Y: 2, Z: 3, SizeX: 4, SizeY: 5, SizeZ: 6}
	cfg.Output.Residuals = true
	cfg.Output.IterationMap = true
	cfg.Simulate.NoiseSigma = 0.02
	cfg.Simulate.Seed = 99

	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Fitting.MaxIterations != 120 {
		t.Errorf("Expected max iterations 120, got %d", loaded.Fitting.MaxIterations)
	}
	if loaded.Fitting.Threads != 3 {
		t.Errorf("Expected 3 threads, got %d", loaded.Fitting.Threads)
	}
	if loaded.Region.Subregion == nil || loaded.Region.Subregion.SizeZ != 6 {
		t.Errorf("Subregion not preserved: %+v", loaded.Region.Subregion)
	}
	if !loaded.Output.Residuals || !loaded.Output.IterationMap {
		t.Error("Output flags not preserved")
	}
	if loaded.Simulate.NoiseSigma != 0.02 || loaded.Simulate.Seed != 99 {
		t.Errorf("Simulate section not preserved: %+v", loaded.Simulate)
	}
}

// TestLoadConfigRejectsGarbage verifies the parse error path
func TestLoadConfigRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("fitting: [not a mapping"), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for malformed config")
	}
}

// TestCreateDefaultConfigFile verifies the generated file loads back
func TestCreateDefaultConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := CreateDefaultConfigFile(path); err != nil {
		t.Fatalf("Failed to create default config: %v", err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("Failed to load generated config: %v", err)
	}
	if cfg.Fitting.Tolerance != 1e-8 {
		t.Errorf("Expected tolerance 1e-8, got %g", cfg.Fitting.Tolerance)
	}
}

// TestEngineOptions verifies the conversion into solver options
func TestEngineOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fitting.MaxIterations = 75
	cfg.Fitting.ScaleSignal = false
	cfg.Output.Covariance = true
	cfg.Region.Subregion = &SubregionConfig{X: 1, SizeX: 2, SizeY: 2, SizeZ: 2}

	opts := cfg.EngineOptions()
	if opts.MaxIterations != 75 {
		t.Errorf("Expected max iterations 75, got %d", opts.MaxIterations)
	}
	if opts.ScaleSignal {
		t.Error("Expected signal scaling off")
	}
	if !opts.Covariance {
		t.Error("Expected covariance output on")
	}
	if opts.Subregion == nil || opts.Subregion.X != 1 || opts.Subregion.SizeX != 2 {
		t.Errorf("Subregion not mapped: %+v", opts.Subregion)
	}

	cfg.Region.Subregion = nil
	if opts := cfg.EngineOptions(); opts.Subregion != nil {
		t.Error("Expected nil subregion when none configured")
	}
}
