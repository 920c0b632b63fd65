// Package config provides configuration loading and management for qmapfit.
// It handles loading configuration from YAML files and provides default
// values for the solver, output and simulation settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"qmapfit/pkg/fitting"
	"qmapfit/pkg/volume"
)

// SubregionConfig restricts processing to an index-space box.
type SubregionConfig struct {
	X     int `yaml:"x"`
	Y     int `yaml:"y"`
	Z     int `yaml:"z"`
	SizeX int `yaml:"sizeX"`
	SizeY int `yaml:"sizeY"`
	SizeZ int `yaml:"sizeZ"`
}

// Config represents the application configuration loaded from YAML.
type Config struct {
	// Fitting parameters control the per-voxel solver.
	Fitting struct {
		// MaxIterations bounds the solver iterations per voxel.
		MaxIterations int `yaml:"maxIterations"`

		// Tolerance is the relative convergence threshold.
		Tolerance float64 `yaml:"tolerance"`

		// Threads is the worker count; zero means all available cores.
		Threads int `yaml:"threads"`

		// ScaleSignal normalizes each voxel's signal by its mean before
		// fitting.
		ScaleSignal bool `yaml:"scaleSignal"`
	} `yaml:"fitting"`

	// Region optionally restricts which voxels are processed.
	Region struct {
		// Subregion, when present, limits processing to the given box.
		Subregion *SubregionConfig `yaml:"subregion"`
	} `yaml:"region"`

	// Output parameters select the optional output channels.
	Output struct {
		// Residuals also emits per-observation residual volumes.
		Residuals bool `yaml:"residuals"`

		// Covariance also emits parameter covariance-diagonal volumes.
		Covariance bool `yaml:"covariance"`

		// IterationMap also emits a per-voxel iteration-count volume.
		IterationMap bool `yaml:"iterationMap"`

		// ScaleMap also emits the per-voxel signal-gain estimate.
		ScaleMap bool `yaml:"scaleMap"`

		// Verbose controls the level of logging output.
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`

	// Simulate parameters apply when synthesizing signal instead of fitting.
	Simulate struct {
		// NoiseSigma is the standard deviation of additive Gaussian noise.
		NoiseSigma float64 `yaml:"noiseSigma"`

		// Seed initializes the noise generator.
		Seed int64 `yaml:"seed"`
	} `yaml:"simulate"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Fitting.MaxIterations = 50
	cfg.Fitting.Tolerance = 1e-8
	cfg.Fitting.Threads = runtime.NumCPU()
	cfg.Fitting.ScaleSignal = true

	cfg.Output.Verbose = true

	cfg.Simulate.Seed = 1

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}

// EngineOptions converts the configuration into fitting-engine options.
// Logger and monitor wiring is left to the caller.
func (c *Config) EngineOptions() *fitting.Options {
	opts := fitting.DefaultOptions()
	opts.MaxIterations = c.Fitting.MaxIterations
	opts.Tolerance = c.Fitting.Tolerance
	opts.Threads = c.Fitting.Threads
	opts.ScaleSignal = c.Fitting.ScaleSignal
	opts.Residuals = c.Output.Residuals
	opts.Covariance = c.Output.Covariance
	opts.IterationMap = c.Output.IterationMap
	opts.ScaleMap = c.Output.ScaleMap
	if sub := c.Region.Subregion; sub != nil {
		opts.Subregion = &volume.Subregion{
			X: sub.X, Y: sub.Y, Z: sub.Z,
			SizeX: sub.SizeX, SizeY: sub.SizeY, SizeZ: sub.SizeZ,
		}
	}
	return opts
}
