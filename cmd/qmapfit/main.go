package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"qmapfit/pkg/config"
	"qmapfit/pkg/fitting"
	"qmapfit/pkg/models"
	"qmapfit/pkg/sequence"
	"qmapfit/pkg/visualization"
	"qmapfit/pkg/volume"
)

// zapAdapter bridges zap's SugaredLogger to the engine's Logger interface.
type zapAdapter struct {
	s *zap.SugaredLogger
}

func (z zapAdapter) Debug(msg string, kv ...any) { z.s.Debugw(msg, kv...) }
func (z zapAdapter) Info(msg string, kv ...any)  { z.s.Infow(msg, kv...) }
func (z zapAdapter) Warn(msg string, kv ...any)  { z.s.Warnw(msg, kv...) }
func (z zapAdapter) Error(msg string, kv ...any) { z.s.Errorw(msg, kv...) }

func main() {
	modelName := flag.String("model", "", "Signal model: multiecho, spgr or ellipse")
	seqPath := flag.String("seq", "", "Sequence descriptor YAML file")
	configPath := flag.String("config", "qmapfit.yaml", "Configuration YAML file")
	inputList := flag.String("input", "", "Comma-separated input channel volumes (one per observation)")
	fixedList := flag.String("fixed", "", "Comma-separated fixed covariate volumes (empty entries use model defaults)")
	maskPath := flag.String("mask", "", "Mask volume; voxels with zero mask are skipped")
	outPrefix := flag.String("out", "qmapfit_", "Output filename prefix")
	threads := flag.Int("threads", 0, "Worker count override (default: config, then all cores)")
	simulate := flag.Bool("simulate", false, "Synthesize signal from parameter maps instead of fitting")
	paramList := flag.String("params", "", "Comma-separated parameter volumes for -simulate")
	preview := flag.String("preview", "", "Also save z-axis JPEG previews of each output map to this directory")
	writeConfig := flag.Bool("write-config", false, "Write a default configuration file and exit")
	flag.Parse()

	if *writeConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default configuration to %s\n", *configPath)
		return
	}

	if *modelName == "" || *seqPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *threads > 0 {
		cfg.Fitting.Threads = *threads
	}

	logger := newLogger(cfg.Output.Verbose)
	defer logger.s.Sync()

	model, err := buildModel(*modelName, *seqPath)
	if err != nil {
		logger.s.Fatalw("failed to build model", "error", err)
	}

	opts := cfg.EngineOptions()
	opts.Logger = logger
	opts.Monitor = func(done, total, failed int) {
		fmt.Printf("\rFitting voxels: %.1f%% complete (%d failed)", 100*float64(done)/float64(total), failed)
		if done == total {
			fmt.Println()
		}
	}

	engine, err := fitting.New(model, opts)
	if err != nil {
		logger.s.Fatalw("failed to configure engine", "error", err)
	}

	if *simulate {
		runSimulate(engine, cfg, logger, *paramList, *fixedList, *maskPath, *outPrefix)
		return
	}
	runFit(engine, logger, *inputList, *fixedList, *maskPath, *outPrefix, *preview)
}

func newLogger(verbose bool) zapAdapter {
	var l *zap.Logger
	var err error
	if verbose {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return zapAdapter{s: l.Sugar()}
}

func buildModel(name, seqPath string) (fitting.Model, error) {
	seqFile, err := sequence.Load(seqPath)
	if err != nil {
		return nil, err
	}
	switch name {
	case "multiecho":
		if seqFile.MultiEcho == nil {
			return nil, fmt.Errorf("sequence file has no multiecho descriptor")
		}
		if err := seqFile.MultiEcho.Validate(); err != nil {
			return nil, err
		}
		return models.NewMultiEcho(seqFile.MultiEcho), nil
	case "spgr":
		if seqFile.SPGR == nil {
			return nil, fmt.Errorf("sequence file has no spgr descriptor")
		}
		if err := seqFile.SPGR.Validate(); err != nil {
			return nil, err
		}
		return models.NewSPGR(seqFile.SPGR), nil
	case "ellipse":
		if seqFile.SSFP == nil {
			return nil, fmt.Errorf("sequence file has no ssfp descriptor")
		}
		if err := seqFile.SSFP.Validate(); err != nil {
			return nil, err
		}
		return models.NewEllipse(seqFile.SSFP), nil
	default:
		return nil, fmt.Errorf("unknown model %q", name)
	}
}

// loadVolumes reads a comma-separated list of raw volume paths. Empty
// entries yield nil volumes (fixed covariates fall back to model defaults).
func loadVolumes(list string) ([]*volume.Volume, error) {
	if list == "" {
		return nil, nil
	}
	paths := strings.Split(list, ",")
	vols := make([]*volume.Volume, len(paths))
	for i, p := range paths {
		if p == "" {
			continue
		}
		v, err := volume.ReadRaw(p)
		if err != nil {
			return nil, err
		}
		vols[i] = v
	}
	return vols, nil
}

func loadMask(path string) (*volume.Volume, error) {
	if path == "" {
		return nil, nil
	}
	return volume.ReadRaw(path)
}

func runFit(engine *fitting.Engine, logger zapAdapter, inputList, fixedList, maskPath, outPrefix, preview string) {
	channels, err := loadVolumes(inputList)
	if err != nil {
		logger.s.Fatalw("failed to load input volumes", "error", err)
	}
	fixed, err := loadVolumes(fixedList)
	if err != nil {
		logger.s.Fatalw("failed to load fixed volumes", "error", err)
	}
	mask, err := loadMask(maskPath)
	if err != nil {
		logger.s.Fatalw("failed to load mask", "error", err)
	}

	start := time.Now()
	results, err := engine.Fit(fitting.Inputs{Channels: channels, Fixed: fixed, Mask: mask})
	if err != nil {
		logger.s.Fatalw("fit aborted", "error", err)
	}

	if err := writeResults(results, outPrefix); err != nil {
		logger.s.Fatalw("failed to write outputs", "error", err)
	}

	if preview != "" {
		for name, vol := range results.Maps {
			dir := filepath.Join(preview, name)
			if err := visualization.NewViewer(vol).SaveSliceSequence("z", dir); err != nil {
				logger.s.Warnw("failed to save preview", "map", name, "error", err)
			}
		}
	}

	fmt.Printf("\nFit completed in %.2f seconds\n", time.Since(start).Seconds())
	fmt.Printf("Voxels fitted: %d\n", results.Fitted)
	fmt.Printf("Voxels failed: %d\n", results.Failed)
	fmt.Printf("Outputs written with prefix: %s\n", outPrefix)
}

func runSimulate(engine *fitting.Engine, cfg *config.Config, logger zapAdapter, paramList, fixedList, maskPath, outPrefix string) {
	params, err := loadVolumes(paramList)
	if err != nil {
		logger.s.Fatalw("failed to load parameter volumes", "error", err)
	}
	fixed, err := loadVolumes(fixedList)
	if err != nil {
		logger.s.Fatalw("failed to load fixed volumes", "error", err)
	}
	mask, err := loadMask(maskPath)
	if err != nil {
		logger.s.Fatalw("failed to load mask", "error", err)
	}

	channels, err := engine.Simulate(fitting.SimulateInputs{
		Params:     params,
		Fixed:      fixed,
		Mask:       mask,
		NoiseSigma: cfg.Simulate.NoiseSigma,
		Seed:       cfg.Simulate.Seed,
	})
	if err != nil {
		logger.s.Fatalw("simulation aborted", "error", err)
	}

	for i, ch := range channels {
		path := fmt.Sprintf("%ssimulated_%02d.bin", outPrefix, i)
		if err := ch.WriteRaw(path); err != nil {
			logger.s.Fatalw("failed to write simulated channel", "path", path, "error", err)
		}
	}
	fmt.Printf("Wrote %d simulated channel volumes with prefix %s\n", len(channels), outPrefix)
}

func writeResults(results *fitting.Results, prefix string) error {
	for name, vol := range results.Maps {
		if err := vol.WriteRaw(prefix + name + ".bin"); err != nil {
			return err
		}
	}
	if err := results.ResidualNorm.WriteRaw(prefix + "residual_norm.bin"); err != nil {
		return err
	}
	for i, vol := range results.Residuals {
		if err := vol.WriteRaw(fmt.Sprintf("%sresidual_%02d.bin", prefix, i)); err != nil {
			return err
		}
	}
	for name, vol := range results.Covariance {
		if err := vol.WriteRaw(prefix + name + ".bin"); err != nil {
			return err
		}
	}
	if results.Iterations != nil {
		if err := results.Iterations.WriteRaw(prefix + "iterations.bin"); err != nil {
			return err
		}
	}
	if results.Scale != nil {
		if err := results.Scale.WriteRaw(prefix + "scale.bin"); err != nil {
			return err
		}
	}
	return nil
}
