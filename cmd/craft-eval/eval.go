package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ironsheep/craft-eval/internal/config"
	"github.com/ironsheep/craft-eval/internal/dataset"
	"github.com/ironsheep/craft-eval/internal/evaluate"
	"github.com/ironsheep/craft-eval/internal/imaging"
	"github.com/ironsheep/craft-eval/internal/model"
	"github.com/ironsheep/craft-eval/internal/store"
	"github.com/ironsheep/craft-eval/internal/visualize"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <checkpoint>",
		Short: "Evaluate an ONNX checkpoint on the test split",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runEval(ctx, cfg, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	fl := cmd.Flags()
	fl.StringP("config", "c", "", "YAML config file")
	fl.Int64("seed", 0, "random seed")
	fl.Bool("deterministic", true, "single-threaded inference with fixed cuDNN algorithms")
	fl.Float64("threshold-character", 0, "character heatmap threshold")
	fl.Float64("threshold-affinity", 0, "affinity heatmap threshold")
	fl.Float64("threshold-fscore", 0, "IoU threshold for a word match")
	fl.Int("periodic-output", 0, "dump visualizations every N batches")
	fl.Int("batch-size", 0, "test batch size")
	fl.Int("workers", 0, "dataloader workers")
	fl.String("dataset", "", "test dataset directory")
	fl.String("output-dir", "", "visualization directory")
	fl.String("results-db", "", "sqlite file for run history")
	fl.Bool("overlay", false, "also draw predicted words on the image")
	fl.Bool("cuda", false, "run on CUDA devices")
	fl.String("num-cuda", "", "CUDA device ids, e.g. 0,1")
	return cmd
}

// loadConfig layers the config file and the flags the user set over the
// defaults and validates the result.
func loadConfig(fl *pflag.FlagSet) (config.Config, error) {
	cfg := config.Default()
	if path, _ := fl.GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}

	var err error
	set := func(name string, apply func() error) {
		if err == nil && fl.Changed(name) {
			err = apply()
		}
	}
	set("seed", func() (e error) { cfg.Seed, e = fl.GetInt64("seed"); return })
	set("deterministic", func() (e error) { cfg.Deterministic, e = fl.GetBool("deterministic"); return })
	set("threshold-character", func() (e error) { cfg.ThresholdCharacter, e = fl.GetFloat64("threshold-character"); return })
	set("threshold-affinity", func() (e error) { cfg.ThresholdAffinity, e = fl.GetFloat64("threshold-affinity"); return })
	set("threshold-fscore", func() (e error) { cfg.ThresholdFScore, e = fl.GetFloat64("threshold-fscore"); return })
	set("periodic-output", func() (e error) { cfg.PeriodicOutput, e = fl.GetInt("periodic-output"); return })
	set("batch-size", func() error {
		n, e := fl.GetInt("batch-size")
		sizes := make(map[string]int, len(cfg.BatchSize)+1)
		for k, v := range cfg.BatchSize {
			sizes[k] = v
		}
		sizes[config.TestSplit] = n
		cfg.BatchSize = sizes
		return e
	})
	set("workers", func() (e error) { cfg.NumWorkers, e = fl.GetInt("workers"); return })
	set("dataset", func() (e error) { cfg.DatasetDir, e = fl.GetString("dataset"); return })
	set("output-dir", func() (e error) { cfg.OutputDir, e = fl.GetString("output-dir"); return })
	set("results-db", func() (e error) { cfg.ResultsDB, e = fl.GetString("results-db"); return })
	set("overlay", func() (e error) { cfg.Overlay, e = fl.GetBool("overlay"); return })
	set("cuda", func() (e error) { cfg.UseCUDA, e = fl.GetBool("cuda"); return })
	set("num-cuda", func() (e error) { cfg.NumCUDA, e = fl.GetString("num-cuda"); return })
	if err != nil {
		return config.Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	if cfg.DatasetDir == "" {
		return config.Config{}, fmt.Errorf("%w: dataset_dir is required", config.ErrInvalidConfig)
	}
	return cfg, nil
}

// runEval loads the checkpoint and evaluates it. Checkpoint errors end the
// command before any batch is read.
func runEval(ctx context.Context, cfg config.Config, checkpoint string, stdout, stderr io.Writer) error {
	opts, err := evaluate.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	if err := model.InitRuntime(cfg.ONNXRuntimeLib); err != nil {
		return err
	}
	defer func() {
		if err := model.ShutdownRuntime(); err != nil {
			log.Printf("Failed to shut down onnxruntime: %v", err)
		}
	}()

	m, closeModels, err := model.LoadReplicas(checkpoint, opts.Device, onnxOptions(cfg))
	if err != nil {
		return err
	}
	defer closeModels()
	debugf("Loaded %s on %s", checkpoint, opts.Device)

	return evaluateModel(ctx, cfg, opts, m, checkpoint, stdout, evaluate.NewProgressReporter(stderr))
}

// onnxOptions maps the configuration onto session options. Deterministic
// runs use one intra-op thread.
func onnxOptions(cfg config.Config) model.ONNXOptions {
	opts := model.ONNXOptions{
		InputName:     cfg.ModelInput,
		OutputName:    cfg.ModelOutput,
		Deterministic: cfg.Deterministic,
	}
	if cfg.Deterministic {
		opts.IntraOpThreads = 1
	}
	return opts
}

// evaluateModel runs one pass of m over the configured test set and prints
// the per-batch losses.
func evaluateModel(ctx context.Context, cfg config.Config, opts evaluate.Options, m model.Model,
	checkpoint string, stdout io.Writer, reporter evaluate.Reporter) error {
	streams := evaluate.SeedAll(cfg.Seed)

	cache := imaging.NewImageCache(cfg.CacheImages)
	ds, err := dataset.NewDirDataset(cfg.DatasetDir, cfg.ImageSize, cfg.HeatmapSize(), cache)
	if err != nil {
		return err
	}
	loader, err := dataset.NewLoader(ds, dataset.LoaderOptions{
		BatchSize: cfg.TestBatchSize(),
		Workers:   cfg.NumWorkers,
		Shuffle:   cfg.Shuffle,
		Prefetch:  2,
	}, streams.Shuffle)
	if err != nil {
		return err
	}
	debugf("Test set: %d samples, %d batches", ds.Len(), loader.Len())

	var dumpOpts []visualize.Option
	if cfg.Overlay {
		dumpOpts = append(dumpOpts, visualize.WithOverlay(opts.Words))
	}
	evalOpts := []evaluate.Option{
		evaluate.WithReporter(reporter),
		evaluate.WithDumper(visualize.NewDumper(cfg.OutputDir, opts.Thresholds, dumpOpts...)),
	}

	var (
		history *store.Store
		runID   string
	)
	if cfg.ResultsDB != "" {
		if history, err = store.NewStore(cfg.ResultsDB); err != nil {
			return err
		}
		defer history.Close()
		runID, err = history.BeginRun(ctx, store.RunInfo{
			Checkpoint:         checkpoint,
			Seed:               cfg.Seed,
			ThresholdCharacter: cfg.ThresholdCharacter,
			ThresholdAffinity:  cfg.ThresholdAffinity,
			ThresholdFScore:    cfg.ThresholdFScore,
			BatchSize:          cfg.TestBatchSize(),
		})
		if err != nil {
			return err
		}
		evalOpts = append(evalOpts, evaluate.WithRecorder(history.Recorder(runID)))
		debugf("Recording run %s in %s", runID, cfg.ResultsDB)
	}

	e, err := evaluate.New(opts, m, model.NewShardedLoss(model.HardNegativeMSE{}), evalOpts...)
	if err != nil {
		return err
	}
	res, runErr := e.Run(ctx, loader)
	debugf("Image cache holds %d decoded files", cache.Len())

	if history != nil {
		// The run outcome is recorded even when ctx was cancelled
		if err := history.FinishRun(context.WithoutCancel(ctx), runID, runErr); err != nil {
			log.Printf("Failed to record end of run %s: %v", runID, err)
		}
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintln(stdout, "Average Loss on the testing set is:", formatList(res.Losses))
	return nil
}

// formatList renders values the way a Python list of floats prints:
// shortest round-trip digits, positional between 1e-4 and 1e16 with at
// least one decimal, scientific otherwise, and nan/inf spelled in lower case.
func formatList(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatFloat(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	sci := strconv.FormatFloat(v, 'e', -1, 64)
	exp, _ := strconv.Atoi(sci[strings.IndexByte(sci, 'e')+1:])
	if v != 0 && (exp < -4 || exp >= 16) {
		return sci
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
