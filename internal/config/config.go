// Package config holds the settings of one evaluation run.
//
// A Config is built once at startup, from Default, an optional YAML file
// and command-line overrides, and is then passed by value to every
// component. Nothing reads configuration from package state.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/craft-eval/internal/heatmap"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// TestSplit is the batch_size key used for evaluation.
const TestSplit = "test"

// Config is the full set of evaluation settings.
type Config struct {
	NumCUDA string `yaml:"num_cuda"`
	UseCUDA bool   `yaml:"use_cuda"`
	Seed    int64  `yaml:"seed"`
	// Deterministic runs inference on one CPU thread and with fixed cuDNN
	// convolution algorithms, so equal seeds give bit-identical results.
	Deterministic bool `yaml:"deterministic"`

	ThresholdCharacter float64 `yaml:"threshold_character"`
	ThresholdAffinity  float64 `yaml:"threshold_affinity"`
	ThresholdFScore    float64 `yaml:"threshold_fscore"`

	// PeriodicOutput is the dump interval in batches.
	PeriodicOutput int `yaml:"periodic_output"`

	// BatchSize maps a split name (train, test) to its batch size.
	BatchSize  map[string]int `yaml:"batch_size"`
	NumWorkers int            `yaml:"num_workers"`
	Shuffle    bool           `yaml:"shuffle"`

	OutputDir    string `yaml:"output_dir"`
	Overlay      bool   `yaml:"overlay"`
	DatasetDir   string `yaml:"dataset_dir"`
	ImageSize    int    `yaml:"image_size"`
	HeatmapScale int    `yaml:"heatmap_scale"`
	MinWordArea  int    `yaml:"min_word_area"`
	// CacheImages caps how many decoded dataset files are kept in memory.
	// 0 keeps none, which suits a single pass; negative keeps every file.
	CacheImages int `yaml:"cache_images"`

	ONNXRuntimeLib string `yaml:"onnxruntime_lib"`
	ModelInput     string `yaml:"model_input"`
	ModelOutput    string `yaml:"model_output"`

	// ResultsDB is an optional sqlite path for run history.
	ResultsDB string `yaml:"results_db"`
}

// Default returns the settings used by the synthetic-data experiments.
func Default() Config {
	return Config{
		NumCUDA:            "0",
		UseCUDA:            false,
		Seed:               0,
		Deterministic:      true,
		ThresholdCharacter: 0.4,
		ThresholdAffinity:  0.4,
		ThresholdFScore:    0.5,
		PeriodicOutput:     1000,
		BatchSize:          map[string]int{"train": 4, TestSplit: 4},
		NumWorkers:         16,
		Shuffle:            true,
		OutputDir:          "test_synthesis",
		ImageSize:          768,
		HeatmapScale:       2,
		MinWordArea:        10,
		CacheImages:        0,
		ModelInput:         "image",
		ModelOutput:        "heatmaps",
	}
}

// Load reads a YAML file over Default. Keys absent from the file keep their
// default values. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and required values.
func (c Config) Validate() error {
	thresholds := []struct {
		name  string
		value float64
	}{
		{"threshold_character", c.ThresholdCharacter},
		{"threshold_affinity", c.ThresholdAffinity},
		{"threshold_fscore", c.ThresholdFScore},
	}
	for _, th := range thresholds {
		if th.value < 0 || th.value > 1 {
			return fmt.Errorf("%w: %s must be in [0,1], got %g", ErrInvalidConfig, th.name, th.value)
		}
	}
	if c.PeriodicOutput <= 0 {
		return fmt.Errorf("%w: periodic_output must be positive, got %d", ErrInvalidConfig, c.PeriodicOutput)
	}
	if c.TestBatchSize() <= 0 {
		return fmt.Errorf("%w: batch_size.%s must be positive", ErrInvalidConfig, TestSplit)
	}
	if c.NumWorkers < 1 {
		return fmt.Errorf("%w: num_workers must be at least 1, got %d", ErrInvalidConfig, c.NumWorkers)
	}
	if c.ImageSize <= 0 || c.HeatmapScale <= 0 || c.ImageSize%c.HeatmapScale != 0 {
		return fmt.Errorf("%w: image_size %d must be a positive multiple of heatmap_scale %d",
			ErrInvalidConfig, c.ImageSize, c.HeatmapScale)
	}
	if c.MinWordArea < 0 {
		return fmt.Errorf("%w: min_word_area must not be negative", ErrInvalidConfig)
	}
	if c.UseCUDA {
		if _, err := c.DeviceIDs(); err != nil {
			return err
		}
	}
	return nil
}

// DeviceIDs parses NumCUDA ("0", "0,1", "0, 2") into device ids.
func (c Config) DeviceIDs() ([]int, error) {
	var ids []int
	seen := make(map[int]bool)
	for _, field := range strings.Split(c.NumCUDA, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		id, err := strconv.Atoi(field)
		if err != nil || id < 0 {
			return nil, fmt.Errorf("%w: num_cuda entry %q is not a device id", ErrInvalidConfig, field)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: num_cuda lists device %d twice", ErrInvalidConfig, id)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: num_cuda names no device", ErrInvalidConfig)
	}
	return ids, nil
}

// TestBatchSize returns the batch size of the test split.
func (c Config) TestBatchSize() int {
	return c.BatchSize[TestSplit]
}

// HeatmapSize returns the side of the ground-truth heatmaps.
func (c Config) HeatmapSize() int {
	return c.ImageSize / c.HeatmapScale
}

// Thresholds returns the character and affinity thresholds used both for
// word boxes and for the thresholded visualizations.
func (c Config) Thresholds() heatmap.Thresholds {
	return heatmap.Thresholds{Character: c.ThresholdCharacter, Affinity: c.ThresholdAffinity}
}
