package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/ironsheep/craft-eval/internal/config"
	"github.com/ironsheep/craft-eval/internal/evaluate"
	"github.com/ironsheep/craft-eval/internal/heatmap"
	"github.com/ironsheep/craft-eval/internal/model"
	"github.com/ironsheep/craft-eval/internal/store"
)

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// writeDataset creates n samples of 8x8 images with fully lit 4x4 heatmaps.
func writeDataset(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()
	for i := 0; i < n; i++ {
		img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
		gray := image.NewGray(image.Rect(0, 0, 4, 4))
		for j := range gray.Pix {
			gray.Pix[j] = 255
		}
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				img.Set(x, y, color.NRGBA{R: uint8(i * 40), G: 10, B: 200, A: 255})
			}
		}
		name := string(rune('a' + i))
		writePNG(t, filepath.Join(dir, name+".png"), img)
		writePNG(t, filepath.Join(dir, name+"_char.png"), gray)
		writePNG(t, filepath.Join(dir, name+"_aff.png"), gray)
	}
	return dir
}

// blankModel predicts all-zero heatmaps of side 4.
var blankModel = model.ModelFunc(func(_ context.Context, _ model.DeviceContext, image *tensor.Dense) (model.Output, error) {
	n := image.Shape()[0]
	return model.Single(heatmap.NewTensor(make([]float32, n*2*4*4), n, 2, 4, 4)), nil
})

func TestFormatList(t *testing.T) {
	tests := []struct {
		in   []float64
		want string
	}{
		{nil, "[]"},
		{[]float64{0.5}, "[0.5]"},
		{[]float64{0, 2, 0.25}, "[0.0, 2.0, 0.25]"},
		{[]float64{1e-9}, "[1e-09]"},
		{[]float64{1234567}, "[1234567.0]"},
		{[]float64{0.0001, 0.00001}, "[0.0001, 1e-05]"},
		{[]float64{1e15, 1e16, 2.5e17}, "[1000000000000000.0, 1e+16, 2.5e+17]"},
		{[]float64{-3}, "[-3.0]"},
		{[]float64{math.NaN(), math.Inf(1), math.Inf(-1)}, "[nan, inf, -inf]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatList(tt.in))
	}
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "eval.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("seed: 3\nthreshold_fscore: 0.7\ndataset_dir: from-file\n"), 0o644))

	cmd := newEvalCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--config", cfgPath,
		"--seed", "9",
		"--batch-size", "3",
		"--overlay",
	}))

	cfg, err := loadConfig(cmd.Flags())
	require.NoError(t, err)
	assert.Equal(t, int64(9), cfg.Seed)
	assert.Equal(t, 0.7, cfg.ThresholdFScore)
	assert.Equal(t, "from-file", cfg.DatasetDir)
	assert.Equal(t, 3, cfg.TestBatchSize())
	assert.True(t, cfg.Overlay)
	// untouched flags keep the defaults
	assert.True(t, cfg.Deterministic)
	assert.Equal(t, config.Default().ThresholdCharacter, cfg.ThresholdCharacter)
	assert.Equal(t, config.Default().OutputDir, cfg.OutputDir)
}

func TestLoadConfig_Nondeterministic(t *testing.T) {
	cmd := newEvalCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--dataset", "d", "--deterministic=false"}))

	cfg, err := loadConfig(cmd.Flags())
	require.NoError(t, err)
	assert.False(t, cfg.Deterministic)
}

func TestONNXOptions(t *testing.T) {
	cfg := config.Default()
	opts := onnxOptions(cfg)
	assert.Equal(t, "image", opts.InputName)
	assert.Equal(t, "heatmaps", opts.OutputName)
	assert.True(t, opts.Deterministic)
	assert.Equal(t, 1, opts.IntraOpThreads)

	cfg.Deterministic = false
	opts = onnxOptions(cfg)
	assert.False(t, opts.Deterministic)
	assert.Zero(t, opts.IntraOpThreads, "runtime default thread count")
}

func TestLoadConfig_Errors(t *testing.T) {
	cmd := newEvalCmd()
	require.NoError(t, cmd.ParseFlags(nil))
	_, err := loadConfig(cmd.Flags())
	assert.ErrorIs(t, err, config.ErrInvalidConfig, "dataset is required")

	cmd = newEvalCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--dataset", "d", "--threshold-fscore", "1.5"}))
	_, err = loadConfig(cmd.Flags())
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func evalConfig(t *testing.T, samples int) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DatasetDir = writeDataset(t, samples)
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.ResultsDB = filepath.Join(t.TempDir(), "runs.db")
	cfg.ImageSize = 8
	cfg.HeatmapScale = 2
	cfg.BatchSize = map[string]int{config.TestSplit: 2}
	cfg.NumWorkers = 2
	cfg.PeriodicOutput = 1
	return cfg
}

func TestEvaluateModel(t *testing.T) {
	cfg := evalConfig(t, 3)
	opts, err := evaluate.OptionsFromConfig(cfg)
	require.NoError(t, err)

	var stdout bytes.Buffer
	err = evaluateModel(context.Background(), cfg, opts, blankModel, "blank.onnx", &stdout, nil)
	require.NoError(t, err)

	out := stdout.String()
	assert.True(t, strings.HasPrefix(out, "Average Loss on the testing set is: ["), out)
	assert.Equal(t, 1, strings.Count(out, ","), "two batches: %s", out)

	// batch 1 is the only periodic dump
	_, err = os.Stat(filepath.Join(cfg.OutputDir, "1", "0", "pred_characters.png"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(cfg.OutputDir, "0"))
	assert.True(t, os.IsNotExist(err))

	s, err := store.NewStore(cfg.ResultsDB)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusDone, runs[0].Status)
	assert.Equal(t, "blank.onnx", runs[0].Checkpoint)
	assert.Equal(t, 2, runs[0].Batches)
	// the targets hold one word each and nothing is predicted
	assert.Equal(t, 0.0, runs[0].MeanFScore)
	assert.Greater(t, runs[0].MeanLoss, 0.0)
}

func TestEvaluateModel_FailureIsRecorded(t *testing.T) {
	cfg := evalConfig(t, 2)
	opts, err := evaluate.OptionsFromConfig(cfg)
	require.NoError(t, err)

	boom := errors.New("device lost")
	failing := model.ModelFunc(func(context.Context, model.DeviceContext, *tensor.Dense) (model.Output, error) {
		return model.Output{}, boom
	})

	var stdout bytes.Buffer
	err = evaluateModel(context.Background(), cfg, opts, failing, "bad.onnx", &stdout, nil)
	require.ErrorIs(t, err, boom)
	assert.Empty(t, stdout.String())

	s, err := store.NewStore(cfg.ResultsDB)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "device lost")
}

func TestEvaluateModel_DivergedModelWithHistory(t *testing.T) {
	cfg := evalConfig(t, 3)
	opts, err := evaluate.OptionsFromConfig(cfg)
	require.NoError(t, err)

	diverged := model.ModelFunc(func(_ context.Context, _ model.DeviceContext, image *tensor.Dense) (model.Output, error) {
		n := image.Shape()[0]
		data := make([]float32, n*2*4*4)
		for i := range data {
			data[i] = float32(math.NaN())
		}
		return model.Single(heatmap.NewTensor(data, n, 2, 4, 4)), nil
	})

	var stdout bytes.Buffer
	require.NoError(t, evaluateModel(context.Background(), cfg, opts, diverged, "nan.onnx", &stdout, nil))
	assert.Equal(t, "Average Loss on the testing set is: [nan, nan]\n", stdout.String())

	s, err := store.NewStore(cfg.ResultsDB)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusDone, runs[0].Status)
	assert.Equal(t, 2, runs[0].Batches)
	assert.True(t, math.IsNaN(runs[0].MeanLoss))
}

func TestEvaluateModel_MissingDataset(t *testing.T) {
	cfg := config.Default()
	cfg.DatasetDir = filepath.Join(t.TempDir(), "absent")
	opts, err := evaluate.OptionsFromConfig(cfg)
	require.NoError(t, err)

	err = evaluateModel(context.Background(), cfg, opts, blankModel, "x.onnx", &bytes.Buffer{}, nil)
	assert.Error(t, err)
}

func TestPrintRuns(t *testing.T) {
	runs := []store.Run{{
		ID:      "run-1",
		RunInfo: store.RunInfo{Checkpoint: "final.onnx", Seed: 7},
		Status:  store.StatusDone,
		Batches: 4,
	}}
	var buf bytes.Buffer
	require.NoError(t, printRuns(&buf, runs))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "RUN"))
	assert.Contains(t, lines[1], "run-1")
	assert.Contains(t, lines[1], "final.onnx")
}

func TestPrintBatches(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printBatches(&buf, []store.BatchRow{{No: 0, Loss: 0.5, FScore: 1}}))
	assert.Contains(t, buf.String(), "0.50000000")
	assert.Contains(t, buf.String(), "1.0000")
}
