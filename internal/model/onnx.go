package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"

	"github.com/ironsheep/craft-eval/internal/heatmap"
)

// ErrCheckpoint is returned when a checkpoint cannot be opened or does not
// fit the expected model interface.
var ErrCheckpoint = errors.New("cannot load checkpoint")

// ONNXOptions configures checkpoint loading.
type ONNXOptions struct {
	// InputName is the graph input receiving the [N, C, H, W] image batch.
	InputName string
	// OutputName is the graph output holding the heatmaps, either
	// [N, 2, H, W] or [N, H, W, 2].
	OutputName string
	// IntraOpThreads caps the CPU threads of one session; 0 keeps the
	// runtime default.
	IntraOpThreads int
	// Deterministic selects cuDNN convolution algorithms heuristically
	// instead of by per-run benchmarking, which can differ between runs.
	Deterministic bool
}

// DefaultONNXOptions returns the tensor names exported by the training code.
func DefaultONNXOptions() ONNXOptions {
	return ONNXOptions{InputName: "image", OutputName: "heatmaps"}
}

// InitRuntime loads the onnxruntime shared library. It must be called once
// before any checkpoint is loaded; an empty path uses the platform default.
func InitRuntime(libPath string) error {
	if ort.IsInitialized() {
		return nil
	}
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

// ShutdownRuntime releases the onnxruntime environment.
func ShutdownRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// ONNXModel serves predictions from an exported checkpoint on one device.
//
// The session is created once and only ever run; weights are never touched
// after loading.
type ONNXModel struct {
	path    string
	dev     DeviceContext
	opts    ONNXOptions
	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

// LoadCheckpoint opens the checkpoint at path for the first device of dev.
//
// Errors wrap ErrCheckpoint and are meant to abort the program before any
// evaluation starts.
func LoadCheckpoint(path string, dev DeviceContext, opts ONNXOptions) (*ONNXModel, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrCheckpoint, path)
	}
	if opts.InputName == "" || opts.OutputName == "" {
		def := DefaultONNXOptions()
		if opts.InputName == "" {
			opts.InputName = def.InputName
		}
		if opts.OutputName == "" {
			opts.OutputName = def.OutputName
		}
	}

	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer so.Destroy()

	if opts.IntraOpThreads > 0 {
		if err := so.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("set intra-op threads: %w", err)
		}
	}

	if id := dev.Device(); id >= 0 {
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("cuda provider options: %w", err)
		}
		defer cuda.Destroy()
		if err := cuda.Update(cudaSettings(id, opts.Deterministic)); err != nil {
			return nil, fmt.Errorf("select cuda device %d: %w", id, err)
		}
		if err := so.AppendExecutionProviderCUDA(cuda); err != nil {
			return nil, fmt.Errorf("enable cuda device %d: %w", id, err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{opts.InputName}, []string{opts.OutputName}, so)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCheckpoint, path, err)
	}

	return &ONNXModel{path: path, dev: dev, opts: opts, session: session}, nil
}

// LoadReplicas loads one copy of the checkpoint per device in dev and
// returns them behind a ShardedModel, along with a function that closes
// every replica.
func LoadReplicas(path string, dev DeviceContext, opts ONNXOptions) (*ShardedModel, func() error, error) {
	n := dev.Shards()
	replicas := make([]Model, 0, n)
	loaded := make([]*ONNXModel, 0, n)
	closeAll := func() error {
		var errs []error
		for _, m := range loaded {
			errs = append(errs, m.Close())
		}
		return errors.Join(errs...)
	}
	for i := 0; i < n; i++ {
		m, err := LoadCheckpoint(path, dev.For(i), opts)
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		loaded = append(loaded, m)
		replicas = append(replicas, m)
	}
	return NewShardedModel(replicas...), closeAll, nil
}

// Predict runs the session on image and returns a Single [N, 2, H, W] output.
func (m *ONNXModel) Predict(ctx context.Context, _ DeviceContext, image *tensor.Dense) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	shape := image.Shape()
	if len(shape) != 4 {
		return Output{}, fmt.Errorf("%w: image batch must be [N,C,H,W], got %v", heatmap.ErrShape, shape)
	}

	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	input, err := ort.NewTensor(ort.NewShape(dims...), heatmap.Float32s(image))
	if err != nil {
		return Output{}, fmt.Errorf("input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}
	m.mu.Lock()
	err = m.session.Run([]ort.Value{input}, outputs)
	m.mu.Unlock()
	if err != nil {
		return Output{}, fmt.Errorf("run %s on %s: %w", m.path, m.dev, err)
	}
	defer outputs[0].Destroy()

	result, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Output{}, fmt.Errorf("%w: output %q is not a float32 tensor", ErrCheckpoint, m.opts.OutputName)
	}
	heatmaps, err := toNCHW(result.GetData(), result.GetShape())
	if err != nil {
		return Output{}, err
	}
	return Single(heatmaps), nil
}

// Close releases the session.
func (m *ONNXModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}

// cudaSettings returns the CUDA provider options for device id.
func cudaSettings(id int, deterministic bool) map[string]string {
	settings := map[string]string{"device_id": strconv.Itoa(id)}
	if deterministic {
		settings["cudnn_conv_algo_search"] = "DEFAULT"
	}
	return settings
}

// toNCHW copies raw output into an [N, 2, H, W] tensor, transposing from
// channels-last when the graph emits [N, H, W, 2].
func toNCHW(data []float32, shape ort.Shape) (*tensor.Dense, error) {
	if len(shape) != 4 {
		return nil, fmt.Errorf("%w: heatmap output must have 4 dims, got %v", heatmap.ErrShape, shape)
	}
	n, d1, d2, d3 := int(shape[0]), int(shape[1]), int(shape[2]), int(shape[3])

	if d1 == 2 {
		out := make([]float32, len(data))
		copy(out, data)
		return heatmap.NewTensor(out, n, 2, d2, d3), nil
	}
	if d3 != 2 {
		return nil, fmt.Errorf("%w: heatmap output needs 2 channels, got %v", heatmap.ErrShape, shape)
	}

	h, w := d1, d2
	out := make([]float32, len(data))
	for s := 0; s < n; s++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				src := ((s*h+y)*w + x) * 2
				for c := 0; c < 2; c++ {
					out[((s*2+c)*h+y)*w+x] = data[src+c]
				}
			}
		}
	}
	return heatmap.NewTensor(out, n, 2, h, w), nil
}
