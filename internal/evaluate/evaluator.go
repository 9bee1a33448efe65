// Package evaluate drives one evaluation pass of a heatmap text detector:
// for every batch it computes the loss, turns predicted and ground-truth
// heatmaps into word polygons, scores them, reports progress and
// periodically hands the batch to a visualization dumper.
//
// The loop is single threaded. Batches arrive fully materialized and one at
// a time; model and loss calls block until every device shard is done.
// There are no retries: the first error from any collaborator aborts the
// pass.
package evaluate

import (
	"context"
	"errors"
	"fmt"

	"gorgonia.org/tensor"

	"github.com/ironsheep/craft-eval/internal/config"
	"github.com/ironsheep/craft-eval/internal/dataset"
	"github.com/ironsheep/craft-eval/internal/detection"
	"github.com/ironsheep/craft-eval/internal/heatmap"
	"github.com/ironsheep/craft-eval/internal/model"
	"github.com/ironsheep/craft-eval/internal/score"
)

// ErrAlreadyRun is returned by Run on an evaluator that left INIT.
var ErrAlreadyRun = errors.New("evaluator already ran")

// State is the lifecycle position of an Evaluator.
type State int

const (
	StateInit State = iota
	StateIterating
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateIterating:
		return "ITERATING"
	case StateDone:
		return "DONE"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Batches is a finite, ordered sequence of batches; dataset.Loader
// implements it.
type Batches interface {
	Len() int
	Iterate(ctx context.Context, fn func(no int, b dataset.Batch) error) error
}

// Dumper persists one batch for inspection. output is the normalized
// [N, 2, H, W] prediction.
type Dumper interface {
	Dump(no int, image, output, char, aff *tensor.Dense) error
}

// Recorder receives every batch result as soon as it is known.
type Recorder interface {
	RecordBatch(ctx context.Context, no int, loss, fscore float64) error
}

// Options are the evaluation settings taken from the run configuration.
type Options struct {
	Thresholds      heatmap.Thresholds
	FScoreThreshold float64
	// PeriodicOutput is the dump interval; batch no is dumped when it is a
	// positive multiple of it.
	PeriodicOutput int
	Device         model.DeviceContext
	Words          detection.Options
	// KeepBoxes stores the predicted word boxes of every batch in Result.
	KeepBoxes bool
}

// OptionsFromConfig builds Options from a validated configuration.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	dev := model.Host()
	if cfg.UseCUDA {
		ids, err := cfg.DeviceIDs()
		if err != nil {
			return Options{}, err
		}
		dev = model.DeviceContext{UseAccelerator: true, Devices: ids}
	}
	return Options{
		Thresholds:      cfg.Thresholds(),
		FScoreThreshold: cfg.ThresholdFScore,
		PeriodicOutput:  cfg.PeriodicOutput,
		Device:          dev,
		Words:           detection.Options{MinArea: cfg.MinWordArea},
	}, nil
}

// Result is what one pass produced, in batch order.
type Result struct {
	// Losses holds one reduced loss per batch; it is never aggregated here.
	Losses  []float64
	FScores []float64
	// Boxes holds predicted word boxes per batch when Options.KeepBoxes is set.
	Boxes []detection.BoxSet
}

// Option customizes an Evaluator.
type Option func(*Evaluator)

// WithReporter sets the progress display. The default discards progress.
// A nil r leaves progress unreported.
func WithReporter(r Reporter) Option {
	return func(e *Evaluator) {
		if r != nil {
			e.reporter = r
		}
	}
}

// WithDumper enables periodic visualization dumps.
func WithDumper(d Dumper) Option {
	return func(e *Evaluator) { e.dumper = d }
}

// WithRecorder streams batch results to r.
func WithRecorder(r Recorder) Option {
	return func(e *Evaluator) { e.recorder = r }
}

// Evaluator runs a single evaluation pass. It moves from INIT to ITERATING
// when Run starts and to DONE when Run returns; it cannot be reused.
type Evaluator struct {
	opts     Options
	model    model.Model
	loss     model.Loss
	reporter Reporter
	dumper   Dumper
	recorder Recorder
	state    State
}

// New creates an evaluator in state INIT.
func New(opts Options, m model.Model, loss model.Loss, options ...Option) (*Evaluator, error) {
	if m == nil || loss == nil {
		return nil, errors.New("evaluator needs a model and a loss")
	}
	if opts.PeriodicOutput <= 0 {
		return nil, fmt.Errorf("periodic output must be positive, got %d", opts.PeriodicOutput)
	}
	e := &Evaluator{
		opts:     opts,
		model:    m,
		loss:     loss,
		reporter: nopReporter{},
		state:    StateInit,
	}
	for _, o := range options {
		o(e)
	}
	return e, nil
}

// State returns the current lifecycle state.
func (e *Evaluator) State() State {
	return e.state
}

// Run evaluates every batch once. On error the returned Result holds the
// batches completed before the failure and the error names the batch.
func (e *Evaluator) Run(ctx context.Context, batches Batches) (Result, error) {
	if e.state != StateInit {
		return Result{}, ErrAlreadyRun
	}
	e.state = StateIterating
	defer func() { e.state = StateDone }()

	total := batches.Len()
	e.reporter.Start(total)
	defer e.reporter.Finish()

	var res Result
	err := batches.Iterate(ctx, func(no int, b dataset.Batch) error {
		if err := e.step(ctx, no, total, b, &res); err != nil {
			return fmt.Errorf("batch %d: %w", no, err)
		}
		return nil
	})
	return res, err
}

// step evaluates batch no and appends its results to res.
func (e *Evaluator) step(ctx context.Context, no, total int, b dataset.Batch, res *Result) error {
	dev := e.opts.Device
	image := dev.Place(b.Image)
	char := dev.Place(b.Character)
	aff := dev.Place(b.Affinity)

	out, err := e.model.Predict(ctx, dev, image)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}
	partials, err := e.loss.Score(ctx, out, char, aff)
	if err != nil {
		return fmt.Errorf("loss: %w", err)
	}
	loss := model.Reduce(partials)
	res.Losses = append(res.Losses, loss)

	pred, err := out.Normalize()
	if err != nil {
		return err
	}
	if n := heatmap.BatchSize(pred); n != b.Len() {
		return fmt.Errorf("%w: model returned %d samples for a batch of %d", heatmap.ErrShape, n, b.Len())
	}

	predicted, err := e.wordBoxes(pred)
	if err != nil {
		return fmt.Errorf("predicted boxes: %w", err)
	}
	target, err := e.targetBoxes(char, aff)
	if err != nil {
		return fmt.Errorf("target boxes: %w", err)
	}
	fscore, err := score.BatchFScore(predicted, target, e.opts.FScoreThreshold)
	if err != nil {
		return err
	}
	res.FScores = append(res.FScores, fscore)
	if e.opts.KeepBoxes {
		res.Boxes = append(res.Boxes, predicted)
	}

	e.reporter.Describe(Describe(loss, no, total, res.Losses, res.FScores))
	e.reporter.Advance()

	if e.recorder != nil {
		if err := e.recorder.RecordBatch(ctx, no, loss, fscore); err != nil {
			return fmt.Errorf("record: %w", err)
		}
	}

	if e.dumper != nil && no%e.opts.PeriodicOutput == 0 && no != 0 {
		if err := e.dumper.Dump(no, image, pred, char, aff); err != nil {
			return fmt.Errorf("dump: %w", err)
		}
	}
	return nil
}

// wordBoxes generates word polygons from channel 0 (character) and
// channel 1 (affinity) of a normalized prediction.
func (e *Evaluator) wordBoxes(pred *tensor.Dense) (detection.BoxSet, error) {
	chars, err := heatmap.ChannelBatch(pred, 0)
	if err != nil {
		return nil, err
	}
	affs, err := heatmap.ChannelBatch(pred, 1)
	if err != nil {
		return nil, err
	}
	return detection.GenerateWordBoxesBatch(chars, affs, e.opts.Thresholds, e.opts.Words)
}

// targetBoxes generates word polygons from the [N, H, W] ground truth with
// the same thresholds as the prediction.
func (e *Evaluator) targetBoxes(char, aff *tensor.Dense) (detection.BoxSet, error) {
	chars, err := heatmap.SampleBatch(char)
	if err != nil {
		return nil, err
	}
	affs, err := heatmap.SampleBatch(aff)
	if err != nil {
		return nil, err
	}
	return detection.GenerateWordBoxesBatch(chars, affs, e.opts.Thresholds, e.opts.Words)
}
