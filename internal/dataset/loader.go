package dataset

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidLoader is returned for a loader configuration that cannot
// produce batches.
var ErrInvalidLoader = errors.New("invalid loader")

// LoaderOptions configures a Loader.
type LoaderOptions struct {
	BatchSize int
	// Workers is how many samples are read concurrently.
	Workers int
	// Shuffle draws a fresh sample order from the loader's stream on every
	// pass.
	Shuffle bool
	// Prefetch is how many batches may be loaded ahead of the consumer.
	// Values below 1 are treated as 1.
	Prefetch int
}

// Loader yields a dataset as a finite, ordered sequence of batches. Every
// pass covers each sample exactly once; the last batch may be short.
//
// Samples are read by up to Workers goroutines, but batches reach the
// consumer strictly in order and one at a time.
type Loader struct {
	ds   Dataset
	opts LoaderOptions
	rng  *rand.Rand
}

// NewLoader creates a loader. rng is the shuffle stream; it is required
// when opts.Shuffle is set and is only used from Iterate.
func NewLoader(ds Dataset, opts LoaderOptions, rng *rand.Rand) (*Loader, error) {
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size %d", ErrInvalidLoader, opts.BatchSize)
	}
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("%w: %d workers", ErrInvalidLoader, opts.Workers)
	}
	if opts.Shuffle && rng == nil {
		return nil, fmt.Errorf("%w: shuffling needs a random stream", ErrInvalidLoader)
	}
	if opts.Prefetch < 1 {
		opts.Prefetch = 1
	}
	return &Loader{ds: ds, opts: opts, rng: rng}, nil
}

// Len returns the number of batches in one pass.
func (l *Loader) Len() int {
	n := l.ds.Len()
	return (n + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// Iterate runs one pass, calling fn with each batch and its 0-based index.
// It stops at the first error from loading or from fn and returns it.
// Iterate may be called again for another pass but not concurrently.
func (l *Loader) Iterate(ctx context.Context, fn func(no int, b Batch) error) error {
	order := l.order()

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan Batch, l.opts.Prefetch)

	g.Go(func() error {
		defer close(batches)
		for no, start := 0, 0; start < len(order); no, start = no+1, start+l.opts.BatchSize {
			end := min(start+l.opts.BatchSize, len(order))
			b, err := l.load(gctx, order[start:end])
			if err != nil {
				return fmt.Errorf("load batch %d: %w", no, err)
			}
			select {
			case batches <- b:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		no := 0
		for b := range batches {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fn(no, b); err != nil {
				return err
			}
			no++
		}
		return nil
	})

	return g.Wait()
}

// order returns the sample indices of one pass.
func (l *Loader) order() []int {
	n := l.ds.Len()
	if l.opts.Shuffle {
		return l.rng.Perm(n)
	}
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// load reads the given samples concurrently and collates them in order.
func (l *Loader) load(ctx context.Context, indices []int) (Batch, error) {
	samples := make([]Sample, len(indices))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for i, idx := range indices {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := l.ds.Get(idx)
			if err != nil {
				return fmt.Errorf("sample %d: %w", idx, err)
			}
			samples[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Batch{}, err
	}
	return Collate(samples)
}
