package evaluate

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Reporter shows evaluation progress. Calls come from the evaluation loop
// only, never concurrently.
type Reporter interface {
	// Start is called once with the number of batches.
	Start(total int)
	// Describe replaces the status text.
	Describe(text string)
	// Advance marks one batch as done.
	Advance()
	// Finish is called once after the last batch or on abort.
	Finish()
}

// ProgressReporter draws a terminal progress bar.
type ProgressReporter struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

// NewProgressReporter draws on w, normally os.Stderr so stdout stays free
// for results.
func NewProgressReporter(w io.Writer) *ProgressReporter {
	return &ProgressReporter{w: w}
}

// Start implements Reporter.
func (r *ProgressReporter) Start(total int) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(r.w, "\n") }),
	)
}

// Describe implements Reporter.
func (r *ProgressReporter) Describe(text string) {
	if r.bar != nil {
		r.bar.Describe(text)
	}
}

// Advance implements Reporter.
func (r *ProgressReporter) Advance() {
	if r.bar != nil {
		_ = r.bar.Add(1)
	}
}

// Finish implements Reporter.
func (r *ProgressReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// nopReporter discards progress.
type nopReporter struct{}

func (nopReporter) Start(int)       {}
func (nopReporter) Describe(string) {}
func (nopReporter) Advance()        {}
func (nopReporter) Finish()         {}
