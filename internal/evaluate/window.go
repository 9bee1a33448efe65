package evaluate

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// WindowSize is how many trailing batches the progress averages cover.
const WindowSize = 1000

// TrailingMean averages the last min(size, len(values)) values. It returns
// 0 for an empty slice.
func TrailingMean(values []float64, size int) float64 {
	if len(values) == 0 || size <= 0 {
		return 0
	}
	if len(values) > size {
		values = values[len(values)-size:]
	}
	return stat.Mean(values, nil)
}

// Truncate8 cuts x to 8 decimal digits toward zero, without rounding.
func Truncate8(x float64) float64 {
	return math.Trunc(x*1e8) / 1e8
}

// Describe formats the live progress line for batch no of total.
func Describe(loss float64, no, total int, losses, fscores []float64) string {
	return fmt.Sprintf("Loss:%s Iterations:[%d/%d] Average Loss:%s| Average F-Score: %s",
		format8(loss), no, total,
		format8(TrailingMean(losses, WindowSize)),
		format8(TrailingMean(fscores, WindowSize)))
}

func format8(x float64) string {
	return strconv.FormatFloat(Truncate8(x), 'f', -1, 64)
}
