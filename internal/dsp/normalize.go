package dsp

import "math"

// Stats captures pre-normalization channel statistics. Std reports the
// value actually used for scaling: 1 when the input was degenerate.
type Stats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// Inf values remaining after normalization are clipped to this bound.
const infClip = 10.0

// Normalize applies a population z-score (ddof = 0) to x in place and
// returns the pre-normalization statistics. When the standard deviation
// is zero or non-finite the signal is mean-centered only and the
// reported std forced to 1, avoiding a division by zero. Any NaN left
// after normalization is zero-filled and any Inf clipped to +-10; bad
// samples degrade, they never crash the channel.
//
// The second return value reports whether the degenerate fallback was
// taken.
func Normalize(x []float64) (Stats, bool) {
	if len(x) == 0 {
		return Stats{Std: 1}, true
	}

	var sum float64
	minV := math.Inf(1)
	maxV := math.Inf(-1)
	for _, v := range x {
		sum += v
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	mean := sum / float64(len(x))

	var sqSum float64
	for _, v := range x {
		d := v - mean
		sqSum += d * d
	}
	std := math.Sqrt(sqSum / float64(len(x)))

	degenerate := std == 0 || math.IsNaN(std) || math.IsInf(std, 0)
	scale := std
	if degenerate {
		scale = 1
	}

	for i := range x {
		x[i] = (x[i] - mean) / scale
		switch {
		case math.IsNaN(x[i]):
			x[i] = 0
		case math.IsInf(x[i], 1):
			x[i] = infClip
		case math.IsInf(x[i], -1):
			x[i] = -infClip
		}
	}

	return Stats{Mean: mean, Std: scale, Min: minV, Max: maxV}, degenerate
}
