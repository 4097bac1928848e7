package dsp

import "math"

// Resample converts x from nativeRate to targetRate by linear
// interpolation over a continuous time axis. Linear interpolation is a
// deliberate choice over spectral resampling: it is fast, allocation
// bounded, and its output is reproducible bit for bit across platforms.
// Output length is floor(duration * targetRate) with duration taken as
// len(x)/nativeRate.
//
// Returns x unchanged when the rates already match.
func Resample(x []float64, nativeRate, targetRate float64) []float64 {
	if nativeRate == targetRate || len(x) == 0 {
		return x
	}

	duration := float64(len(x)) / nativeRate
	targetLen := int(duration * targetRate)
	if targetLen <= 0 {
		return []float64{}
	}

	out := make([]float64, targetLen)
	ratio := nativeRate / targetRate
	last := len(x) - 1
	for i := range out {
		pos := float64(i) * ratio
		i0 := int(math.Floor(pos))
		if i0 >= last {
			// Clamp to the final sample instead of extrapolating.
			out[i] = x[last]
			continue
		}
		frac := pos - float64(i0)
		out[i] = x[i0] + frac*(x[i0+1]-x[i0])
	}
	return out
}
