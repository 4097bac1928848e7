// Package dsp provides the signal conditioning primitives of the
// pipeline: zero-phase Butterworth bandpass filtering, linear
// resampling and z-score normalization with degenerate-input fallbacks.
package dsp

import (
	"math"

	"github.com/nsrrkit/psgprep/internal/errors"
)

// Sentinel errors for filter design.
var (
	ErrInvalidBand = errors.NewStd("bandpass cutoffs collapsed after Nyquist clipping")
	ErrEmptyInput  = errors.NewStd("empty input signal")
)

// Normalized cutoffs are clipped into this fraction of the Nyquist range
// before design, mirroring the bounds used throughout NSRR tooling.
const (
	minNormCutoff = 0.001
	maxNormCutoff = 0.999
)

// biquad is one second-order filter section in direct form I.
// Coefficients are pre-divided by a0.
type biquad struct {
	b0a0, b1a0, b2a0, a1a0, a2a0 float64

	// state variables
	in1, in2   float64
	out1, out2 float64
}

func newBiquad(a0, a1, a2, b0, b1, b2 float64) biquad {
	return biquad{
		b0a0: b0 / a0,
		b1a0: b1 / a0,
		b2a0: b2 / a0,
		a1a0: a1 / a0,
		a2a0: a2 / a0,
	}
}

// apply runs the section over input in place with fresh state.
func (f *biquad) apply(input []float64) {
	f.in1, f.in2, f.out1, f.out2 = 0, 0, 0, 0
	for i := range input {
		output := f.b0a0*input[i] + f.b1a0*f.in1 + f.b2a0*f.in2 -
			f.a1a0*f.out1 - f.a2a0*f.out2

		f.in2 = f.in1
		f.in1 = input[i]
		f.out2 = f.out1
		f.out1 = output

		input[i] = output
	}
}

// lowPassSection builds one RBJ low-pass biquad at freq with quality q.
func lowPassSection(sampleRate, freq, q float64) biquad {
	w0 := 2 * math.Pi * freq / sampleRate
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	b0 := (1 - cosW0) / 2
	b1 := 1 - cosW0
	b2 := b0
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha
	return newBiquad(a0, a1, a2, b0, b1, b2)
}

// highPassSection builds one RBJ high-pass biquad at freq with quality q.
func highPassSection(sampleRate, freq, q float64) biquad {
	w0 := 2 * math.Pi * freq / sampleRate
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	b0 := (1 + cosW0) / 2
	b1 := -(1 + cosW0)
	b2 := b0
	a0 := 1 + alpha
	a1 := -2 * cosW0
	a2 := 1 - alpha
	return newBiquad(a0, a1, a2, b0, b1, b2)
}

// firstOrderLowPass builds a single-pole low-pass section via the
// bilinear transform, used for odd filter orders.
func firstOrderLowPass(sampleRate, freq float64) biquad {
	k := math.Tan(math.Pi * freq / sampleRate)
	return newBiquad(1, (k-1)/(k+1), 0, k/(k+1), k/(k+1), 0)
}

// firstOrderHighPass builds a single-pole high-pass section.
func firstOrderHighPass(sampleRate, freq float64) biquad {
	k := math.Tan(math.Pi * freq / sampleRate)
	return newBiquad(1, (k-1)/(k+1), 0, 1/(k+1), -1/(k+1), 0)
}

// butterworthQ returns the section quality factors for an order-n
// Butterworth response realized as cascaded biquads. For odd n the
// remaining real pole is realized as a first-order section by the
// caller.
func butterworthQ(n int) []float64 {
	pairs := n / 2
	qs := make([]float64, pairs)
	for k := range pairs {
		qs[k] = 1 / (2 * math.Sin(math.Pi*float64(2*k+1)/(2*float64(n))))
	}
	return qs
}

// Bandpass is an order-N Butterworth bandpass realized as a cascade of
// high-pass sections at the low cutoff and low-pass sections at the
// high cutoff. Not safe for concurrent use; construct one per channel.
type Bandpass struct {
	sections []biquad
}

// NewBandpass designs a Butterworth bandpass for the given sampling
// rate. Cutoffs are clipped into the valid (0, Nyquist) range first;
// if the band collapses after clipping (low >= high) the design fails
// with ErrInvalidBand and the caller is expected to bypass filtering.
func NewBandpass(sampleRate, low, high float64, order int) (*Bandpass, error) {
	if order <= 0 {
		return nil, errors.Newf("filter order must be positive, got %d", order).
			Component("dsp").
			Category(errors.CategoryFilterRange).
			Build()
	}

	nyquist := sampleRate / 2
	lowNorm := clamp(low/nyquist, minNormCutoff, maxNormCutoff)
	highNorm := clamp(high/nyquist, minNormCutoff, maxNormCutoff)
	if lowNorm >= highNorm {
		return nil, errors.New(ErrInvalidBand).
			Component("dsp").
			Category(errors.CategoryFilterRange).
			Context("low_hz", low).
			Context("high_hz", high).
			Context("sample_rate", sampleRate).
			Build()
	}

	lowHz := lowNorm * nyquist
	highHz := highNorm * nyquist

	bp := &Bandpass{}
	for _, q := range butterworthQ(order) {
		bp.sections = append(bp.sections, highPassSection(sampleRate, lowHz, q))
		bp.sections = append(bp.sections, lowPassSection(sampleRate, highHz, q))
	}
	if order%2 == 1 {
		bp.sections = append(bp.sections, firstOrderHighPass(sampleRate, lowHz))
		bp.sections = append(bp.sections, firstOrderLowPass(sampleRate, highHz))
	}
	return bp, nil
}

// FiltFilt applies the filter forward and backward in place, canceling
// phase distortion at the cost of a second pass.
func (bp *Bandpass) FiltFilt(x []float64) error {
	if len(x) == 0 {
		return ErrEmptyInput
	}

	for i := range bp.sections {
		bp.sections[i].apply(x)
	}
	reverse(x)
	for i := range bp.sections {
		bp.sections[i].apply(x)
	}
	reverse(x)
	return nil
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
