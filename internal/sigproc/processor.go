// Package sigproc orchestrates per-recording signal conditioning: group
// capacity enforcement, zero-phase bandpass filtering, resampling to the
// fixed target rate, z-score normalization and dtype quantization, ending
// in an assembled signal container.
package sigproc

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/x448/float16"

	"github.com/nsrrkit/psgprep/internal/channelmap"
	"github.com/nsrrkit/psgprep/internal/conf"
	"github.com/nsrrkit/psgprep/internal/container"
	"github.com/nsrrkit/psgprep/internal/dsp"
	"github.com/nsrrkit/psgprep/internal/errors"
	"github.com/nsrrkit/psgprep/internal/logging"
	"github.com/nsrrkit/psgprep/internal/modality"
	"github.com/nsrrkit/psgprep/internal/recording"
)

// Drop reasons reported in Diagnostics and on the drop metric.
const (
	DropGroupCap = "group-cap"
	DropRead     = "read"
	DropEmpty    = "empty"
)

// Diagnostics summarizes one conditioning run for logging and metrics.
type Diagnostics struct {
	Found          int               // channels detected before enforcement
	Processed      int               // channels surviving conditioning
	Dropped        map[string]string // canonical name -> drop reason
	FilterBypassed []string          // channels whose band collapsed at the native rate
	DegenerateNorm []string          // channels that took the flat-signal fallback
	GroupCounts    map[string]int    // surviving channels per output group
}

// Processor conditions one recording at a time. It is stateless across
// calls and safe for concurrent use; each call allocates its own filter
// state.
type Processor struct {
	pipeline *conf.PipelineSettings
	detector *modality.Detector
	log      *slog.Logger
}

// New builds a Processor over the configured pipeline tables.
func New(pipeline *conf.PipelineSettings) *Processor {
	return &Processor{
		pipeline: pipeline,
		detector: modality.New(pipeline),
		log:      logging.ForModule("sigproc"),
	}
}

// Condition runs the full conditioning chain over the detected channels
// of a recording and assembles the output container. Individual channel
// failures degrade to drops; the call errors only when no channel
// survives.
func (p *Processor) Condition(rec recording.Recording, detected channelmap.DetectedChannels) (*container.Container, Diagnostics, error) {
	diag := Diagnostics{
		Found:       len(detected),
		Dropped:     make(map[string]string),
		GroupCounts: make(map[string]int),
	}

	kept := p.enforceCaps(detected, &diag)

	labelIndex := make(map[string]int, len(rec.ChannelLabels()))
	for i, label := range rec.ChannelLabels() {
		if _, seen := labelIndex[label]; !seen {
			labelIndex[label] = i
		}
	}

	duration := rec.DurationSeconds()
	attrs := container.Attributes{
		TargetRate:      p.pipeline.TargetRate,
		DurationSeconds: duration,
		OriginalRates:   make(map[string]float64),
		Stats:           make(map[string]dsp.Stats),
		Dtype:           p.pipeline.Dtype,
		ChunkSamples:    p.pipeline.ChunkMinutes * 60 * p.pipeline.TargetRate,
	}
	channels := make(map[string][]float64)

	for _, canonical := range kept {
		raw := detected[canonical]
		idx, ok := labelIndex[raw]
		if !ok {
			diag.Dropped[canonical] = DropRead
			p.log.Warn("raw label vanished from recording", "channel", canonical, "label", raw)
			continue
		}

		samples, err := rec.Samples(idx)
		if err != nil {
			diag.Dropped[canonical] = DropRead
			p.log.Warn("channel read failed", "channel", canonical, "error", err)
			continue
		}
		if len(samples) == 0 {
			diag.Dropped[canonical] = DropEmpty
			continue
		}

		nativeRate := rec.SamplingRate(idx)
		conditioned, stats, err := p.conditionChannel(canonical, samples, nativeRate, &diag)
		if err != nil {
			diag.Dropped[canonical] = DropRead
			p.log.Warn("channel conditioning failed", "channel", canonical, "error", err)
			continue
		}

		channels[canonical] = conditioned
		attrs.OriginalRates[canonical] = nativeRate
		attrs.Stats[canonical] = stats
		attrs.ChannelNames = append(attrs.ChannelNames, canonical)

		if group, ok := p.detector.GroupOf(canonical); ok {
			diag.GroupCounts[group]++
		}
	}

	if len(attrs.ChannelNames) == 0 {
		return nil, diag, errors.Newf("no channel survived conditioning").
			Component("sigproc").
			Category(errors.CategoryValidation).
			Context("found", diag.Found).
			Context("processed", 0).
			Build()
	}

	equalizeLengths(channels, attrs.ChannelNames)
	attrs.NumChannels = len(attrs.ChannelNames)
	attrs.OriginalRate = dominantRate(attrs.OriginalRates)
	diag.Processed = len(attrs.ChannelNames)

	return &container.Container{Attrs: attrs, Channels: channels}, diag, nil
}

// conditionChannel applies filter, resample, normalize and quantize to
// one channel in sequence, returning the conditioned samples.
func (p *Processor) conditionChannel(canonical string, samples []float64, nativeRate float64, diag *Diagnostics) ([]float64, dsp.Stats, error) {
	family, ok := p.detector.FamilyOf(canonical)
	if !ok {
		return nil, dsp.Stats{}, fmt.Errorf("channel %q has no modality family", canonical)
	}
	params, ok := p.pipeline.FamilyFilterByName(family)
	if !ok {
		return nil, dsp.Stats{}, fmt.Errorf("family %q has no filter parameters", family)
	}

	bp, err := dsp.NewBandpass(nativeRate, params.Low, params.High, params.Order)
	switch {
	case errors.Is(err, dsp.ErrInvalidBand):
		// The native rate is too low for this family's band; the channel
		// passes through unfiltered rather than being lost.
		diag.FilterBypassed = append(diag.FilterBypassed, canonical)
		p.log.Debug("filter bypassed",
			"channel", canonical, "native_rate", nativeRate,
			"low_hz", params.Low, "high_hz", params.High)
	case err != nil:
		return nil, dsp.Stats{}, err
	default:
		if err := bp.FiltFilt(samples); err != nil {
			return nil, dsp.Stats{}, err
		}
	}

	resampled := dsp.Resample(samples, nativeRate, float64(p.pipeline.TargetRate))

	stats, degenerate := dsp.Normalize(resampled)
	if degenerate {
		diag.DegenerateNorm = append(diag.DegenerateNorm, canonical)
		p.log.Debug("degenerate normalization", "channel", canonical, "mean", stats.Mean)
	}

	if p.pipeline.Dtype == container.DtypeFloat16 {
		// Roundtrip through half precision so the in-memory values equal
		// what the container stores on disk.
		for i := range resampled {
			resampled[i] = float64(float16.Fromfloat32(float32(resampled[i])).Float32())
		}
	}

	return resampled, stats, nil
}

// enforceCaps collapses detected channels into output groups and trims
// each group to its configured capacity. Priority-listed channels are
// kept first in priority order; the remainder fill by canonical name.
func (p *Processor) enforceCaps(detected channelmap.DetectedChannels, diag *Diagnostics) []string {
	collapsed := p.detector.CollapseToGroups(p.detector.GroupByFamily(detected))

	var kept []string
	for i := range p.pipeline.Groups {
		group := p.pipeline.Groups[i]
		members, ok := collapsed[group.Name]
		if !ok {
			continue
		}

		ordered := make([]string, 0, len(members))
		for _, name := range group.Priority {
			if _, present := members[name]; present {
				ordered = append(ordered, name)
			}
		}
		var rest []string
		for name := range members {
			if !contains(group.Priority, name) {
				rest = append(rest, name)
			}
		}
		sort.Strings(rest)
		ordered = append(ordered, rest...)

		for j, name := range ordered {
			if j < group.Cap {
				kept = append(kept, name)
				continue
			}
			diag.Dropped[name] = DropGroupCap
			p.log.Debug("group capacity exceeded",
				"group", group.Name, "channel", name, "cap", group.Cap)
		}
	}
	return kept
}

// equalizeLengths trims every channel to the shortest conditioned
// length. Native-rate rounding can leave channels one sample apart;
// the container requires identical lengths.
func equalizeLengths(channels map[string][]float64, names []string) {
	shortest := -1
	for _, name := range names {
		if n := len(channels[name]); shortest < 0 || n < shortest {
			shortest = n
		}
	}
	if shortest < 0 {
		return
	}
	for _, name := range names {
		channels[name] = channels[name][:shortest]
	}
}

// dominantRate returns the most common native rate, preferring the
// higher rate on ties. It fills the recording-level original_sfreq
// attribute.
func dominantRate(rates map[string]float64) float64 {
	counts := make(map[float64]int)
	for _, r := range rates {
		counts[r]++
	}
	best, bestCount := 0.0, 0
	for r, n := range counts {
		if n > bestCount || (n == bestCount && r > best) {
			best, bestCount = r, n
		}
	}
	return best
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
