// Package container implements the on-disk signal container: one named
// numeric array per retained channel at the fixed target rate, plus
// recording-level attributes, stored as gzip-compressed chunks sized
// for sequential access. A matching epoch label artifact carries the
// sleep stage array.
//
// The layout is self-describing: magic, format version, a JSON
// attribute header, then the chunk payloads in header order. No HDF5
// dependency exists in the Go ecosystem this project draws from, so the
// container keeps HDF5's chunked-dataset semantics in a flat file.
package container

import (
	"math"

	"github.com/nsrrkit/psgprep/internal/dsp"
)

// Dtype names accepted by the writer.
const (
	DtypeFloat16 = "float16"
	DtypeFloat32 = "float32"
)

// Attributes are the recording-level scalar attributes stored in the
// container header.
type Attributes struct {
	TargetRate      int                  `json:"sampling_rate"`
	DurationSeconds float64              `json:"duration_seconds"`
	NumChannels     int                  `json:"num_channels"`
	OriginalRate    float64              `json:"original_sfreq"`
	OriginalRates   map[string]float64   `json:"original_rates"`
	ChannelNames    []string             `json:"channel_names"`
	Stats           map[string]dsp.Stats `json:"normalization_stats"`
	Dtype           string               `json:"dtype"`
	ChunkSamples    int                  `json:"chunk_samples"`
}

// Container is one recording's processed signal set. Every channel
// array has identical length at the fixed target rate.
type Container struct {
	Attrs    Attributes
	Channels map[string][]float64
}

// sanitizeStats replaces non-finite statistic values so the header
// remains valid JSON; NaN inputs surface as zeroed stats rather than a
// write failure.
func sanitizeStats(stats map[string]dsp.Stats) map[string]dsp.Stats {
	out := make(map[string]dsp.Stats, len(stats))
	for name, s := range stats {
		out[name] = dsp.Stats{
			Mean: finiteOr(s.Mean, 0),
			Std:  finiteOr(s.Std, 1),
			Min:  finiteOr(s.Min, 0),
			Max:  finiteOr(s.Max, 0),
		}
	}
	return out
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}
