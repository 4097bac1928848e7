package recording

import "github.com/nsrrkit/psgprep/internal/errors"

// MemoryRecording is an in-memory Recording used by tests and by
// synthetic-input tooling. Channels may have differing rates; duration
// is taken from the longest channel.
type MemoryRecording struct {
	Labels []string
	Rates  []float64
	Data   [][]float64
}

// ChannelLabels returns the raw labels in channel order.
func (m *MemoryRecording) ChannelLabels() []string { return m.Labels }

// SamplingRate returns the native rate of a channel in Hz.
func (m *MemoryRecording) SamplingRate(channelIndex int) float64 {
	if channelIndex < 0 || channelIndex >= len(m.Rates) {
		return 0
	}
	return m.Rates[channelIndex]
}

// DurationSeconds returns the duration of the longest channel.
func (m *MemoryRecording) DurationSeconds() float64 {
	var max float64
	for i := range m.Data {
		if m.Rates[i] <= 0 {
			continue
		}
		if d := float64(len(m.Data[i])) / m.Rates[i]; d > max {
			max = d
		}
	}
	return max
}

// Samples returns the sample sequence of one channel.
func (m *MemoryRecording) Samples(channelIndex int) ([]float64, error) {
	if channelIndex < 0 || channelIndex >= len(m.Data) {
		return nil, errors.Newf("channel index %d out of range [0, %d)", channelIndex, len(m.Data)).
			Component("recording").
			Category(errors.CategoryRecordingRead).
			Build()
	}
	return m.Data[channelIndex], nil
}

// Close is a no-op for in-memory recordings.
func (m *MemoryRecording) Close() error { return nil }
