// Package recording defines the recording handle consumed by the signal
// pipeline and its EDF-backed implementation.
package recording

// Recording is an opaque handle to a multi-channel physiological
// recording: N channels, each at its own native sampling rate, with a
// total duration in seconds. Sample access is by channel index.
type Recording interface {
	// ChannelLabels returns the raw channel labels in file order.
	ChannelLabels() []string
	// SamplingRate returns the native sampling rate of one channel in Hz.
	SamplingRate(channelIndex int) float64
	// DurationSeconds returns the total recording duration.
	DurationSeconds() float64
	// Samples reads the full sample sequence of one channel in
	// physical units.
	Samples(channelIndex int) ([]float64, error)
	// Close releases the underlying file handle.
	Close() error
}
