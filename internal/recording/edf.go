package recording

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/OpenPSG/edf"

	"github.com/nsrrkit/psgprep/internal/errors"
)

// edfSignalMeta is the per-signal header subset the pipeline needs.
type edfSignalMeta struct {
	label            string
	samplesPerRecord int
}

// EDFRecording implements Recording on top of an EDF/EDF+ file. Sample
// decoding and digital-to-physical calibration are delegated to the edf
// library; the header metadata (labels, per-signal rates, duration) is
// parsed from the fixed-layout header directly.
type EDFRecording struct {
	f              *os.File
	reader         *edf.Reader
	signals        []edfSignalMeta
	labels         []string
	dataRecords    int
	recordDuration float64 // seconds
}

// OpenEDF opens an EDF file and reads its header. Any failure here is a
// RecordingUnreadable condition: fatal for this recording only.
func OpenEDF(path string) (*EDFRecording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, unreadable(path, fmt.Errorf("opening file: %w", err))
	}

	rec := &EDFRecording{f: f}
	if err := rec.parseHeader(); err != nil {
		_ = f.Close()
		return nil, unreadable(path, err)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, unreadable(path, fmt.Errorf("rewinding file: %w", err))
	}
	reader, err := edf.Open(f)
	if err != nil {
		_ = f.Close()
		return nil, unreadable(path, fmt.Errorf("parsing EDF: %w", err))
	}
	rec.reader = reader

	return rec, nil
}

// ChannelLabels returns the raw channel labels in file order.
func (r *EDFRecording) ChannelLabels() []string {
	return r.labels
}

// SamplingRate returns the native rate of a channel in Hz. Returns 0 for
// an out-of-range index or a zero record duration.
func (r *EDFRecording) SamplingRate(channelIndex int) float64 {
	if channelIndex < 0 || channelIndex >= len(r.signals) || r.recordDuration == 0 {
		return 0
	}
	return float64(r.signals[channelIndex].samplesPerRecord) / r.recordDuration
}

// DurationSeconds returns the nominal recording duration.
func (r *EDFRecording) DurationSeconds() float64 {
	if r.dataRecords < 0 {
		return 0
	}
	return float64(r.dataRecords) * r.recordDuration
}

// Samples reads the full physical-unit sample sequence of one channel.
func (r *EDFRecording) Samples(channelIndex int) ([]float64, error) {
	if channelIndex < 0 || channelIndex >= len(r.signals) {
		return nil, errors.Newf("channel index %d out of range [0, %d)", channelIndex, len(r.signals)).
			Component("recording").
			Category(errors.CategoryRecordingRead).
			Build()
	}

	sr, err := r.reader.Signal(channelIndex)
	if err != nil {
		return nil, unreadable(r.f.Name(), fmt.Errorf("opening signal %d: %w", channelIndex, err))
	}

	total := r.signals[channelIndex].samplesPerRecord * r.dataRecords
	data := make([]float64, total)
	n, err := sr.Read(data)
	if err != nil && err != io.EOF {
		return nil, unreadable(r.f.Name(), fmt.Errorf("reading signal %d: %w", channelIndex, err))
	}
	return data[:n], nil
}

// Close releases the file handle.
func (r *EDFRecording) Close() error {
	return r.f.Close()
}

// parseHeader reads the subset of the fixed-layout EDF header the
// pipeline needs: record geometry and per-signal labels and rates.
// Field offsets per the EDF specification.
func (r *EDFRecording) parseHeader() error {
	head := make([]byte, 256)
	if _, err := io.ReadFull(r.f, head); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	dataRecords, err := strconv.Atoi(strings.TrimSpace(string(head[236:244])))
	if err != nil {
		return fmt.Errorf("parsing data record count: %w", err)
	}
	r.dataRecords = dataRecords

	recordDuration, err := strconv.ParseFloat(strings.TrimSpace(string(head[244:252])), 64)
	if err != nil {
		return fmt.Errorf("parsing data record duration: %w", err)
	}
	r.recordDuration = recordDuration

	signalCount, err := strconv.Atoi(strings.TrimSpace(string(head[252:256])))
	if err != nil {
		return fmt.Errorf("parsing signal count: %w", err)
	}
	if signalCount < 0 {
		return fmt.Errorf("negative signal count %d", signalCount)
	}

	r.signals = make([]edfSignalMeta, signalCount)
	r.labels = make([]string, signalCount)

	labels := make([]byte, 16*signalCount)
	if _, err := io.ReadFull(r.f, labels); err != nil {
		return fmt.Errorf("reading signal labels: %w", err)
	}
	for i := range signalCount {
		r.labels[i] = strings.TrimSpace(string(labels[i*16 : (i+1)*16]))
		r.signals[i].label = r.labels[i]
	}

	// Skip transducer (80), dimension (8), physical min/max (8+8),
	// digital min/max (8+8), prefiltering (80) per signal.
	skip := int64(signalCount) * (80 + 8 + 8 + 8 + 8 + 8 + 80)
	if _, err := r.f.Seek(skip, io.SeekCurrent); err != nil {
		return fmt.Errorf("seeking past signal metadata: %w", err)
	}

	spr := make([]byte, 8*signalCount)
	if _, err := io.ReadFull(r.f, spr); err != nil {
		return fmt.Errorf("reading samples-per-record: %w", err)
	}
	for i := range signalCount {
		n, err := strconv.Atoi(strings.TrimSpace(string(spr[i*8 : (i+1)*8])))
		if err != nil {
			return fmt.Errorf("parsing samples-per-record for signal %d: %w", i, err)
		}
		r.signals[i].samplesPerRecord = n
	}

	return nil
}

func unreadable(path string, err error) error {
	return errors.New(err).
		Component("recording").
		Category(errors.CategoryRecordingRead).
		Context("path", path).
		Build()
}
