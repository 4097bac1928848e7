package recording

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/edf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nsrrkit/psgprep/internal/errors"
)

// writeTestEDF writes a two-channel EDF fixture: a 10 Hz sine on a
// 128 Hz channel and a constant on a 32 Hz channel, 20 records of 1 s.
func writeTestEDF(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.edf")
	f, err := os.Create(path)
	require.NoError(t, err)

	hdr := edf.Header{
		Version:            "0",
		PatientID:          "X X X X",
		RecordingID:        "Startdate 01-JAN-2020 X X X",
		StartTime:          time.Date(2020, 1, 1, 22, 0, 0, 0, time.UTC),
		DataRecordDuration: time.Second,
		SignalCount:        2,
		Signals: []edf.SignalHeader{
			{
				Label:             "C3M2",
				PhysicalDimension: "uV",
				PhysicalMin:       -250,
				PhysicalMax:       250,
				DigitalMin:        -32768,
				DigitalMax:        32767,
				SamplesPerRecord:  128,
			},
			{
				Label:             "THOR RES",
				PhysicalDimension: "mV",
				PhysicalMin:       -10,
				PhysicalMax:       10,
				DigitalMin:        -32768,
				DigitalMax:        32767,
				SamplesPerRecord:  32,
			},
		},
	}

	ew, err := edf.Create(f, hdr)
	require.NoError(t, err)

	for rec := 0; rec < 20; rec++ {
		eeg := make([]float64, 128)
		for i := range eeg {
			eeg[i] = 100 * math.Sin(2*math.Pi*10*float64(rec*128+i)/128)
		}
		resp := make([]float64, 32)
		for i := range resp {
			resp[i] = 5
		}
		require.NoError(t, ew.WriteRecord([][]float64{eeg, resp}))
	}
	require.NoError(t, ew.Close())
	require.NoError(t, f.Close())
	return path
}

func TestOpenEDF_Header(t *testing.T) {
	path := writeTestEDF(t)

	rec, err := OpenEDF(path)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rec.Close()) })

	assert.Equal(t, []string{"C3M2", "THOR RES"}, rec.ChannelLabels())
	assert.InDelta(t, 128, rec.SamplingRate(0), 1e-9)
	assert.InDelta(t, 32, rec.SamplingRate(1), 1e-9)
	assert.InDelta(t, 20, rec.DurationSeconds(), 1e-9)
}

func TestOpenEDF_Samples(t *testing.T) {
	path := writeTestEDF(t)

	rec, err := OpenEDF(path)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rec.Close()) })

	eeg, err := rec.Samples(0)
	require.NoError(t, err)
	assert.Len(t, eeg, 128*20)
	// 16-bit quantization over [-250, 250] uV gives <0.01 uV steps.
	assert.InDelta(t, 0, eeg[0], 0.02)

	resp, err := rec.Samples(1)
	require.NoError(t, err)
	assert.Len(t, resp, 32*20)
	assert.InDelta(t, 5, resp[5], 0.01)
}

func TestOpenEDF_BadIndex(t *testing.T) {
	path := writeTestEDF(t)

	rec, err := OpenEDF(path)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, rec.Close()) })

	_, err = rec.Samples(7)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryRecordingRead))
}

func TestOpenEDF_MissingFile(t *testing.T) {
	_, err := OpenEDF("/nonexistent/recording.edf")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryRecordingRead))
}

func TestOpenEDF_TruncatedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.edf")
	require.NoError(t, os.WriteFile(path, []byte("not an edf file"), 0o644))

	_, err := OpenEDF(path)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryRecordingRead))
}

func TestMemoryRecording(t *testing.T) {
	m := &MemoryRecording{
		Labels: []string{"A", "B"},
		Rates:  []float64{128, 64},
		Data:   [][]float64{make([]float64, 1280), make([]float64, 320)},
	}

	assert.InDelta(t, 10, m.DurationSeconds(), 1e-9, "duration follows the longest channel")
	assert.InDelta(t, 64, m.SamplingRate(1), 1e-9)
	_, err := m.Samples(2)
	assert.Error(t, err)
}
