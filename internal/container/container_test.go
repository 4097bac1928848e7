package container

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/nsrrkit/psgprep/internal/dsp"
)

func testContainer(dtype string, chunkSamples int) *Container {
	signal := make([]float64, 1000)
	for i := range signal {
		// Roundtrip through float16 so the stored values are exactly
		// representable at the reduced precision.
		v := math.Sin(2 * math.Pi * float64(i) / 128)
		signal[i] = float64(float16.Fromfloat32(float32(v)).Float32())
	}
	flat := make([]float64, 1000)

	return &Container{
		Attrs: Attributes{
			TargetRate:      128,
			DurationSeconds: 7.8125,
			NumChannels:     2,
			OriginalRate:    256,
			OriginalRates:   map[string]float64{"C3-M2": 256, "Thor": 32},
			ChannelNames:    []string{"C3-M2", "Thor"},
			Stats: map[string]dsp.Stats{
				"C3-M2": {Mean: 0.1, Std: 0.7, Min: -1, Max: 1},
				"Thor":  {Mean: 0, Std: 1, Min: 0, Max: 0},
			},
			Dtype:        dtype,
			ChunkSamples: chunkSamples,
		},
		Channels: map[string][]float64{
			"C3-M2": signal,
			"Thor":  flat,
		},
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	for _, dtype := range []string{DtypeFloat16, DtypeFloat32} {
		t.Run(dtype, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rec.psgc")
			orig := testContainer(dtype, 384)

			require.NoError(t, Write(path, orig))

			got, err := Read(path)
			require.NoError(t, err)

			assert.Equal(t, orig.Attrs.ChannelNames, got.Attrs.ChannelNames)
			assert.Equal(t, orig.Attrs.TargetRate, got.Attrs.TargetRate)
			assert.Equal(t, orig.Attrs.Dtype, got.Attrs.Dtype)
			assert.Equal(t, orig.Attrs.Stats, got.Attrs.Stats)
			assert.Equal(t, orig.Attrs.OriginalRates, got.Attrs.OriginalRates)

			require.Len(t, got.Channels, 2)
			assert.Equal(t, orig.Channels["C3-M2"], got.Channels["C3-M2"])
			assert.Equal(t, orig.Channels["Thor"], got.Channels["Thor"])
		})
	}
}

func TestWrite_ChunkCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.psgc")
	c := testContainer(DtypeFloat16, 384)
	require.NoError(t, Write(path, c))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	hdrBytes, _, err := decodeHeader(data, signalMagic)
	require.NoError(t, err)

	var hdr header
	require.NoError(t, json.Unmarshal(hdrBytes, &hdr))
	require.Len(t, hdr.Channels, 2)
	// ceil(1000 / 384) = 3 chunks per channel.
	assert.Len(t, hdr.Channels[0].ChunkSizes, 3)
	assert.Equal(t, 1000, hdr.Channels[0].Samples)
}

func TestWrite_SanitizesNonFiniteStats(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.psgc")
	c := testContainer(DtypeFloat32, 500)
	c.Attrs.Stats["Thor"] = dsp.Stats{Mean: math.NaN(), Std: math.Inf(1), Min: 0, Max: 0}

	require.NoError(t, Write(path, c))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, dsp.Stats{Mean: 0, Std: 1, Min: 0, Max: 0}, got.Attrs.Stats["Thor"])
}

func TestWrite_MissingChannelFails(t *testing.T) {
	c := testContainer(DtypeFloat16, 384)
	delete(c.Channels, "Thor")

	err := Write(filepath.Join(t.TempDir(), "rec.psgc"), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Thor")
}

func TestWrite_NoPartialFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rec.psgc")

	c := testContainer(DtypeFloat16, 0) // invalid chunk size
	require.Error(t, Write(path, c))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no temporary or partial file left behind")
}

func TestWrite_OverwritesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.psgc")
	require.NoError(t, Write(path, testContainer(DtypeFloat16, 384)))
	require.NoError(t, Write(path, testContainer(DtypeFloat32, 384)))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, DtypeFloat32, got.Attrs.Dtype)
}

func TestRead_RejectsCorruptFiles(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", []byte("PS")},
		{"bad magic", append([]byte("NOPE"), make([]byte, 20)...)},
		{"truncated header", []byte{'P', 'S', 'G', 'C', 1, 0, 0xff, 0xff, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			require.NoError(t, os.WriteFile(path, tt.data, 0o644))
			_, err := Read(path)
			require.Error(t, err)
		})
	}
}

func TestStages_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.stages")
	stages := []int8{0, 0, 1, 2, 2, 3, 5, -1}

	require.NoError(t, WriteStages(path, stages, 30))

	got, epochSeconds, err := ReadStages(path)
	require.NoError(t, err)
	assert.Equal(t, stages, got)
	assert.Equal(t, 30, epochSeconds)
}

func TestStages_EmptyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.stages")
	require.NoError(t, WriteStages(path, []int8{}, 30))

	got, _, err := ReadStages(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReadStages_RejectsSignalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.psgc")
	require.NoError(t, Write(path, testContainer(DtypeFloat16, 384)))

	_, _, err := ReadStages(path)
	require.Error(t, err)
}
