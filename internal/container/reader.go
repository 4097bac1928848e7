package container

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/x448/float16"
)

// Read loads a container written by Write. Chunks are decompressed
// eagerly; callers get the full in-memory channel map back.
func Read(path string) (*Container, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, containerError(path, err)
	}

	hdr, payload, err := decodeHeader(data, signalMagic)
	if err != nil {
		return nil, containerError(path, err)
	}

	var fileHdr header
	if err := json.Unmarshal(hdr, &fileHdr); err != nil {
		return nil, containerError(path, fmt.Errorf("decoding header: %w", err))
	}

	c := &Container{
		Attrs:    fileHdr.Attrs,
		Channels: make(map[string][]float64, len(fileHdr.Channels)),
	}

	offset := 0
	for _, meta := range fileHdr.Channels {
		samples := make([]float64, 0, meta.Samples)
		for _, size := range meta.ChunkSizes {
			if offset+size > len(payload) {
				return nil, containerError(path, fmt.Errorf("channel %q chunk extends past end of file", meta.Name))
			}
			chunk, err := decompressChunk(payload[offset:offset+size], fileHdr.Attrs.Dtype)
			if err != nil {
				return nil, containerError(path, fmt.Errorf("channel %q: %w", meta.Name, err))
			}
			samples = append(samples, chunk...)
			offset += size
		}
		if len(samples) != meta.Samples {
			return nil, containerError(path, fmt.Errorf("channel %q has %d samples, header claims %d", meta.Name, len(samples), meta.Samples))
		}
		c.Channels[meta.Name] = samples
	}
	return c, nil
}

// ReadStages loads an epoch label artifact written by WriteStages and
// returns the stage array with its epoch duration in seconds.
func ReadStages(path string) ([]int8, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, containerError(path, err)
	}

	hdr, payload, err := decodeHeader(data, stagesMagic)
	if err != nil {
		return nil, 0, containerError(path, err)
	}

	var meta struct {
		Epochs       int `json:"epochs"`
		EpochSeconds int `json:"epoch_seconds"`
	}
	if err := json.Unmarshal(hdr, &meta); err != nil {
		return nil, 0, containerError(path, fmt.Errorf("decoding stage header: %w", err))
	}
	if len(payload) != meta.Epochs {
		return nil, 0, containerError(path, fmt.Errorf("stage payload has %d epochs, header claims %d", len(payload), meta.Epochs))
	}

	stages := make([]int8, meta.Epochs)
	for i, b := range payload {
		stages[i] = int8(b)
	}
	return stages, meta.EpochSeconds, nil
}

// decodeHeader validates the magic and format version, then splits the
// file into its JSON header and raw payload.
func decodeHeader(data []byte, magic [4]byte) (hdr, payload []byte, err error) {
	const prefixLen = 4 + 2 + 4 // magic, version, header length
	if len(data) < prefixLen {
		return nil, nil, fmt.Errorf("file too short to be a container")
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return nil, nil, fmt.Errorf("bad magic %q", data[:4])
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	if version != formatVersion {
		return nil, nil, fmt.Errorf("unsupported format version %d", version)
	}
	headerLen := int(binary.LittleEndian.Uint32(data[6:10]))
	if prefixLen+headerLen > len(data) {
		return nil, nil, fmt.Errorf("header length %d exceeds file size", headerLen)
	}
	return data[prefixLen : prefixLen+headerLen], data[prefixLen+headerLen:], nil
}

func decompressChunk(compressed []byte, dtype string) ([]float64, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("opening gzip chunk: %w", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing chunk: %w", err)
	}
	if err := zr.Close(); err != nil {
		return nil, fmt.Errorf("closing gzip chunk: %w", err)
	}

	switch dtype {
	case DtypeFloat16:
		if len(raw)%2 != 0 {
			return nil, fmt.Errorf("float16 chunk has odd byte count %d", len(raw))
		}
		out := make([]float64, len(raw)/2)
		for i := range out {
			bits := binary.LittleEndian.Uint16(raw[i*2:])
			out[i] = float64(float16.Frombits(bits).Float32())
		}
		return out, nil
	case DtypeFloat32:
		if len(raw)%4 != 0 {
			return nil, fmt.Errorf("float32 chunk has invalid byte count %d", len(raw))
		}
		out := make([]float64, len(raw)/4)
		for i := range out {
			bits := binary.LittleEndian.Uint32(raw[i*4:])
			out[i] = float64(math.Float32frombits(bits))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}
}
