package container

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/x448/float16"

	"github.com/nsrrkit/psgprep/internal/errors"
)

var (
	signalMagic = [4]byte{'P', 'S', 'G', 'C'}
	stagesMagic = [4]byte{'P', 'S', 'G', 'S'}
)

const formatVersion uint16 = 1

// header is the serialized container header: attributes plus the chunk
// geometry needed to locate each channel's payload.
type header struct {
	Attrs    Attributes    `json:"attrs"`
	Channels []channelMeta `json:"channels"`
}

type channelMeta struct {
	Name       string `json:"name"`
	Samples    int    `json:"samples"`
	ChunkSizes []int  `json:"chunk_sizes"` // compressed byte size per chunk
}

// Write stores a container at path atomically: the file is assembled at
// a temporary sibling path and renamed into place only when complete,
// so a reprocessed recording safely overwrites its previous output and
// a killed worker never publishes a partial file.
func Write(path string, c *Container) error {
	if len(c.Channels) == 0 {
		return containerError(path, fmt.Errorf("container has no channels"))
	}
	if c.Attrs.ChunkSamples <= 0 {
		return containerError(path, fmt.Errorf("chunk size must be positive, got %d", c.Attrs.ChunkSamples))
	}

	attrs := c.Attrs
	attrs.Stats = sanitizeStats(attrs.Stats)

	hdr := header{Attrs: attrs}
	var payload bytes.Buffer

	for _, name := range attrs.ChannelNames {
		samples, ok := c.Channels[name]
		if !ok {
			return containerError(path, fmt.Errorf("channel %q listed in attrs but missing from container", name))
		}
		meta := channelMeta{Name: name, Samples: len(samples)}
		for start := 0; start < len(samples); start += attrs.ChunkSamples {
			end := min(start+attrs.ChunkSamples, len(samples))
			compressed, err := compressChunk(samples[start:end], attrs.Dtype)
			if err != nil {
				return containerError(path, err)
			}
			meta.ChunkSizes = append(meta.ChunkSizes, len(compressed))
			payload.Write(compressed)
		}
		hdr.Channels = append(hdr.Channels, meta)
	}

	headerJSON, err := json.Marshal(&hdr)
	if err != nil {
		return containerError(path, fmt.Errorf("encoding header: %w", err))
	}

	var file bytes.Buffer
	file.Write(signalMagic[:])
	_ = binary.Write(&file, binary.LittleEndian, formatVersion)
	_ = binary.Write(&file, binary.LittleEndian, uint32(len(headerJSON)))
	file.Write(headerJSON)
	file.Write(payload.Bytes())

	return atomicWrite(path, file.Bytes())
}

// WriteStages stores the epoch label artifact: a small JSON header and
// the flat int8 stage array.
func WriteStages(path string, stages []int8, epochSeconds int) error {
	meta := struct {
		Epochs       int `json:"epochs"`
		EpochSeconds int `json:"epoch_seconds"`
	}{Epochs: len(stages), EpochSeconds: epochSeconds}

	metaJSON, err := json.Marshal(&meta)
	if err != nil {
		return containerError(path, fmt.Errorf("encoding stage header: %w", err))
	}

	var file bytes.Buffer
	file.Write(stagesMagic[:])
	_ = binary.Write(&file, binary.LittleEndian, formatVersion)
	_ = binary.Write(&file, binary.LittleEndian, uint32(len(metaJSON)))
	file.Write(metaJSON)
	for _, s := range stages {
		file.WriteByte(byte(s))
	}

	return atomicWrite(path, file.Bytes())
}

// compressChunk encodes one sample chunk at the configured precision
// and gzips it.
func compressChunk(samples []float64, dtype string) ([]byte, error) {
	raw := make([]byte, 0, len(samples)*2)
	switch dtype {
	case DtypeFloat16:
		for _, v := range samples {
			raw = binary.LittleEndian.AppendUint16(raw, float16.Fromfloat32(float32(v)).Bits())
		}
	case DtypeFloat32:
		for _, v := range samples {
			raw = binary.LittleEndian.AppendUint32(raw, math32bits(v))
		}
	default:
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compressing chunk: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing chunk: %w", err)
	}
	return buf.Bytes(), nil
}

// atomicWrite writes data to a temporary sibling and renames it over
// path. Rename is atomic on POSIX filesystems within one directory.
func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return containerError(path, fmt.Errorf("creating output directory: %w", err))
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return containerError(path, fmt.Errorf("writing temporary file: %w", err))
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return containerError(path, fmt.Errorf("publishing output: %w", err))
	}
	return nil
}

func math32bits(v float64) uint32 {
	return math.Float32bits(float32(v))
}

func containerError(path string, err error) error {
	return errors.New(err).
		Component("container").
		Category(errors.CategoryContainerIO).
		Context("path", path).
		Build()
}
