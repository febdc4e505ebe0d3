package rbtree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrUnknownCompression is returned when a compression name cannot be parsed.
var ErrUnknownCompression = errors.New("unknown compression")

// uint32ByteSize is the number of bytes in a uint32.
const uint32ByteSize = 4

// Block markers written in front of every compressed column.
const (
	blockRaw        byte = 0
	blockCompressed byte = 1
)

// Compression selects the codec used to hibernate allocator columns.
type Compression uint8

const (
	// CompressionLZ4 favours speed; it is the default.
	CompressionLZ4 Compression = iota
	// CompressionZstd favours ratio.
	CompressionZstd
)

// String returns the configuration name of the codec.
func (c Compression) String() string {
	switch c {
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression converts a configuration name into a Compression.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "lz4":
		return CompressionLZ4, nil
	case "zstd", "zstandard":
		return CompressionZstd, nil
	default:
		return CompressionLZ4, fmt.Errorf("%w: %q", ErrUnknownCompression, name)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder) //nolint:forcetypeassert // the pool only holds encoders.
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	doAssert(err == nil)

	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder) //nolint:forcetypeassert // the pool only holds decoders.
	}

	dec, err := zstd.NewReader(nil)
	doAssert(err == nil)

	return dec
}

func encodeUInt32Slice(data []uint32) []byte {
	buf := make([]byte, len(data)*uint32ByteSize)

	for idx, value := range data {
		binary.LittleEndian.PutUint32(buf[idx*uint32ByteSize:], value)
	}

	return buf
}

// compressColumn packs data with the given codec. The first byte tells
// whether the payload is compressed or stored raw because it did not shrink.
func compressColumn(codec Compression, data []uint32) []byte {
	raw := encodeUInt32Slice(data)

	var packed []byte

	switch codec {
	case CompressionZstd:
		enc := getZstdEncoder()
		packed = enc.EncodeAll(raw, nil)
		zstdEncoderPool.Put(enc)
	default:
		compressed := make([]byte, lz4.CompressBlockBound(len(raw)))

		written, err := lz4.CompressBlock(raw, compressed, nil)
		if err == nil && written > 0 {
			packed = compressed[:written]
		}
	}

	if packed == nil || len(packed) >= len(raw) {
		return append([]byte{blockRaw}, raw...)
	}

	return append([]byte{blockCompressed}, packed...)
}

// decompressColumn reverses compressColumn. A corrupted block is an internal
// invariant breach since the blocks never leave the process.
func decompressColumn(codec Compression, data []byte, result []uint32) {
	if len(result) == 0 {
		return
	}

	doAssert(len(data) > 0)

	payload := data[1:]
	raw := payload

	if data[0] == blockCompressed {
		switch codec {
		case CompressionZstd:
			dec := getZstdDecoder()

			decoded, err := dec.DecodeAll(payload, make([]byte, 0, len(result)*uint32ByteSize))
			zstdDecoderPool.Put(dec)
			doAssert(err == nil)

			raw = decoded
		default:
			raw = make([]byte, len(result)*uint32ByteSize)

			read, err := lz4.UncompressBlock(payload, raw)
			doAssert(err == nil && read == len(raw))
		}
	}

	doAssert(len(raw) == len(result)*uint32ByteSize)

	readErr := binary.Read(bytes.NewReader(raw), binary.LittleEndian, result)
	doAssert(readErr == nil)
}
