// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies how a frame body is compressed. The values are
// stored in frames; do not renumber them.
type Algorithm uint8

const (
	// None stores the body as is.
	None Algorithm = 0

	// LZ4 is LZ4 block compression: cheap to encode and decode.
	LZ4 Algorithm = 1

	// Zstd is zstd at the default level. Documents are mostly text, so
	// this is usually the better ratio.
	Zstd Algorithm = 2
)

// maxFrameSize bounds the uncompressed length a frame may claim, so a
// corrupt header cannot make Decode allocate without limit.
const maxFrameSize = 256 << 20

func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// Parse returns the algorithm named by name. The empty string means
// None.
func Parse(name string) (Algorithm, error) {
	switch name {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4 or zstd)", name)
	}
}

var errIncompressible = errors.New("data is incompressible")

// zstd.Encoder and zstd.Decoder are safe for concurrent use with
// EncodeAll and DecodeAll.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxFrameSize))
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode compresses data with algorithm and returns the frame. When
// compression would not make data smaller the frame uses None.
func Encode(data []byte, algorithm Algorithm) ([]byte, error) {
	if len(data) > maxFrameSize {
		return nil, fmt.Errorf("compress: %d bytes exceeds the %d byte frame limit", len(data), maxFrameSize)
	}

	var body []byte
	var err error
	switch algorithm {
	case None:
		body = data
	case LZ4:
		body, err = compressLZ4(data)
	case Zstd:
		body, err = compressZstd(data)
	default:
		return nil, fmt.Errorf("compress: unsupported algorithm %s", algorithm)
	}
	if errors.Is(err, errIncompressible) {
		algorithm, body, err = None, data, nil
	}
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 1, 1+binary.MaxVarintLen64+len(body))
	frame[0] = byte(algorithm)
	frame = binary.AppendUvarint(frame, uint64(len(data)))
	return append(frame, body...), nil
}

// Decode reverses Encode, whatever algorithm the frame was written
// with.
func Decode(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, errors.New("compress: empty frame")
	}
	algorithm := Algorithm(frame[0])
	size, n := binary.Uvarint(frame[1:])
	if n <= 0 {
		return nil, errors.New("compress: truncated frame header")
	}
	if size > maxFrameSize {
		return nil, fmt.Errorf("compress: frame claims %d bytes, limit is %d", size, maxFrameSize)
	}
	body := frame[1+n:]

	switch algorithm {
	case None:
		if uint64(len(body)) != size {
			return nil, fmt.Errorf("compress: stored body is %d bytes, header says %d", len(body), size)
		}
		return append([]byte(nil), body...), nil
	case LZ4:
		return decompressLZ4(body, int(size))
	case Zstd:
		return decompressZstd(body, int(size))
	default:
		return nil, fmt.Errorf("compress: frame uses unsupported algorithm %s", algorithm)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, size int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, size))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != size {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), size)
	}
	return result, nil
}
