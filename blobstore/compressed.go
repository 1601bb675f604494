package blobstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/hupe1980/sectorfs/internal/hash"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the codec used by CompressedStore.
type Compression uint8

const (
	// CompressionNone stores images raw behind the frame header.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses ZSTD (better ratio; formatted images are mostly zeros).
	CompressionZSTD Compression = 2
)

// String returns the codec name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression maps a codec name to its Compression value.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", s)
	}
}

var (
	// ErrCorrupt is returned when a stored frame fails validation.
	ErrCorrupt = errors.New("blobstore: corrupt compressed blob")

	frameMagic = [4]byte{'S', 'F', 'S', 'Z'}
)

// Frame: [magic 4][codec 1][reserved 3][uncompressed u32][compressed u32][crc32c u32][payload]
// compressed == 0 means the payload is stored raw.
const frameHeaderSize = 20

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// CompressedStore wraps a BlobStore and compresses every image it stores.
// Blobs are decoded and checksum-verified in full on Open.
type CompressedStore struct {
	inner BlobStore
	codec Compression
}

// NewCompressedStore creates a CompressedStore writing with codec.
// Reads accept frames written with any codec.
func NewCompressedStore(inner BlobStore, codec Compression) *CompressedStore {
	return &CompressedStore{inner: inner, codec: codec}
}

// Open reads, decompresses and verifies the named blob.
func (s *CompressedStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	raw := make([]byte, b.Size())
	if n, err := b.ReadAt(ctx, raw, 0); err != nil && !(errors.Is(err, io.EOF) && n == len(raw)) {
		return nil, err
	}

	data, err := decodeFrame(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return &memoryBlob{data: data}, nil
}

// Put compresses data and stores the frame through the inner store.
func (s *CompressedStore) Put(ctx context.Context, name string, data []byte) error {
	frame, err := encodeFrame(data, s.codec)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, name, frame)
}

// Delete removes a blob.
func (s *CompressedStore) Delete(ctx context.Context, name string) error {
	return s.inner.Delete(ctx, name)
}

// List returns all blobs matching the prefix.
func (s *CompressedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func encodeFrame(data []byte, codec Compression) ([]byte, error) {
	if uint64(len(data)) > math.MaxUint32 {
		return nil, fmt.Errorf("blobstore: image of %d bytes too large to compress", len(data))
	}

	var compressed []byte
	switch codec {
	case CompressionNone:
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n] // n == 0: incompressible
	case CompressionZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("blobstore: unsupported compression %v", codec)
	}

	// Store raw when compression does not help.
	if len(compressed) == 0 || len(compressed) >= len(data) {
		codec, compressed = CompressionNone, nil
	}

	payload := data
	if compressed != nil {
		payload = compressed
	}

	frame := make([]byte, frameHeaderSize+len(payload))
	copy(frame[0:4], frameMagic[:])
	frame[4] = byte(codec)
	binary.LittleEndian.PutUint32(frame[8:], uint32(len(data)))
	binary.LittleEndian.PutUint32(frame[12:], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(frame[16:], hash.CRC32C(data))
	copy(frame[frameHeaderSize:], payload)
	return frame, nil
}

func decodeFrame(frame []byte) ([]byte, error) {
	if len(frame) < frameHeaderSize || [4]byte(frame[0:4]) != frameMagic {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}

	codec := Compression(frame[4])
	uncompressedSize := binary.LittleEndian.Uint32(frame[8:])
	compressedSize := binary.LittleEndian.Uint32(frame[12:])
	sum := binary.LittleEndian.Uint32(frame[16:])
	payload := frame[frameHeaderSize:]

	var data []byte
	switch {
	case compressedSize == 0:
		if uint64(len(payload)) != uint64(uncompressedSize) {
			return nil, fmt.Errorf("%w: raw payload is %d bytes, header says %d", ErrCorrupt, len(payload), uncompressedSize)
		}
		data = payload
	case uint64(len(payload)) != uint64(compressedSize):
		return nil, fmt.Errorf("%w: payload is %d bytes, header says %d", ErrCorrupt, len(payload), compressedSize)
	case codec == CompressionLZ4:
		data = make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(payload, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(n) != uncompressedSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
	case codec == CompressionZSTD:
		dec := getZstdDecoder()
		decoded, err := dec.DecodeAll(payload, make([]byte, 0, uncompressedSize))
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(len(decoded)) != uncompressedSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		data = decoded
	default:
		return nil, fmt.Errorf("%w: unknown codec %d", ErrCorrupt, codec)
	}

	if hash.CRC32C(data) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return data, nil
}

var _ BlobStore = (*CompressedStore)(nil)
