package middleware

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/illarion/cloudvault/storage"
)

// Codec selects the compression algorithm. Its value is the tag byte
// written in the frame header.
type Codec byte

const (
	Raw  Codec = 'r'
	Zstd Codec = 'z'
	LZ4  Codec = 'l'
)

// FrameMagic starts every framed object. Content without it is read
// back unchanged.
const FrameMagic = "\xcfcvz"

const (
	frameVersion    = 1
	frameHeaderSize = len(FrameMagic) + 2

	compressionBackend = "compression"

	// lz4 frames carry the uncompressed length ahead of the block
	lz4HeaderSize = 4
	// an lz4 block never expands more than 255 times
	lz4MaxRatio = 255

	maxDecodedSize = 1 << 30
	zstdMaxWindow  = 64 << 20
)

var (
	ErrUnknownCodec = errors.New("unknown compression codec")
	errCorruptFrame = errors.New("corrupt compressed frame")
)

func (c Codec) String() string {
	switch c {
	case Raw:
		return "none"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("codec(%q)", byte(c))
	}
}

// ParseCodec accepts the names printed by Codec.String
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "none", "raw":
		return Raw, nil
	case "zstd":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

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
	dec, _ := zstd.NewReader(nil,
		zstd.WithDecoderMaxMemory(maxDecodedSize),
		zstd.WithDecoderMaxWindow(zstdMaxWindow),
	)
	return dec
}

type compressed struct {
	next  storage.Storage
	codec Codec
}

// Compression compresses object content on Update and restores it on
// Get. Frames written with any codec are readable whatever codec the
// wrapper was built with, Raw included, and objects written without the
// wrapper read back unchanged. Listed sizes remain the stored sizes.
func Compression(next storage.Storage, codec Codec) storage.Storage {
	return &compressed{next: next, codec: codec}
}

func (c *compressed) List(ctx context.Context) ([]storage.ObjectMetadata, error) {
	return c.next.List(ctx)
}

func (c *compressed) Create(ctx context.Context, name string) (string, error) {
	return c.next.Create(ctx, name)
}

func (c *compressed) Get(ctx context.Context, id string) ([]byte, error) {
	frame, err := c.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := decodeFrame(frame)
	if err != nil {
		return nil, storage.NewBackendError(compressionBackend, "get", id, err)
	}
	return data, nil
}

func (c *compressed) Update(ctx context.Context, id string, data []byte) error {
	frame, err := encodeFrame(c.codec, data)
	if err != nil {
		return storage.NewBackendError(compressionBackend, "update", id, err)
	}
	return c.next.Update(ctx, id, frame)
}

func (c *compressed) Delete(ctx context.Context, id string) error {
	return c.next.Delete(ctx, id)
}

func (c *compressed) Close() error {
	return storage.Close(c.next)
}

// encodeFrame stores data unframed when compression does not shrink it,
// unless data itself starts with FrameMagic.
func encodeFrame(codec Codec, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return []byte{}, nil
	}

	var body []byte
	switch codec {
	case Raw:
	case Zstd:
		if len(data) > maxDecodedSize {
			break
		}
		enc := getZstdEncoder()
		body = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	case LZ4:
		if len(data) > maxDecodedSize {
			break
		}
		buf := make([]byte, lz4HeaderSize+lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf[lz4HeaderSize:], nil)
		if err != nil {
			return nil, err
		}
		// Zero means incompressible
		if n > 0 {
			binary.LittleEndian.PutUint32(buf, uint32(len(data)))
			body = buf[:lz4HeaderSize+n]
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, codec)
	}

	if body == nil || frameHeaderSize+len(body) >= len(data) {
		if !isFramed(data) {
			return append([]byte{}, data...), nil
		}
		codec, body = Raw, data
	}
	frame := make([]byte, 0, frameHeaderSize+len(body))
	frame = append(frame, FrameMagic...)
	frame = append(frame, frameVersion, byte(codec))
	return append(frame, body...), nil
}

func isFramed(data []byte) bool {
	return len(data) >= len(FrameMagic) && string(data[:len(FrameMagic)]) == FrameMagic
}

func decodeFrame(frame []byte) ([]byte, error) {
	if !isFramed(frame) {
		return append([]byte{}, frame...), nil
	}
	if len(frame) < frameHeaderSize {
		return nil, fmt.Errorf("%w: header truncated", errCorruptFrame)
	}
	if v := frame[len(FrameMagic)]; v != frameVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errCorruptFrame, v)
	}
	tag := frame[frameHeaderSize-1]
	body := frame[frameHeaderSize:]

	switch Codec(tag) {
	case Raw:
		return append([]byte{}, body...), nil
	case Zstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		data, err := dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errCorruptFrame, err)
		}
		if data == nil {
			data = []byte{}
		}
		return data, nil
	case LZ4:
		if len(body) < lz4HeaderSize {
			return nil, fmt.Errorf("%w: lz4 header truncated", errCorruptFrame)
		}
		size := uint64(binary.LittleEndian.Uint32(body))
		block := body[lz4HeaderSize:]
		if size > maxDecodedSize || size > uint64(len(block))*lz4MaxRatio {
			return nil, fmt.Errorf("%w: lz4 header claims %d bytes from a %d byte block", errCorruptFrame, size, len(block))
		}
		data := make([]byte, size)
		n, err := lz4.UncompressBlock(block, data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errCorruptFrame, err)
		}
		if uint64(n) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", errCorruptFrame)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: tag %q", ErrUnknownCodec, tag)
	}
}
