package sortedfile

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	serrors "github.com/arkilian/sweep/internal/errors"
)

// Compression selects the codec applied to every block of a sorted file.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionSnappy
	CompressionLz4
	CompressionZstd
)

// Compressions lists every supported codec in declaration order.
var Compressions = []Compression{CompressionNone, CompressionSnappy, CompressionLz4, CompressionZstd}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionSnappy:
		return "Snappy"
	case CompressionLz4:
		return "Lz4"
	case CompressionZstd:
		return "Zstd"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

// ParseCompression parses a codec name case-insensitively.
func ParseCompression(s string) (Compression, error) {
	for _, c := range Compressions {
		if strings.EqualFold(s, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("sortedfile: unknown compression %q", s)
}

// MarshalText implements encoding.TextMarshaler so compressions read nicely in
// YAML and JSON configuration.
func (c Compression) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Compression) UnmarshalText(text []byte) error {
	parsed, err := ParseCompression(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

var (
	lz4Pool = sync.Pool{New: func() interface{} { return new(lz4.Compressor) }}

	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

// zstdCodecs returns the shared encoder/decoder pair. EncodeAll and DecodeAll
// may be called concurrently.
func zstdCodecs() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// compress encodes raw with the requested codec. The returned kind is the one
// actually applied: incompressible lz4 input is stored as-is.
func compress(kind Compression, raw []byte) ([]byte, Compression, error) {
	switch kind {
	case CompressionNone:
		return raw, CompressionNone, nil
	case CompressionSnappy:
		return snappy.Encode(nil, raw), CompressionSnappy, nil
	case CompressionLz4:
		c := lz4Pool.Get().(*lz4.Compressor)
		defer lz4Pool.Put(c)
		dst := make([]byte, 4+lz4.CompressBlockBound(len(raw)))
		binary.LittleEndian.PutUint32(dst, uint32(len(raw)))
		n, err := c.CompressBlock(raw, dst[4:])
		if err != nil {
			return nil, 0, serrors.NewEncodingError(serrors.CodeSerializeFailed, "sortedfile: lz4 compress", err)
		}
		if n == 0 {
			return raw, CompressionNone, nil
		}
		return dst[:4+n], CompressionLz4, nil
	case CompressionZstd:
		enc, _, err := zstdCodecs()
		if err != nil {
			return nil, 0, serrors.NewEncodingError(serrors.CodeSerializeFailed, "sortedfile: zstd init", err)
		}
		return enc.EncodeAll(raw, nil), CompressionZstd, nil
	default:
		return nil, 0, serrors.NewEncodingError(serrors.CodeSerializeFailed,
			fmt.Sprintf("sortedfile: unsupported compression %d", kind), nil)
	}
}

func decompress(kind Compression, payload []byte) ([]byte, error) {
	switch kind {
	case CompressionNone:
		return payload, nil
	case CompressionSnappy:
		raw, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, serrors.NewEncodingError(serrors.CodeCorruptBlock, "sortedfile: snappy decode", err)
		}
		return raw, nil
	case CompressionLz4:
		if len(payload) < 4 {
			return nil, serrors.NewEncodingError(serrors.CodeCorruptBlock, "sortedfile: lz4 block too short", nil)
		}
		raw := make([]byte, binary.LittleEndian.Uint32(payload))
		n, err := lz4.UncompressBlock(payload[4:], raw)
		if err != nil {
			return nil, serrors.NewEncodingError(serrors.CodeCorruptBlock, "sortedfile: lz4 decode", err)
		}
		return raw[:n], nil
	case CompressionZstd:
		_, dec, err := zstdCodecs()
		if err != nil {
			return nil, serrors.NewEncodingError(serrors.CodeDeserializeFailed, "sortedfile: zstd init", err)
		}
		raw, err := dec.DecodeAll(payload, nil)
		if err != nil {
			return nil, serrors.NewEncodingError(serrors.CodeCorruptBlock, "sortedfile: zstd decode", err)
		}
		return raw, nil
	default:
		return nil, serrors.NewEncodingError(serrors.CodeCorruptBlock,
			fmt.Sprintf("sortedfile: unknown block compression %d", kind), nil)
	}
}
