package compression

import (
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Type represents the compression algorithm
type Type int

const (
	None Type = iota
	Gzip
	Zstd
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ForPath picks the compression type from a file name suffix.
func ForPath(path string) Type {
	switch {
	case strings.HasSuffix(path, ".gz"):
		return Gzip
	case strings.HasSuffix(path, ".zst"):
		return Zstd
	default:
		return None
	}
}

// NewWriter returns a writer compressing into w. Closing it flushes the
// compressed stream but does not close w.
func NewWriter(w io.Writer, t Type, level int) (io.WriteCloser, error) {
	switch t {
	case None:
		return nopCloser{w}, nil
	case Gzip:
		if level > gzip.BestCompression {
			level = gzip.BestCompression
		}
		gw, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip writer: %w", err)
		}
		return gw, nil
	case Zstd:
		zw, err := zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		return zw, nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %d", t)
	}
}

// NewReader returns a reader decompressing r.
func NewReader(r io.Reader, t Type) (io.ReadCloser, error) {
	switch t {
	case None:
		return io.NopCloser(r), nil
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gr, nil
	case Zstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		return zstdReadCloser{zr}, nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %d", t)
	}
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// zstd.Decoder.Close has no error result
type zstdReadCloser struct {
	*zstd.Decoder
}

func (z zstdReadCloser) Close() error {
	z.Decoder.Close()
	return nil
}
