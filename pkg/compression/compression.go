// Package compression provides the streaming codecs applied to input files
// before they reach a parser. Decoders are chained in configuration order,
// or detected from the file extension.
//
// Supported algorithms:
//   - gzip, deflate, zstd, snappy (framed), s2 via github.com/klauspost/compress
//   - lz4 (frame format) via github.com/pierrec/lz4/v4
//
// # Basic Usage
//
//	r, err := compression.NewReader(compression.Zstd, file)
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	// Several decoders, outermost first
//	r, err = compression.Chain(file, []compression.Algorithm{compression.Gzip})
package compression

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/quickload/pkg/errors"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None passes the stream through unchanged
	None Algorithm = "none"
	// Gzip represents gzip compression
	Gzip Algorithm = "gzip"
	// Snappy represents framed snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 frame compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
	// Deflate represents raw deflate compression
	Deflate Algorithm = "deflate"
)

// Algorithms lists every supported algorithm.
var Algorithms = []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2, Deflate}

// Level controls the trade-off between speed and ratio when writing.
type Level int

const (
	Fastest Level = 1
	Default Level = 5
	Better  Level = 7
	Best    Level = 9
)

var extensions = map[string]Algorithm{
	".gz":      Gzip,
	".gzip":    Gzip,
	".zst":     Zstd,
	".zstd":    Zstd,
	".lz4":     LZ4,
	".sz":      Snappy,
	".snappy":  Snappy,
	".s2":      S2,
	".deflate": Deflate,
}

// ParseAlgorithm maps a configuration name to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	alg := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	if alg == "" {
		return None, nil
	}
	for _, known := range Algorithms {
		if alg == known {
			return alg, nil
		}
	}
	return "", errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unsupported compression algorithm: %s", name)).
		WithDetail("algorithm", name)
}

// Detect returns the algorithm implied by a file name's extension, or None.
func Detect(name string) Algorithm {
	if alg, ok := extensions[strings.ToLower(path.Ext(name))]; ok {
		return alg
	}
	return None
}

// NewReader returns a reader decoding src with alg. Closing it releases
// decoder resources but never closes src.
func NewReader(alg Algorithm, src io.Reader) (io.ReadCloser, error) {
	switch alg {
	case None, "":
		return io.NopCloser(src), nil
	case Gzip:
		r, err := gzip.NewReader(src)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid gzip stream")
		}
		return r, nil
	case Deflate:
		return flate.NewReader(src), nil
	case Zstd:
		dec, err := zstd.NewReader(src)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid zstd stream")
		}
		return dec.IOReadCloser(), nil
	case Snappy:
		return io.NopCloser(snappy.NewReader(src)), nil
	case S2:
		return io.NopCloser(s2.NewReader(src)), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(src)), nil
	default:
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unsupported compression algorithm: %s", alg))
	}
}

// NewWriter returns a writer compressing into dst with alg at level.
// Close flushes the codec but never closes dst.
func NewWriter(alg Algorithm, dst io.Writer, level Level) (io.WriteCloser, error) {
	switch alg {
	case None, "":
		return nopWriteCloser{dst}, nil
	case Gzip:
		return gzip.NewWriterLevel(dst, mapGzipLevel(level))
	case Deflate:
		return flate.NewWriter(dst, mapDeflateLevel(level))
	case Zstd:
		return zstd.NewWriter(dst, zstd.WithEncoderLevel(mapZstdLevel(level)))
	case Snappy:
		return snappy.NewBufferedWriter(dst), nil
	case S2:
		return s2.NewWriter(dst), nil
	case LZ4:
		w := lz4.NewWriter(dst)
		if err := w.Apply(lz4.CompressionLevelOption(mapLZ4Level(level))); err != nil {
			return nil, err
		}
		return w, nil
	default:
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("unsupported compression algorithm: %s", alg))
	}
}

// Chain applies decoders to src in order, outermost encoding first. Closing
// the result closes every decoder, innermost first.
func Chain(src io.Reader, algs []Algorithm) (io.ReadCloser, error) {
	var closers []io.Closer
	r := src
	for _, alg := range algs {
		rc, err := NewReader(alg, r)
		if err != nil {
			closeAll(closers)
			return nil, err
		}
		closers = append(closers, rc)
		r = rc
	}
	return &chained{Reader: r, closers: closers}, nil
}

type chained struct {
	io.Reader
	closers []io.Closer
}

func (c *chained) Close() error { return closeAll(c.closers) }

func closeAll(closers []io.Closer) error {
	var first error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// Helper functions to map compression levels

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

func mapDeflateLevel(level Level) int {
	switch level {
	case Fastest:
		return flate.BestSpeed
	case Best:
		return flate.BestCompression
	default:
		return flate.DefaultCompression
	}
}
