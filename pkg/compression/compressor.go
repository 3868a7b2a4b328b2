// Package compression provides the segment payload compression layer.
//
// Segment files are written as one compressed blob per segment; the
// algorithm is recorded in the store metadata so a store written under one
// configuration reopens under another. Supported algorithms:
//
//   - Snappy/S2: best for speed, moderate compression
//   - LZ4: extremely fast, decent compression
//   - Zstd: best compression ratio, good speed
//   - None: passthrough
//
// Compressor instances are pooled; use a CompressorPool when compressing
// many segments concurrently.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/strata/pkg/pool"
)

// Algorithm represents a compression algorithm.
type Algorithm string

const (
	// None represents no compression
	None Algorithm = "none"
	// Snappy represents snappy compression
	Snappy Algorithm = "snappy"
	// LZ4 represents lz4 compression
	LZ4 Algorithm = "lz4"
	// Zstd represents zstandard compression
	Zstd Algorithm = "zstd"
	// S2 represents s2 compression (Snappy compatible)
	S2 Algorithm = "s2"
)

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio.
	Fastest Level = 1
	// Default balances speed and compression.
	Default Level = 5
	// Best maximizes compression ratio.
	Best Level = 9
)

// Compressor provides compression and decompression functionality.
// All implementations are safe for concurrent use through CompressorPool.
type Compressor interface {
	// Compress compresses data and returns the compressed bytes.
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data and returns the original bytes.
	Decompress(data []byte) ([]byte, error)

	// Algorithm returns the compression algorithm used.
	Algorithm() Algorithm
}

// Config represents compressor configuration.
type Config struct {
	Algorithm Algorithm
	Level     Level
}

// DefaultConfig returns a configuration balanced between speed and
// compression ratio.
func DefaultConfig() *Config {
	return &Config{
		Algorithm: Zstd,
		Level:     Default,
	}
}

// NewCompressor creates a new compressor based on the provided
// configuration. If config is nil, default configuration is used.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Algorithm {
	case None, "":
		return &noneCompressor{}, nil
	case Snappy:
		return &snappyCompressor{}, nil
	case LZ4:
		return newLZ4Compressor(config)
	case Zstd:
		return newZstdCompressor(config)
	case S2:
		return &s2Compressor{}, nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", config.Algorithm)
	}
}

// CompressorPool provides pooled compressors, reusing instances across
// concurrent segment flushes. Safe for concurrent use.
type CompressorPool struct {
	pool   *pool.Pool[Compressor]
	config *Config
}

// NewCompressorPool creates a new compressor pool with the specified
// configuration.
func NewCompressorPool(config *Config) *CompressorPool {
	if config == nil {
		config = DefaultConfig()
	}

	return &CompressorPool{
		config: config,
		pool: pool.New(func() Compressor {
			comp, _ := NewCompressor(config)
			return comp
		}, nil),
	}
}

// Get gets a compressor from the pool
func (cp *CompressorPool) Get() Compressor {
	return cp.pool.Get()
}

// Put returns a compressor to the pool
func (cp *CompressorPool) Put(c Compressor) {
	cp.pool.Put(c)
}

// Compress compresses data using a pooled compressor
func (cp *CompressorPool) Compress(data []byte) ([]byte, error) {
	c := cp.Get()
	defer cp.Put(c)
	return c.Compress(data)
}

// Decompress decompresses data using a pooled compressor
func (cp *CompressorPool) Decompress(data []byte) ([]byte, error) {
	c := cp.Get()
	defer cp.Put(c)
	return c.Decompress(data)
}

type noneCompressor struct{}

func (nc *noneCompressor) Compress(data []byte) ([]byte, error)   { return data, nil }
func (nc *noneCompressor) Decompress(data []byte) ([]byte, error) { return data, nil }
func (nc *noneCompressor) Algorithm() Algorithm                   { return None }

type snappyCompressor struct{}

func (sc *snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (sc *snappyCompressor) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

func (sc *snappyCompressor) Algorithm() Algorithm { return Snappy }

type s2Compressor struct{}

func (sc *s2Compressor) Compress(data []byte) ([]byte, error) {
	return s2.Encode(nil, data), nil
}

func (sc *s2Compressor) Decompress(data []byte) ([]byte, error) {
	return s2.Decode(nil, data)
}

func (sc *s2Compressor) Algorithm() Algorithm { return S2 }

type lz4Compressor struct {
	level lz4.CompressionLevel
}

func newLZ4Compressor(config *Config) (Compressor, error) {
	level := lz4.Fast
	if config.Level >= Best {
		level = lz4.Level9
	} else if config.Level > Default {
		level = lz4.Level5
	}
	return &lz4Compressor{level: level}, nil
}

func (lc *lz4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(lc.level)); err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lc *lz4Compressor) Decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	return io.ReadAll(r)
}

func (lc *lz4Compressor) Algorithm() Algorithm { return LZ4 }

type zstdCompressor struct {
	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdCompressor(config *Config) (Compressor, error) {
	level := zstd.SpeedDefault
	switch {
	case config.Level <= Fastest:
		level = zstd.SpeedFastest
	case config.Level >= Best:
		level = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(level))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &zstdCompressor{encoder: encoder, decoder: decoder}, nil
}

func (zc *zstdCompressor) Compress(data []byte) ([]byte, error) {
	zc.mu.Lock()
	defer zc.mu.Unlock()
	return zc.encoder.EncodeAll(data, nil), nil
}

func (zc *zstdCompressor) Decompress(data []byte) ([]byte, error) {
	zc.mu.Lock()
	defer zc.mu.Unlock()
	return zc.decoder.DecodeAll(data, nil)
}

func (zc *zstdCompressor) Algorithm() Algorithm { return Zstd }
