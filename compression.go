// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"context"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
)

// CompressionMethod represents the compression algorithm used for an entry.
type CompressionMethod uint16

const (
	Stored   CompressionMethod = 0 // no compression, payload stored as-is
	Deflated CompressionMethod = 8 // raw DEFLATE streams
)

// Compression levels for the DEFLATE algorithm.
const (
	DeflateNormal    = 6 // default level
	DeflateMaximum   = 9 // best ratio, slowest
	DeflateFast      = 3 // lower ratio, faster
	DeflateSuperFast = 1 // lowest ratio, fastest
)

// defaultBufferSize bounds the chunks moved between a backing and a codec.
const defaultBufferSize = 64 * 1024

// Provider supplies successive chunks of uncompressed input. It is called
// with the running offset and a chunk size cap, and signals the end of
// input by returning an empty chunk.
type Provider func(offset int64, max int) ([]byte, error)

// Consumer receives successive chunks of output. The chunk is only valid
// for the duration of the call.
type Consumer func(chunk []byte) error

// Compressor encodes an uncompressed stream. The returned count is the
// number of uncompressed bytes consumed from src.
type Compressor interface {
	Compress(src io.Reader, dest io.Writer) (int64, error)
}

// Decompressor decodes a compressed stream.
type Decompressor interface {
	Decompress(src io.Reader) (io.ReadCloser, error)
}

// StoredCompressor implements the Store method, copying the payload as-is.
type StoredCompressor struct{}

func (sc *StoredCompressor) Compress(src io.Reader, dest io.Writer) (int64, error) {
	return io.Copy(dest, src)
}

// DeflateCompressor implements DEFLATE compression with writer pooling.
type DeflateCompressor struct {
	pool sync.Pool
}

// NewDeflateCompressor creates a reusable compressor for a specific level.
func NewDeflateCompressor(level int) *DeflateCompressor {
	return &DeflateCompressor{
		pool: sync.Pool{
			New: func() interface{} {
				w, _ := flate.NewWriter(io.Discard, level)
				return w
			},
		},
	}
}

func (d *DeflateCompressor) Compress(src io.Reader, dest io.Writer) (int64, error) {
	w := d.pool.Get().(*flate.Writer)
	defer d.pool.Put(w)

	w.Reset(dest)

	n, err := io.Copy(w, src)
	if err != nil {
		return n, err
	}

	if err := w.Close(); err != nil {
		return n, err
	}

	return n, nil
}

// StoredDecompressor implements the Store method.
type StoredDecompressor struct{}

func (sd *StoredDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	if rc, ok := src.(io.ReadCloser); ok {
		return rc, nil
	}
	return io.NopCloser(src), nil
}

// DeflateDecompressor implements the Deflate method.
type DeflateDecompressor struct{}

func (dd *DeflateDecompressor) Decompress(src io.Reader) (io.ReadCloser, error) {
	return flate.NewReader(src), nil
}

func compressorFor(method CompressionMethod, level int) (Compressor, error) {
	switch method {
	case Stored:
		return &StoredCompressor{}, nil
	case Deflated:
		return NewDeflateCompressor(level), nil
	default:
		return nil, ErrUnsupportedMethod
	}
}

func decompressorFor(method CompressionMethod) (Decompressor, error) {
	switch method {
	case Stored:
		return &StoredDecompressor{}, nil
	case Deflated:
		return &DeflateDecompressor{}, nil
	default:
		return nil, ErrUnsupportedMethod
	}
}

// providerReader adapts a Provider into an io.Reader, checking the context
// between chunks. Oversized chunks are buffered across reads.
type providerReader struct {
	ctx      context.Context
	provider Provider
	max      int
	offset   int64
	pending  []byte
}

func (r *providerReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, ErrCancelledOperation
	}
	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		return n, nil
	}

	max := min(len(p), r.max)
	chunk, err := r.provider(r.offset, max)
	if err != nil {
		return 0, err
	}
	if len(chunk) == 0 {
		return 0, io.EOF
	}
	r.offset += int64(len(chunk))

	n := copy(p, chunk)
	if n < len(chunk) {
		r.pending = chunk[n:]
	}
	return n, nil
}

// consumerWriter adapts a Consumer into an io.Writer, checking the context
// between chunks and counting the bytes delivered.
type consumerWriter struct {
	ctx      context.Context
	consumer Consumer
	written  int64
}

func (w *consumerWriter) Write(p []byte) (int, error) {
	if err := w.ctx.Err(); err != nil {
		return 0, ErrCancelledOperation
	}
	if err := w.consumer(p); err != nil {
		return 0, err
	}
	w.written += int64(len(p))
	return len(p), nil
}
