// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"bytes"
	"context"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

type extractConfig struct {
	bufferSize int
	skipCRC    bool
}

// ExtractOption tunes a single extract operation.
type ExtractOption func(*extractConfig)

// WithExtractBufferSize bounds the chunks handed to the consumer.
func WithExtractBufferSize(size int) ExtractOption {
	return func(c *extractConfig) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

// SkipCRC32 disables checksum verification of the extracted payload.
func SkipCRC32() ExtractOption {
	return func(c *extractConfig) { c.skipCRC = true }
}

// ExtractEntry streams the decompressed payload of the named entry to the
// consumer in bounded chunks. Unless disabled, the checksum of the whole
// payload is verified against the central directory before returning.
func (a *Archive) ExtractEntry(ctx context.Context, path string, consumer Consumer, opts ...ExtractOption) error {
	c := extractConfig{bufferSize: defaultBufferSize}
	for _, opt := range opts {
		opt(&c)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if err := a.readable(); err != nil {
		return err
	}
	i, ok := a.index[path]
	if !ok {
		return ErrEntryNotFound
	}
	entry := a.entries[i]
	if entry.IsDir() {
		return nil
	}

	rc, err := a.entryReader(entry, !c.skipCRC)
	if err != nil {
		return err
	}
	defer rc.Close()

	buf := make([]byte, c.bufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return ErrCancelledOperation
		}
		n, err := rc.Read(buf)
		if n > 0 {
			if cerr := consumer(buf[:n]); cerr != nil {
				return cerr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ExtractBytes extracts the named entry into memory.
func (a *Archive) ExtractBytes(ctx context.Context, path string, opts ...ExtractOption) ([]byte, error) {
	var buf bytes.Buffer
	err := a.ExtractEntry(ctx, path, func(chunk []byte) error {
		buf.Write(chunk)
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CheckIntegrity decompresses every file entry and verifies its checksum,
// reporting the first entry that fails.
func (a *Archive) CheckIntegrity(ctx context.Context) error {
	discard := func([]byte) error { return nil }
	for _, entry := range a.Entries() {
		if entry.IsDir() {
			continue
		}
		if err := a.ExtractEntry(ctx, entry.Path(), discard); err != nil {
			return fmt.Errorf("%s: %w", entry.Path(), err)
		}
	}
	return nil
}

// entryReader opens a decompressing reader over the entry payload. The
// caller must hold at least a read lock for the lifetime of the reader.
func (a *Archive) entryReader(e *Entry, verify bool) (io.ReadCloser, error) {
	section, err := a.payloadSection(e)
	if err != nil {
		return nil, err
	}
	decompressor, err := decompressorFor(e.method)
	if err != nil {
		return nil, err
	}
	rc, err := decompressor.Decompress(section)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableArchive, err)
	}
	return &checksumReader{
		rc:     rc,
		hash:   crc32.NewIEEE(),
		want:   e.crc32,
		verify: verify,
	}, nil
}

// payloadSection returns a reader over the entry's compressed bytes.
// Backings that implement io.ReaderAt are read without moving the cursor,
// which keeps concurrent extraction possible; others are drained through
// the cursor into memory.
func (a *Archive) payloadSection(e *Entry) (io.Reader, error) {
	if ra, ok := a.backing.(io.ReaderAt); ok {
		return io.NewSectionReader(ra, e.dataOffset, int64(e.compressedSize)), nil
	}
	if err := a.backing.Seek(e.dataOffset); err != nil {
		return nil, err
	}
	buf, err := a.backing.Read(int(e.compressedSize))
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(buf), nil
}

// checksumReader verifies the running checksum of everything read once the
// stream is exhausted.
type checksumReader struct {
	rc     io.ReadCloser
	hash   hash.Hash32
	want   uint32
	verify bool
}

func (cr *checksumReader) Read(p []byte) (int, error) {
	n, err := cr.rc.Read(p)
	if n > 0 {
		cr.hash.Write(p[:n])
	}
	if err == io.EOF && cr.verify && cr.hash.Sum32() != cr.want {
		return n, ErrInvalidCRC32
	}
	return n, err
}

func (cr *checksumReader) Close() error { return cr.rc.Close() }
