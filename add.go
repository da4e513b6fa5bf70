// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/kirvachev/zipkit/internal/records"
)

// sizeUnknown marks an add whose payload length is not declared up front.
const sizeUnknown = -1

type addConfig struct {
	method     CompressionMethod
	level      int
	bufferSize int
	mode       fs.FileMode
	modTime    time.Time
	comment    string
	overwrite  bool
	knownSize  int64
}

// AddOption tunes a single add operation.
type AddOption func(*addConfig)

// WithMethod selects the compression method for the payload.
func WithMethod(method CompressionMethod) AddOption {
	return func(c *addConfig) { c.method = method }
}

// WithDeflateLevel selects the DEFLATE compression level.
func WithDeflateLevel(level int) AddOption {
	return func(c *addConfig) { c.level = level }
}

// WithBufferSize bounds the chunks moved between the payload source and
// the backing.
func WithBufferSize(size int) AddOption {
	return func(c *addConfig) {
		if size > 0 {
			c.bufferSize = size
		}
	}
}

// WithMode sets the permission bits recorded for the entry.
func WithMode(mode fs.FileMode) AddOption {
	return func(c *addConfig) { c.mode = mode }
}

// WithModTime sets the recorded modification time. MS-DOS timestamps give
// it two second resolution.
func WithModTime(t time.Time) AddOption {
	return func(c *addConfig) { c.modTime = t }
}

// WithEntryComment attaches a comment to the entry.
func WithEntryComment(comment string) AddOption {
	return func(c *addConfig) { c.comment = comment }
}

// WithOverwrite replaces an existing entry with the same path instead of
// failing. The removal commits before the add begins.
func WithOverwrite() AddOption {
	return func(c *addConfig) { c.overwrite = true }
}

// WithKnownSize declares the uncompressed payload length up front so the
// local header can carry definitive sizes. Without it the entry is written
// in streaming form, with a data descriptor after the payload.
func WithKnownSize(size int64) AddOption {
	return func(c *addConfig) { c.knownSize = size }
}

func newAddConfig(opts []AddOption) addConfig {
	c := addConfig{
		method:     Deflated,
		level:      DeflateNormal,
		bufferSize: defaultBufferSize,
		mode:       0644,
		modTime:    time.Now(),
		knownSize:  sizeUnknown,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// AddBytes adds a file entry with the given contents.
func (a *Archive) AddBytes(ctx context.Context, path string, data []byte, opts ...AddOption) error {
	opts = append(opts, WithKnownSize(int64(len(data))))
	provider := func(offset int64, max int) ([]byte, error) {
		if offset >= int64(len(data)) {
			return nil, nil
		}
		end := min(offset+int64(max), int64(len(data)))
		return data[offset:end], nil
	}
	return a.AddEntry(ctx, path, provider, opts...)
}

// AddReader adds a file entry streamed from r.
func (a *Archive) AddReader(ctx context.Context, path string, r io.Reader, opts ...AddOption) error {
	buf := make([]byte, defaultBufferSize)
	provider := func(offset int64, max int) ([]byte, error) {
		n, err := r.Read(buf[:min(max, len(buf))])
		if n > 0 {
			return buf[:n], nil
		}
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	return a.AddEntry(ctx, path, provider, opts...)
}

// AddDirectory adds a directory entry. The stored path gains a trailing
// slash when it lacks one.
func (a *Archive) AddDirectory(ctx context.Context, path string, opts ...AddOption) error {
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	opts = append(opts,
		WithMethod(Stored),
		WithKnownSize(0),
	)
	empty := func(int64, int) ([]byte, error) { return nil, nil }
	return a.addEntry(ctx, path, empty, KindDirectory, opts)
}

// AddSymlink adds a symbolic link entry whose payload is the link target.
func (a *Archive) AddSymlink(ctx context.Context, path, target string, opts ...AddOption) error {
	opts = append(opts,
		WithMethod(Stored),
		WithKnownSize(int64(len(target))),
	)
	provider := func(offset int64, max int) ([]byte, error) {
		if offset >= int64(len(target)) {
			return nil, nil
		}
		end := min(offset+int64(max), int64(len(target)))
		return []byte(target[offset:end]), nil
	}
	return a.addEntry(ctx, path, provider, KindSymlink, opts)
}

// AddEntry adds a file entry whose payload is pulled from the provider.
// The entry is appended at the end of the payload region and the central
// directory is rewritten behind it; the whole operation commits with a
// sync before returning.
func (a *Archive) AddEntry(ctx context.Context, path string, provider Provider, opts ...AddOption) error {
	return a.addEntry(ctx, path, provider, KindFile, opts)
}

func (a *Archive) addEntry(ctx context.Context, path string, provider Provider, kind EntryKind, opts []AddOption) error {
	c := newAddConfig(opts)

	if err := validateEntryPath(path); err != nil {
		return err
	}
	if len(c.comment) > int(records.Uint16Threshold) {
		return ErrCommentTooLong
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.writable(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return ErrCancelledOperation
	}

	if _, exists := a.index[path]; exists {
		if !c.overwrite {
			return ErrDuplicateEntry
		}
		if err := a.removeLocked(ctx, path); err != nil {
			return err
		}
	}

	entry := a.buildEntry(path, kind, c)

	// A declared payload length picks the local header form up front:
	// narrow fields for small entries, a reserved Zip64 block for large
	// ones, so the seek-back patch cannot change the header length.
	// Without a declared length the entry is written in streaming form:
	// the local header keeps zeroed sizes and a data descriptor carries
	// the definitive values after the payload.
	streaming := c.knownSize == sizeUnknown
	reserve := !streaming && uint64(c.knownSize) >= records.Uint32Threshold
	if streaming {
		entry.gpFlags |= records.FlagDataDescriptor
	}

	start := a.dirOffset
	entry.localHeaderOffset = start

	if err := a.backing.Seek(start); err != nil {
		return err
	}

	lfh := localRecord(entry, reserve, 0, 0, 0)
	encoded := lfh.Encode()
	if err := a.backing.WriteAll(encoded); err != nil {
		return a.restoreDirectory(err)
	}
	entry.dataOffset = start + int64(len(encoded))

	compressor, err := compressorFor(entry.method, c.level)
	if err != nil {
		return a.restoreDirectory(err)
	}

	hash := crc32.NewIEEE()
	src := io.TeeReader(&providerReader{ctx: ctx, provider: provider, max: c.bufferSize}, hash)
	dest := &consumerWriter{ctx: ctx, consumer: func(chunk []byte) error {
		return a.backing.WriteAll(chunk)
	}}

	uncompressed, err := compressor.Compress(src, dest)
	if err != nil {
		return a.restoreDirectory(err)
	}
	compressed := dest.written

	if !streaming && !reserve && (uint64(uncompressed) >= records.Uint32Threshold ||
		uint64(compressed) >= records.Uint32Threshold) {
		return a.restoreDirectory(fmt.Errorf(
			"%w: payload outgrew its declared size", ErrUnwritableArchive))
	}

	entry.crc32 = hash.Sum32()
	entry.uncompressedSize = uint64(uncompressed)
	entry.compressedSize = uint64(compressed)
	entry.localSize = entry.dataOffset - start + compressed

	if streaming {
		// The descriptor uses 64-bit size fields exactly when the central
		// directory header carries a Zip64 block, so a later rescan probes
		// the right descriptor width.
		zip64 := entry.uncompressedSize >= records.Uint32Threshold ||
			entry.compressedSize >= records.Uint32Threshold ||
			uint64(start) >= records.Uint32Threshold
		dd := records.DataDescriptor{
			CRC32:            entry.crc32,
			CompressedSize:   entry.compressedSize,
			UncompressedSize: entry.uncompressedSize,
		}
		descriptor := dd.Encode(zip64)
		if err := a.backing.WriteAll(descriptor); err != nil {
			return a.restoreDirectory(err)
		}
		entry.localSize += int64(len(descriptor))
	} else {
		// Seek-back patch: rewrite the local header with the definitive
		// checksum and sizes. Its length is unchanged.
		if err := a.backing.Seek(start); err != nil {
			return a.restoreDirectory(err)
		}
		patched := localRecord(entry, reserve, entry.crc32, entry.compressedSize, entry.uncompressedSize)
		if err := a.backing.WriteAll(patched.Encode()); err != nil {
			return a.restoreDirectory(err)
		}
	}

	a.entries = append(a.entries, entry)
	a.index[entry.path] = len(a.entries) - 1
	a.dirOffset = start + entry.localSize

	if err := a.commitCentralDirectory(); err != nil {
		a.entries = a.entries[:len(a.entries)-1]
		delete(a.index, entry.path)
		a.dirOffset = start
		return err
	}
	return a.backing.Sync()
}

// buildEntry assembles the catalog snapshot for a new entry before its
// payload is streamed.
func (a *Archive) buildEntry(path string, kind EntryKind, c addConfig) *Entry {
	perm := uint32(c.mode.Perm())
	var external uint32
	switch kind {
	case KindDirectory:
		if perm == 0644 {
			perm = 0755
		}
		external = (records.S_IFDIR|perm)<<16 | records.MSDOSDirAttribute
	case KindSymlink:
		external = (records.S_IFLNK | 0777) << 16
	default:
		external = (records.S_IFREG | perm) << 16
	}

	method := c.method
	if kind != KindFile {
		method = Stored
	}

	mode := fs.FileMode(perm)
	switch kind {
	case KindDirectory:
		mode |= fs.ModeDir
	case KindSymlink:
		mode |= fs.ModeSymlink
	}

	return &Entry{
		path:               path,
		name:               path,
		kind:               kind,
		mode:               mode,
		method:             method,
		modTime:            c.modTime,
		comment:            c.comment,
		gpFlags:            records.FlagUTF8,
		versionMadeBy:      records.HostUnix<<8 | 20,
		externalAttributes: external,
	}
}

// localRecord builds the entry's local header. With reserve set it carries
// a fixed-width Zip64 block so the placeholder and the patched header have
// identical lengths.
func localRecord(e *Entry, reserve bool, crc uint32, compressed, uncompressed uint64) records.LocalFileHeader {
	dosDate, dosTime := timeToMsDos(e.modTime)
	lfh := records.LocalFileHeader{
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  e.gpFlags,
		CompressionMethod:      uint16(e.method),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		CRC32:                  crc,
		Filename:               e.path,
	}

	if reserve {
		z := records.Zip64Extra{
			UncompressedSize:    uncompressed,
			CompressedSize:      compressed,
			HasUncompressedSize: true,
			HasCompressedSize:   true,
		}
		lfh.VersionNeededToExtract = 45
		lfh.CompressedSize = records.Sentinel32
		lfh.UncompressedSize = records.Sentinel32
		lfh.ExtraFields = []records.ExtraField{{Tag: records.Zip64ExtraTag, Data: z.Encode()}}
		return lfh
	}

	lfh.CompressedSize = uint32(compressed)
	lfh.UncompressedSize = uint32(uncompressed)
	return lfh
}

// restoreDirectory puts the central directory back after a failed add so
// the on-disk archive keeps matching the unchanged catalog.
func (a *Archive) restoreDirectory(cause error) error {
	if err := a.commitCentralDirectory(); err != nil {
		return fmt.Errorf("%w (directory restore also failed: %v)", cause, err)
	}
	if err := a.backing.Sync(); err != nil {
		return fmt.Errorf("%w (directory restore also failed: %v)", cause, err)
	}
	return cause
}

// validateEntryPath rejects paths the archive must never store: empty,
// absolute, traversing, or oversized ones.
func validateEntryPath(path string) error {
	switch {
	case path == "":
		return ErrInvalidEntryPath
	case len(path) > int(records.Uint16Threshold):
		return ErrFilenameTooLong
	case strings.HasPrefix(path, "/"):
		return ErrInvalidEntryPath
	case strings.ContainsAny(path, "\\\x00"):
		return ErrInvalidEntryPath
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return ErrInvalidEntryPath
		}
	}
	return nil
}
