// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/kirvachev/zipkit/internal/records"
)

// OpenMode selects what an archive handle may do with its backing.
type OpenMode uint8

const (
	// ModeRead opens an existing archive for reading only.
	ModeRead OpenMode = iota
	// ModeUpdate opens an existing archive for reading and in-place editing.
	ModeUpdate
	// ModeCreate starts a fresh archive, discarding any previous contents.
	ModeCreate
)

// Archive is an open ZIP archive over a seekable backing. All operations
// are serialized through an internal lock; reads may proceed concurrently,
// mutating operations are exclusive.
type Archive struct {
	mu      sync.RWMutex
	backing Backing
	mode    OpenMode
	decoder TextDecoder

	entries   []*Entry       // catalog in on-disk payload order
	index     map[string]int // stored path bytes to catalog position
	comment   string
	dirOffset int64 // first byte of the central directory

	closed bool
}

// OpenOption configures an archive handle at open time.
type OpenOption func(*Archive)

// WithTextDecoder sets the decoder used for paths and comments of entries
// that do not declare UTF-8 encoding.
func WithTextDecoder(d TextDecoder) OpenOption {
	return func(a *Archive) { a.decoder = d }
}

// Open opens or creates the archive file at path.
func Open(ctx context.Context, path string, mode OpenMode, opts ...OpenOption) (*Archive, error) {
	flags := FlagRead
	switch mode {
	case ModeUpdate:
		flags |= FlagWrite
	case ModeCreate:
		flags |= FlagWrite | FlagCreate | FlagTruncate
	}

	backing, err := OpenFileBacking(path, flags)
	if err != nil {
		return nil, err
	}
	a, err := openBacking(ctx, backing, mode, opts)
	if err != nil {
		backing.Close()
		return nil, err
	}
	return a, nil
}

// OpenMemory opens an archive over an in-memory buffer. With ModeCreate
// the buffer contents are discarded. The backing takes ownership of the
// slice.
func OpenMemory(ctx context.Context, data []byte, mode OpenMode, opts ...OpenOption) (*Archive, error) {
	flags := FlagRead
	switch mode {
	case ModeUpdate:
		flags |= FlagWrite
	case ModeCreate:
		flags |= FlagWrite | FlagCreate | FlagTruncate
	}
	return openBacking(ctx, NewMemoryBacking(data, flags), mode, opts)
}

// OpenBacking opens an archive over a caller-supplied backing.
func OpenBacking(ctx context.Context, backing Backing, mode OpenMode, opts ...OpenOption) (*Archive, error) {
	return openBacking(ctx, backing, mode, opts)
}

func openBacking(ctx context.Context, backing Backing, mode OpenMode, opts []OpenOption) (*Archive, error) {
	a := &Archive{
		backing: backing,
		mode:    mode,
		decoder: defaultTextDecoder,
		index:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}

	if mode == ModeCreate {
		// An empty archive is a lone end record. Writing it first lets the
		// scan below treat creation and reopening identically.
		if err := backing.WriteAll(records.EncodeEndOfCentralDirRecord(0, 0, 0, "")); err != nil {
			return nil, err
		}
		if err := backing.Sync(); err != nil {
			return nil, err
		}
	}

	if err := a.scan(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// scan locates the end-of-central-directory record, follows the Zip64
// chain when totals overflow, walks the central directory and pairs every
// header with its local counterpart.
func (a *Archive) scan(ctx context.Context) error {
	size, err := a.backing.SeekToEnd()
	if err != nil {
		return err
	}
	if size < records.EndOfCentralDirLen {
		return fmt.Errorf("%w: too small for an end record", ErrUnreadableArchive)
	}

	tailLen := min(size, int64(records.MaxCommentSearch))
	if err := a.backing.Seek(size - tailLen); err != nil {
		return err
	}
	tail, err := a.backing.Read(int(tailLen))
	if err != nil {
		return err
	}

	eocdPos := int64(-1)
	for i := int64(tailLen) - records.EndOfCentralDirLen; i >= 0; i-- {
		if binary.LittleEndian.Uint32(tail[i:i+4]) != records.EndOfCentralDirSignature {
			continue
		}
		commentLen := int64(binary.LittleEndian.Uint16(tail[i+20 : i+22]))
		if i+records.EndOfCentralDirLen+commentLen <= tailLen {
			eocdPos = i
			break
		}
	}
	if eocdPos < 0 {
		return fmt.Errorf("%w: end record not found", ErrUnreadableArchive)
	}

	eocd, ok := records.ParseEndOfCentralDir(tail[eocdPos : eocdPos+records.EndOfCentralDirLen])
	if !ok {
		return fmt.Errorf("%w: malformed end record", ErrUnreadableArchive)
	}
	commentStart := eocdPos + records.EndOfCentralDirLen
	a.comment = string(tail[commentStart : commentStart+int64(eocd.CommentLength)])

	eocdOffset := size - tailLen + eocdPos

	entriesTotal := uint64(eocd.TotalNumberOfEntries)
	dirOffset := int64(eocd.CentralDirOffset)

	if eocd.NeedsZip64() {
		locatorOffset := eocdOffset - records.Zip64EndOfCentralDirLocatorLen
		if locatorOffset < 0 {
			return fmt.Errorf("%w: missing zip64 locator", ErrUnreadableArchive)
		}
		if err := a.backing.Seek(locatorOffset); err != nil {
			return err
		}
		buf, err := a.backing.Read(records.Zip64EndOfCentralDirLocatorLen)
		if err != nil {
			return err
		}
		locator, ok := records.ParseZip64EndOfCentralDirLocator(buf)
		if !ok {
			return fmt.Errorf("%w: missing zip64 locator", ErrUnreadableArchive)
		}

		if err := a.backing.Seek(int64(locator.Zip64EndOfCentralDirOffset)); err != nil {
			return err
		}
		buf, err = a.backing.Read(records.Zip64EndOfCentralDirLen)
		if err != nil {
			return err
		}
		end64, ok := records.ParseZip64EndOfCentralDir(buf)
		if !ok {
			return fmt.Errorf("%w: malformed zip64 end record", ErrUnreadableArchive)
		}
		entriesTotal = end64.TotalNumberOfEntries
		dirOffset = int64(end64.CentralDirOffset)
	}

	a.dirOffset = dirOffset
	a.entries = a.entries[:0]
	clear(a.index)

	if err := a.backing.Seek(dirOffset); err != nil {
		return err
	}
	for i := uint64(0); i < entriesTotal; i++ {
		if err := ctx.Err(); err != nil {
			return ErrCancelledOperation
		}
		cd, err := a.readCentralDirEntry()
		if err != nil {
			return err
		}
		entry, err := newEntry(cd, a.decoder)
		if err != nil {
			return err
		}
		a.entries = append(a.entries, entry)
	}

	// The catalog follows payload order, which foreign central directories
	// are free to disagree with.
	sort.SliceStable(a.entries, func(i, j int) bool {
		return a.entries[i].localHeaderOffset < a.entries[j].localHeaderOffset
	})

	for i, entry := range a.entries {
		if err := a.pairLocalHeader(entry); err != nil {
			return err
		}
		a.index[entry.path] = i
	}
	return nil
}

// readCentralDirEntry decodes one central directory header at the cursor,
// fixed part first, then the variable trailers.
func (a *Archive) readCentralDirEntry() (records.CentralDirectory, error) {
	buf, err := a.backing.Read(records.CentralDirectoryLen)
	if err != nil {
		return records.CentralDirectory{}, fmt.Errorf("%w: truncated central directory", ErrUnreadableArchive)
	}
	cd, ok := records.ParseCentralDirectory(buf)
	if !ok {
		return records.CentralDirectory{}, fmt.Errorf("%w: bad central directory signature", ErrUnreadableArchive)
	}

	if cd.FilenameLength > 0 {
		name, err := a.backing.Read(int(cd.FilenameLength))
		if err != nil {
			return records.CentralDirectory{}, fmt.Errorf("%w: truncated entry path", ErrUnreadableArchive)
		}
		cd.Filename = string(name)
	}
	if cd.ExtraFieldLength > 0 {
		raw, err := a.backing.Read(int(cd.ExtraFieldLength))
		if err != nil {
			return records.CentralDirectory{}, fmt.Errorf("%w: truncated extra field", ErrUnreadableArchive)
		}
		cd.ExtraFields = records.ParseExtraFields(raw)
	}
	if cd.FileCommentLength > 0 {
		comment, err := a.backing.Read(int(cd.FileCommentLength))
		if err != nil {
			return records.CentralDirectory{}, fmt.Errorf("%w: truncated entry comment", ErrUnreadableArchive)
		}
		cd.Comment = string(comment)
	}
	return cd, nil
}

// pairLocalHeader reads the local header named by the central directory
// entry and derives the payload offset and the entry's full local span.
// The cursor position is not preserved.
func (a *Archive) pairLocalHeader(e *Entry) error {
	if err := a.backing.Seek(e.localHeaderOffset); err != nil {
		return err
	}
	buf, err := a.backing.Read(records.LocalFileHeaderLen)
	if err != nil {
		return fmt.Errorf("%w: truncated local header", ErrUnreadableArchive)
	}
	lfh, ok := records.ParseLocalFileHeader(buf)
	if !ok {
		return fmt.Errorf("%w: bad local header signature", ErrUnreadableArchive)
	}

	e.dataOffset = e.localHeaderOffset + records.LocalFileHeaderLen +
		int64(lfh.FilenameLength) + int64(lfh.ExtraFieldLength)
	e.localSize = e.dataOffset - e.localHeaderOffset + int64(e.compressedSize)

	if e.hasDataDescriptor() {
		e.localSize += a.dataDescriptorLen(e)
	}
	return nil
}

// dataDescriptorLen probes the bytes past the payload for the optional
// descriptor signature and picks 32-bit or 64-bit size fields to match the
// entry's Zip64 usage.
func (a *Archive) dataDescriptorLen(e *Entry) int64 {
	base := int64(records.DataDescriptorLen - 4)
	if e.usesZip64() {
		base = records.DataDescriptor64Len - 4
	}
	if err := a.backing.Seek(e.dataOffset + int64(e.compressedSize)); err != nil {
		return base
	}
	probe, err := a.backing.Read(4)
	if err != nil {
		return base
	}
	if binary.LittleEndian.Uint32(probe) == records.DataDescriptorSignature {
		return base + 4
	}
	return base
}

// Entries returns the catalog in on-disk order. The slice is a copy; the
// entries themselves are shared snapshots.
func (a *Archive) Entries() []*Entry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Entry, len(a.entries))
	copy(out, a.entries)
	return out
}

// Entry returns the entry whose stored path matches the given path byte
// for byte.
func (a *Archive) Entry(path string) (*Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	i, ok := a.index[path]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return a.entries[i], nil
}

// Len returns the number of entries in the archive.
func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// Comment returns the archive comment.
func (a *Archive) Comment() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.comment
}

// SetComment replaces the archive comment and commits it by rewriting the
// central directory.
func (a *Archive) SetComment(ctx context.Context, comment string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.writable(); err != nil {
		return err
	}
	if len(comment) > int(records.Uint16Threshold) {
		return ErrCommentTooLong
	}
	if err := ctx.Err(); err != nil {
		return ErrCancelledOperation
	}

	old := a.comment
	a.comment = comment
	if err := a.commitCentralDirectory(); err != nil {
		a.comment = old
		return err
	}
	return a.backing.Sync()
}

// MemoryData returns the raw archive bytes when the archive lives on a
// memory backing, or nil otherwise.
func (a *Archive) MemoryData() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if m, ok := a.backing.(*MemoryBacking); ok {
		return m.Bytes()
	}
	return nil
}

// Close releases the backing. Further operations on the handle fail.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.backing.Close()
}

func (a *Archive) readable() error {
	if a.closed {
		return fmt.Errorf("%w: archive closed", ErrUnreadableArchive)
	}
	return nil
}

func (a *Archive) writable() error {
	if a.closed {
		return fmt.Errorf("%w: archive closed", ErrUnwritableArchive)
	}
	if a.mode == ModeRead {
		return ErrUnwritableArchive
	}
	return nil
}

// centralRecord rebuilds the wire form of the entry's central directory
// header, re-deriving the Zip64 block from the current values so offset
// shifts and threshold changes are reflected.
func (e *Entry) centralRecord() records.CentralDirectory {
	dosDate, dosTime := timeToMsDos(e.modTime)
	cd := records.CentralDirectory{
		VersionMadeBy:          e.versionMadeBy,
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  e.gpFlags,
		CompressionMethod:      uint16(e.method),
		LastModFileTime:        dosTime,
		LastModFileDate:        dosDate,
		CRC32:                  e.crc32,
		InternalFileAttributes: e.internalAttributes,
		ExternalFileAttributes: e.externalAttributes,
		Filename:               e.path,
		Comment:                e.comment,
	}

	var z records.Zip64Extra
	if e.uncompressedSize >= records.Uint32Threshold {
		cd.UncompressedSize = records.Sentinel32
		z.UncompressedSize = e.uncompressedSize
		z.HasUncompressedSize = true
	} else {
		cd.UncompressedSize = uint32(e.uncompressedSize)
	}
	if e.compressedSize >= records.Uint32Threshold {
		cd.CompressedSize = records.Sentinel32
		z.CompressedSize = e.compressedSize
		z.HasCompressedSize = true
	} else {
		cd.CompressedSize = uint32(e.compressedSize)
	}
	if uint64(e.localHeaderOffset) >= records.Uint32Threshold {
		cd.LocalHeaderOffset = records.Sentinel32
		z.LocalHeaderOffset = uint64(e.localHeaderOffset)
		z.HasLocalHeaderOffset = true
	} else {
		cd.LocalHeaderOffset = uint32(e.localHeaderOffset)
	}

	extra := append([]records.ExtraField(nil), e.extraFields...)
	cd.ExtraFields = records.ReplaceExtraField(extra, records.Zip64ExtraTag, z.Encode())
	if _, zip64 := records.FindExtraField(cd.ExtraFields, records.Zip64ExtraTag); zip64 {
		cd.VersionNeededToExtract = 45
	}
	return cd
}

// encodeCentralDirectory serializes the whole central directory trailer:
// every entry header, the Zip64 end records when totals overflow, and the
// classic end record with the archive comment.
func (a *Archive) encodeCentralDirectory() []byte {
	var buf bytes.Buffer
	for _, entry := range a.entries {
		buf.Write(entry.centralRecord().Encode())
	}

	dirSize := uint64(buf.Len())
	entriesNum := uint64(len(a.entries))

	if entriesNum >= records.Uint16Threshold ||
		dirSize >= records.Uint32Threshold ||
		uint64(a.dirOffset) >= records.Uint32Threshold {
		buf.Write(records.EncodeZip64EndOfCentralDirRecord(
			entriesNum, dirSize, uint64(a.dirOffset)))
		buf.Write(records.EncodeZip64EndOfCentralDirLocator(
			uint64(a.dirOffset) + dirSize))
	}

	buf.Write(records.EncodeEndOfCentralDirRecord(
		entriesNum, dirSize, uint64(a.dirOffset), a.comment))
	return buf.Bytes()
}

// commitCentralDirectory rewrites the central directory trailer at the
// current directory offset, then cuts the backing there. This is the
// commit point of every mutating operation.
func (a *Archive) commitCentralDirectory() error {
	encoded := a.encodeCentralDirectory()
	if err := a.backing.Seek(a.dirOffset); err != nil {
		return err
	}
	if err := a.backing.WriteAll(encoded); err != nil {
		return err
	}
	return a.backing.Truncate(a.dirOffset + int64(len(encoded)))
}
