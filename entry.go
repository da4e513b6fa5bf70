// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"io/fs"
	"strings"
	"time"

	"github.com/kirvachev/zipkit/internal/records"
)

// EntryKind classifies what an archive entry represents.
type EntryKind uint8

const (
	KindFile EntryKind = iota
	KindDirectory
	KindSymlink
)

// TextDecoder converts stored path and comment bytes into a display string
// when an entry does not declare UTF-8 encoding. The default interprets the
// bytes as UTF-8 anyway.
type TextDecoder func([]byte) string

func defaultTextDecoder(b []byte) string { return string(b) }

// Entry is an immutable snapshot of one archive member, combining the
// central directory header with its paired local header. Entries become
// stale after any mutating archive operation; re-fetch them instead of
// holding on across edits.
type Entry struct {
	path string // stored path bytes, verbatim
	name string // decoded display path

	kind   EntryKind
	mode   fs.FileMode
	method CompressionMethod

	crc32            uint32
	compressedSize   uint64
	uncompressedSize uint64

	modTime       time.Time
	comment       string
	gpFlags       uint16
	versionMadeBy uint16
	extraFields   []records.ExtraField

	internalAttributes uint16
	externalAttributes uint32

	localHeaderOffset int64
	dataOffset        int64 // first payload byte, past the local header trailers
	localSize         int64 // local header, trailers, payload and any descriptor
}

// Path returns the entry path exactly as stored in the archive.
func (e *Entry) Path() string { return e.path }

// Name returns the decoded display path. It equals Path for UTF-8 entries.
func (e *Entry) Name() string { return e.name }

func (e *Entry) Kind() EntryKind { return e.kind }

func (e *Entry) IsDir() bool { return e.kind == KindDirectory }

// Mode returns the permission and type bits recorded for the entry.
func (e *Entry) Mode() fs.FileMode { return e.mode }

func (e *Entry) Method() CompressionMethod { return e.method }

// CRC32 returns the checksum of the uncompressed payload.
func (e *Entry) CRC32() uint32 { return e.crc32 }

func (e *Entry) CompressedSize() uint64 { return e.compressedSize }

func (e *Entry) UncompressedSize() uint64 { return e.uncompressedSize }

func (e *Entry) ModTime() time.Time { return e.modTime }

func (e *Entry) Comment() string { return e.comment }

// LocalHeaderOffset returns the byte offset of the entry's local header.
func (e *Entry) LocalHeaderOffset() int64 { return e.localHeaderOffset }

// LocalSize returns the total byte span of the entry in the payload region:
// local header, path and extra trailers, payload, and data descriptor when
// one is present.
func (e *Entry) LocalSize() int64 { return e.localSize }

// newEntry builds the snapshot from a decoded central directory header,
// resolving Zip64 shadow values and creator-specific attribute bits.
func newEntry(cd records.CentralDirectory, decoder TextDecoder) (*Entry, error) {
	e := &Entry{
		path:               cd.Filename,
		method:             CompressionMethod(cd.CompressionMethod),
		crc32:              cd.CRC32,
		compressedSize:     uint64(cd.CompressedSize),
		uncompressedSize:   uint64(cd.UncompressedSize),
		modTime:            msDosToTime(cd.LastModFileDate, cd.LastModFileTime),
		comment:            cd.Comment,
		gpFlags:            cd.GeneralPurposeBitFlag,
		versionMadeBy:      cd.VersionMadeBy,
		extraFields:        cd.ExtraFields,
		internalAttributes: cd.InternalFileAttributes,
		externalAttributes: cd.ExternalFileAttributes,
		localHeaderOffset:  int64(cd.LocalHeaderOffset),
	}

	needUncompressed := cd.UncompressedSize == records.Sentinel32
	needCompressed := cd.CompressedSize == records.Sentinel32
	needOffset := cd.LocalHeaderOffset == records.Sentinel32
	needDisk := cd.DiskNumberStart == records.Sentinel16

	if needUncompressed || needCompressed || needOffset || needDisk {
		data, found := records.FindExtraField(cd.ExtraFields, records.Zip64ExtraTag)
		if !found {
			return nil, ErrUnreadableArchive
		}
		z, ok := records.ParseZip64Extra(data, needUncompressed, needCompressed, needOffset, needDisk)
		if !ok {
			return nil, ErrUnreadableArchive
		}
		if z.HasUncompressedSize {
			e.uncompressedSize = z.UncompressedSize
		}
		if z.HasCompressedSize {
			e.compressedSize = z.CompressedSize
		}
		if z.HasLocalHeaderOffset {
			e.localHeaderOffset = int64(z.LocalHeaderOffset)
		}
	}

	if cd.GeneralPurposeBitFlag&records.FlagUTF8 != 0 {
		e.name = cd.Filename
	} else {
		e.name = decoder([]byte(cd.Filename))
	}

	e.kind, e.mode = classifyEntry(cd)

	return e, nil
}

// classifyEntry derives the entry kind and file mode from the external
// attributes, honoring UNIX type bits when the creator recorded them and
// falling back to MS-DOS conventions otherwise.
func classifyEntry(cd records.CentralDirectory) (EntryKind, fs.FileMode) {
	hostSystem := cd.VersionMadeBy >> 8

	if hostSystem == records.HostUnix {
		unixMode := cd.ExternalFileAttributes >> 16
		mode := fs.FileMode(unixMode & 0777)
		switch unixMode & records.S_IFMT {
		case records.S_IFDIR:
			return KindDirectory, mode | fs.ModeDir
		case records.S_IFLNK:
			return KindSymlink, mode | fs.ModeSymlink
		case records.S_IFREG:
			return KindFile, mode
		}
		// Type bits absent; fall through to the shape of the path.
	}

	if strings.HasSuffix(cd.Filename, "/") || cd.ExternalFileAttributes&records.MSDOSDirAttribute != 0 {
		return KindDirectory, fs.ModeDir | 0755
	}
	return KindFile, 0644
}

// hasDataDescriptor reports whether the entry's sizes were streamed and a
// descriptor trails the payload.
func (e *Entry) hasDataDescriptor() bool {
	return e.gpFlags&records.FlagDataDescriptor != 0
}

// usesZip64 reports whether the entry's central directory header carries a
// Zip64 block.
func (e *Entry) usesZip64() bool {
	_, found := records.FindExtraField(e.extraFields, records.Zip64ExtraTag)
	return found
}
