// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package records implements parsing and serialization of the PKZIP wire
// records: local file headers, central directory headers, data descriptors
// and the end-of-central-directory family, including their Zip64 forms.
package records

import (
	"encoding/binary"
	"math"
)

// Each record type is identified by a signature beginning with the two byte
// constant marker of 0x4b50, representing the characters "PK".
const (
	LocalFileHeaderSignature             uint32 = 0x04034b50
	CentralDirectorySignature            uint32 = 0x02014b50
	DataDescriptorSignature              uint32 = 0x08074b50
	EndOfCentralDirSignature             uint32 = 0x06054b50
	Zip64EndOfCentralDirSignature        uint32 = 0x06064b50
	Zip64EndOfCentralDirLocatorSignature uint32 = 0x07064b50
)

// Fixed sizes of each record, signature included.
const (
	LocalFileHeaderLen             = 30
	CentralDirectoryLen            = 46
	EndOfCentralDirLen             = 22
	Zip64EndOfCentralDirLen        = 56
	Zip64EndOfCentralDirLocatorLen = 20
	DataDescriptorLen              = 16
	DataDescriptor64Len            = 24
)

// MaxCommentSearch bounds the backward scan for the end-of-central-directory
// record: fixed record size plus the maximum comment length.
const MaxCommentSearch = EndOfCentralDirLen + math.MaxUint16

// General purpose bit flags.
const (
	FlagDataDescriptor uint16 = 0x0008
	FlagUTF8           uint16 = 0x0800
)

// Creator host systems (high byte of the version-made-by field).
const (
	HostMSDOS = 0
	HostUnix  = 3
)

// UNIX file type bits carried in the high half of external attributes.
const (
	S_IFMT  = 0o170000
	S_IFDIR = 0o040000
	S_IFREG = 0o100000
	S_IFLNK = 0o120000
)

// MSDOSDirAttribute is the MS-DOS directory bit in external attributes.
const MSDOSDirAttribute = 0x10

// Zip64ExtraTag identifies the Zip64 extended information extra field.
const Zip64ExtraTag uint16 = 0x0001

// Overflow thresholds at which narrow fields are replaced by sentinels and
// the true values move to Zip64 records. Variables so tests can lower them.
var (
	Uint16Threshold uint64 = math.MaxUint16
	Uint32Threshold uint64 = math.MaxUint32
)

// Sentinel values stored in narrow fields whose true value lives in a
// Zip64 record.
const (
	Sentinel16 uint16 = math.MaxUint16
	Sentinel32 uint32 = math.MaxUint32
)

type LocalFileHeader struct {
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	Filename               string
	ExtraFields            []ExtraField
}

// ParseLocalFileHeader decodes the fixed portion of a local file header.
// The filename and extra field trailers follow in the stream and are read
// by the caller using the decoded lengths.
func ParseLocalFileHeader(buf []byte) (LocalFileHeader, bool) {
	if len(buf) != LocalFileHeaderLen {
		return LocalFileHeader{}, false
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != LocalFileHeaderSignature {
		return LocalFileHeader{}, false
	}
	return LocalFileHeader{
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[4:6]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[6:8]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[8:10]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[12:14]),
		CRC32:                  binary.LittleEndian.Uint32(buf[14:18]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[18:22]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[22:26]),
		FilenameLength:         binary.LittleEndian.Uint16(buf[26:28]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[28:30]),
	}, true
}

func (h LocalFileHeader) Encode() []byte {
	extra := EncodeExtraFields(h.ExtraFields)
	buf := make([]byte, LocalFileHeaderLen+len(h.Filename)+len(extra))

	binary.LittleEndian.PutUint32(buf[0:4], LocalFileHeaderSignature)
	binary.LittleEndian.PutUint16(buf[4:6], h.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[6:8], h.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[8:10], h.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[10:12], h.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[12:14], h.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[14:18], h.CRC32)
	binary.LittleEndian.PutUint32(buf[18:22], h.CompressedSize)
	binary.LittleEndian.PutUint32(buf[22:26], h.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[26:28], uint16(len(h.Filename)))
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(extra)))

	offset := LocalFileHeaderLen
	offset += copy(buf[offset:], h.Filename)
	copy(buf[offset:], extra)

	return buf
}

type CentralDirectory struct {
	VersionMadeBy          uint16
	VersionNeededToExtract uint16
	GeneralPurposeBitFlag  uint16
	CompressionMethod      uint16
	LastModFileTime        uint16
	LastModFileDate        uint16
	CRC32                  uint32
	CompressedSize         uint32
	UncompressedSize       uint32
	FilenameLength         uint16
	ExtraFieldLength       uint16
	FileCommentLength      uint16
	DiskNumberStart        uint16
	InternalFileAttributes uint16
	ExternalFileAttributes uint32
	LocalHeaderOffset      uint32
	Filename               string
	ExtraFields            []ExtraField
	Comment                string
}

// ParseCentralDirectory decodes the fixed portion of a central directory
// header. The filename, extra field and comment trailers follow in the
// stream and are read by the caller using the decoded lengths.
func ParseCentralDirectory(buf []byte) (CentralDirectory, bool) {
	if len(buf) != CentralDirectoryLen {
		return CentralDirectory{}, false
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != CentralDirectorySignature {
		return CentralDirectory{}, false
	}
	return CentralDirectory{
		VersionMadeBy:          binary.LittleEndian.Uint16(buf[4:6]),
		VersionNeededToExtract: binary.LittleEndian.Uint16(buf[6:8]),
		GeneralPurposeBitFlag:  binary.LittleEndian.Uint16(buf[8:10]),
		CompressionMethod:      binary.LittleEndian.Uint16(buf[10:12]),
		LastModFileTime:        binary.LittleEndian.Uint16(buf[12:14]),
		LastModFileDate:        binary.LittleEndian.Uint16(buf[14:16]),
		CRC32:                  binary.LittleEndian.Uint32(buf[16:20]),
		CompressedSize:         binary.LittleEndian.Uint32(buf[20:24]),
		UncompressedSize:       binary.LittleEndian.Uint32(buf[24:28]),
		FilenameLength:         binary.LittleEndian.Uint16(buf[28:30]),
		ExtraFieldLength:       binary.LittleEndian.Uint16(buf[30:32]),
		FileCommentLength:      binary.LittleEndian.Uint16(buf[32:34]),
		DiskNumberStart:        binary.LittleEndian.Uint16(buf[34:36]),
		InternalFileAttributes: binary.LittleEndian.Uint16(buf[36:38]),
		ExternalFileAttributes: binary.LittleEndian.Uint32(buf[38:42]),
		LocalHeaderOffset:      binary.LittleEndian.Uint32(buf[42:46]),
	}, true
}

func (d CentralDirectory) Encode() []byte {
	extra := EncodeExtraFields(d.ExtraFields)
	buf := make([]byte, CentralDirectoryLen+len(d.Filename)+len(extra)+len(d.Comment))

	binary.LittleEndian.PutUint32(buf[0:4], CentralDirectorySignature)
	binary.LittleEndian.PutUint16(buf[4:6], d.VersionMadeBy)
	binary.LittleEndian.PutUint16(buf[6:8], d.VersionNeededToExtract)
	binary.LittleEndian.PutUint16(buf[8:10], d.GeneralPurposeBitFlag)
	binary.LittleEndian.PutUint16(buf[10:12], d.CompressionMethod)
	binary.LittleEndian.PutUint16(buf[12:14], d.LastModFileTime)
	binary.LittleEndian.PutUint16(buf[14:16], d.LastModFileDate)
	binary.LittleEndian.PutUint32(buf[16:20], d.CRC32)
	binary.LittleEndian.PutUint32(buf[20:24], d.CompressedSize)
	binary.LittleEndian.PutUint32(buf[24:28], d.UncompressedSize)
	binary.LittleEndian.PutUint16(buf[28:30], uint16(len(d.Filename)))
	binary.LittleEndian.PutUint16(buf[30:32], uint16(len(extra)))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(len(d.Comment)))
	binary.LittleEndian.PutUint16(buf[34:36], d.DiskNumberStart)
	binary.LittleEndian.PutUint16(buf[36:38], d.InternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[38:42], d.ExternalFileAttributes)
	binary.LittleEndian.PutUint32(buf[42:46], d.LocalHeaderOffset)

	offset := CentralDirectoryLen
	offset += copy(buf[offset:], d.Filename)
	offset += copy(buf[offset:], extra)
	copy(buf[offset:], d.Comment)

	return buf
}

type DataDescriptor struct {
	CRC32            uint32
	CompressedSize   uint64
	UncompressedSize uint64
}

// ParseDataDescriptor decodes a data descriptor. The signature is optional
// on the wire; its presence is inferred from the slice length. When zip64
// is set the size fields are read as 64-bit values.
func ParseDataDescriptor(buf []byte, zip64 bool) (DataDescriptor, bool) {
	fixed := 12
	if zip64 {
		fixed = 20
	}
	switch len(buf) {
	case fixed:
	case fixed + 4:
		if binary.LittleEndian.Uint32(buf[0:4]) != DataDescriptorSignature {
			return DataDescriptor{}, false
		}
		buf = buf[4:]
	default:
		return DataDescriptor{}, false
	}

	dd := DataDescriptor{CRC32: binary.LittleEndian.Uint32(buf[0:4])}
	if zip64 {
		dd.CompressedSize = binary.LittleEndian.Uint64(buf[4:12])
		dd.UncompressedSize = binary.LittleEndian.Uint64(buf[12:20])
	} else {
		dd.CompressedSize = uint64(binary.LittleEndian.Uint32(buf[4:8]))
		dd.UncompressedSize = uint64(binary.LittleEndian.Uint32(buf[8:12]))
	}
	return dd, true
}

// Encode serializes the descriptor with its signature. When zip64 is set
// the size fields are written as 64-bit values.
func (dd DataDescriptor) Encode(zip64 bool) []byte {
	size := DataDescriptorLen
	if zip64 {
		size = DataDescriptor64Len
	}
	buf := make([]byte, size)

	binary.LittleEndian.PutUint32(buf[0:4], DataDescriptorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], dd.CRC32)
	if zip64 {
		binary.LittleEndian.PutUint64(buf[8:16], dd.CompressedSize)
		binary.LittleEndian.PutUint64(buf[16:24], dd.UncompressedSize)
	} else {
		binary.LittleEndian.PutUint32(buf[8:12], uint32(dd.CompressedSize))
		binary.LittleEndian.PutUint32(buf[12:16], uint32(dd.UncompressedSize))
	}
	return buf
}

type EndOfCentralDirectory struct {
	ThisDiskNum                     uint16
	DiskNumWithTheStartOfCentralDir uint16
	TotalNumberOfEntriesOnThisDisk  uint16
	TotalNumberOfEntries            uint16
	CentralDirSize                  uint32
	CentralDirOffset                uint32
	CommentLength                   uint16
	Comment                         string
}

// ParseEndOfCentralDir decodes the fixed portion of the end-of-central-
// directory record. The archive comment follows in the stream and is read
// by the caller using the decoded length.
func ParseEndOfCentralDir(buf []byte) (EndOfCentralDirectory, bool) {
	if len(buf) != EndOfCentralDirLen {
		return EndOfCentralDirectory{}, false
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != EndOfCentralDirSignature {
		return EndOfCentralDirectory{}, false
	}
	return EndOfCentralDirectory{
		ThisDiskNum:                     binary.LittleEndian.Uint16(buf[4:6]),
		DiskNumWithTheStartOfCentralDir: binary.LittleEndian.Uint16(buf[6:8]),
		TotalNumberOfEntriesOnThisDisk:  binary.LittleEndian.Uint16(buf[8:10]),
		TotalNumberOfEntries:            binary.LittleEndian.Uint16(buf[10:12]),
		CentralDirSize:                  binary.LittleEndian.Uint32(buf[12:16]),
		CentralDirOffset:                binary.LittleEndian.Uint32(buf[16:20]),
		CommentLength:                   binary.LittleEndian.Uint16(buf[20:22]),
	}, true
}

// EncodeEndOfCentralDirRecord builds the end record, clamping overflowing
// totals to their sentinels. The true values then live in the Zip64 end
// record that precedes it.
func EncodeEndOfCentralDirRecord(entriesNum uint64, centralDirSize uint64, centralDirOffset uint64, comment string) []byte {
	buf := make([]byte, EndOfCentralDirLen+len(comment))

	entries := Sentinel16
	if entriesNum < Uint16Threshold {
		entries = uint16(entriesNum)
	}
	size := Sentinel32
	if centralDirSize < Uint32Threshold {
		size = uint32(centralDirSize)
	}
	offset := Sentinel32
	if centralDirOffset < Uint32Threshold {
		offset = uint32(centralDirOffset)
	}

	binary.LittleEndian.PutUint32(buf[0:4], EndOfCentralDirSignature)
	binary.LittleEndian.PutUint16(buf[4:6], 0)
	binary.LittleEndian.PutUint16(buf[6:8], 0)
	binary.LittleEndian.PutUint16(buf[8:10], entries)
	binary.LittleEndian.PutUint16(buf[10:12], entries)
	binary.LittleEndian.PutUint32(buf[12:16], size)
	binary.LittleEndian.PutUint32(buf[16:20], offset)
	binary.LittleEndian.PutUint16(buf[20:22], uint16(len(comment)))

	copy(buf[EndOfCentralDirLen:], comment)

	return buf
}

// NeedsZip64 reports whether any of the archive totals require a Zip64 end
// record alongside the classic one.
func (e EndOfCentralDirectory) NeedsZip64() bool {
	return e.TotalNumberOfEntries == Sentinel16 ||
		e.CentralDirSize == Sentinel32 ||
		e.CentralDirOffset == Sentinel32
}

type Zip64EndOfCentralDirectory struct {
	Size                            uint64
	VersionMadeBy                   uint16
	VersionNeededToExtract          uint16
	ThisDiskNum                     uint32
	DiskNumWithTheStartOfCentralDir uint32
	TotalNumberOfEntriesOnThisDisk  uint64
	TotalNumberOfEntries            uint64
	CentralDirSize                  uint64
	CentralDirOffset                uint64
}

// ParseZip64EndOfCentralDir decodes the fixed portion of the Zip64 end
// record. The size field may exceed 44 for writers that append extensible
// data; the extension is skipped by the caller.
func ParseZip64EndOfCentralDir(buf []byte) (Zip64EndOfCentralDirectory, bool) {
	if len(buf) != Zip64EndOfCentralDirLen {
		return Zip64EndOfCentralDirectory{}, false
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != Zip64EndOfCentralDirSignature {
		return Zip64EndOfCentralDirectory{}, false
	}
	rec := Zip64EndOfCentralDirectory{
		Size:                            binary.LittleEndian.Uint64(buf[4:12]),
		VersionMadeBy:                   binary.LittleEndian.Uint16(buf[12:14]),
		VersionNeededToExtract:          binary.LittleEndian.Uint16(buf[14:16]),
		ThisDiskNum:                     binary.LittleEndian.Uint32(buf[16:20]),
		DiskNumWithTheStartOfCentralDir: binary.LittleEndian.Uint32(buf[20:24]),
		TotalNumberOfEntriesOnThisDisk:  binary.LittleEndian.Uint64(buf[24:32]),
		TotalNumberOfEntries:            binary.LittleEndian.Uint64(buf[32:40]),
		CentralDirSize:                  binary.LittleEndian.Uint64(buf[40:48]),
		CentralDirOffset:                binary.LittleEndian.Uint64(buf[48:56]),
	}
	if rec.Size < 44 {
		return Zip64EndOfCentralDirectory{}, false
	}
	return rec, true
}

func EncodeZip64EndOfCentralDirRecord(entriesNum uint64, centralDirSize uint64, centralDirOffset uint64) []byte {
	buf := make([]byte, Zip64EndOfCentralDirLen)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirSignature)
	binary.LittleEndian.PutUint64(buf[4:12], 44)
	binary.LittleEndian.PutUint16(buf[12:14], 45)
	binary.LittleEndian.PutUint16(buf[14:16], 45)
	binary.LittleEndian.PutUint32(buf[16:20], 0)
	binary.LittleEndian.PutUint32(buf[20:24], 0)
	binary.LittleEndian.PutUint64(buf[24:32], entriesNum)
	binary.LittleEndian.PutUint64(buf[32:40], entriesNum)
	binary.LittleEndian.PutUint64(buf[40:48], centralDirSize)
	binary.LittleEndian.PutUint64(buf[48:56], centralDirOffset)

	return buf
}

type Zip64EndOfCentralDirectoryLocator struct {
	EndOfCentralDirStartDiskNum uint32
	Zip64EndOfCentralDirOffset  uint64
	TotalNumberOfDisks          uint32
}

func ParseZip64EndOfCentralDirLocator(buf []byte) (Zip64EndOfCentralDirectoryLocator, bool) {
	if len(buf) != Zip64EndOfCentralDirLocatorLen {
		return Zip64EndOfCentralDirectoryLocator{}, false
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != Zip64EndOfCentralDirLocatorSignature {
		return Zip64EndOfCentralDirectoryLocator{}, false
	}
	return Zip64EndOfCentralDirectoryLocator{
		EndOfCentralDirStartDiskNum: binary.LittleEndian.Uint32(buf[4:8]),
		Zip64EndOfCentralDirOffset:  binary.LittleEndian.Uint64(buf[8:16]),
		TotalNumberOfDisks:          binary.LittleEndian.Uint32(buf[16:20]),
	}, true
}

func EncodeZip64EndOfCentralDirLocator(zip64EndOffset uint64) []byte {
	buf := make([]byte, Zip64EndOfCentralDirLocatorLen)

	binary.LittleEndian.PutUint32(buf[0:4], Zip64EndOfCentralDirLocatorSignature)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	binary.LittleEndian.PutUint64(buf[8:16], zip64EndOffset)
	binary.LittleEndian.PutUint32(buf[16:20], 1)

	return buf
}
