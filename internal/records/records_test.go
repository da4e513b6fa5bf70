// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package records

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFileHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	in := LocalFileHeader{
		VersionNeededToExtract: 20,
		GeneralPurposeBitFlag:  FlagUTF8,
		CompressionMethod:      8,
		LastModFileTime:        0x7d1c,
		LastModFileDate:        0x5a62,
		CRC32:                  0x3610a686,
		CompressedSize:         7,
		UncompressedSize:       5,
		Filename:               "hello.txt",
		ExtraFields:            []ExtraField{{Tag: 0x000a, Data: []byte{1, 2, 3, 4}}},
	}
	encoded := in.Encode()
	require.Len(t, encoded, LocalFileHeaderLen+len(in.Filename)+4+4)

	out, ok := ParseLocalFileHeader(encoded[:LocalFileHeaderLen])
	require.True(t, ok)
	assert.Equal(t, in.VersionNeededToExtract, out.VersionNeededToExtract)
	assert.Equal(t, in.GeneralPurposeBitFlag, out.GeneralPurposeBitFlag)
	assert.Equal(t, in.CRC32, out.CRC32)
	assert.Equal(t, in.CompressedSize, out.CompressedSize)
	assert.Equal(t, in.UncompressedSize, out.UncompressedSize)
	assert.Equal(t, uint16(len(in.Filename)), out.FilenameLength)
	assert.Equal(t, uint16(8), out.ExtraFieldLength)
}

func TestParseLocalFileHeaderRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, ok := ParseLocalFileHeader(make([]byte, LocalFileHeaderLen-1))
	assert.False(t, ok)

	buf := make([]byte, LocalFileHeaderLen)
	binary.LittleEndian.PutUint32(buf, CentralDirectorySignature)
	_, ok = ParseLocalFileHeader(buf)
	assert.False(t, ok)
}

func TestCentralDirectoryRoundTrip(t *testing.T) {
	t.Parallel()

	in := CentralDirectory{
		VersionMadeBy:          HostUnix<<8 | 20,
		VersionNeededToExtract: 20,
		CompressionMethod:      0,
		CRC32:                  0xdeadbeef,
		CompressedSize:         11,
		UncompressedSize:       11,
		ExternalFileAttributes: (S_IFREG | 0644) << 16,
		LocalHeaderOffset:      128,
		Filename:               "dir/file.bin",
		ExtraFields:            []ExtraField{{Tag: 0x5455, Data: []byte{3, 0, 0, 0, 0}}},
		Comment:                "checked",
	}
	encoded := in.Encode()

	out, ok := ParseCentralDirectory(encoded[:CentralDirectoryLen])
	require.True(t, ok)
	assert.Equal(t, in.VersionMadeBy, out.VersionMadeBy)
	assert.Equal(t, in.CRC32, out.CRC32)
	assert.Equal(t, in.ExternalFileAttributes, out.ExternalFileAttributes)
	assert.Equal(t, in.LocalHeaderOffset, out.LocalHeaderOffset)
	assert.Equal(t, uint16(len(in.Filename)), out.FilenameLength)
	assert.Equal(t, uint16(len(in.Comment)), out.FileCommentLength)

	trailer := encoded[CentralDirectoryLen:]
	assert.Equal(t, in.Filename, string(trailer[:out.FilenameLength]))
	assert.Equal(t, in.Comment, string(trailer[len(trailer)-int(out.FileCommentLength):]))
}

func TestExtraFieldsPreserveOrderAndContent(t *testing.T) {
	t.Parallel()

	fields := []ExtraField{
		{Tag: 0x000a, Data: []byte{9, 9}},
		{Tag: Zip64ExtraTag, Data: make([]byte, 16)},
		{Tag: 0x7875, Data: []byte{1}},
	}
	raw := EncodeExtraFields(fields)
	parsed := ParseExtraFields(raw)

	require.Len(t, parsed, 3)
	for i := range fields {
		assert.Equal(t, fields[i].Tag, parsed[i].Tag)
		assert.Equal(t, fields[i].Data, parsed[i].Data)
	}
	assert.Equal(t, raw, EncodeExtraFields(parsed))
}

func TestParseExtraFieldsDropsTruncatedBlock(t *testing.T) {
	t.Parallel()

	raw := EncodeExtraFields([]ExtraField{{Tag: 0x000a, Data: []byte{1, 2, 3}}})
	parsed := ParseExtraFields(raw[:len(raw)-1])
	assert.Empty(t, parsed)
}

func TestReplaceExtraField(t *testing.T) {
	t.Parallel()

	fields := []ExtraField{{Tag: 0x000a, Data: []byte{1}}}

	fields = ReplaceExtraField(fields, Zip64ExtraTag, []byte{2})
	require.Len(t, fields, 2)
	assert.Equal(t, Zip64ExtraTag, fields[1].Tag)

	fields = ReplaceExtraField(fields, Zip64ExtraTag, []byte{3, 3})
	require.Len(t, fields, 2)
	assert.Equal(t, []byte{3, 3}, fields[1].Data)

	fields = ReplaceExtraField(fields, Zip64ExtraTag, nil)
	require.Len(t, fields, 1)
	assert.Equal(t, uint16(0x000a), fields[0].Tag)
}

func TestZip64ExtraPositional(t *testing.T) {
	t.Parallel()

	in := Zip64Extra{
		UncompressedSize:     1 << 33,
		LocalHeaderOffset:    1 << 34,
		HasUncompressedSize:  true,
		HasLocalHeaderOffset: true,
	}
	data := in.Encode()
	require.Len(t, data, 16)

	out, ok := ParseZip64Extra(data, true, false, true, false)
	require.True(t, ok)
	assert.Equal(t, in.UncompressedSize, out.UncompressedSize)
	assert.Equal(t, in.LocalHeaderOffset, out.LocalHeaderOffset)
	assert.False(t, out.HasCompressedSize)

	_, ok = ParseZip64Extra(data, true, true, true, false)
	assert.False(t, ok, "demanding more fields than stored must fail")
}

func TestZip64ExtraEncodeEmpty(t *testing.T) {
	t.Parallel()
	assert.Nil(t, Zip64Extra{}.Encode())
}

func TestDataDescriptorForms(t *testing.T) {
	t.Parallel()

	dd := DataDescriptor{CRC32: 0x1e8b0731, CompressedSize: 42, UncompressedSize: 4096}

	tests := []struct {
		name  string
		zip64 bool
		strip bool
	}{
		{"classic with signature", false, false},
		{"classic without signature", false, true},
		{"zip64 with signature", true, false},
		{"zip64 without signature", true, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := dd.Encode(tc.zip64)
			if tc.strip {
				buf = buf[4:]
			}
			out, ok := ParseDataDescriptor(buf, tc.zip64)
			require.True(t, ok)
			assert.Equal(t, dd.CRC32, out.CRC32)
			assert.Equal(t, dd.CompressedSize, out.CompressedSize)
			assert.Equal(t, dd.UncompressedSize, out.UncompressedSize)
		})
	}

	bad := dd.Encode(false)
	binary.LittleEndian.PutUint32(bad, 0x12345678)
	_, ok := ParseDataDescriptor(bad, false)
	assert.False(t, ok)
}

func TestEndOfCentralDirRoundTrip(t *testing.T) {
	t.Parallel()

	encoded := EncodeEndOfCentralDirRecord(3, 150, 1000, "archive comment")
	out, ok := ParseEndOfCentralDir(encoded[:EndOfCentralDirLen])
	require.True(t, ok)
	assert.Equal(t, uint16(3), out.TotalNumberOfEntries)
	assert.Equal(t, uint32(150), out.CentralDirSize)
	assert.Equal(t, uint32(1000), out.CentralDirOffset)
	assert.Equal(t, uint16(len("archive comment")), out.CommentLength)
	assert.False(t, out.NeedsZip64())
}

func TestEndOfCentralDirSentinels(t *testing.T) {
	oldU16, oldU32 := Uint16Threshold, Uint32Threshold
	Uint16Threshold, Uint32Threshold = 64, 4096
	defer func() { Uint16Threshold, Uint32Threshold = oldU16, oldU32 }()

	encoded := EncodeEndOfCentralDirRecord(100, 200, 8000, "")
	out, ok := ParseEndOfCentralDir(encoded)
	require.True(t, ok)
	assert.Equal(t, Sentinel16, out.TotalNumberOfEntries)
	assert.Equal(t, uint32(200), out.CentralDirSize)
	assert.Equal(t, Sentinel32, out.CentralDirOffset)
	assert.True(t, out.NeedsZip64())
}

func TestZip64EndRecordsRoundTrip(t *testing.T) {
	t.Parallel()

	end := EncodeZip64EndOfCentralDirRecord(70000, 1<<33, 1<<34)
	out, ok := ParseZip64EndOfCentralDir(end)
	require.True(t, ok)
	assert.Equal(t, uint64(70000), out.TotalNumberOfEntries)
	assert.Equal(t, uint64(1<<33), out.CentralDirSize)
	assert.Equal(t, uint64(1<<34), out.CentralDirOffset)
	assert.Equal(t, uint16(45), out.VersionNeededToExtract)

	locator := EncodeZip64EndOfCentralDirLocator(12345)
	loc, ok := ParseZip64EndOfCentralDirLocator(locator)
	require.True(t, ok)
	assert.Equal(t, uint64(12345), loc.Zip64EndOfCentralDirOffset)
	assert.Equal(t, uint32(1), loc.TotalNumberOfDisks)
}
