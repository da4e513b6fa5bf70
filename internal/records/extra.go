// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package records

import "encoding/binary"

// ExtraField is a single tagged block of an extra field area. Blocks are
// kept in wire order and round-trip verbatim; only the Zip64 block is
// interpreted.
type ExtraField struct {
	Tag  uint16
	Data []byte
}

// ParseExtraFields splits a raw extra field area into its tagged blocks,
// preserving order. A truncated trailing block is dropped.
func ParseExtraFields(raw []byte) []ExtraField {
	var fields []ExtraField
	for offset := 0; offset+4 <= len(raw); {
		tag := binary.LittleEndian.Uint16(raw[offset : offset+2])
		size := int(binary.LittleEndian.Uint16(raw[offset+2 : offset+4]))
		offset += 4
		if offset+size > len(raw) {
			break
		}
		fields = append(fields, ExtraField{Tag: tag, Data: raw[offset : offset+size]})
		offset += size
	}
	return fields
}

// EncodeExtraFields serializes blocks back to the wire in their stored order.
func EncodeExtraFields(fields []ExtraField) []byte {
	if len(fields) == 0 {
		return nil
	}
	size := 0
	for _, f := range fields {
		size += 4 + len(f.Data)
	}
	buf := make([]byte, size)
	offset := 0
	for _, f := range fields {
		binary.LittleEndian.PutUint16(buf[offset:offset+2], f.Tag)
		binary.LittleEndian.PutUint16(buf[offset+2:offset+4], uint16(len(f.Data)))
		offset += 4
		offset += copy(buf[offset:], f.Data)
	}
	return buf
}

// FindExtraField returns the data of the first block with the given tag.
func FindExtraField(fields []ExtraField, tag uint16) ([]byte, bool) {
	for _, f := range fields {
		if f.Tag == tag {
			return f.Data, true
		}
	}
	return nil, false
}

// ReplaceExtraField swaps the data of the block with the given tag in place,
// or appends a new block when none exists. A nil data removes the block.
func ReplaceExtraField(fields []ExtraField, tag uint16, data []byte) []ExtraField {
	if data == nil {
		out := fields[:0]
		for _, f := range fields {
			if f.Tag != tag {
				out = append(out, f)
			}
		}
		return out
	}
	for i, f := range fields {
		if f.Tag == tag {
			fields[i].Data = data
			return fields
		}
	}
	return append(fields, ExtraField{Tag: tag, Data: data})
}

// Zip64Extra holds the wide values shadowing sentinel-bearing narrow fields
// of a central directory or local header.
type Zip64Extra struct {
	UncompressedSize  uint64
	CompressedSize    uint64
	LocalHeaderOffset uint64
	DiskNumberStart   uint32

	HasUncompressedSize  bool
	HasCompressedSize    bool
	HasLocalHeaderOffset bool
	HasDiskNumberStart   bool
}

// ParseZip64Extra decodes a Zip64 extended information block. The block is
// positional: it carries values only for the narrow fields that hold
// sentinels, in the fixed order uncompressed size, compressed size, local
// header offset, disk number. The need flags tell the parser which fields
// to expect. Returns false when the block is too short for the demanded
// fields.
func ParseZip64Extra(data []byte, needUncompressed, needCompressed, needOffset, needDisk bool) (Zip64Extra, bool) {
	var z Zip64Extra
	offset := 0
	if needUncompressed {
		if offset+8 > len(data) {
			return Zip64Extra{}, false
		}
		z.UncompressedSize = binary.LittleEndian.Uint64(data[offset : offset+8])
		z.HasUncompressedSize = true
		offset += 8
	}
	if needCompressed {
		if offset+8 > len(data) {
			return Zip64Extra{}, false
		}
		z.CompressedSize = binary.LittleEndian.Uint64(data[offset : offset+8])
		z.HasCompressedSize = true
		offset += 8
	}
	if needOffset {
		if offset+8 > len(data) {
			return Zip64Extra{}, false
		}
		z.LocalHeaderOffset = binary.LittleEndian.Uint64(data[offset : offset+8])
		z.HasLocalHeaderOffset = true
		offset += 8
	}
	if needDisk {
		if offset+4 > len(data) {
			return Zip64Extra{}, false
		}
		z.DiskNumberStart = binary.LittleEndian.Uint32(data[offset : offset+4])
		z.HasDiskNumberStart = true
	}
	return z, true
}

// Encode serializes the block with only the flagged fields, in wire order.
// Returns nil when no field is flagged.
func (z Zip64Extra) Encode() []byte {
	size := 0
	if z.HasUncompressedSize {
		size += 8
	}
	if z.HasCompressedSize {
		size += 8
	}
	if z.HasLocalHeaderOffset {
		size += 8
	}
	if z.HasDiskNumberStart {
		size += 4
	}
	if size == 0 {
		return nil
	}
	buf := make([]byte, size)
	offset := 0
	if z.HasUncompressedSize {
		binary.LittleEndian.PutUint64(buf[offset:], z.UncompressedSize)
		offset += 8
	}
	if z.HasCompressedSize {
		binary.LittleEndian.PutUint64(buf[offset:], z.CompressedSize)
		offset += 8
	}
	if z.HasLocalHeaderOffset {
		binary.LittleEndian.PutUint64(buf[offset:], z.LocalHeaderOffset)
		offset += 8
	}
	if z.HasDiskNumberStart {
		binary.LittleEndian.PutUint32(buf[offset:], z.DiskNumberStart)
	}
	return buf
}
