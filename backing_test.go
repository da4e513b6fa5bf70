// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackingReadWrite(t *testing.T) {
	t.Parallel()

	b := NewMemoryBacking(nil, FlagRead|FlagWrite)
	require.NoError(t, b.WriteAll([]byte("hello world")))

	require.NoError(t, b.Seek(6))
	got, err := b.Read(5)
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))

	require.NoError(t, b.Seek(0))
	rest, err := b.ReadToEnd()
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(rest))

	_, err = b.Read(1)
	assert.ErrorIs(t, err, ErrUnreadableFile)
}

func TestMemoryBackingSeekClamps(t *testing.T) {
	t.Parallel()

	b := NewMemoryBacking([]byte("abc"), FlagRead|FlagWrite)

	require.NoError(t, b.Seek(-5))
	offset, err := b.Offset()
	require.NoError(t, err)
	assert.Equal(t, int64(0), offset)

	require.NoError(t, b.Seek(100))
	offset, err = b.Offset()
	require.NoError(t, err)
	assert.Equal(t, int64(3), offset)
}

func TestMemoryBackingOverwriteAndGrow(t *testing.T) {
	t.Parallel()

	b := NewMemoryBacking([]byte("aaaa"), FlagRead|FlagWrite)
	require.NoError(t, b.Seek(2))
	require.NoError(t, b.WriteAll([]byte("bbbb")))
	assert.Equal(t, "aabbbb", string(b.Bytes()))
}

func TestMemoryBackingTruncate(t *testing.T) {
	t.Parallel()

	b := NewMemoryBacking([]byte("abcdef"), FlagRead|FlagWrite)

	require.NoError(t, b.Truncate(3))
	assert.Equal(t, "abc", string(b.Bytes()))

	require.NoError(t, b.Truncate(5))
	assert.Equal(t, []byte{'a', 'b', 'c', 0, 0}, b.Bytes())

	offset, err := b.SeekToEnd()
	require.NoError(t, err)
	assert.Equal(t, int64(5), offset)
}

func TestMemoryBackingAppendFlag(t *testing.T) {
	t.Parallel()

	b := NewMemoryBacking([]byte("abc"), FlagRead|FlagWrite|FlagAppend)
	require.NoError(t, b.Seek(0))
	require.NoError(t, b.WriteAll([]byte("def")))
	assert.Equal(t, "abcdef", string(b.Bytes()))
}

func TestMemoryBackingCapabilities(t *testing.T) {
	t.Parallel()

	readOnly := NewMemoryBacking([]byte("data"), FlagRead)
	assert.ErrorIs(t, readOnly.WriteAll([]byte("x")), ErrUnwritableFile)
	assert.ErrorIs(t, readOnly.Truncate(0), ErrUnwritableFile)

	writeOnly := NewMemoryBacking(nil, FlagWrite)
	require.NoError(t, writeOnly.WriteAll([]byte("x")))
	_, err := writeOnly.Read(1)
	assert.ErrorIs(t, err, ErrUnreadableFile)
}

func TestMemoryBackingReadAt(t *testing.T) {
	t.Parallel()

	b := NewMemoryBacking([]byte("abcdef"), FlagRead)
	require.NoError(t, b.Seek(5))

	buf := make([]byte, 3)
	n, err := b.ReadAt(buf, 1)
	require.NoError(t, err)
	assert.Equal(t, "bcd", string(buf[:n]))

	// The cursor must be untouched by ReadAt.
	offset, err := b.Offset()
	require.NoError(t, err)
	assert.Equal(t, int64(5), offset)
}

func TestFileBackingLifecycle(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.bin")

	b, err := OpenFileBacking(path, FlagRead|FlagWrite|FlagCreate)
	require.NoError(t, err)

	require.NoError(t, b.WriteAll([]byte("hello world")))
	require.NoError(t, b.Sync())

	require.NoError(t, b.Seek(6))
	got, err := b.Read(5)
	require.NoError(t, err)
	assert.Equal(t, "world", string(got))

	require.NoError(t, b.Truncate(5))
	end, err := b.SeekToEnd()
	require.NoError(t, err)
	assert.Equal(t, int64(5), end)

	require.NoError(t, b.Close())

	reopened, err := OpenFileBacking(path, FlagRead)
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.ReadToEnd()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(all))

	assert.ErrorIs(t, reopened.WriteAll([]byte("x")), ErrUnwritableFile)
}

func TestFileBackingMissingFile(t *testing.T) {
	t.Parallel()

	_, err := OpenFileBacking(filepath.Join(t.TempDir(), "absent.zip"), FlagRead)
	assert.ErrorIs(t, err, ErrUnreadableFile)
}
