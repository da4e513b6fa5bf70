// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFSArchive(t *testing.T) *Archive {
	t.Helper()

	ctx := context.Background()
	a := newMemArchive(t)
	require.NoError(t, a.AddBytes(ctx, "readme.md", []byte("top level")))
	require.NoError(t, a.AddDirectory(ctx, "docs"))
	require.NoError(t, a.AddBytes(ctx, "docs/guide.txt", []byte("guide body")))
	require.NoError(t, a.AddBytes(ctx, "docs/drafts/wip.txt", []byte("work in progress")))
	return a
}

func TestFSConformance(t *testing.T) {
	t.Parallel()

	a := newFSArchive(t)
	require.NoError(t, fstest.TestFS(a.FS(),
		"readme.md", "docs/guide.txt", "docs/drafts/wip.txt"))
}

func TestFSReadFile(t *testing.T) {
	t.Parallel()

	fsys := newFSArchive(t).FS()

	got, err := fs.ReadFile(fsys, "docs/guide.txt")
	require.NoError(t, err)
	assert.Equal(t, "guide body", string(got))

	_, err = fs.ReadFile(fsys, "docs/missing.txt")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	_, err = fs.ReadFile(fsys, "/absolute")
	assert.ErrorIs(t, err, fs.ErrInvalid)
}

func TestFSStat(t *testing.T) {
	t.Parallel()

	fsys := newFSArchive(t).FS().(fs.StatFS)

	info, err := fsys.Stat("readme.md")
	require.NoError(t, err)
	assert.Equal(t, "readme.md", info.Name())
	assert.Equal(t, int64(len("top level")), info.Size())
	assert.False(t, info.IsDir())

	// Stored directory, with its trailing slash hidden.
	info, err = fsys.Stat("docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", info.Name())
	assert.True(t, info.IsDir())

	// Implicit directory, present only as a path prefix.
	info, err = fsys.Stat("docs/drafts")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, fs.ModeDir|0755, info.Mode())
}

func TestFSReadDir(t *testing.T) {
	t.Parallel()

	fsys := newFSArchive(t).FS()

	entries, err := fs.ReadDir(fsys, ".")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "docs", entries[0].Name())
	assert.True(t, entries[0].IsDir())
	assert.Equal(t, "readme.md", entries[1].Name())
	assert.False(t, entries[1].IsDir())

	entries, err = fs.ReadDir(fsys, "docs")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "drafts", entries[0].Name())
	assert.True(t, entries[0].IsDir())
	assert.Equal(t, "guide.txt", entries[1].Name())

	entries, err = fs.ReadDir(fsys, "docs/drafts")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "wip.txt", entries[0].Name())
}

func TestFSWalkDir(t *testing.T) {
	t.Parallel()

	fsys := newFSArchive(t).FS()

	var visited []string
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		visited = append(visited, path)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		".",
		"docs",
		"docs/drafts",
		"docs/drafts/wip.txt",
		"docs/guide.txt",
		"readme.md",
	}, visited)
}

func TestFSOpenDirectoryReadFails(t *testing.T) {
	t.Parallel()

	fsys := newFSArchive(t).FS()

	dir, err := fsys.Open("docs")
	require.NoError(t, err)
	defer dir.Close()

	_, err = dir.Read(make([]byte, 1))
	assert.Error(t, err)
}
