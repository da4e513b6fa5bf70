// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"context"
	"slices"
)

// RemoveEntry deletes the entry with the given stored path. The bytes of
// every later entry move left over the removed span in bounded chunks,
// their offsets shift accordingly, and the central directory is rewritten
// at its new position; the operation commits with a sync before returning.
func (a *Archive) RemoveEntry(ctx context.Context, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.writable(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return ErrCancelledOperation
	}
	return a.removeLocked(ctx, path)
}

func (a *Archive) removeLocked(ctx context.Context, path string) error {
	i, ok := a.index[path]
	if !ok {
		return ErrEntryNotFound
	}
	entry := a.entries[i]
	start := entry.localHeaderOffset
	length := entry.localSize

	src := start + length
	dst := start
	for src < a.dirOffset {
		if err := ctx.Err(); err != nil {
			return ErrCancelledOperation
		}
		n := min(int64(defaultBufferSize), a.dirOffset-src)
		if err := a.backing.Seek(src); err != nil {
			return err
		}
		chunk, err := a.backing.Read(int(n))
		if err != nil {
			return err
		}
		if err := a.backing.Seek(dst); err != nil {
			return err
		}
		if err := a.backing.WriteAll(chunk); err != nil {
			return err
		}
		src += n
		dst += n
	}

	a.entries = slices.Delete(a.entries, i, i+1)
	for j, e := range a.entries {
		if e.localHeaderOffset > start {
			shifted := *e
			shifted.localHeaderOffset -= length
			shifted.dataOffset -= length
			a.entries[j] = &shifted
		}
	}
	clear(a.index)
	for j, e := range a.entries {
		a.index[e.path] = j
	}
	a.dirOffset -= length

	if err := a.commitCentralDirectory(); err != nil {
		return err
	}
	return a.backing.Sync()
}
