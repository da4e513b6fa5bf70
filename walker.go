// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

type walkConfig struct {
	onProcessed func(*Entry)
	parallelism int
	method      CompressionMethod
	level       int
}

// WalkOption tunes a directory zip or unzip pass.
type WalkOption func(*walkConfig)

// OnEntryProcessed registers a progress hook invoked after each entry is
// written or extracted. During parallel extraction the hook may be called
// from multiple goroutines; calls are serialized.
func OnEntryProcessed(fn func(*Entry)) WalkOption {
	return func(c *walkConfig) { c.onProcessed = fn }
}

// WithParallelism bounds the number of entries extracted concurrently.
// Values below one fall back to the CPU count.
func WithParallelism(n int) WalkOption {
	return func(c *walkConfig) { c.parallelism = n }
}

// WithCompression selects the method and level used for files added by
// ZipDirectory.
func WithCompression(method CompressionMethod, level int) WalkOption {
	return func(c *walkConfig) {
		c.method = method
		c.level = level
	}
}

func newWalkConfig(opts []WalkOption) walkConfig {
	c := walkConfig{
		parallelism: runtime.NumCPU(),
		method:      Deflated,
		level:       DeflateNormal,
	}
	for _, opt := range opts {
		opt(&c)
	}
	if c.parallelism < 1 {
		c.parallelism = runtime.NumCPU()
	}
	return c
}

// ZipDirectory walks dir and adds everything beneath it to the archive:
// directories, regular files, and symbolic links, with their permission
// bits and modification times. Paths are stored slash separated and
// relative to dir.
func ZipDirectory(ctx context.Context, dir string, archive *Archive, opts ...WalkOption) error {
	c := newWalkConfig(opts)

	return filepath.WalkDir(dir, func(fpath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if fpath == dir {
			return nil
		}

		rel, err := filepath.Rel(dir, fpath)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.IsDir():
			err = archive.AddDirectory(ctx, name,
				WithMode(info.Mode().Perm()),
				WithModTime(info.ModTime()))
		case info.Mode()&fs.ModeSymlink != 0:
			var target string
			target, err = os.Readlink(fpath)
			if err != nil {
				return err
			}
			err = archive.AddSymlink(ctx, name, target,
				WithModTime(info.ModTime()))
		case info.Mode().IsRegular():
			err = addFileEntry(ctx, archive, name, fpath, info, c)
		default:
			// Sockets, devices and pipes have no archive representation.
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		if c.onProcessed != nil {
			if entry, lerr := archive.Entry(storedPath(archive, name)); lerr == nil {
				c.onProcessed(entry)
			}
		}
		return nil
	})
}

func addFileEntry(ctx context.Context, archive *Archive, name, fpath string, info fs.FileInfo, c walkConfig) error {
	f, err := os.Open(fpath)
	if err != nil {
		return err
	}
	defer f.Close()

	return archive.AddReader(ctx, name, f,
		WithMethod(c.method),
		WithDeflateLevel(c.level),
		WithMode(info.Mode().Perm()),
		WithModTime(info.ModTime()),
		WithKnownSize(info.Size()))
}

// storedPath resolves the archive path for a walked name, which gains a
// trailing slash when stored as a directory.
func storedPath(archive *Archive, name string) string {
	if _, err := archive.Entry(name); err == nil {
		return name
	}
	return name + "/"
}

// UnzipArchive extracts every entry of the archive beneath dir.
// Directories materialize first, then files and symbolic links extract in
// parallel. Entry paths escaping dir fail the whole operation.
func UnzipArchive(ctx context.Context, archive *Archive, dir string, opts ...WalkOption) error {
	c := newWalkConfig(opts)

	entries := archive.Entries()
	targets := make(map[*Entry]string, len(entries))
	for _, entry := range entries {
		target, err := securePath(dir, entry.Name())
		if err != nil {
			return fmt.Errorf("%s: %w", entry.Path(), err)
		}
		targets[entry] = target
	}

	var mu sync.Mutex
	processed := func(entry *Entry) {
		if c.onProcessed == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		c.onProcessed(entry)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := os.MkdirAll(targets[entry], entry.Mode().Perm()); err != nil {
			return err
		}
		processed(entry)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		g.Go(func() error {
			if err := extractToPath(ctx, archive, entry, targets[entry]); err != nil {
				return fmt.Errorf("%s: %w", entry.Path(), err)
			}
			processed(entry)
			return nil
		})
	}
	return g.Wait()
}

func extractToPath(ctx context.Context, archive *Archive, entry *Entry, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	if entry.Kind() == KindSymlink {
		linkTarget, err := archive.ExtractBytes(ctx, entry.Path())
		if err != nil {
			return err
		}
		if err := os.RemoveAll(target); err != nil {
			return err
		}
		return os.Symlink(string(linkTarget), target)
	}

	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, entry.Mode().Perm())
	if err != nil {
		return err
	}
	err = archive.ExtractEntry(ctx, entry.Path(), func(chunk []byte) error {
		_, werr := f.Write(chunk)
		return werr
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if !entry.ModTime().IsZero() {
		// Best effort, timestamps are advisory.
		_ = os.Chtimes(target, entry.ModTime(), entry.ModTime())
	}
	return nil
}

// securePath joins an entry name beneath the destination directory and
// rejects names that would escape it.
func securePath(dir, name string) (string, error) {
	name = strings.TrimSuffix(name, "/")
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\x00") {
		return "", ErrInvalidEntryPath
	}

	target := filepath.Join(dir, filepath.FromSlash(name))
	root := filepath.Clean(dir)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", ErrInvalidEntryPath
	}
	return target, nil
}
