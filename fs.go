// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

var (
	_ fs.FS        = (*archiveFS)(nil)
	_ fs.StatFS    = (*archiveFS)(nil)
	_ fs.ReadDirFS = (*archiveFS)(nil)
)

// FS returns a read-only filesystem view of the archive. The view reads
// through the live backing; mutating the archive while files are open
// invalidates their readers.
func (a *Archive) FS() fs.FS {
	return &archiveFS{a: a}
}

type archiveFS struct {
	a *Archive
}

// fsNode pairs a catalog entry with its filesystem name. Implicit
// directories, present only as path prefixes, have a nil entry.
type fsNode struct {
	name  string
	entry *Entry
	isDir bool
}

func (afs *archiveFS) Open(name string) (fs.File, error) {
	node, err := afs.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}

	if node.isDir {
		return &fsDir{node: node, afs: afs}, nil
	}

	afs.a.mu.RLock()
	rc, err := afs.a.entryReader(node.entry, true)
	afs.a.mu.RUnlock()
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &fsFile{node: node, rc: rc}, nil
}

func (afs *archiveFS) Stat(name string) (fs.FileInfo, error) {
	node, err := afs.lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return fileInfoAdapter{node}, nil
}

func (afs *archiveFS) ReadDir(name string) ([]fs.DirEntry, error) {
	file, err := afs.Open(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	defer file.Close()

	dir, ok := file.(fs.ReadDirFile)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	return dir.ReadDir(-1)
}

// lookup resolves a filesystem name to a catalog entry, handling the
// root, stored directories with their trailing slash, and directories
// that exist only implicitly as path prefixes.
func (afs *archiveFS) lookup(name string) (fsNode, error) {
	if !fs.ValidPath(name) {
		return fsNode{}, fs.ErrInvalid
	}

	if name == "." {
		return fsNode{name: ".", isDir: true}, nil
	}

	if entry, err := afs.a.Entry(name); err == nil {
		return fsNode{name: name, entry: entry, isDir: entry.IsDir()}, nil
	}
	if entry, err := afs.a.Entry(name + "/"); err == nil {
		return fsNode{name: name, entry: entry, isDir: true}, nil
	}

	if afs.hasImplicitDir(name) {
		return fsNode{name: name, isDir: true}, nil
	}

	return fsNode{}, fs.ErrNotExist
}

func (afs *archiveFS) hasImplicitDir(name string) bool {
	prefix := name + "/"
	for _, entry := range afs.a.Entries() {
		if strings.HasPrefix(entry.Name(), prefix) {
			return true
		}
	}
	return false
}

// fsFile wraps a regular entry to satisfy fs.File.
type fsFile struct {
	node fsNode
	rc   io.ReadCloser
}

func (f *fsFile) Stat() (fs.FileInfo, error) { return fileInfoAdapter{f.node}, nil }
func (f *fsFile) Read(b []byte) (int, error) { return f.rc.Read(b) }
func (f *fsFile) Close() error               { return f.rc.Close() }

// fsDir wraps a directory to satisfy fs.ReadDirFile.
type fsDir struct {
	node   fsNode
	afs    *archiveFS
	offset int // children already returned by ReadDir
}

func (d *fsDir) Stat() (fs.FileInfo, error) { return fileInfoAdapter{d.node}, nil }
func (d *fsDir) Close() error               { return nil }
func (d *fsDir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.node.name, Err: fs.ErrInvalid}
}

// ReadDir scans the catalog for the directory's immediate children.
// Successive calls continue after the children already returned.
func (d *fsDir) ReadDir(n int) ([]fs.DirEntry, error) {
	dirPath := d.node.name
	if dirPath == "." {
		dirPath = ""
	} else {
		dirPath += "/"
	}

	seen := make(map[string]bool)
	var entries []fs.DirEntry

	for _, entry := range d.afs.a.Entries() {
		name := strings.TrimSuffix(entry.Name(), "/")
		if !strings.HasPrefix(name, dirPath) {
			continue
		}

		rel := strings.TrimPrefix(name, dirPath)
		if rel == "" {
			continue
		}

		childName, _, nested := strings.Cut(rel, "/")
		if seen[childName] {
			continue
		}
		seen[childName] = true

		node := fsNode{name: path.Join(d.node.name, childName), isDir: nested || entry.IsDir()}
		if !nested {
			node.entry = entry
		}
		entries = append(entries, fsDirEntryAdapter{
			name:  childName,
			isDir: node.isDir,
			info:  fileInfoAdapter{node},
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	entries = entries[min(d.offset, len(entries)):]
	if n <= 0 {
		d.offset += len(entries)
		return entries, nil
	}
	if len(entries) <= n {
		d.offset += len(entries)
		return entries, io.EOF
	}
	d.offset += n
	return entries[:n], nil
}

type fileInfoAdapter struct{ node fsNode }

func (i fileInfoAdapter) Name() string {
	return path.Base(strings.TrimSuffix(i.node.name, "/"))
}

func (i fileInfoAdapter) Size() int64 {
	if i.node.entry == nil {
		return 0
	}
	return int64(i.node.entry.UncompressedSize())
}

func (i fileInfoAdapter) Mode() fs.FileMode {
	if i.node.entry == nil {
		return fs.ModeDir | 0755
	}
	return i.node.entry.Mode()
}

func (i fileInfoAdapter) ModTime() time.Time {
	if i.node.entry == nil {
		return time.Time{}
	}
	return i.node.entry.ModTime()
}

func (i fileInfoAdapter) IsDir() bool      { return i.node.isDir }
func (i fileInfoAdapter) Sys() interface{} { return nil }

type fsDirEntryAdapter struct {
	name  string
	isDir bool
	info  fs.FileInfo
}

func (e fsDirEntryAdapter) Name() string               { return e.name }
func (e fsDirEntryAdapter) IsDir() bool                { return e.isDir }
func (e fsDirEntryAdapter) Type() fs.FileMode          { return e.info.Mode().Type() }
func (e fsDirEntryAdapter) Info() (fs.FileInfo, error) { return e.info, nil }
