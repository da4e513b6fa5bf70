// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"bytes"
	"fmt"
	"io"

	"go4.org/readerutil"
)

// Snapshot returns the archive as one contiguous random-access reader
// without copying the payload region: the bytes up to the central
// directory are served straight from the backing, and the directory
// trailer from a freshly encoded in-memory copy.
//
// The snapshot shares the backing, so it is only valid until the next
// mutating operation or Close.
func (a *Archive) Snapshot() (readerutil.SizeReaderAt, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if err := a.readable(); err != nil {
		return nil, err
	}

	ra, ok := a.backing.(io.ReaderAt)
	if !ok {
		return nil, fmt.Errorf("%w: backing does not support random access", ErrUnreadableArchive)
	}

	trailer := a.encodeCentralDirectory()
	return readerutil.NewMultiReaderAt(
		io.NewSectionReader(ra, 0, a.dirOffset),
		bytes.NewReader(trailer),
	), nil
}
