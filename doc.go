// Copyright 2025 Kirvachev. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zipkit reads, writes and edits ZIP archives in place.
//
// An Archive is opened over a file or an in-memory buffer in one of three
// modes: ModeRead for lookup and extraction, ModeUpdate for incremental
// editing, and ModeCreate for building an archive from scratch. Entries
// are added, removed and overwritten without rebuilding the rest of the
// archive; every mutating operation rewrites the central directory last
// and syncs before returning. Archives larger than the classic format
// limits are handled transparently through Zip64 records.
//
// Store and Deflate are the supported compression methods. Payloads move
// through bounded buffers, so archives much larger than memory can be
// processed, and long operations honor context cancellation.
package zipkit
