package zipkit

import "errors"

var (
	// ErrUnreadableArchive is returned when the input is not a valid ZIP archive
	// or the archive cannot be opened for reading.
	ErrUnreadableArchive = errors.New("zipkit: unreadable archive")

	// ErrUnwritableArchive is returned when a mutating operation is attempted
	// on an archive that was not opened for writing.
	ErrUnwritableArchive = errors.New("zipkit: unwritable archive")

	// ErrInvalidCRC32 is returned when the checksum of extracted data does not
	// match the checksum recorded in the central directory.
	ErrInvalidCRC32 = errors.New("zipkit: invalid checksum")

	// ErrInvalidEntryPath is returned when an entry path is empty, malformed,
	// or attempts directory traversal.
	ErrInvalidEntryPath = errors.New("zipkit: invalid entry path")

	// ErrCancelledOperation is returned when an operation is interrupted by
	// context cancellation.
	ErrCancelledOperation = errors.New("zipkit: operation cancelled")

	// ErrUnreadableFile is returned when a read is attempted on a backing that
	// was not opened for reading.
	ErrUnreadableFile = errors.New("zipkit: unreadable file")

	// ErrUnwritableFile is returned when a write is attempted on a backing that
	// was not opened for writing.
	ErrUnwritableFile = errors.New("zipkit: unwritable file")

	// ErrEntryNotFound is returned when the requested entry is not in the archive.
	ErrEntryNotFound = errors.New("zipkit: entry not found")

	// ErrDuplicateEntry is returned when adding an entry whose path already exists
	// and overwriting was not requested.
	ErrDuplicateEntry = errors.New("zipkit: duplicate entry path")

	// ErrFilenameTooLong is returned when an entry path exceeds 65535 bytes.
	ErrFilenameTooLong = errors.New("zipkit: entry path too long")

	// ErrCommentTooLong is returned when a comment exceeds 65535 bytes.
	ErrCommentTooLong = errors.New("zipkit: comment too long")

	// ErrUnsupportedMethod is returned when an entry uses a compression
	// method other than Store or Deflate.
	ErrUnsupportedMethod = errors.New("zipkit: unsupported compression method")
)
