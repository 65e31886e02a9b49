package datastoreMatching

import "errors"

// Setup failures are fatal before the first row is processed; callers test
// for them with errors.Is. Per-row failures never surface as errors; they
// are recorded as rows in the run report.
var (
	// ErrFileNotFound marks a missing reference or input file.
	ErrFileNotFound = errors.New("file not found")
	// ErrFormat marks a spreadsheet whose shape cannot be used (empty, or
	// no usable column).
	ErrFormat = errors.New("unusable file format")
	// ErrIO marks a failed report write.
	ErrIO = errors.New("write failed")
)
