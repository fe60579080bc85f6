package probe

import "errors"

// Domain errors for device probing.
var (
	// ErrCommandFailed is returned when lsblk exits with an error.
	ErrCommandFailed = errors.New("probe command failed")

	// ErrMalformedOutput is returned when a line of lsblk output cannot be parsed.
	ErrMalformedOutput = errors.New("malformed lsblk output")
)
