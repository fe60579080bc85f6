package blkid

import "errors"

// Errors returned by the tag store.
//
// Parameter, exhaustion and format errors are failures; ErrNotFound is an
// expected outcome of a lookup. All of them can be checked with errors.Is():
//
//	if errors.Is(err, blkid.ErrNotFound) {
//	    // no device carries the tag
//	}
var (
	// ErrInvalidParam is returned when a required argument is missing
	// (nil device or cache, empty tag name or type).
	ErrInvalidParam = errors.New("blkid: invalid parameter")

	// ErrResourceExhausted is returned when a cache limit would be exceeded.
	// No partial state is left behind.
	ErrResourceExhausted = errors.New("blkid: resource exhausted")

	// ErrDeviceExists is returned when attaching a device whose name is
	// already present in the cache, or which belongs to another cache.
	ErrDeviceExists = errors.New("blkid: device already attached")

	// ErrNotFound is returned when no device matches a lookup.
	ErrNotFound = errors.New("blkid: no matching device")

	// ErrInvalidTagString is returned when a NAME=value string is malformed.
	ErrInvalidTagString = errors.New("blkid: invalid tag string")

	// ErrIterDone is returned by TagIterator.Next when all tags have been visited.
	ErrIterDone = errors.New("blkid: no more tags")

	// ErrInvalidIterator is returned when a released or uninitialised
	// iterator is used.
	ErrInvalidIterator = errors.New("blkid: invalid tag iterator")
)
