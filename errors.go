package pattern

import "errors"

// Sentinel errors. Operations wrap them with context; test with errors.Is.
var (
	// ErrOutOfMemory reports that an allocation was refused, for the cache
	// slot array, an accumulator buffer or a deferred writer's scratch
	// space. The caller can recover: the fill simply does not happen.
	ErrOutOfMemory = errors.New("pattern: out of memory")

	// ErrRangeCheck reports malformed parameters such as a zero-sized tile,
	// an unknown paint type or a rectangle outside a device.
	ErrRangeCheck = errors.New("pattern: range check")

	// ErrUnregistered reports a missing collaborator: an uncolored pattern
	// without a base color, or a deferred writer nobody registered.
	ErrUnregistered = errors.New("pattern: unregistered")

	// ErrFatal reports a broken internal invariant, for example a tile that
	// cannot be found right after it was inserted.
	ErrFatal = errors.New("pattern: internal consistency fault")

	// ErrHandled may be returned by a paint procedure to say that it
	// legitimately painted nothing. LoadPattern treats it as success.
	ErrHandled = errors.New("pattern: paint handled")

	// ErrUnsupported reports an operation the device does not implement.
	ErrUnsupported = errors.New("pattern: unsupported operation")
)
