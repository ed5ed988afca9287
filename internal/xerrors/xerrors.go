// Package xerrors defines the error kinds surfaced at the core's
// boundary, per the error handling design: OutOfMemory, NotFound,
// InvalidArgument, Exists, Stuck and Detached. Callers identify a kind
// with errors.Is against the exported sentinels; the core always wraps
// a sentinel with context via fmt.Errorf("...: %w").
package xerrors

import "errors"

var (
	// ErrOutOfMemory is returned when an arena cannot satisfy an
	// allocation while building a new generation, spawning counter
	// storage, or registering a counter.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrNotFound is returned when a pipeline references an unknown
	// module type or an unknown (type, name) module instance.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for malformed input: a counter
	// size outside {1,2,4,8,16}, an empty name, a zero memory limit.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrExists is returned when an agent with the same name is
	// already attached and the implementation's tie-break policy
	// rejects the duplicate.
	ErrExists = errors.New("already exists")

	// ErrStuck is returned when the publisher's quiescence wait
	// exceeds its deadline because a DP worker has stopped advancing
	// its generation counter.
	ErrStuck = errors.New("stuck waiting for quiescence")

	// ErrDetached is returned for an operation against a handle whose
	// underlying shared-memory segment or agent has already been
	// released.
	ErrDetached = errors.New("detached")
)

// Is reports whether err wraps kind, for use in tests and by callers
// that only care about the error kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
