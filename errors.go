package redlock

import "fmt"

// InvalidArgumentError is returned synchronously, before any network
// activity begins, when a caller-supplied argument fails validation. It is
// never retried.
type InvalidArgumentError struct {
	Message string
}

func (e *InvalidArgumentError) Error() string {
	return "redlock: invalid argument: " + e.Message
}

// ResourceLockedError indicates a server reported that one or more of the
// requested keys were already held under a different value. It is treated
// as an against-vote and preserved in ExecutionStats.VotesAgainst for
// diagnostic use; it never aborts an attempt by itself.
type ResourceLockedError struct {
	Server string
}

func (e *ResourceLockedError) Error() string {
	return fmt.Sprintf("redlock: resource already locked on %s", e.Server)
}

// TransportError indicates an adapter-level failure talking to a server:
// a closed connection, a timeout, or a malformed reply. It is treated as
// an against-vote, the same as ResourceLockedError.
type TransportError struct {
	Server string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("redlock: transport error talking to %s: %v", e.Server, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ExecutionFailedError is the terminal error of a multi-attempt operation
// that never reached quorum within its retry budget. It carries every
// per-attempt stats handle so callers can diagnose which servers voted
// which way and why.
type ExecutionFailedError struct {
	Message  string
	Attempts []*ExecutionStats
	Err      error // aggregate of every against-vote error observed across all attempts, if any
}

func (e *ExecutionFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("redlock: %s: %v", e.Message, e.Err)
	}

	return "redlock: " + e.Message
}

func (e *ExecutionFailedError) Unwrap() error { return e.Err }
