// Package redlock implements a distributed mutual-exclusion client using
// the Redlock algorithm over a set of independent Redis-compatible
// servers.
//
// A caller names one or more resources by string key and requests
// exclusive hold of all of them for a bounded duration. Acquire returns a
// Lock if and only if a strict majority (quorum) of the configured
// servers acknowledge the acquisition within the retry window configured
// by Settings. Holders may Extend the lease, Release it early, or use the
// Manager's Use helper, which auto-extends a lease for the duration of a
// caller-supplied routine and guarantees release on every exit path.
//
// The package never manages Redis connections itself: callers construct
// their own *redis.Client per server and hand the slice to NewManager.
package redlock
