package redlock

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecutionStats records one fan-out attempt's per-server votes. It is
// written only by the Vote Collector goroutines driving that attempt;
// external observers should read it only after Done() has closed, at
// which point exactly MembershipSize votes have been recorded.
type ExecutionStats struct {
	// AttemptID correlates this attempt across logs and traces. It plays
	// no role in the quorum decision itself.
	AttemptID uuid.UUID

	MembershipSize int
	Quorum         int

	mu           sync.Mutex
	votesFor     []string
	votesAgainst map[string]error
	done         chan struct{}
	closeOnce    sync.Once
}

func newExecutionStats(membershipSize int) *ExecutionStats {
	return &ExecutionStats{
		AttemptID:      uuid.New(),
		MembershipSize: membershipSize,
		Quorum:         membershipSize/2 + 1,
		votesAgainst:   make(map[string]error, membershipSize),
		done:           make(chan struct{}),
	}
}

// recordFor tallies a for-vote from server and returns the resulting
// for-count and the total number of votes tallied so far.
func (s *ExecutionStats) recordFor(server string) (forCount, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.votesFor = append(s.votesFor, server)

	return len(s.votesFor), len(s.votesFor) + len(s.votesAgainst)
}

// recordAgainst tallies an against-vote from server and returns the
// resulting against-count and the total number of votes tallied so far.
func (s *ExecutionStats) recordAgainst(server string, err error) (againstCount, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.votesAgainst[server] = err

	return len(s.votesAgainst), len(s.votesFor) + len(s.votesAgainst)
}

func (s *ExecutionStats) markDone() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done returns a channel that closes exactly once, after all
// MembershipSize votes have settled — regardless of when the attempt
// itself resolved for or against.
func (s *ExecutionStats) Done() <-chan struct{} { return s.done }

// VotesFor returns the servers that voted for. The result only reflects
// every voter once Done() has closed.
func (s *ExecutionStats) VotesFor() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.votesFor))
	copy(out, s.votesFor)

	return out
}

// VotesAgainst returns the servers that voted against, mapped to the
// error each reported. The result only reflects every voter once Done()
// has closed.
func (s *ExecutionStats) VotesAgainst() map[string]error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]error, len(s.votesAgainst))
	for k, v := range s.votesAgainst {
		out[k] = v
	}

	return out
}

// ExecutionResult bundles the per-attempt stats of a successful
// multi-attempt operation together with when the decisive attempt began.
type ExecutionResult struct {
	Attempts []*ExecutionStats
	Start    time.Time
}

// Lock is a held, or formerly held, distributed mutual-exclusion lock.
// Once its expiration is set to zero by Release or by a successful
// Extend, the instance is tombstoned: it must not be used to derive a new
// lock.
type Lock struct {
	resources []string
	value     string
	attempts  []*ExecutionStats
	manager   *Manager
	settings  Settings // effective settings used to mint this lock

	mu         sync.Mutex
	expiration int64 // unix ms; 0 means tombstoned
}

// Resources returns the set of resource keys this lock covers.
func (l *Lock) Resources() []string {
	return append([]string(nil), l.resources...)
}

// Value is the 128-bit random identifier, hex-encoded, that distinguishes
// this acquisition from any other holder of the same resources.
func (l *Lock) Value() string { return l.value }

// Attempts returns the per-attempt statistics recorded while minting this
// lock (via Acquire or Extend).
func (l *Lock) Attempts() []*ExecutionStats {
	return append([]*ExecutionStats(nil), l.attempts...)
}

// Expiration returns the effective expiration as unix milliseconds. Zero
// means the lock is tombstoned.
func (l *Lock) Expiration() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.expiration
}

func (l *Lock) setExpiration(ms int64) {
	l.mu.Lock()
	l.expiration = ms
	l.mu.Unlock()
}

// tombstone marks the lock as no longer valid for extension or reuse.
func (l *Lock) tombstone() { l.setExpiration(0) }
