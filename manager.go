package redlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/kalbasit/redlock/internal/adapter"
)

// serverAdapter is the Lock Manager's view of one Server Adapter: enough
// to run the acquire/extend/release Lua contracts against a single Redis
// server without the manager ever touching a *redis.Client directly.
type serverAdapter interface {
	Name() string
	AcquireOne(ctx context.Context, db int, value string, duration time.Duration, keys []string) adapter.Result
	ExtendOne(ctx context.Context, db int, value string, duration time.Duration, keys []string) adapter.Result
	ReleaseOne(ctx context.Context, db int, value string, keys []string) adapter.Result
}

// ErrNoServers is the InvalidArgumentError returned by NewManager when
// given an empty server list.
var ErrNoServers error = &InvalidArgumentError{Message: "at least one server is required"}

// Manager is the Lock Manager: it owns the full server membership and the
// baseline Settings, and mints Locks by driving the Retry Engine against
// the Vote Collector.
type Manager struct {
	servers  []serverAdapter
	settings Settings

	listenersMu sync.Mutex
	listeners   []func(error)
}

// NewManager builds a Manager over one *redis.Client per server. Each
// client is wrapped in its own internal/adapter.Adapter, named by its
// position (server-0, server-1, ...) for diagnostics.
func NewManager(clients []*redis.Client, opts ...Option) (*Manager, error) {
	if len(clients) == 0 {
		return nil, ErrNoServers
	}

	servers := make([]serverAdapter, len(clients))
	for i, c := range clients {
		servers[i] = adapter.New(c, fmt.Sprintf("server-%d", i))
	}

	return newManagerWithAdapters(servers, opts...), nil
}

// newManagerWithAdapters builds a Manager directly over pre-built
// serverAdapter implementations, bypassing *redis.Client construction.
// It exists so tests can substitute a fake server adapter.
func newManagerWithAdapters(servers []serverAdapter, opts ...Option) *Manager {
	return &Manager{
		servers:  servers,
		settings: DefaultSettings().apply(opts...),
	}
}

// OnError registers fn to be called, from its own goroutine, every time an
// against-vote is recorded anywhere in the Manager. fn must not block.
func (m *Manager) OnError(fn func(error)) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()

	m.listeners = append(m.listeners, fn)
}

func (m *Manager) emitError(err error) {
	m.listenersMu.Lock()
	listeners := append([]func(error)(nil), m.listeners...)
	m.listenersMu.Unlock()

	for _, fn := range listeners {
		go fn(err)
	}
}

func (m *Manager) onVoteAgainst(ctx context.Context, server string, err error) {
	zerolog.Ctx(ctx).Debug().Err(err).Str("server", server).Msg("redlock: vote against")
	m.emitError(err)
}

// generateValue mints a 128-bit cryptographically random identifier,
// hex-encoded, that uniquely distinguishes one acquisition from any other
// holder of the same resources. It must never be derived from
// math/rand or github.com/google/uuid: the algorithm's safety depends on
// this value being unguessable.
func generateValue() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("redlock: generating lock value: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// Acquire attempts to take an exclusive lock over resources, retrying
// according to the effective Settings until quorum is reached, the retry
// budget is exhausted, or ctx is canceled.
func (m *Manager) Acquire(ctx context.Context, resources []string, duration time.Duration, opts ...Option) (*Lock, error) {
	if len(resources) == 0 {
		return nil, &InvalidArgumentError{Message: "resources must be non-empty"}
	}

	if duration <= 0 {
		return nil, &InvalidArgumentError{Message: "duration must be positive"}
	}

	settings := m.settings.apply(opts...)

	value, err := generateValue()
	if err != nil {
		return nil, err
	}

	op := func(ctx context.Context, s serverAdapter) adapter.Result {
		return s.AcquireOne(ctx, settings.DB, value, duration, resources)
	}

	onVoteAgainst := func(server string, err error) { m.onVoteAgainst(ctx, server, err) }

	result, err := runWithRetry(ctx, m.servers, settings, onVoteAgainst, op)
	if err != nil {
		// Reap whatever minority of servers did acquire the keys before the
		// attempt failed quorum, so a later acquirer doesn't have to wait
		// out the full TTL.
		m.bestEffortRelease(ctx, resources, value, settings.DB)

		recordOperation(ctx, "acquire", 0, "failure")

		return nil, err
	}

	lock := &Lock{
		resources: append([]string(nil), resources...),
		value:     value,
		attempts:  result.Attempts,
		manager:   m,
		settings:  settings,
	}
	lock.setExpiration(computeExpiration(result.Start, duration, settings))

	recordOperation(ctx, "acquire", len(result.Attempts), "success")

	return lock, nil
}

// computeExpiration applies the drift adjustment from spec §4.4: the
// effective expiration trails start+duration by round(driftFactor ×
// duration) + 2 ms, to absorb clock skew between the caller and the
// servers plus Redis's own millisecond TTL rounding.
func computeExpiration(start time.Time, duration time.Duration, settings Settings) int64 {
	durationMs := float64(duration / time.Millisecond)
	driftMs := int64(durationMs*settings.DriftFactor+0.5) + 2

	return start.Add(duration).UnixMilli() - driftMs
}

// extend re-acquires resources under the same value, extending their TTL.
// It is shared by Lock.Extend and the scoped holder's auto-extension loop.
// The caller is responsible for the "already expired" precondition check.
func (m *Manager) extend(ctx context.Context, resources []string, value string, duration time.Duration, settings Settings) (*ExecutionResult, error) {
	op := func(ctx context.Context, s serverAdapter) adapter.Result {
		return s.ExtendOne(ctx, settings.DB, value, duration, resources)
	}

	onVoteAgainst := func(server string, err error) { m.onVoteAgainst(ctx, server, err) }

	result, err := runWithRetry(ctx, m.servers, settings, onVoteAgainst, op)
	if err != nil {
		recordOperation(ctx, "extend", 0, "failure")

		return nil, err
	}

	recordOperation(ctx, "extend", len(result.Attempts), "success")

	return result, nil
}

// bestEffortRelease fires a single, unretried release at every server in
// parallel and discards the outcome entirely. It backs the reap cleanup
// after a failed Acquire (spec's "best-effort single-shot release,
// retryCount=0, errors silently swallowed") — Redlock's safety never
// depends on this succeeding everywhere, since a stale entry simply
// expires on its own TTL.
func (m *Manager) bestEffortRelease(ctx context.Context, resources []string, value string, db int) {
	var wg sync.WaitGroup

	wg.Add(len(m.servers))

	for _, srv := range m.servers {
		srv := srv

		go func() {
			defer wg.Done()
			srv.ReleaseOne(ctx, db, value, resources)
		}()
	}

	wg.Wait()
}

// release drops resources held under value, driving the Retry Engine with
// releaseOne the same way acquire and extend do, so a release that cannot
// reach quorum surfaces ExecutionFailed instead of failing silently.
func (m *Manager) release(ctx context.Context, resources []string, value string, settings Settings) (*ExecutionResult, error) {
	op := func(ctx context.Context, s serverAdapter) adapter.Result {
		return s.ReleaseOne(ctx, settings.DB, value, resources)
	}

	onVoteAgainst := func(server string, err error) { m.onVoteAgainst(ctx, server, err) }

	result, err := runWithRetry(ctx, m.servers, settings, onVoteAgainst, op)
	if err != nil {
		recordOperation(ctx, "release", 0, "failure")

		return nil, err
	}

	recordOperation(ctx, "release", len(result.Attempts), "success")

	return result, nil
}

// Extend extends l's hold by duration, using the Settings l was minted
// with, overridden by opts. l is already expired (lock.expiration < now)
// fails with ExecutionFailed and l is left untouched. On success l is
// tombstoned and a fresh Lock — sharing the same resources and value, but
// with its own attempts list and a newly drift-adjusted expiration — is
// returned. On failure (quorum not reached), l is left exactly as it was.
func (l *Lock) Extend(ctx context.Context, duration time.Duration, opts ...Option) (*Lock, error) {
	if l.Expiration() == 0 {
		return nil, &InvalidArgumentError{Message: "lock is already released"}
	}

	if time.Now().UnixMilli() >= l.Expiration() {
		return nil, &ExecutionFailedError{Message: "cannot extend an already-expired lock"}
	}

	settings := l.settings.apply(opts...)

	result, err := l.manager.extend(ctx, l.resources, l.value, duration, settings)
	if err != nil {
		return nil, err
	}

	next := &Lock{
		resources: l.Resources(),
		value:     l.value,
		attempts:  result.Attempts,
		manager:   l.manager,
		settings:  settings,
	}
	next.setExpiration(computeExpiration(result.Start, duration, settings))

	l.tombstone()

	return next, nil
}

// Release drops l, driving the Retry Engine with releaseOne. l.expiration
// is set to 0 immediately, regardless of outcome: calling Release declares
// intent to abandon the lock, and a lease that cannot be released on
// quorum will simply expire on its own. The returned error, if any, is
// ExecutionFailed from a release that never reached quorum.
func (l *Lock) Release(ctx context.Context, opts ...Option) (*ExecutionResult, error) {
	if l.Expiration() == 0 {
		return nil, &InvalidArgumentError{Message: "lock is already released"}
	}

	settings := l.settings.apply(opts...)

	l.tombstone()

	return l.manager.release(ctx, l.resources, l.value, settings)
}
