package redlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalbasit/redlock/internal/adapter"
)

func TestManager_Acquire_SingleInstanceHappyPath(t *testing.T) {
	t.Parallel()

	m := newManagerWithAdapters(newFakeServers(1))

	lock, err := m.Acquire(context.Background(), []string{"resource-a"}, 200*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, lock)

	assert.Len(t, lock.Value(), 32) // 16 bytes hex-encoded
	assert.Equal(t, []string{"resource-a"}, lock.Resources())
	assert.Greater(t, lock.Expiration(), int64(0))
}

func TestManager_Acquire_ExclusiveContentionExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	servers := newFakeServers(3)
	m := newManagerWithAdapters(servers, WithRetryCount(10), WithRetryDelay(time.Millisecond), WithRetryJitter(0))

	ctx := context.Background()

	holder, err := m.Acquire(ctx, []string{"contended"}, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, holder)

	_, err = m.Acquire(ctx, []string{"contended"}, time.Minute)
	require.Error(t, err)

	var execErr *ExecutionFailedError

	require.True(t, errors.As(err, &execErr))
	assert.Len(t, execErr.Attempts, 11) // first attempt + 10 retries
}

func TestManager_Acquire_FailsWhenQuorumUnreachable(t *testing.T) {
	t.Parallel()

	servers := newFakeServers(3)
	servers[0].(*fakeServer).setUp(false)
	servers[1].(*fakeServer).setUp(false)

	m := newManagerWithAdapters(servers, WithRetryCount(1), WithRetryDelay(time.Millisecond), WithRetryJitter(0))

	_, err := m.Acquire(context.Background(), []string{"r"}, time.Minute)
	require.Error(t, err)

	var execErr *ExecutionFailedError
	require.True(t, errors.As(err, &execErr))

	for _, attempt := range execErr.Attempts {
		assert.LessOrEqual(t, len(attempt.VotesFor()), 1)
	}
}

func TestManager_Acquire_AutoExpiryAllowsReacquisition(t *testing.T) {
	t.Parallel()

	servers := newFakeServers(1)
	m := newManagerWithAdapters(servers)

	ctx := context.Background()

	_, err := m.Acquire(ctx, []string{"ephemeral"}, 30*time.Millisecond)
	require.NoError(t, err)

	assert.True(t, servers[0].(*fakeServer).held("ephemeral"))

	time.Sleep(60 * time.Millisecond)

	assert.False(t, servers[0].(*fakeServer).held("ephemeral"))

	_, err = m.Acquire(ctx, []string{"ephemeral"}, time.Minute)
	require.NoError(t, err)
}

func TestManager_Acquire_OverlappingMultiKeyConflicts(t *testing.T) {
	t.Parallel()

	m := newManagerWithAdapters(newFakeServers(1))

	ctx := context.Background()

	_, err := m.Acquire(ctx, []string{"a", "b"}, time.Minute)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, []string{"b", "c"}, time.Minute, WithRetryCount(0))
	require.Error(t, err)
}

// TestManager_Acquire_ReapsPartialAcquisitionOnFailure exercises boundary
// scenario 5: a minority of servers can acquire a never-before-seen key
// as part of a quorum attempt that ultimately fails because a different
// key in the same request is already held elsewhere. The reap release
// must free that minority's hold instead of leaving it locked until TTL.
func TestManager_Acquire_ReapsPartialAcquisitionOnFailure(t *testing.T) {
	t.Parallel()

	servers := newFakeServers(3)
	m := newManagerWithAdapters(servers, WithRetryCount(0))

	ctx := context.Background()

	// "b" is already held on two of the three servers, but not on the
	// third — that third server will vote "for" on ["b", "c"] and, absent
	// a reap, would be left holding "c" with nothing to ever release it.
	for _, s := range servers[1:] {
		res := s.(*fakeServer).AcquireOne(ctx, 0, "pre-held", time.Minute, []string{"b"})
		require.Equal(t, adapter.For, res.Kind)
	}

	_, err := m.Acquire(ctx, []string{"b", "c"}, time.Minute)
	require.Error(t, err)

	assert.False(t, servers[0].(*fakeServer).held("c"), "reap must free the partial acquisition of c")
}

func TestManager_Acquire_ValidatesArguments(t *testing.T) {
	t.Parallel()

	m := newManagerWithAdapters(newFakeServers(1))

	_, err := m.Acquire(context.Background(), nil, time.Second)
	var invalidErr *InvalidArgumentError
	require.ErrorAs(t, err, &invalidErr)

	_, err = m.Acquire(context.Background(), []string{"x"}, 0)
	require.ErrorAs(t, err, &invalidErr)
}

func TestManager_Extend_ExtendsExpirationAndTracksAttempts(t *testing.T) {
	t.Parallel()

	m := newManagerWithAdapters(newFakeServers(3))

	ctx := context.Background()

	lock, err := m.Acquire(ctx, []string{"extend-me"}, 100*time.Millisecond)
	require.NoError(t, err)

	firstExpiration := lock.Expiration()

	time.Sleep(10 * time.Millisecond)

	next, err := lock.Extend(ctx, 500*time.Millisecond)
	require.NoError(t, err)

	assert.Zero(t, lock.Expiration(), "the old Lock must be tombstoned")
	assert.Greater(t, next.Expiration(), firstExpiration)
	assert.Len(t, next.Attempts(), 1)
	assert.Equal(t, lock.Value(), next.Value())
}

func TestManager_Extend_FailsOnReleasedLock(t *testing.T) {
	t.Parallel()

	m := newManagerWithAdapters(newFakeServers(1))

	ctx := context.Background()

	lock, err := m.Acquire(ctx, []string{"r"}, time.Minute)
	require.NoError(t, err)

	_, err = lock.Release(ctx)
	require.NoError(t, err)

	_, err = lock.Extend(ctx, time.Minute)
	var invalidErr *InvalidArgumentError
	require.ErrorAs(t, err, &invalidErr)
}

func TestLock_Release_IsIdempotentAndFreesResources(t *testing.T) {
	t.Parallel()

	servers := newFakeServers(1)
	m := newManagerWithAdapters(servers)

	ctx := context.Background()

	lock, err := m.Acquire(ctx, []string{"releasable"}, time.Minute)
	require.NoError(t, err)

	_, err = lock.Release(ctx)
	require.NoError(t, err)
	assert.Zero(t, lock.Expiration())

	_, err = lock.Release(ctx) // second call must not panic or double-release
	var invalidErr *InvalidArgumentError
	require.ErrorAs(t, err, &invalidErr)

	_, err = m.Acquire(ctx, []string{"releasable"}, time.Minute)
	require.NoError(t, err)
}

func TestNewManager_RejectsEmptyServerList(t *testing.T) {
	t.Parallel()

	_, err := NewManager(nil)
	require.ErrorIs(t, err, ErrNoServers)
}

func TestManager_OnError_IsNotifiedOnVoteAgainst(t *testing.T) {
	t.Parallel()

	servers := newFakeServers(3)
	m := newManagerWithAdapters(servers, WithRetryCount(0))

	ctx := context.Background()

	_, err := m.Acquire(ctx, []string{"watched"}, time.Minute)
	require.NoError(t, err)

	errs := make(chan error, 8)
	m.OnError(func(err error) { errs <- err })

	servers[0].(*fakeServer).setUp(false)

	_, err = m.Acquire(ctx, []string{"watched"}, time.Minute)
	require.Error(t, err)

	select {
	case e := <-errs:
		require.Error(t, e)
	case <-time.After(time.Second):
		t.Fatal("expected at least one OnError notification")
	}
}
