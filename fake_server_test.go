package redlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kalbasit/redlock/internal/adapter"
)

var (
	errFakeDown     = errors.New("fake server is down")
	errFakeConflict = errors.New("fake server: key already held")
)

type fakeEntry struct {
	value     string
	expiresAt time.Time
}

// fakeServer is an in-memory serverAdapter used to exercise the Vote
// Collector and Retry Engine without a real Redis instance. It reproduces
// acquire/extend/release's atomicity and TTL-expiry semantics faithfully
// enough for the quorum math to be tested deterministically.
type fakeServer struct {
	name string

	mu    sync.Mutex
	up    bool
	store map[string]fakeEntry
}

func newFakeServer(name string) *fakeServer {
	return &fakeServer{name: name, up: true, store: make(map[string]fakeEntry)}
}

func (f *fakeServer) Name() string { return f.name }

func (f *fakeServer) setUp(up bool) {
	f.mu.Lock()
	f.up = up
	f.mu.Unlock()
}

func (f *fakeServer) held(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.store[key]

	return ok && time.Now().Before(e.expiresAt)
}

func (f *fakeServer) AcquireOne(_ context.Context, _ int, value string, duration time.Duration, keys []string) adapter.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.up {
		return adapter.Result{Kind: adapter.AgainstTransport, Err: errFakeDown}
	}

	now := time.Now()

	for _, k := range keys {
		if e, ok := f.store[k]; ok && now.Before(e.expiresAt) {
			return adapter.Result{Kind: adapter.AgainstConflict, Err: errFakeConflict}
		}
	}

	for _, k := range keys {
		f.store[k] = fakeEntry{value: value, expiresAt: now.Add(duration)}
	}

	return adapter.Result{Kind: adapter.For, Count: len(keys)}
}

func (f *fakeServer) ExtendOne(_ context.Context, _ int, value string, duration time.Duration, keys []string) adapter.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.up {
		return adapter.Result{Kind: adapter.AgainstTransport, Err: errFakeDown}
	}

	now := time.Now()

	for _, k := range keys {
		e, ok := f.store[k]
		if !ok || now.After(e.expiresAt) || e.value != value {
			return adapter.Result{Kind: adapter.AgainstConflict, Err: errFakeConflict}
		}
	}

	for _, k := range keys {
		f.store[k] = fakeEntry{value: value, expiresAt: now.Add(duration)}
	}

	return adapter.Result{Kind: adapter.For, Count: len(keys)}
}

func (f *fakeServer) ReleaseOne(_ context.Context, _ int, value string, keys []string) adapter.Result {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.up {
		return adapter.Result{Kind: adapter.AgainstTransport, Err: errFakeDown}
	}

	count := 0

	for _, k := range keys {
		if e, ok := f.store[k]; ok && e.value == value {
			delete(f.store, k)
			count++
		}
	}

	return adapter.Result{Kind: adapter.For, Count: count}
}

func newFakeServers(n int) []serverAdapter {
	servers := make([]serverAdapter, n)
	for i := range servers {
		servers[i] = newFakeServer(namesFor(i))
	}

	return servers
}

func namesFor(i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	if i < len(letters) {
		return "fake-" + string(letters[i])
	}

	return "fake-extra"
}
