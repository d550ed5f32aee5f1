// Package adapter talks to one Redis-compatible server on behalf of the
// Redlock quorum engine. It never returns an error to its caller except for
// programmer misuse (a nil client); every RPC failure, timeout, or
// conflicting key state is normalized into a Result so the layer above can
// treat it uniformly as a vote.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Kind classifies how a single server responded to one operation.
type Kind int

const (
	// For means the operation applied cleanly on this server.
	For Kind = iota
	// AgainstConflict means the keys were held by a different value.
	AgainstConflict
	// AgainstTransport means the RPC itself failed (timeout, connection
	// closed, unexpected reply shape).
	AgainstTransport
)

// Result is the normalized outcome of one adapter call.
type Result struct {
	Kind  Kind
	Count int   // number of keys the script reports as affected
	Err   error // diagnostic detail for AgainstConflict/AgainstTransport
}

// acquireScript creates every key with value=ARGV[2] and a millisecond TTL
// of ARGV[3], but only if none of KEYS already exists. It returns the count
// of keys created, or 0 if any key was already held.
var acquireScript = redis.NewScript(`
pcall(redis.call, 'SELECT', ARGV[1])
for i, key in ipairs(KEYS) do
	if redis.call('EXISTS', key) == 1 then
		return 0
	end
end
for i, key in ipairs(KEYS) do
	redis.call('SET', key, ARGV[2], 'PX', ARGV[3])
end
return #KEYS
`)

// extendScript refreshes the TTL of every key in KEYS to ARGV[3] ms, but
// only if every key currently holds value=ARGV[2]. It returns the count of
// keys refreshed, or 0 on any mismatch.
var extendScript = redis.NewScript(`
pcall(redis.call, 'SELECT', ARGV[1])
for i, key in ipairs(KEYS) do
	if redis.call('GET', key) ~= ARGV[2] then
		return 0
	end
end
for i, key in ipairs(KEYS) do
	redis.call('SET', key, ARGV[2], 'PX', ARGV[3])
end
return #KEYS
`)

// releaseScript deletes every key in KEYS whose current value equals
// ARGV[2]. It returns the count deleted; 0 is a valid, non-failing result.
var releaseScript = redis.NewScript(`
pcall(redis.call, 'SELECT', ARGV[1])
local count = 0
for i, key in ipairs(KEYS) do
	if redis.call('GET', key) == ARGV[2] then
		redis.call('DEL', key)
		count = count + 1
	end
end
return count
`)

// Adapter is the Server Adapter for one Redis-compatible node. The
// underlying go-redis Script wrapper handles script injection itself: it
// calls EVALSHA first and transparently falls back to EVAL (which also
// loads the script server-side) on a NOSCRIPT reply, so no separate
// injection step is required and repeated calls are idempotent.
type Adapter struct {
	client *redis.Client
	name   string
}

// New wraps client as a Server Adapter. name is a human-readable label
// (typically the server address) used only for logs and diagnostics.
func New(client *redis.Client, name string) *Adapter {
	if client == nil {
		panic("adapter: New called with a nil client")
	}

	return &Adapter{client: client, name: name}
}

// Name returns the adapter's label.
func (a *Adapter) Name() string { return a.name }

// AcquireOne attempts to create every key in keys atomically on this server.
func (a *Adapter) AcquireOne(ctx context.Context, db int, value string, duration time.Duration, keys []string) Result {
	return a.run(ctx, acquireScript, db, keys, value, durationMs(duration))
}

// ExtendOne attempts to refresh the TTL of every key in keys atomically on
// this server, conditioned on them all still holding value.
func (a *Adapter) ExtendOne(ctx context.Context, db int, value string, duration time.Duration, keys []string) Result {
	return a.run(ctx, extendScript, db, keys, value, durationMs(duration))
}

// ReleaseOne deletes every key in keys whose value matches. Unlike acquire
// and extend, a count below len(keys) is not a failure: release always
// returns For, never AgainstConflict.
func (a *Adapter) ReleaseOne(ctx context.Context, db int, value string, keys []string) Result {
	res, err := releaseScript.Run(ctx, a.client, keys, normalizeDB(db), value).Int()
	if err != nil {
		return Result{Kind: AgainstTransport, Err: fmt.Errorf("adapter %s: release: %w", a.name, err)}
	}

	return Result{Kind: For, Count: res}
}

func (a *Adapter) run(ctx context.Context, script *redis.Script, db int, keys []string, value string, ttlMs int64) Result {
	res, err := script.Run(ctx, a.client, keys, normalizeDB(db), value, ttlMs).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Result{Kind: AgainstConflict, Err: fmt.Errorf("adapter %s: key already held", a.name)}
		}

		return Result{Kind: AgainstTransport, Err: fmt.Errorf("adapter %s: %w", a.name, err)}
	}

	if res < len(keys) {
		return Result{
			Kind:  AgainstConflict,
			Count: res,
			Err:   fmt.Errorf("adapter %s: %d/%d keys held by another value", a.name, res, len(keys)),
		}
	}

	return Result{Kind: For, Count: res}
}

// normalizeDB silently coerces an out-of-range database index to 0,
// mirroring the source library's behavior: servers that don't support
// SELECT (e.g. a cluster node) tolerate it via the script's pcall guard.
func normalizeDB(db int) int {
	if db < 0 || db > 15 {
		return 0
	}

	return db
}

func durationMs(d time.Duration) int64 {
	return d.Milliseconds()
}
