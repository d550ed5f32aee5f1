package redlock

import (
	"context"
	"sync"
	"time"
)

// CancelSignal lets a function running under Use observe that its
// automatic extension has permanently failed, so it can abort its
// critical section early instead of running past the lock's true
// expiration.
type CancelSignal struct {
	aborted sync.Mutex // guards err below; held only briefly
	err     error
}

// Aborted reports whether automatic extension has given up, and if so,
// the error that caused it.
func (c *CancelSignal) Aborted() (bool, error) {
	c.aborted.Lock()
	defer c.aborted.Unlock()

	return c.err != nil, c.err
}

func (c *CancelSignal) signal(err error) {
	c.aborted.Lock()
	c.err = err
	c.aborted.Unlock()
}

// Use is the Scoped Holder: it acquires resources, invokes fn with a
// CancelSignal that reports when automatic extension has permanently
// failed, keeps the lock alive in the background for as long as fn runs,
// and releases it once fn returns — regardless of whether fn succeeded.
// An extension failure does not cancel fn's context; fn must poll the
// signal.
//
// AutomaticExtensionThreshold (after opts are applied) must leave at
// least 100ms of headroom before duration; otherwise Use returns an
// InvalidArgumentError before attempting to acquire anything.
func (m *Manager) Use(
	ctx context.Context,
	resources []string,
	duration time.Duration,
	fn func(ctx context.Context, cancel *CancelSignal) (any, error),
	opts ...Option,
) (any, error) {
	settings := m.settings.apply(opts...)

	if settings.AutomaticExtensionThreshold > duration-100*time.Millisecond {
		return nil, &InvalidArgumentError{
			Message: "automatic extension threshold leaves too little headroom before duration",
		}
	}

	lock, err := m.Acquire(ctx, resources, duration, opts...)
	if err != nil {
		return nil, err
	}

	holder := newScopedHolder(m, lock, duration, settings)
	holderCtx, cancelHolder := context.WithCancel(ctx)

	holder.start(holderCtx)

	defer func() {
		cancelHolder()
		holder.stop()
		holder.currentLock().Release(ctx)
	}()

	recordOperation(ctx, "use", 1, "success")

	return fn(holderCtx, holder.cancel)
}

// scopedHolder runs the background auto-extension loop for one Use call.
// It owns the Lock currently in effect: every successful extension
// tombstones the prior Lock and replaces it with the fresh one returned by
// Extend, per the "extend returns a new Lock" contract of Lock.Extend.
type scopedHolder struct {
	manager  *Manager
	duration time.Duration
	settings Settings

	cancel *CancelSignal

	mu      sync.Mutex
	lock    *Lock
	timer   *time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func newScopedHolder(m *Manager, lock *Lock, duration time.Duration, settings Settings) *scopedHolder {
	return &scopedHolder{
		manager:  m,
		lock:     lock,
		duration: duration,
		settings: settings,
		cancel:   &CancelSignal{},
	}
}

func (h *scopedHolder) currentLock() *Lock {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.lock
}

func (h *scopedHolder) setLock(lock *Lock) {
	h.mu.Lock()
	h.lock = lock
	h.mu.Unlock()
}

func (h *scopedHolder) start(ctx context.Context) {
	h.scheduleNext(ctx)
}

// scheduleNext arms a timer to fire AutomaticExtensionThreshold before the
// lock's current expiration. If that moment has already passed (a prior
// extension ran long), it fires immediately.
func (h *scopedHolder) scheduleNext(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.stopped {
		return
	}

	expiration := time.UnixMilli(h.lock.Expiration())
	fireAt := expiration.Add(-h.settings.AutomaticExtensionThreshold)

	delay := time.Until(fireAt)
	if delay < 0 {
		delay = 0
	}

	h.timer = time.AfterFunc(delay, func() { h.onTimer(ctx) })
}

// onTimer drives one trip through the state machine's [extending] state:
// on extend-failure while the current lock has not yet truly expired, it
// retries the extension immediately (tail-recursive, per spec); only once
// the lock's own expiration has passed does it give up and signal abort.
func (h *scopedHolder) onTimer(ctx context.Context) {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()

		return
	}
	h.wg.Add(1)
	h.mu.Unlock()

	defer h.wg.Done()

	for {
		current := h.currentLock()

		next, err := current.Extend(ctx, h.duration, WithDB(h.settings.DB))
		if err != nil {
			if time.Now().UnixMilli() < current.Expiration() {
				select {
				case <-ctx.Done():
					h.cancel.signal(ctx.Err())

					return
				default:
					continue
				}
			}

			h.cancel.signal(err)

			return
		}

		h.setLock(next)
		h.scheduleNext(ctx)

		return
	}
}

// stop disarms the pending timer and waits for any in-flight extension to
// finish, so the caller can safely release the lock afterward without
// racing a concurrent Extend.
func (h *scopedHolder) stop() {
	h.mu.Lock()
	h.stopped = true
	if h.timer != nil {
		h.timer.Stop()
	}
	h.mu.Unlock()

	h.wg.Wait()
}
