package redlock

import (
	"context"
	"sync"

	"github.com/kalbasit/redlock/internal/adapter"
)

// serverOp is one of acquire/extend/release bound to its call arguments,
// so the Vote Collector can drive every server uniformly.
type serverOp func(ctx context.Context, s serverAdapter) adapter.Result

// runAttempt is the Vote Collector: one fan-out to every server in
// servers, run in parallel, resolving "for" or "against" the instant
// either side's vote count reaches quorum. The returned stats' Done()
// channel only closes later, once all len(servers) RPCs have settled —
// runAttempt itself returns as soon as the decision is forced.
//
// onVoteAgainst, if non-nil, is called once per against-vote (including
// its underlying error) for observability; it must not block.
func runAttempt(
	ctx context.Context,
	servers []serverAdapter,
	onVoteAgainst func(server string, err error),
	op serverOp,
) (forWon bool, stats *ExecutionStats) {
	n := len(servers)
	stats = newExecutionStats(n)

	decided := make(chan bool, 1)

	var decideOnce sync.Once
	var wg sync.WaitGroup

	wg.Add(n)

	for _, srv := range servers {
		srv := srv

		go func() {
			defer wg.Done()

			res := op(ctx, srv)

			var forCount, againstCount, total int

			if res.Kind == adapter.For {
				forCount, total = stats.recordFor(srv.Name())
			} else {
				voteErr := wrapVoteError(srv.Name(), res)
				if onVoteAgainst != nil {
					onVoteAgainst(srv.Name(), voteErr)
				}

				againstCount, total = stats.recordAgainst(srv.Name(), voteErr)
			}

			switch {
			case forCount >= stats.Quorum:
				decideOnce.Do(func() { decided <- true })
			case againstCount >= stats.Quorum:
				decideOnce.Do(func() { decided <- false })
			}

			if total == n {
				stats.markDone()
			}
		}()
	}

	// If N settles without either side ever reaching quorum (possible
	// only with an even membership split exactly down the middle), no
	// goroutine above ever calls decideOnce.Do; this drains wg and
	// resolves the attempt "against" so the Retry Engine retries.
	go func() {
		wg.Wait()
		decideOnce.Do(func() { decided <- false })
	}()

	forWon = <-decided

	return forWon, stats
}

func wrapVoteError(server string, res adapter.Result) error {
	switch res.Kind {
	case adapter.AgainstConflict:
		return &ResourceLockedError{Server: server}
	case adapter.AgainstTransport:
		return &TransportError{Server: server, Err: res.Err}
	default:
		return res.Err
	}
}
