package redlock

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// runWithRetry is the Retry Engine: it drives runAttempt across up to
// Settings.maxAttempts() attempts (or unboundedly, for
// Settings.RetryCount == UnboundedRetries), sleeping a jittered delay
// between failed attempts, until a quorum "for" decision or the budget
// (or ctx) is exhausted.
func runWithRetry(
	ctx context.Context,
	servers []serverAdapter,
	settings Settings,
	onVoteAgainst func(server string, err error),
	op serverOp,
) (*ExecutionResult, error) {
	max := settings.maxAttempts()

	var attempts []*ExecutionStats

	for attempt := 0; max < 0 || attempt < max; attempt++ {
		start := time.Now()

		forWon, stats := runAttempt(ctx, servers, onVoteAgainst, op)
		attempts = append(attempts, stats)

		if forWon {
			return &ExecutionResult{Attempts: attempts, Start: start}, nil
		}

		moreAttemptsRemain := max < 0 || attempt+1 < max
		if !moreAttemptsRemain {
			break
		}

		if err := sleepInterruptible(ctx, nextDelay(settings)); err != nil {
			return nil, err
		}
	}

	return nil, &ExecutionFailedError{
		Message:  "quorum not reached within the retry budget",
		Attempts: attempts,
		Err:      aggregateAgainstErrors(attempts),
	}
}

func sleepInterruptible(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// aggregateAgainstErrors collects every against-vote error observed
// across every attempt into a single multierror, so ExecutionFailedError
// carries a structured cause chain instead of a single flattened string.
func aggregateAgainstErrors(attempts []*ExecutionStats) error {
	var result *multierror.Error

	for _, a := range attempts {
		for server, err := range a.VotesAgainst() {
			if err == nil {
				continue
			}

			result = multierror.Append(result, fmt.Errorf("%s: %w", server, err))
		}
	}

	if result == nil {
		return nil
	}

	return result
}
