package crawler

import (
	"context"
	"log/slog"
	"time"
)

// defaultPollInterval is used when a caller passes a non-positive interval.
const defaultPollInterval = 100 * time.Millisecond

// Condition is polled by WaitUntil. An error counts as "not yet": the DOM
// being polled is re-rendering asynchronously and a failed lookup is expected.
type Condition func(ctx context.Context) (bool, error)

// WaitUntil polls cond every interval until it holds or timeout elapses.
// cond is evaluated once immediately. It returns (false, nil) on timeout and
// a non-nil error only when ctx itself is done.
func WaitUntil(ctx context.Context, timeout, interval time.Duration, cond Condition) (bool, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := cond(waitCtx)
		if err == nil && ok {
			return true, nil
		}
		if err != nil {
			slog.Debug("wait condition errored, polling again", "error", err)
		}

		select {
		case <-waitCtx.Done():
			if ctxErr := ctx.Err(); ctxErr != nil {
				return false, ctxErr
			}
			return false, nil
		case <-ticker.C:
		}
	}
}
