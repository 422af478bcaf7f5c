package mthttp

import (
	"context"
	"errors"
	"time"

	"github.com/tanq16/mtdown/internal/utils"
)

type attemptOutcome int

const (
	attemptSucceeded attemptOutcome = iota
	attemptRetryPending
	attemptExhausted
	attemptCancelled
)

func (o attemptOutcome) String() string {
	switch o {
	case attemptSucceeded:
		return "succeeded"
	case attemptRetryPending:
		return "retry-pending"
	case attemptExhausted:
		return "exhausted"
	case attemptCancelled:
		return "cancelled"
	}
	return "unknown"
}

// retryState counts attempts for one segment. A failure before the last
// allowed attempt leads to a fixed back-off and a fresh attempt, except when
// the server ignores ranges, which no retry can change.
type retryState struct {
	policy  utils.RetryPolicy
	attempt int
}

func newRetryState(policy utils.RetryPolicy) *retryState {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &retryState{policy: policy}
}

func (r *retryState) begin() int {
	r.attempt++
	return r.attempt
}

func (r *retryState) resolve(ctx context.Context, err error) attemptOutcome {
	switch {
	case err == nil:
		return attemptSucceeded
	case ctx.Err() != nil:
		return attemptCancelled
	case r.attempt >= r.policy.MaxAttempts, errors.Is(err, utils.ErrRangeRequestsNotSupported):
		return attemptExhausted
	}
	return attemptRetryPending
}

// wait sleeps for the back-off, returning early with ctx's error.
func (r *retryState) wait(ctx context.Context) error {
	if r.policy.Backoff <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(r.policy.Backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
