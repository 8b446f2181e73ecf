package core

import (
	"context"
	"strconv"
	"time"
)

// Clock abstracts wall time and the wait primitive used between retries and
// polls, so the same loops serve blocking callers, goroutine-based callers
// and tests.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Sleep blocks for d, returning ctx.Err() if ctx is done first.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ Clock = SystemClock{}

// PollOptions configure async job polling behavior.
type PollOptions struct {
	// MaxAttempts is the maximum number of status fetches (0 = unlimited).
	MaxAttempts int

	// Interval is the time between status fetches.
	Interval time.Duration

	// Timeout bounds the total wall-clock wait (0 = unlimited).
	Timeout time.Duration

	// OnProgress is called after every fetch, including non-terminal ones.
	OnProgress func(progress float64, status Status)

	// Clock overrides the wait primitive. Defaults to SystemClock.
	Clock Clock
}

// DefaultPollOptions returns unlimited attempts, a 2s interval and a 5m timeout.
func DefaultPollOptions() PollOptions {
	return PollOptions{
		Interval: 2 * time.Second,
		Timeout:  5 * time.Minute,
	}
}

// JobFetcher retrieves the current state of a job.
type JobFetcher[T any] func(ctx context.Context, jobID string) (*Job[T], error)

// PollJob fetches a job until it reaches a terminal state or a bound is hit.
//
// Bounds are checked before each fetch, never during one. A failed job
// returns a *JobError immediately; a fetch error is returned unchanged
// since the fetcher is expected to apply its own retry policy.
func PollJob[T any](ctx context.Context, jobID string, fetch JobFetcher[T], opts PollOptions) (*Job[T], error) {
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	start := clock.Now()

	for attempt := 0; ; attempt++ {
		if opts.MaxAttempts > 0 && attempt >= opts.MaxAttempts {
			return nil, &TimeoutError{
				JobID:    jobID,
				Bound:    "attempts",
				Attempts: attempt,
				Limit:    strconv.Itoa(opts.MaxAttempts),
			}
		}
		if opts.Timeout > 0 && clock.Now().Sub(start) > opts.Timeout {
			return nil, &TimeoutError{
				JobID:    jobID,
				Bound:    "time",
				Attempts: attempt,
				Limit:    opts.Timeout.String(),
			}
		}

		job, err := fetch(ctx, jobID)
		if err != nil {
			return nil, err
		}

		if opts.OnProgress != nil {
			opts.OnProgress(job.Progress, job.Status)
		}

		switch job.Status {
		case StatusSuccess:
			return job, nil
		case StatusFailed:
			return nil, &JobError{JobID: jobID, Detail: job.Error}
		}

		if err := clock.Sleep(ctx, opts.Interval); err != nil {
			return nil, err
		}
	}
}
