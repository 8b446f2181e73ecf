package onething

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/petal-labs/onething/core"
)

// progressBuffer is the number of progress updates a JobWatch holds for a
// slow consumer before dropping new ones.
const progressBuffer = 16

// GetImageJob fetches the current state of an image job.
func (c *Client) GetImageJob(ctx context.Context, jobID string) (*core.ImageJob, error) {
	return getJob[core.ImageResult](ctx, c, jobID)
}

// GetVideoJob fetches the current state of a video job.
func (c *Client) GetVideoJob(ctx context.Context, jobID string) (*core.VideoJob, error) {
	return getJob[core.VideoResult](ctx, c, jobID)
}

func getJob[T any](ctx context.Context, c *Client, jobID string) (*core.Job[T], error) {
	if err := core.ValidateJobID(jobID); err != nil {
		return nil, err
	}
	req := StatusRequest{JobID: jobID}

	var env core.Response[core.Job[T]]
	resp, err := c.Do(ctx, http.MethodGet, req.path(), nil, &env)
	if err != nil {
		return nil, err
	}
	job, err := unwrapJob(resp, &env)
	if err != nil {
		return nil, err
	}
	if job.ID == "" {
		job.ID = jobID
	}
	return job, nil
}

// WaitForImage blocks until the image job finishes or a polling bound is hit.
func (c *Client) WaitForImage(ctx context.Context, jobID string, opts core.PollOptions) (*core.ImageJob, error) {
	return waitForJob[core.ImageResult](ctx, c, jobID, c.GetImageJob, opts)
}

// WaitForVideo blocks until the video job finishes or a polling bound is hit.
func (c *Client) WaitForVideo(ctx context.Context, jobID string, opts core.PollOptions) (*core.VideoJob, error) {
	return waitForJob[core.VideoResult](ctx, c, jobID, c.GetVideoJob, opts)
}

func waitForJob[T any](ctx context.Context, c *Client, jobID string, fetch core.JobFetcher[T], opts core.PollOptions) (*core.Job[T], error) {
	if err := core.ValidateJobID(jobID); err != nil {
		return nil, err
	}
	if opts.Clock == nil {
		opts.Clock = c.config.Clock
	}

	user := opts.OnProgress
	opts.OnProgress = func(progress float64, status core.Status) {
		c.log.Debug("job progress",
			zap.String("job_id", jobID),
			zap.String("status", string(status)),
			zap.Float64("progress", progress),
		)
		if user != nil {
			user(progress, status)
		}
	}

	job, err := core.PollJob(ctx, jobID, fetch, opts)
	if err != nil {
		c.log.Debug("job wait ended", zap.String("job_id", jobID), zap.Error(err))
		return nil, err
	}
	return job, nil
}

// JobProgress is one progress observation of a watched job.
type JobProgress struct {
	JobID    string
	Progress float64
	Status   core.Status
}

// JobWatch follows a job from a background goroutine.
//
// Progress receives observations and is never blocking for the poller:
// when the consumer lags, updates are dropped. Exactly one of Err or Final
// receives a value, after which all three channels are closed.
type JobWatch[T any] struct {
	Progress <-chan JobProgress
	Err      <-chan error
	Final    <-chan *core.Job[T]
}

// Wait blocks until the watch finishes and returns its outcome.
func (w *JobWatch[T]) Wait() (*core.Job[T], error) {
	if job, ok := <-w.Final; ok {
		return job, nil
	}
	return nil, <-w.Err
}

// WatchImage follows an image job in the background. Cancel ctx to stop.
func (c *Client) WatchImage(ctx context.Context, jobID string, opts core.PollOptions) *JobWatch[core.ImageResult] {
	return watchJob[core.ImageResult](ctx, c, jobID, c.GetImageJob, opts)
}

// WatchVideo follows a video job in the background. Cancel ctx to stop.
func (c *Client) WatchVideo(ctx context.Context, jobID string, opts core.PollOptions) *JobWatch[core.VideoResult] {
	return watchJob[core.VideoResult](ctx, c, jobID, c.GetVideoJob, opts)
}

func watchJob[T any](ctx context.Context, c *Client, jobID string, fetch core.JobFetcher[T], opts core.PollOptions) *JobWatch[T] {
	progressCh := make(chan JobProgress, progressBuffer)
	errCh := make(chan error, 1)
	finalCh := make(chan *core.Job[T], 1)

	user := opts.OnProgress
	opts.OnProgress = func(progress float64, status core.Status) {
		if user != nil {
			user(progress, status)
		}
		select {
		case progressCh <- JobProgress{JobID: jobID, Progress: progress, Status: status}:
		default:
		}
	}

	go func() {
		defer close(progressCh)
		defer close(errCh)
		defer close(finalCh)

		job, err := waitForJob(ctx, c, jobID, fetch, opts)
		if err != nil {
			errCh <- err
			return
		}
		finalCh <- job
	}()

	return &JobWatch[T]{
		Progress: progressCh,
		Err:      errCh,
		Final:    finalCh,
	}
}
