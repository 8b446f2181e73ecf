package onething

import (
	"context"
	"net/http"

	"github.com/petal-labs/onething/core"
)

// generationPath is the submission endpoint for every job kind.
const generationPath = "/generation"

// GenerateImage submits an image job in sync mode and returns the finished
// job. A job that failed server-side is returned as a *core.JobError.
func (c *Client) GenerateImage(ctx context.Context, req *ImageRequest) (*core.ImageJob, error) {
	body, err := prepareImage(req, SyncModeSync, false)
	if err != nil {
		return nil, err
	}
	job, err := submit[core.ImageResult](ctx, c, body)
	if err != nil {
		return nil, err
	}
	if job.Status == core.StatusFailed {
		return nil, &core.JobError{JobID: job.ID, Detail: job.Error}
	}
	return job, nil
}

// SubmitImage submits an image job in async mode and returns the job as
// accepted. Use WaitForImage or WatchImage to follow it.
func (c *Client) SubmitImage(ctx context.Context, req *ImageRequest) (*core.ImageJob, error) {
	body, err := prepareImage(req, SyncModeAsync, false)
	if err != nil {
		return nil, err
	}
	return submit[core.ImageResult](ctx, c, body)
}

// StreamImage submits an image job and returns its event stream.
// The caller must close the reader.
func (c *Client) StreamImage(ctx context.Context, req *ImageRequest) (*core.EventReader[core.ImageResult], error) {
	body, err := prepareImage(req, SyncModeSync, true)
	if err != nil {
		return nil, err
	}
	lines, err := c.StreamRequest(ctx, http.MethodPost, generationPath, body)
	if err != nil {
		return nil, err
	}
	return core.NewEventReader[core.ImageResult](lines), nil
}

// GenerateVideo submits a video job, async unless the request asks for
// sync mode.
func (c *Client) GenerateVideo(ctx context.Context, req *VideoRequest) (*core.VideoJob, error) {
	body, err := prepareVideo(req)
	if err != nil {
		return nil, err
	}
	job, err := submit[core.VideoResult](ctx, c, body)
	if err != nil {
		return nil, err
	}
	if job.Status == core.StatusFailed {
		return nil, &core.JobError{JobID: job.ID, Detail: job.Error}
	}
	return job, nil
}

// GenerateText runs a text job and returns the service envelope.
func (c *Client) GenerateText(ctx context.Context, req *TextRequest) (*core.Response[core.TextChunk], error) {
	body, err := prepareText(req, false)
	if err != nil {
		return nil, err
	}

	var env core.Response[core.TextChunk]
	resp, err := c.Do(ctx, http.MethodPost, generationPath, body, &env)
	if err != nil {
		return nil, err
	}
	if env.RequestID == "" {
		env.RequestID = resp.RequestID()
	}
	return &env, nil
}

// StreamText runs a text job and returns its chunk stream.
// The caller must close the reader.
func (c *Client) StreamText(ctx context.Context, req *TextRequest) (*core.TextReader, error) {
	body, err := prepareText(req, true)
	if err != nil {
		return nil, err
	}
	lines, err := c.StreamRequest(ctx, http.MethodPost, generationPath, body)
	if err != nil {
		return nil, err
	}
	return core.NewTextReader(lines), nil
}

// submit posts a prepared body and unwraps the job from the envelope.
func submit[T any](ctx context.Context, c *Client, body any) (*core.Job[T], error) {
	var env core.Response[core.Job[T]]
	resp, err := c.Do(ctx, http.MethodPost, generationPath, body, &env)
	if err != nil {
		return nil, err
	}
	return unwrapJob(resp, &env)
}

func unwrapJob[T any](resp *Response, env *core.Response[core.Job[T]]) (*core.Job[T], error) {
	job := env.Data
	if !job.Status.Valid() {
		return nil, newDecodeError(errMissingJob, resp.RequestID())
	}
	job.RequestID = resp.RequestID()
	if job.RequestID == "" {
		job.RequestID = env.RequestID
	}
	return &job, nil
}

// prepareImage validates req and returns a copy with the mode fields set.
func prepareImage(req *ImageRequest, mode SyncMode, stream bool) (*ImageRequest, error) {
	if req == nil {
		return nil, core.NewValidationError("request", "request cannot be nil")
	}
	if err := core.ValidateModel(req.Model); err != nil {
		return nil, err
	}
	if err := core.ValidatePrompt(req.Prompt); err != nil {
		return nil, err
	}
	if req.N != 0 {
		if err := core.ValidateN(req.N, MaxImageN); err != nil {
			return nil, err
		}
	}
	if p := req.Parameters; p != nil && p.OutputConfig != nil {
		if oc := p.OutputConfig; oc.Width != 0 || oc.Height != 0 {
			if err := core.ValidateSize(oc.Width, oc.Height); err != nil {
				return nil, err
			}
		}
	}

	r := *req
	if r.JobType == "" {
		r.JobType = ImageJobGeneration
	}
	if !validImageJobType(r.JobType) {
		return nil, core.NewValidationError("job_type", "invalid image job type "+string(r.JobType))
	}
	r.SyncMode = mode
	r.Stream = stream
	return &r, nil
}

// prepareVideo validates req and returns a copy with defaults applied.
func prepareVideo(req *VideoRequest) (*VideoRequest, error) {
	if req == nil {
		return nil, core.NewValidationError("request", "request cannot be nil")
	}
	if err := core.ValidateModel(req.Model); err != nil {
		return nil, err
	}
	if err := core.ValidatePrompt(req.Prompt); err != nil {
		return nil, err
	}
	if req.N != 0 {
		if err := core.ValidateN(req.N, MaxVideoN); err != nil {
			return nil, err
		}
	}
	if p := req.Parameters; p != nil && p.OutputConfig != nil {
		if oc := p.OutputConfig; oc.Width != 0 || oc.Height != 0 {
			if err := core.ValidateSize(oc.Width, oc.Height); err != nil {
				return nil, err
			}
		}
	}

	r := *req
	if r.JobType == "" {
		r.JobType = VideoJobText2Video
	}
	if !validVideoJobType(r.JobType) {
		return nil, core.NewValidationError("job_type", "invalid video job type "+string(r.JobType))
	}
	if r.SyncMode == "" {
		r.SyncMode = SyncModeAsync
	}
	if r.SyncMode != SyncModeSync && r.SyncMode != SyncModeAsync {
		return nil, core.NewValidationError("sync_mode", "invalid sync mode "+string(r.SyncMode))
	}
	return &r, nil
}

// prepareText validates req and returns a copy with defaults applied.
func prepareText(req *TextRequest, stream bool) (*TextRequest, error) {
	if req == nil {
		return nil, core.NewValidationError("request", "request cannot be nil")
	}
	if err := core.ValidateModel(req.Model); err != nil {
		return nil, err
	}

	r := *req
	if r.JobType == "" {
		r.JobType = TextJobChatCompletions
	}
	if !validTextJobType(r.JobType) {
		return nil, core.NewValidationError("job_type", "invalid text job type "+string(r.JobType))
	}
	if r.JobType == TextJobChatCompletions && len(r.Messages) == 0 {
		return nil, core.NewValidationError("messages", "messages are required for chat/completions")
	}
	if r.JobType != TextJobChatCompletions && r.Prompt == "" {
		return nil, core.NewValidationError("prompt", "prompt is required for "+string(r.JobType))
	}
	r.Stream = stream
	return &r, nil
}
