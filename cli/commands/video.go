package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/petal-labs/onething/cli/jobstore"
	"github.com/petal-labs/onething/core"
	"github.com/petal-labs/onething/providers/onething"
)

type videoOptions struct {
	prompt         string
	n              int
	width          int
	height         int
	duration       int
	fps            int
	seed           int
	negativePrompt string
	audio          bool
	jobType        string
	images         []string
	videos         []string
	wait           bool
}

func (a *App) newVideoCommand() *cobra.Command {
	var (
		opts videoOptions
		poll pollFlags
	)

	cmd := &cobra.Command{
		Use:   "video",
		Short: "Submit a video generation job",
		Long: `Submit a text-to-video or image-to-video job.

Video jobs run asynchronously: the command prints the job id and exits
unless --wait is given, in which case it polls until the job finishes.

Examples:
  onething video --model wan-2 --prompt "waves at night" --duration 5
  onething video --prompt "animate this" --image https://cdn.example/still.png --wait`,
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("seed") {
				opts.seed = -1
			}
			return a.runVideo(cmd.Context(), opts, poll.options(a, cmd))
		}),
	}

	f := cmd.Flags()
	f.StringVar(&opts.prompt, "prompt", "", "text prompt (required)")
	f.IntVar(&opts.n, "n", 0, "number of videos (0 = service default)")
	f.IntVar(&opts.width, "width", 0, "output width in pixels")
	f.IntVar(&opts.height, "height", 0, "output height in pixels")
	f.IntVar(&opts.duration, "duration", 0, "clip length in seconds")
	f.IntVar(&opts.fps, "fps", 0, "frames per second")
	f.IntVar(&opts.seed, "seed", 0, "random seed")
	f.StringVar(&opts.negativePrompt, "negative-prompt", "", "content to steer away from")
	f.BoolVar(&opts.audio, "audio", false, "generate an audio track")
	f.StringVar(&opts.jobType, "job-type", "", "text2video or image2video (default depends on --image)")
	f.StringArrayVar(&opts.images, "image", nil, "input image URL or file path (repeatable)")
	f.StringArrayVar(&opts.videos, "input-video", nil, "input video URL (repeatable)")
	f.BoolVar(&opts.wait, "wait", false, "poll until the job finishes")
	poll.register(cmd)
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}

func (a *App) buildVideoRequest(opts videoOptions) (*onething.VideoRequest, error) {
	model, err := a.requireModel()
	if err != nil {
		return nil, err
	}

	req := &onething.VideoRequest{
		Model:   model,
		Prompt:  opts.prompt,
		N:       opts.n,
		JobType: onething.VideoJobType(opts.jobType),
	}
	if req.JobType == "" && len(opts.images) > 0 {
		req.JobType = onething.VideoJobImage2Video
	}

	var params onething.VideoParameters
	if opts.width != 0 || opts.height != 0 || opts.duration != 0 || opts.fps != 0 {
		params.OutputConfig = &onething.VideoOutputConfig{
			Width:    opts.width,
			Height:   opts.height,
			Duration: opts.duration,
			Fps:      opts.fps,
		}
	}
	for _, in := range opts.images {
		img, err := inputImage(in)
		if err != nil {
			return nil, exitWithCode(ExitValidation, err)
		}
		params.InputImages = append(params.InputImages, img)
	}
	for _, in := range opts.videos {
		params.InputVideos = append(params.InputVideos, onething.URLToInputVideo(in))
	}
	if params.OutputConfig != nil || len(params.InputImages) > 0 || len(params.InputVideos) > 0 {
		req.Parameters = &params
	}

	if opts.seed >= 0 || opts.negativePrompt != "" || opts.audio {
		req.Extra = &onething.VideoExtra{
			AudioEnabled:   opts.audio,
			NegativePrompt: opts.negativePrompt,
		}
		if opts.seed >= 0 {
			req.Extra.Seed = onething.Ptr(opts.seed)
		}
	}
	return req, nil
}

func (a *App) runVideo(ctx context.Context, opts videoOptions, pollOpts core.PollOptions) error {
	req, err := a.buildVideoRequest(opts)
	if err != nil {
		return err
	}

	client, err := a.client()
	if err != nil {
		return err
	}
	defer client.Close()

	job, err := client.GenerateVideo(ctx, req)
	if err != nil {
		a.recordFailure(ctx, jobstore.KindVideo, req.Model, req.Prompt, err)
		return err
	}

	urls := core.VideoURLs(job)
	a.recordJob(ctx, jobstore.Record{
		ID:        job.ID,
		Kind:      jobstore.KindVideo,
		Model:     req.Model,
		Prompt:    req.Prompt,
		Status:    job.Status,
		Progress:  job.Progress,
		URLs:      urls,
		RequestID: job.RequestID,
	})

	if !opts.wait || job.Status.Terminal() {
		return a.printOutcome(outcomeOf(jobstore.KindVideo, job, urls))
	}

	o, err := a.follow(ctx, client, job.ID, jobstore.KindVideo, pollOpts, true)
	a.syncLedger(ctx, o)
	if o.Status != "" {
		if perr := a.printOutcome(o); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}
