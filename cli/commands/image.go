package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petal-labs/onething/cli/jobstore"
	"github.com/petal-labs/onething/core"
	"github.com/petal-labs/onething/providers/onething"
)

type imageOptions struct {
	prompt  string
	n       int
	width   int
	height  int
	format  string
	seed    int
	style   string
	jobType string
	inputs  []string
	async   bool
	stream  bool
}

func (a *App) newImageCommand() *cobra.Command {
	var opts imageOptions

	cmd := &cobra.Command{
		Use:   "image",
		Short: "Generate or edit images",
		Long: `Generate, edit or vary images.

By default the request runs synchronously and prints the artifact URLs.
Use --async to submit and return the job id, or --stream to follow
server-sent progress events.

Examples:
  onething image --model flux-dev --prompt "a lighthouse at dusk"
  onething image --prompt "make it snow" --job-type edit --input ./photo.png
  onething image --prompt "a fox" --async --json`,
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("seed") {
				opts.seed = -1
			}
			return a.runImage(cmd.Context(), opts)
		}),
	}

	f := cmd.Flags()
	f.StringVar(&opts.prompt, "prompt", "", "text prompt (required)")
	f.IntVar(&opts.n, "n", 0, "number of images (0 = service default)")
	f.IntVar(&opts.width, "width", 0, "output width in pixels")
	f.IntVar(&opts.height, "height", 0, "output height in pixels")
	f.StringVar(&opts.format, "format", "", "response format: url or b64_json")
	f.IntVar(&opts.seed, "seed", 0, "random seed")
	f.StringVar(&opts.style, "style", "", "style preset (vivid, natural)")
	f.StringVar(&opts.jobType, "job-type", "", "generation, edit or variation")
	f.StringArrayVar(&opts.inputs, "input", nil, "input image URL or file path (repeatable)")
	f.BoolVar(&opts.async, "async", false, "submit the job and return immediately")
	f.BoolVar(&opts.stream, "stream", false, "stream progress events")
	cmd.MarkFlagsMutuallyExclusive("async", "stream")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}

func (a *App) buildImageRequest(opts imageOptions) (*onething.ImageRequest, error) {
	model, err := a.requireModel()
	if err != nil {
		return nil, err
	}

	req := &onething.ImageRequest{
		Model:   model,
		Prompt:  opts.prompt,
		N:       opts.n,
		JobType: onething.ImageJobType(opts.jobType),
	}

	var params onething.ImageParameters
	if opts.width != 0 || opts.height != 0 || opts.format != "" {
		params.OutputConfig = &onething.ImageOutputConfig{
			Width:          opts.width,
			Height:         opts.height,
			ResponseFormat: onething.ResponseFormat(opts.format),
		}
	}
	for _, in := range opts.inputs {
		img, err := inputImage(in)
		if err != nil {
			return nil, exitWithCode(ExitValidation, err)
		}
		params.InputImages = append(params.InputImages, img)
	}
	if params.OutputConfig != nil || len(params.InputImages) > 0 {
		req.Parameters = &params
	}

	if opts.seed >= 0 || opts.style != "" {
		req.Extra = &onething.ImageExtra{Style: onething.ImageStyle(opts.style)}
		if opts.seed >= 0 {
			req.Extra.Seed = onething.Ptr(opts.seed)
		}
	}
	return req, nil
}

// inputImage treats http(s) and data URLs as references and anything else as a local file.
func inputImage(ref string) (onething.InputImage, error) {
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return onething.URLToInputImage(ref), nil
	case strings.HasPrefix(ref, "data:"):
		return onething.B64ToInputImage(ref), nil
	default:
		return onething.FileToInputImage(ref)
	}
}

func (a *App) runImage(ctx context.Context, opts imageOptions) error {
	req, err := a.buildImageRequest(opts)
	if err != nil {
		return err
	}

	client, err := a.client()
	if err != nil {
		return err
	}
	defer client.Close()

	if opts.stream {
		return a.streamImage(ctx, client, req)
	}

	var job *core.ImageJob
	if opts.async {
		job, err = client.SubmitImage(ctx, req)
	} else {
		job, err = client.GenerateImage(ctx, req)
	}
	if err != nil {
		a.recordFailure(ctx, jobstore.KindImage, req.Model, req.Prompt, err)
		return err
	}

	urls := core.ImageURLs(job)
	a.recordJob(ctx, jobstore.Record{
		ID:        job.ID,
		Kind:      jobstore.KindImage,
		Model:     req.Model,
		Prompt:    req.Prompt,
		Status:    job.Status,
		Progress:  job.Progress,
		URLs:      urls,
		RequestID: job.RequestID,
	})
	return a.printOutcome(outcomeOf(jobstore.KindImage, job, urls))
}

func (a *App) streamImage(ctx context.Context, client *onething.Client, req *onething.ImageRequest) error {
	reader, err := client.StreamImage(ctx, req)
	if err != nil {
		return err
	}
	defer reader.Close()

	p := a.palette(a.stdout)
	for {
		ev, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if a.jsonOutput {
			if err := writeJSON(a.stdout, eventView(ev)); err != nil {
				return err
			}
			continue
		}
		switch {
		case ev.IsError():
			fmt.Fprintf(a.stdout, "%s %v\n", p.err.Sprint("error"), ev.Error)
		case ev.Type == core.EventPartialResult && ev.Data != nil:
			fmt.Fprintf(a.stdout, "%s [%d] %s\n", p.ok.Sprint("image"), ev.Data.Index, ev.Data.URL)
		case ev.IsDone():
			fmt.Fprintln(a.stdout, p.bold.Sprint("done"))
		default:
			a.log.Debug("stream event", zap.String("type", string(ev.Type)))
		}
	}
}

func eventView[T any](ev *core.StreamEvent[T]) map[string]any {
	view := map[string]any{"type": ev.Type}
	if ev.Data != nil {
		view["data"] = ev.Data
	}
	if ev.Error != nil {
		view["error"] = ev.Error
	}
	return view
}

// recordFailure keeps failed synchronous jobs in the ledger when the server
// reported a job id.
func (a *App) recordFailure(ctx context.Context, kind jobstore.Kind, model, prompt string, err error) {
	var je *core.JobError
	if !errors.As(err, &je) || je.JobID == "" {
		return
	}
	a.recordJob(ctx, jobstore.Record{
		ID:        je.JobID,
		Kind:      kind,
		Model:     model,
		Prompt:    prompt,
		Status:    core.StatusFailed,
		Error:     fmt.Sprint(je.Detail),
		RequestID: core.RequestIDOf(err),
	})
}
