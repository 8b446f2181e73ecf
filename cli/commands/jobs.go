package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/petal-labs/onething/cli/jobstore"
	"github.com/petal-labs/onething/core"
	"github.com/petal-labs/onething/providers/onething"
)

// maxConcurrentWaits bounds how many jobs 'jobs wait' polls at once.
const maxConcurrentWaits = 4

type pollFlags struct {
	interval    time.Duration
	timeout     time.Duration
	maxAttempts int
}

func (f *pollFlags) register(cmd *cobra.Command) {
	cmd.Flags().DurationVar(&f.interval, "interval", 0, "time between status checks (default from config, 2s)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "give up after this long (default from config, 5m)")
	cmd.Flags().IntVar(&f.maxAttempts, "max-attempts", 0, "give up after this many status checks (0 = unlimited)")
}

// options layers explicitly set flags over the config poll section.
func (f *pollFlags) options(a *App, cmd *cobra.Command) core.PollOptions {
	opts := a.cfg.PollOptions()
	if cmd.Flags().Changed("interval") {
		opts.Interval = f.interval
	}
	if cmd.Flags().Changed("timeout") {
		opts.Timeout = f.timeout
	}
	if cmd.Flags().Changed("max-attempts") {
		opts.MaxAttempts = f.maxAttempts
	}
	return opts
}

func (a *App) newJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and wait on generation jobs",
	}
	cmd.AddCommand(a.newJobsGetCommand())
	cmd.AddCommand(a.newJobsWaitCommand())
	cmd.AddCommand(a.newJobsListCommand())
	return cmd
}

func (a *App) newJobsGetCommand() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Fetch the current state of a job",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]
			k, err := a.resolveKind(ctx, id, kind)
			if err != nil {
				return err
			}

			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()

			var o jobOutcome
			switch k {
			case jobstore.KindVideo:
				job, err := client.GetVideoJob(ctx, id)
				if err != nil {
					return err
				}
				o = outcomeOf(k, job, core.VideoURLs(job))
			default:
				job, err := client.GetImageJob(ctx, id)
				if err != nil {
					return err
				}
				o = outcomeOf(k, job, core.ImageURLs(job))
			}
			a.syncLedger(ctx, o)
			return a.printOutcome(o)
		}),
	}
	cmd.Flags().StringVar(&kind, "kind", "", "image or video (default from the local ledger, else image)")
	return cmd
}

func (a *App) newJobsWaitCommand() *cobra.Command {
	var (
		kind string
		poll pollFlags
	)

	cmd := &cobra.Command{
		Use:   "wait <job-id>...",
		Short: "Wait for one or more jobs to finish",
		Long: `Poll jobs until they succeed or fail.

Several jobs are polled concurrently. The exit code reflects the first
failure: 4 when a job failed, 5 when a wait bound was reached.`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.client()
			if err != nil {
				return err
			}
			defer client.Close()

			opts := poll.options(a, cmd)
			outcomes := make([]jobOutcome, len(args))

			var g errgroup.Group
			g.SetLimit(maxConcurrentWaits)
			for i, id := range args {
				g.Go(func() error {
					k, err := a.resolveKind(ctx, id, kind)
					if err != nil {
						outcomes[i] = jobOutcome{ID: id, Kind: jobstore.Kind(kind)}
						return err
					}
					o, err := a.follow(ctx, client, id, k, opts, len(args) == 1)
					outcomes[i] = o
					a.syncLedger(ctx, o)
					return err
				})
			}
			waitErr := g.Wait()

			if len(args) == 1 && outcomes[0].Status != "" {
				if err := a.printOutcome(outcomes[0]); err != nil {
					return err
				}
			} else if len(args) > 1 {
				if err := a.printOutcomes(outcomes); err != nil {
					return err
				}
			}
			return waitErr
		}),
	}
	cmd.Flags().StringVar(&kind, "kind", "", "image or video (default from the local ledger, else image)")
	poll.register(cmd)
	return cmd
}

func (a *App) newJobsListCommand() *cobra.Command {
	var (
		kind   string
		status string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs recorded in the local ledger",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			filter := jobstore.Filter{
				Kind:   jobstore.Kind(kind),
				Status: core.Status(status),
				Limit:  limit,
			}
			if filter.Kind != "" && filter.Kind != jobstore.KindImage && filter.Kind != jobstore.KindVideo {
				return validationf("invalid --kind %q: want image or video", kind)
			}
			if filter.Status != "" && !filter.Status.Valid() {
				return validationf("invalid --status %q", status)
			}

			var records []jobstore.Record
			err := a.withJobs(func(s *jobstore.Store) error {
				var err error
				records, err = s.List(cmd.Context(), filter)
				return err
			})
			if err != nil {
				return fmt.Errorf("read job ledger: %w", err)
			}
			return a.printRecords(records)
		}),
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only image or video jobs")
	cmd.Flags().StringVar(&status, "status", "", "only jobs in this status")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of jobs (0 = all)")
	return cmd
}

// resolveKind prefers the flag, then the ledger, then image.
func (a *App) resolveKind(ctx context.Context, id, flag string) (jobstore.Kind, error) {
	switch jobstore.Kind(flag) {
	case jobstore.KindImage, jobstore.KindVideo:
		return jobstore.Kind(flag), nil
	case "":
	default:
		return "", validationf("invalid --kind %q: want image or video", flag)
	}

	var kind jobstore.Kind
	err := a.withJobs(func(s *jobstore.Store) error {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		kind = rec.Kind
		return nil
	})
	if err != nil {
		if !errors.Is(err, jobstore.ErrNotFound) {
			a.log.Warn("job ledger lookup failed", zap.String("job_id", id), zap.Error(err))
		}
		return jobstore.KindImage, nil
	}
	return kind, nil
}

// follow watches a job to completion, driving a progress bar when showBar is set.
func (a *App) follow(ctx context.Context, client *onething.Client, id string, kind jobstore.Kind, opts core.PollOptions, showBar bool) (jobOutcome, error) {
	if kind == jobstore.KindVideo {
		job, err := watch(a, client.WatchVideo(ctx, id, opts), id, showBar)
		return finished(kind, id, job, core.VideoURLs, err)
	}
	job, err := watch(a, client.WatchImage(ctx, id, opts), id, showBar)
	return finished(kind, id, job, core.ImageURLs, err)
}

func watch[T any](a *App, w *onething.JobWatch[T], id string, showBar bool) (*core.Job[T], error) {
	var bar *progressbar.ProgressBar
	if showBar {
		bar = a.newProgressBar(id)
	}
	last := core.Status("")
	for p := range w.Progress {
		setProgress(bar, p.Progress)
		if p.Status != last {
			a.log.Info("job status", zap.String("job_id", p.JobID), zap.String("status", string(p.Status)))
			last = p.Status
		}
	}
	finishProgress(bar)
	return w.Wait()
}

// finished builds the outcome of a wait. A failed job still yields an
// outcome carrying the server's error payload.
func finished[T any](kind jobstore.Kind, id string, job *core.Job[T], urls func(*core.Job[T]) []string, err error) (jobOutcome, error) {
	if job != nil {
		return outcomeOf(kind, job, urls(job)), err
	}
	o := jobOutcome{ID: id, Kind: kind}
	var je *core.JobError
	if errors.As(err, &je) {
		o.Status = core.StatusFailed
		o.Error = je.Detail
	}
	return o, err
}

// syncLedger writes the latest known state of a job, inserting it when it
// was submitted elsewhere.
func (a *App) syncLedger(ctx context.Context, o jobOutcome) {
	if o.Status == "" {
		return
	}
	var errText string
	if o.Error != nil {
		errText = fmt.Sprint(o.Error)
	}
	err := a.withJobs(func(s *jobstore.Store) error {
		err := s.UpdateStatus(ctx, o.ID, jobstore.Update{
			Status:   o.Status,
			Progress: o.Progress,
			URLs:     o.URLs,
			Error:    errText,
		})
		if errors.Is(err, jobstore.ErrNotFound) {
			return s.Save(ctx, jobstore.Record{
				ID:        o.ID,
				Kind:      o.Kind,
				Status:    o.Status,
				Progress:  o.Progress,
				URLs:      o.URLs,
				Error:     errText,
				RequestID: o.RequestID,
			})
		}
		return err
	})
	if err != nil {
		a.log.Warn("failed to update job ledger", zap.String("job_id", o.ID), zap.Error(err))
	}
}

func (a *App) printOutcomes(outcomes []jobOutcome) error {
	if a.jsonOutput {
		return writeJSON(a.stdout, outcomes)
	}

	p := a.palette(a.stdout)
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		status := "unknown"
		if o.Status != "" {
			status = p.status(o.Status)
		}
		rows = append(rows, []string{o.ID, string(o.Kind), status, formatProgress(o.Progress), strconv.Itoa(len(o.URLs))})
	}
	fmt.Fprintln(a.stdout, renderTable(
		[]string{"JOB", "KIND", "STATUS", "PROGRESS", "OUTPUTS"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	))
	return nil
}

func (a *App) printRecords(records []jobstore.Record) error {
	if a.jsonOutput {
		if records == nil {
			records = []jobstore.Record{}
		}
		return writeJSON(a.stdout, records)
	}
	if len(records) == 0 {
		fmt.Fprintln(a.stdout, "No jobs recorded.")
		return nil
	}

	p := a.palette(a.stdout)
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			string(r.Kind),
			r.Model,
			p.status(r.Status),
			formatProgress(r.Progress),
			strconv.Itoa(len(r.URLs)),
			r.CreatedAt.Local().Format(time.DateTime),
		})
	}
	fmt.Fprintln(a.stdout, renderTable(
		[]string{"JOB", "KIND", "MODEL", "STATUS", "PROGRESS", "OUTPUTS", "CREATED"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	return nil
}
