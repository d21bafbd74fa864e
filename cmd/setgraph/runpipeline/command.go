// Package runpipeline implements the "run-pipeline" subcommand: one
// scheduler tick across every configured source, fetching through
// whatever adapters are registered, landing results in bronze,
// transforming bronze into silver, and flushing run metrics.
//
// This is the batch-invocation shape cmd/nup's "update" subcommand
// uses (a single process run triggered by cron rather than a
// long-running daemon loop); the C6 scheduler's anti-overlap guard and
// adaptive interval take the place of cron's own scheduling.
package runpipeline

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/google/uuid"

	"github.com/corvyn/setgraph/cmd/setgraph/wiring"
	"github.com/corvyn/setgraph/internal/config"
	"github.com/corvyn/setgraph/internal/logging"
	"github.com/corvyn/setgraph/internal/observe"
	"github.com/corvyn/setgraph/internal/queue"
	"github.com/corvyn/setgraph/internal/scheduler"
)

type Command struct {
	Cfg       *config.Config
	batchSize int
}

func (*Command) Name() string     { return "run-pipeline" }
func (*Command) Synopsis() string { return "run one scheduler tick across every configured source" }
func (*Command) Usage() string {
	return `run-pipeline <flags>:
	Tick the scheduler, fetch due sources through their registered
	adapters, transform new bronze rows into silver, and flush run
	metrics.

`
}

func (cmd *Command) SetFlags(f *flag.FlagSet) {
	f.IntVar(&cmd.batchSize, "batch-size", 50, "Target tracks to fetch per due source")
}

func (cmd *Command) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	app, err := wiring.Build(ctx, cmd.Cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed wiring dependencies:", err)
		return subcommands.ExitFailure
	}
	defer app.Close()

	now := time.Now()
	batches, err := app.Scheduler.Tick(ctx, now, cmd.batchSize)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed ticking scheduler:", err)
		return subcommands.ExitFailure
	}

	for _, batch := range batches {
		cmd.runBatch(ctx, app, batch, now)
	}

	recs, err := app.Bronze.Unprocessed(ctx, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed reading unprocessed bronze rows:", err)
		return subcommands.ExitFailure
	}
	if len(recs) > 0 {
		res := app.Transformer.Process(ctx, recs)
		fmt.Printf("Transformed %d, skipped %d invalid, %d errors\n",
			len(res.Processed), len(res.SkippedInvalid), len(res.Errors))
		for _, nt := range res.NewTracks {
			task := queue.Task{
				ID:        uuid.New(),
				Kind:      queue.KindEnrich,
				TrackID:   nt.TrackID,
				Source:    nt.Source,
				CreatedAt: now,
			}
			if err := app.QueueStore.Enqueue(ctx, task); err != nil {
				logging.Warnf(ctx, "failed enqueueing enrichment task for track %s: %v", nt.TrackID, err)
			}
		}
	}

	if err := app.Recorder.Flush(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Failed flushing run records:", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Ticked %d due source(s)\n", len(batches))
	return subcommands.ExitSuccess
}

// runBatch fetches one due source's batch through its registered
// adapter, if any, recording the run's outcome either way: an
// unregistered source is a configuration gap to surface, not a
// fetch failure to retry.
func (cmd *Command) runBatch(ctx context.Context, app *wiring.App, batch scheduler.Batch, now time.Time) {
	app.Scheduler.MarkRunning(batch.Source)
	run := observe.Run{
		RunID:     uuid.New(),
		Source:    batch.Source,
		StartedAt: now,
		Status:    observe.RunRunning,
	}

	adapter, ok := app.Registry.Get(batch.Source)
	if !ok {
		logging.Warnf(ctx, "no adapter registered for source %s, skipping %d target(s)", batch.Source, len(batch.Targets))
		finished := time.Now()
		run.FinishedAt = &finished
		run.Status = observe.RunFailed
		run.ErrorsCount = len(batch.Targets)
		app.Recorder.Record(run)
		_ = app.Scheduler.MarkDone(ctx, scheduler.RunOutcome{Source: batch.Source, SuccessRatio: 0, ExpectedRequests: len(batch.Targets)}, now)
		return
	}

	var tracksAdded, errorsCount int
	for _, target := range batch.Targets {
		if err := app.Robots.Acquire(ctx, target.ID); err != nil {
			logging.Warnf(ctx, "robots/rate governor denied %s: %v", target.ID, err)
			errorsCount++
			continue
		}
		resp, err := adapter.Fetch(ctx, target.ID)
		app.Robots.ReportOutcome(hostOf(target.ID), resp.StatusCode, time.Now())
		if err != nil {
			errorsCount++
			continue
		}
		recs, err := adapter.ParseDetail(resp)
		if err != nil {
			errorsCount++
			continue
		}
		for _, rec := range recs {
			if ok, err := app.Bronze.Insert(ctx, rec); err == nil && ok {
				tracksAdded++
			}
		}
	}

	finished := time.Now()
	run.FinishedAt = &finished
	run.TracksAdded = tracksAdded
	run.ErrorsCount = errorsCount
	run.Status = observe.RunSucceeded
	if errorsCount > 0 && tracksAdded > 0 {
		run.Status = observe.RunPartial
	} else if errorsCount > 0 {
		run.Status = observe.RunFailed
	}
	app.Recorder.Record(run)

	successRatio := 1.0
	if total := tracksAdded + errorsCount; total > 0 {
		successRatio = float64(tracksAdded) / float64(total)
	}
	_ = app.Scheduler.MarkDone(ctx, scheduler.RunOutcome{
		Source:           batch.Source,
		SuccessRatio:     successRatio,
		ExpectedRequests: len(batch.Targets),
	}, now)
}

// hostOf extracts the host portion of a fetch target for robots
// outcome reporting; targets that aren't URLs (adapter-defined search
// seeds) report against an empty host, which the governor tracks as
// its own bucket.
func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return u.Host
}
