// Package transformbronze implements the "transform-bronze"
// subcommand: runs every unprocessed bronze row through C8 and marks
// the ones that succeeded.
package transformbronze

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/google/uuid"

	"github.com/corvyn/setgraph/cmd/setgraph/wiring"
	"github.com/corvyn/setgraph/internal/bronze"
	"github.com/corvyn/setgraph/internal/config"
	"github.com/corvyn/setgraph/internal/logging"
	"github.com/corvyn/setgraph/internal/queue"
)

type Command struct {
	Cfg   *config.Config
	limit int
}

func (*Command) Name() string     { return "transform-bronze" }
func (*Command) Synopsis() string { return "transform unprocessed bronze rows into silver records" }
func (*Command) Usage() string {
	return `transform-bronze <flags>:
	Read unprocessed raw_scrapes rows, run them through the transformer,
	and mark the successfully processed ones.

`
}

func (cmd *Command) SetFlags(f *flag.FlagSet) {
	f.IntVar(&cmd.limit, "limit", 500, "Maximum unprocessed rows to read per invocation (0 = no limit)")
}

func (cmd *Command) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	app, err := wiring.Build(ctx, cmd.Cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed wiring dependencies:", err)
		return subcommands.ExitFailure
	}
	defer app.Close()

	recs, err := app.Bronze.Unprocessed(ctx, cmd.limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed reading unprocessed bronze rows:", err)
		return subcommands.ExitFailure
	}
	if len(recs) == 0 {
		fmt.Println("No unprocessed bronze rows")
		return subcommands.ExitSuccess
	}

	res := app.Transformer.Process(ctx, recs)

	now := time.Now()
	if len(res.Processed) > 0 || len(res.SkippedInvalid) > 0 {
		tx, err := app.Bronze.BeginTx(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Failed starting mark-processed transaction:", err)
			return subcommands.ExitFailure
		}
		defer tx.Rollback(ctx)

		for _, id := range res.Processed {
			if err := bronze.MarkProcessed(ctx, tx, id, now); err != nil {
				fmt.Fprintln(os.Stderr, "Failed marking processed:", err)
				return subcommands.ExitFailure
			}
		}
		for _, id := range res.SkippedInvalid {
			if err := bronze.MarkProcessed(ctx, tx, id, now); err != nil {
				fmt.Fprintln(os.Stderr, "Failed marking skipped-invalid as processed:", err)
				return subcommands.ExitFailure
			}
		}
		if err := tx.Commit(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "Failed committing mark-processed transaction:", err)
			return subcommands.ExitFailure
		}
	}

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

	fmt.Printf("Processed %d, skipped %d invalid, %d errors (left for retry), %d enrichment task(s) enqueued\n",
		len(res.Processed), len(res.SkippedInvalid), len(res.Errors), len(res.NewTracks))
	for _, e := range res.Errors {
		fmt.Printf("  %s: %v\n", e.ScrapeID, e.Err)
	}
	return subcommands.ExitSuccess
}
