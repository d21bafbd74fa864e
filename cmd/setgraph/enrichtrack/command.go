// Package enrichtrack implements the "enrich-track" subcommand: runs
// the C9 waterfall over a single silver track by ID, mostly useful for
// manually retrying a track the dispatcher dead-lettered.
package enrichtrack

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/google/uuid"

	"github.com/corvyn/setgraph/cmd/setgraph/wiring"
	"github.com/corvyn/setgraph/internal/config"
)

type Command struct {
	Cfg     *config.Config
	trackID string
}

func (*Command) Name() string     { return "enrich-track" }
func (*Command) Synopsis() string { return "run the enrichment waterfall over a single track" }
func (*Command) Usage() string {
	return `enrich-track -track <uuid>:
	Run the enrichment waterfall over a single silver track and persist
	its updated fields and enrichment_status row.

`
}

func (cmd *Command) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.trackID, "track", "", "Track ID to enrich (required)")
}

func (cmd *Command) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, err := uuid.Parse(cmd.trackID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Invalid -track:", err)
		return subcommands.ExitUsageError
	}

	app, err := wiring.Build(ctx, cmd.Cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed wiring dependencies:", err)
		return subcommands.ExitFailure
	}
	defer app.Close()

	track, ok, err := app.Silver.FindTrackByID(ctx, id)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed loading track:", err)
		return subcommands.ExitFailure
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "No such track:", id)
		return subcommands.ExitFailure
	}

	enriched, status := app.Enricher.Enrich(ctx, track)

	if _, err := app.Silver.UpsertTrack(ctx, enriched); err != nil {
		fmt.Fprintln(os.Stderr, "Failed saving enriched track:", err)
		return subcommands.ExitFailure
	}
	if err := app.Silver.SaveEnrichmentStatus(ctx, status); err != nil {
		fmt.Fprintln(os.Stderr, "Failed saving enrichment status:", err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Enriched %s: status=%s confidence=%.2f (%s) sources=%v\n",
		id, status.Status, status.ConfidenceScore, status.ConfidenceTier, status.SourcesEnriched)
	return subcommands.ExitSuccess
}
