// Package resolveartist implements the "resolve-artist" subcommand:
// runs the C10 multi-tier resolver over one track's raw title to
// identify an unattributed mashup/B2B artist.
package resolveartist

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
	title   string
}

func (*Command) Name() string     { return "resolve-artist" }
func (*Command) Synopsis() string { return "resolve an unattributed artist from a raw track title" }
func (*Command) Usage() string {
	return `resolve-artist -track <uuid> -title <raw title>:
	Run the multi-tier artist resolver over a raw title and print what
	it would attribute the track to, without persisting anything unless
	tier 2 succeeds (which records feedback for future tier-1 lookups).

`
}

func (cmd *Command) SetFlags(f *flag.FlagSet) {
	f.StringVar(&cmd.trackID, "track", "", "Track ID the title belongs to (required)")
	f.StringVar(&cmd.title, "title", "", "Raw track title to resolve (required)")
}

func (cmd *Command) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if cmd.title == "" {
		fmt.Fprintln(os.Stderr, "-title is required")
		return subcommands.ExitUsageError
	}
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

	result, ok := app.Resolver.Resolve(ctx, id, cmd.title)
	if !ok {
		fmt.Println("No artist resolved")
		return subcommands.ExitSuccess
	}

	fmt.Printf("Resolved %q to %s (confidence=%.2f, stage=%s)\n",
		cmd.title, result.ArtistName, result.Confidence, result.Stage)
	return subcommands.ExitSuccess
}
