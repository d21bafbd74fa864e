// Package migrate implements the "migrate" subcommand: applies every
// pending schema migration to the configured Postgres database.
package migrate

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/corvyn/setgraph/internal/config"
	"github.com/corvyn/setgraph/internal/db"
)

type Command struct {
	Cfg *config.Config
}

func (*Command) Name() string     { return "migrate" }
func (*Command) Synopsis() string { return "apply pending database migrations" }
func (*Command) Usage() string {
	return `migrate:
	Apply every pending schema migration to the configured Postgres database.

`
}

func (cmd *Command) SetFlags(f *flag.FlagSet) {}

func (cmd *Command) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if err := db.Migrate(ctx, cmd.Cfg.Postgres); err != nil {
		fmt.Fprintln(os.Stderr, "Failed running migrations:", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
