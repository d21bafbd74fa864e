// Package workqueue implements the "work-queue" subcommand: runs C12's
// bounded dispatcher against the durable task_queue until interrupted,
// the long-running counterpart to run-pipeline's batch invocation.
package workqueue

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/corvyn/setgraph/cmd/setgraph/wiring"
	"github.com/corvyn/setgraph/internal/config"
	"github.com/corvyn/setgraph/internal/queue"
)

type Command struct {
	Cfg            *config.Config
	totalWorkers   int
	perSourceLimit int
}

func (*Command) Name() string     { return "work-queue" }
func (*Command) Synopsis() string { return "drain the durable task queue until interrupted" }
func (*Command) Usage() string {
	return `work-queue <flags>:
	Run the bounded worker pool against the durable task queue, executing
	enrichment tasks enqueued by transform-bronze and run-pipeline. Runs
	until SIGINT/SIGTERM.

`
}

func (cmd *Command) SetFlags(f *flag.FlagSet) {
	f.IntVar(&cmd.totalWorkers, "workers", 0, "Total concurrent workers (0 = default)")
	f.IntVar(&cmd.perSourceLimit, "per-source-limit", 0, "Max concurrent tasks per source (0 = default)")
}

func (cmd *Command) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	app, err := wiring.Build(ctx, cmd.Cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed wiring dependencies:", err)
		return subcommands.ExitFailure
	}
	defer app.Close()

	qcfg := queue.DefaultConfig()
	if cmd.totalWorkers > 0 {
		qcfg.TotalWorkers = cmd.totalWorkers
	}
	if cmd.perSourceLimit > 0 {
		qcfg.PerSourceLimit = cmd.perSourceLimit
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Draining task queue with %d worker(s), %d per source (Ctrl-C to stop)\n",
		qcfg.TotalWorkers, qcfg.PerSourceLimit)
	start := time.Now()
	app.QueueDispatcher(app.TaskHandler(), qcfg).Run(runCtx)
	fmt.Printf("Stopped after %s\n", time.Since(start).Round(time.Second))
	return subcommands.ExitSuccess
}
