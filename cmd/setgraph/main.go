package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/subcommands"

	"github.com/corvyn/setgraph/cmd/setgraph/enrichtrack"
	"github.com/corvyn/setgraph/cmd/setgraph/migrate"
	"github.com/corvyn/setgraph/cmd/setgraph/resolveartist"
	"github.com/corvyn/setgraph/cmd/setgraph/runpipeline"
	"github.com/corvyn/setgraph/cmd/setgraph/transformbronze"
	"github.com/corvyn/setgraph/cmd/setgraph/workqueue"
	"github.com/corvyn/setgraph/internal/config"
	"github.com/corvyn/setgraph/internal/logging"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage %v: [flag]...\n"+
			"Runs the setgraph ingestion and enrichment pipeline.\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	configFile := flag.String("config", filepath.Join(os.Getenv("HOME"), ".setgraph/config.json"),
		"Path to config file")

	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.HelpCommand(), "")

	// Every subcommand holds a pointer to the same zero-value Config;
	// it's filled in place below, once flags are parsed, the same way
	// cmd/nup/main.go shares one client.Config across its subcommands.
	var cfg config.Config
	subcommands.Register(&migrate.Command{Cfg: &cfg}, "")
	subcommands.Register(&runpipeline.Command{Cfg: &cfg}, "")
	subcommands.Register(&transformbronze.Command{Cfg: &cfg}, "")
	subcommands.Register(&enrichtrack.Command{Cfg: &cfg}, "")
	subcommands.Register(&resolveartist.Command{Cfg: &cfg}, "")
	subcommands.Register(&workqueue.Command{Cfg: &cfg}, "")

	flag.Parse()

	if cmd := flag.Arg(0); cmd != "commands" && cmd != "flags" && cmd != "help" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Unable to read config file:", err)
			os.Exit(int(subcommands.ExitUsageError))
		}
		cfg = *loaded
		logging.Configure(cfg.LogLevel)
	}

	os.Exit(int(subcommands.Execute(context.Background())))
}
