package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

var configPath = flag.String("config", "", "path to the tracker config (default $CONFIG_PATH or configs/tracker.yaml)")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&analyzeCmd{}, "")
	commander.Register(&updateCmd{}, "")
	commander.Register(&validateCmd{}, "")
	commander.Register(&historyCmd{}, "")
	commander.Register(&watchCmd{}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
