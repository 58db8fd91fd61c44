package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/fridgesim/cmd/fridgesim/activate"
	"github.com/temoto/fridgesim/cmd/fridgesim/read"
	"github.com/temoto/fridgesim/cmd/fridgesim/run"
	"github.com/temoto/fridgesim/cmd/fridgesim/subcmd"
	"github.com/temoto/fridgesim/internal/config"
	"github.com/temoto/fridgesim/internal/state"
	"github.com/temoto/fridgesim/log2"
)

var BuildVersion string = "unknown" // set by ldflags -X

var log = log2.NewStderr(log2.LInfo)

var modules = []subcmd.Mod{
	run.Mod,
	activate.Mod,
	read.Mod,
}

func main() {
	flagConfig := flag.String("config", "fridgesim.hcl", "")
	flagEnv := flag.String("env", ".env", "environment file, missing is ok")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [option...] [command]\n\nCommands:\n", os.Args[0])
		for _, m := range modules {
			fmt.Fprintf(flag.CommandLine.Output(), "  %s\n", m.Usage)
		}
		fmt.Fprintf(flag.CommandLine.Output(), "\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if subcmd.SdNotify(log, "start") {
		// we're under systemd, assume systemd journal logging, remove timestamp
		log.SetFlags(log2.LServiceFlags)
	} else if isatty.IsTerminal(os.Stderr.Fd()) {
		log.SetFlags(log2.LInteractiveFlags)
	}

	command := flag.Arg(0)
	if command == "" {
		command = run.Mod.Name
	}
	mod, err := subcmd.Parse(command, modules)
	if err != nil {
		flag.Usage()
		log.Fatal(err)
	}

	if err := config.LoadDotenv(log, *flagEnv); err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	cfg, err := config.Load(log, config.NewOsFullReader(), os.Getenv, *flagConfig)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}

	ctx, g := state.NewContext(log)
	g.BuildVersion = BuildVersion
	var args []string
	if flag.NArg() > 1 {
		args = flag.Args()[1:]
	}
	if err := mod.Main(ctx, cfg, args); err != nil {
		g.Fatal(err, "command=%s", mod.Name)
	}
}
