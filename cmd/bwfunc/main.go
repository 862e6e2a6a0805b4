package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/basewarphq/bwfunc/bwfunc"
)

var version = "dev"

type App struct {
	Version kong.VersionFlag `help:"Show version."`

	Invoke InvokeCmd `cmd:"" help:"Invoke the demo function locally with an event file."`
	Config ConfigCmd `cmd:"" help:"Print the configuration read from the environment."`
}

func main() {
	cfg, err := bwfunc.ParseConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var app App
	ctx := kong.Parse(&app,
		kong.Name("bwfunc"),
		kong.Description("Run bwfunc lifecycles locally."),
		kong.Vars{"version": version},
		kong.Bind(cfg),
	)
	if err := ctx.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
