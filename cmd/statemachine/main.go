// Command statemachine loads a machine definition from YAML or JSON,
// replays events against it and prints the resulting snapshot.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	statemachine "github.com/goliatone/go-statemachine"
	glog "github.com/goliatone/go-logger/glog"
)

type cli struct {
	LogLevel string `help:"Log level (trace, debug, info, warn, error)." default:"warn"`

	Validate validateCmd `cmd:"" help:"Check that a definition parses and compiles."`
	Describe describeCmd `cmd:"" help:"Print the normalized definition."`
	Run      runCmd      `cmd:"" help:"Start a machine and replay events."`
}

// app carries what every command needs.
type app struct {
	out    io.Writer
	logger statemachine.Logger
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var c cli
	parser, err := kong.New(&c,
		kong.Name("statemachine"),
		kong.Description("Run hierarchical state machines defined in YAML."),
		kong.Writers(stdout, stderr),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	logger := statemachine.NewGlogLogger(glog.NewLogger(
		glog.WithWriter(stderr),
		glog.WithLoggerTypeJSON(),
		glog.WithLevel(c.LogLevel),
	))
	return kctx.Run(&app{out: stdout, logger: logger})
}
