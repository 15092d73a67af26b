// Package main is the entry point for the mongopilot shell workbench.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mongopilot/mongopilot/internal/app"
)

// Set at build time through ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	application, err := app.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mongopilot: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First SIGINT or SIGTERM cancels the run and tears the session down.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
		application.Shutdown()
	}()

	err = application.Run(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, app.ErrQuit), errors.Is(err, context.Canceled):
		// :quit and an interrupt are both ordinary ways out.
		return 0
	default:
		fmt.Fprintf(os.Stderr, "mongopilot: %v\n", err)
		return 1
	}
}

func parseFlags() app.Options {
	var opts app.Options
	var printVersion, printHelp bool

	flag.StringVar(&opts.ConfigPath, "config", "", "configuration file to load")
	flag.StringVar(&opts.ConfigPath, "c", "", "configuration file to load (shorthand)")
	flag.StringVar(&opts.Target, "target", "", "connection target, host:port/db or a mongodb:// URI")
	flag.StringVar(&opts.Target, "t", "", "connection target (shorthand)")
	flag.StringVar(&opts.Eval, "eval", "", "run one script and exit")
	flag.StringVar(&opts.Eval, "e", "", "run one script and exit (shorthand)")
	flag.BoolVar(&opts.Insecure, "insecure", false, "accept invalid TLS certificates")
	flag.BoolVar(&opts.Debug, "debug", false, "force debug logging")
	flag.BoolVar(&opts.Debug, "d", false, "force debug logging (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn, or error")
	flag.BoolVar(&printVersion, "version", false, "print version and exit")
	flag.BoolVar(&printVersion, "v", false, "print version and exit (shorthand)")
	flag.BoolVar(&printHelp, "help", false, "show this help")
	flag.BoolVar(&printHelp, "h", false, "show this help (shorthand)")

	flag.Usage = usage
	flag.Parse()

	if printHelp {
		flag.Usage()
		os.Exit(0)
	}
	if printVersion {
		fmt.Printf("mongopilot %s (commit %s, built %s)\n", version, commit, date)
		os.Exit(0)
	}

	// An empty level defers to the config file; anything else must be valid.
	switch opts.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "mongopilot: invalid -log-level %q: want debug, info, warn, or error\n", opts.LogLevel)
		os.Exit(1)
	}

	opts.ScriptFiles = flag.Args()
	return opts
}

func usage() {
	out := os.Stderr
	fmt.Fprintln(out, "mongopilot, a line-mode workbench for the legacy mongo shell")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage: mongopilot [options] [script.lua ...]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Options:")
	flag.PrintDefaults()
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Examples:")
	fmt.Fprintln(out, "  mongopilot                          interactive session")
	fmt.Fprintln(out, "  mongopilot -t localhost:27017/app   connect to a specific database")
	fmt.Fprintln(out, "  mongopilot -e 'db.stats()'          run one script and exit")
	fmt.Fprintln(out, "  mongopilot seed.lua                 run a Lua script")
}
