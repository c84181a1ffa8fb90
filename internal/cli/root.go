package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/cruciblehq/onebin/internal"
)

// Returned when the command line cannot be parsed.
var ErrUsage = errors.New("usage error")

// Represents the root command for onebin.
var RootCmd struct {
	Quiet   bool       `short:"q" help:"Suppress informational output."`
	Verbose bool       `short:"v" help:"Enable verbose output."`
	Debug   bool       `short:"d" help:"Enable debug output."`
	Config  string     `help:"Settings file. Defaults to the user configuration directory." type:"path" placeholder:"PATH"`
	Engine  string     `help:"Container engine: docker or containerd. Overrides settings." placeholder:"NAME"`
	Build   BuildCmd   `cmd:"" help:"Build recipes into statically-linked executables."`
	Check   CheckCmd   `cmd:"" help:"Validate a recipe and print its build plan."`
	Clean   CleanCmd   `cmd:"" help:"Remove build instances left behind by --keep or a crash."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {
	return execute(os.Args[1:])
}

func execute(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	parser, err := kong.New(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Reproducible single-binary builds.\n\nBuilds an interpreted program and its dependencies into one statically-linked executable inside a disposable container."),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err != nil {
		return err
	}

	kongCtx, err := parser.Parse(args)
	if err != nil {
		var perr *kong.ParseError
		if errors.As(err, &perr) && perr.Context != nil {
			perr.Context.PrintUsage(true)
		}
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}

	configureLogger()

	return kongCtx.Run()
}

// Records the output mode flags and configures the global logger.
//
// Flags only ever enable a mode; modes seeded at link time stay on.
func configureLogger() {
	if RootCmd.Debug {
		internal.SetDebug(true)
	}
	if RootCmd.Quiet {
		internal.SetQuiet(true)
	}
	if RootCmd.Verbose {
		internal.SetVerbose(true)
	}

	level := slog.LevelInfo
	if internal.IsDebug() {
		level = slog.LevelDebug
	} else if internal.IsQuiet() {
		level = slog.LevelWarn
	}

	slog.SetDefault(NewLogger(os.Stderr, level, internal.IsVerbose()))
}
