package main

import (
	"log/slog"
	"os"

	"github.com/cruciblehq/onebin/internal"
	"github.com/cruciblehq/onebin/internal/build"
	"github.com/cruciblehq/onebin/internal/cli"
)

// The entry point for onebin.
//
// Initializes logging, executes the root command and exits with the code
// for the class of error that stopped it, if any.
func main() {
	slog.SetDefault(cli.NewLogger(os.Stderr, logLevel(), internal.IsVerbose()))

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug("onebin is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	if err := cli.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(build.ExitCode(err))
	}
}

// Returns the log level derived from build-time linker flags.
func logLevel() slog.Level {
	if internal.IsDebug() {
		return slog.LevelDebug
	}
	if internal.IsQuiet() {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
