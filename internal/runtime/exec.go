package runtime

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Default shell for command strings.
const DefaultShell = "/bin/sh"

// Parameters for running a process in a container.
type ExecRequest struct {
	Args    []string  // Command and arguments, run without a shell.
	Env     []string  // "key=value" pairs merged over the container environment.
	Workdir string    // Working directory. Empty uses the container default.
	Stdin   io.Reader // Optional standard input.
	Stdout  io.Writer // Receives standard output. Nil discards it.
	Stderr  io.Writer // Receives standard error in addition to the captured tail. Nil discards it.
}

// Outcome of a process run.
type ExecResult struct {
	ExitCode int    // Exit code of the process.
	Stderr   string // Trailing portion of standard error, for error reports.
}

// Returns the arguments that run command through shell.
func ShellArgs(shell, command string) []string {
	if shell == "" {
		shell = DefaultShell
	}
	return []string{shell, "-c", command}
}

// Runs args in the container and fails on a non-zero exit.
//
// The error names desc and includes the exit code and stderr tail.
func MustExec(ctx context.Context, c Container, desc string, stdin io.Reader, stdout io.Writer, args ...string) error {
	result, err := c.Exec(ctx, ExecRequest{Args: args, Stdin: stdin, Stdout: stdout})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: %s failed with exit code %d (%s)", ErrRuntime, desc, result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

// Merges override env vars on top of a base env slice. Entries without an
// "=" are dropped.
func MergeEnv(base, overrides []string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	order := make([]string, 0, len(base)+len(overrides))

	for _, list := range [][]string{base, overrides} {
		for _, entry := range list {
			k, v, ok := strings.Cut(entry, "=")
			if !ok {
				continue
			}
			if _, seen := merged[k]; !seen {
				order = append(order, k)
			}
			merged[k] = v
		}
	}

	result := make([]string, 0, len(order))
	for _, k := range order {
		result = append(result, k+"="+merged[k])
	}
	return result
}
