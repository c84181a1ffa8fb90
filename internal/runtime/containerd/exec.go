package containerd

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"

	client "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cruciblehq/onebin/internal/runtime"
)

// Sequence counter for generating unique exec process identifiers.
var execSeq uint64

// Returns a unique exec process identifier.
func nextExecID() string {
	return fmt.Sprintf("exec-%d", atomic.AddUint64(&execSeq, 1))
}

// Runs a process inside the container.
//
// Environment variables and working directory override the container's OCI
// spec for this execution only. Standard error is streamed to req.Stderr
// and its tail is kept for the result.
func (c *Container) Exec(ctx context.Context, req runtime.ExecRequest) (*runtime.ExecResult, error) {
	pspec, err := c.buildProcessSpec(ctx, req.Env, req.Workdir, req.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}

	tail := runtime.NewTailBuffer(runtime.DefaultTailSize)
	stderr := io.Writer(tail)
	if req.Stderr != nil {
		stderr = io.MultiWriter(req.Stderr, tail)
	}

	exitCode, err := c.execProcess(ctx, pspec, req.Stdin, req.Stdout, stderr)
	if err != nil {
		return nil, err
	}

	return &runtime.ExecResult{ExitCode: exitCode, Stderr: tail.String()}, nil
}

// Builds an OCI process spec for running a command inside the container.
//
// The base values are copied from the container's own OCI spec, then env
// and workdir are overridden if provided.
func (c *Container) buildProcessSpec(ctx context.Context, env []string, workdir string, args ...string) (*specs.Process, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, err
	}

	spec, err := ctr.Spec(ctx)
	if err != nil {
		return nil, err
	}

	pspec := *spec.Process
	pspec.Terminal = false
	pspec.Args = args

	if len(env) > 0 {
		pspec.Env = runtime.MergeEnv(pspec.Env, env)
	}
	if workdir != "" {
		pspec.Cwd = workdir
	}

	return &pspec, nil
}

// Starts a process inside the container's running task, waits for it to exit,
// and returns the exit code.
//
// The process is attached to the task as an additional exec, which requires
// the keeper task started by [Container.startTask]. Nil stdout and stderr
// are replaced with io.Discard.
//
// When stdin is provided, the container's stdin is explicitly closed after the
// reader returns EOF so the exec process receives the EOF signal. The
// containerd shim holds both ends of the stdin FIFO open and will not
// propagate EOF on its own.
func (c *Container) execProcess(ctx context.Context, pspec *specs.Process, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	task, err := c.loadTask(ctx)
	if err != nil {
		return 0, err
	}

	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	var stdinDone <-chan struct{}
	if stdin != nil {
		dr := newDoneReader(stdin)
		stdin = dr
		stdinDone = dr.done
	}

	process, err := task.Exec(ctx, nextExecID(), pspec, cio.NewCreator(
		cio.WithStreams(stdin, stdout, stderr),
	))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}

	return awaitProcess(ctx, process, stdinDone)
}

// Loads the container's running task.
func (c *Container) loadTask(ctx context.Context) (client.Task, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", runtime.ErrNotFound, c.id, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}

	return task, nil
}

// Waits for an exec process to exit and returns the exit code.
//
// The process is always deleted before returning.
func awaitProcess(ctx context.Context, process client.Process, stdinDone <-chan struct{}) (int, error) {
	statusC, err := process.Wait(ctx)
	if err != nil {
		process.Delete(ctx)
		return 0, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}

	if err := process.Start(ctx); err != nil {
		process.Delete(ctx)
		return 0, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}

	if stdinDone != nil {
		go func() {
			<-stdinDone
			process.CloseIO(ctx, client.WithStdinCloser)
		}()
	}

	var exitStatus client.ExitStatus
	select {
	case exitStatus = <-statusC:
	case <-ctx.Done():
		process.Kill(context.WithoutCancel(ctx), 9)
		exitStatus = <-statusC
	}
	process.Delete(context.WithoutCancel(ctx))

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}

	code, _, err := exitStatus.Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}

	return int(code), nil
}
