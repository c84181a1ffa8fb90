package docker

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/cruciblehq/onebin/internal/runtime"
)

// Interval between exec state polls after the output stream closes.
const execPollInterval = 50 * time.Millisecond

// A build container managed by the Docker daemon.
type Container struct {
	client *client.Client
	id     string // Container name, used as the identifier for all API calls.
}

var _ runtime.Container = (*Container)(nil)

func (c *Container) ID() string {
	return c.id
}

// Queries the current state of the container.
func (c *Container) Status(ctx context.Context) (runtime.State, error) {
	info, err := c.client.ContainerInspect(ctx, c.id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return runtime.ContainerNotCreated, nil
		}
		return "", fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}
	if info.State != nil && info.State.Running {
		return runtime.ContainerRunning, nil
	}
	return runtime.ContainerStopped, nil
}

// Runs a process inside the container and waits for it to exit.
//
// Output is demultiplexed from the attached stream. When stdin is set it is
// copied to the exec and the write side is closed on EOF.
func (c *Container) Exec(ctx context.Context, req runtime.ExecRequest) (*runtime.ExecResult, error) {
	created, err := c.client.ContainerExecCreate(ctx, c.id, container.ExecOptions{
		Cmd:          req.Args,
		Env:          req.Env,
		WorkingDir:   req.Workdir,
		AttachStdin:  req.Stdin != nil,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s: %w", runtime.ErrNotFound, c.id, err)
		}
		return nil, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}

	resp, err := c.client.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}
	defer resp.Close()

	// Unblock the stream copy when the context ends.
	stop := context.AfterFunc(ctx, resp.Close)
	defer stop()

	if req.Stdin != nil {
		go func() {
			io.Copy(resp.Conn, req.Stdin)
			resp.CloseWrite()
		}()
	}

	stdout := req.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	tail := runtime.NewTailBuffer(runtime.DefaultTailSize)
	stderr := io.Writer(tail)
	if req.Stderr != nil {
		stderr = io.MultiWriter(req.Stderr, tail)
	}

	if _, err := stdcopy.StdCopy(stdout, stderr, resp.Reader); err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("%w: exec stream: %w", runtime.ErrRuntime, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}

	code, err := c.waitExec(ctx, created.ID)
	if err != nil {
		return nil, err
	}
	return &runtime.ExecResult{ExitCode: code, Stderr: tail.String()}, nil
}

// Polls the exec until the daemon reports it finished.
func (c *Container) waitExec(ctx context.Context, execID string) (int, error) {
	for {
		info, err := c.client.ContainerExecInspect(ctx, execID)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
		}
		if !info.Running {
			return info.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("%w: %w", runtime.ErrRuntime, ctx.Err())
		case <-time.After(execPollInterval):
		}
	}
}

// Creates a directory inside the container, including parents.
func (c *Container) MkdirAll(ctx context.Context, dir string) error {
	return runtime.MustExec(ctx, c, "mkdir", nil, nil, "mkdir", "-p", dir)
}

// Extracts a tar stream into destDir through the archive API.
func (c *Container) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	if err := c.client.CopyToContainer(ctx, c.id, destDir, r, container.CopyToContainerOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s: %w", runtime.ErrNotFound, destDir, err)
		}
		return fmt.Errorf("%w: copy to %s: %w", runtime.ErrRuntime, destDir, err)
	}
	return nil
}

// Streams a tar archive of p through the archive API.
//
// The daemon names the single top-level entry after the base of p.
func (c *Container) CopyFrom(ctx context.Context, w io.Writer, p string) error {
	rc, _, err := c.client.CopyFromContainer(ctx, c.id, p)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %s: %w", runtime.ErrNotFound, p, err)
		}
		return fmt.Errorf("%w: copy from %s: %w", runtime.ErrRuntime, p, err)
	}
	defer rc.Close()

	if _, err := io.Copy(w, rc); err != nil {
		return fmt.Errorf("%w: copy from %s: %w", runtime.ErrRuntime, p, err)
	}
	return nil
}

// Force-removes the container and its anonymous volumes.
//
// Removing a container that does not exist succeeds.
func (c *Container) Destroy(ctx context.Context) error {
	err := c.client.ContainerRemove(ctx, c.id, container.RemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: remove %s: %w", runtime.ErrRuntime, c.id, err)
	}
	return nil
}
