package containerd

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/cruciblehq/onebin/internal/runtime"
)

// Creates a directory inside the container, including parents.
func (c *Container) MkdirAll(ctx context.Context, dir string) error {
	return runtime.MustExec(ctx, c, "mkdir", nil, nil, "mkdir", "-p", dir)
}

// Copies a tar stream into the container's filesystem.
//
// The contents of r are extracted into destDir by piping them to "tar xf - -C
// destDir" inside the container.
func (c *Container) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	return runtime.MustExec(ctx, c, "tar extract", r, nil, "tar", "xf", "-", "-C", destDir)
}

// Copies a path from the container's filesystem as a tar stream.
//
// The file or directory at p is archived by running "tar cf - -C <dir>
// <base>" inside the container and streaming the output to w. The path is
// probed first so that a missing file is reported as [runtime.ErrNotFound]
// rather than as a tar failure.
func (c *Container) CopyFrom(ctx context.Context, w io.Writer, p string) error {
	probe, err := c.Exec(ctx, runtime.ExecRequest{Args: []string{"test", "-e", p}})
	if err != nil {
		return err
	}
	if probe.ExitCode != 0 {
		return fmt.Errorf("%w: %s", runtime.ErrNotFound, p)
	}
	return runtime.MustExec(ctx, c, "tar archive", nil, w, "tar", "cf", "-", "-C", path.Dir(p), path.Base(p))
}
