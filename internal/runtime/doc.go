// Package runtime defines the container engine abstraction used for build
// environments.
//
// A [Runtime] creates build containers from a base image reference and hands
// out [Container] handles. A container runs a long-lived keeper process so
// that commands can be executed in it one after another, files can be
// copied in and out as tar streams, and it can be destroyed when the build
// is over. Destroying is idempotent: destroying a container that was never
// created, or was already destroyed, succeeds.
//
// Engines live in subpackages: containerd talks to a containerd daemon
// directly and docker talks to a Docker Engine API endpoint.
//
// Example usage:
//
//	ctr, err := rt.StartContainer(ctx, runtime.ContainerSpec{
//	    ID:       "wtf-ds-1a2b3c4d",
//	    Image:    "docker.io/library/python:3.12",
//	    Platform: "linux/amd64",
//	})
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	result, err := ctr.Exec(ctx, runtime.ExecRequest{
//	    Args:   runtime.ShellArgs("/bin/sh", "python3 --version"),
//	    Stdout: os.Stdout,
//	})
package runtime
