package containerd

import (
	"context"
	"fmt"
	"maps"
	"syscall"

	client "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/cruciblehq/onebin/internal/runtime"
)

// Label recording which tool created a container.
const managedByLabel = "dev.onebin.managed-by"

// A build container backed by containerd.
type Container struct {
	client      *client.Client // Containerd client for managing the container.
	id          string         // Containerd container ID.
	platform    string         // OCI platform (e.g., "linux/amd64"). Empty for handles from [Runtime.Container].
	snapshotter string         // Snapshotter holding the container's filesystem.
}

var _ runtime.Container = (*Container)(nil)

func (c *Container) ID() string {
	return c.id
}

// Queries the current state of the container.
func (c *Container) Status(ctx context.Context) (runtime.State, error) {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return runtime.ContainerNotCreated, nil
		}
		return "", fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}

	task, err := ctr.Task(ctx, nil)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return runtime.ContainerStopped, nil
		}
		return "", fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}

	status, err := task.Status(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}

	if status.Status == client.Running {
		return runtime.ContainerRunning, nil
	}
	return runtime.ContainerStopped, nil
}

// Removes the container and its resources.
//
// The task is killed and the container is removed from containerd along
// with its snapshot. Destroying a container that does not exist succeeds, so
// teardown can run any number of times.
func (c *Container) Destroy(ctx context.Context) error {
	ctr, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("%w: load %s: %w", runtime.ErrRuntime, c.id, err)
	}

	if task, err := ctr.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		if _, err := task.Delete(ctx, client.WithProcessKill); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: delete task %s: %w", runtime.ErrRuntime, c.id, err)
		}
	}

	if err := ctr.Delete(ctx, client.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: delete %s: %w", runtime.ErrRuntime, c.id, err)
	}

	return nil
}

// Creates the containerd container with the build configuration.
//
// The container shares the host network namespace and resolver so that
// package installs can reach their indexes.
func (c *Container) create(ctx context.Context, image client.Image, spec runtime.ContainerSpec) (client.Container, error) {
	labels := map[string]string{managedByLabel: "onebin"}
	maps.Copy(labels, spec.Labels)

	return c.client.NewContainer(ctx, c.id,
		client.WithImage(image),
		client.WithSnapshotter(c.snapshotter),
		client.WithNewSnapshot(c.id, image),
		client.WithRuntime(ociRuntime, nil),
		client.WithContainerLabels(labels),
		client.WithNewSpec(
			oci.WithDefaultSpecForPlatform(c.platform),
			oci.WithImageConfig(image),
			oci.WithEnv(spec.Env),
			oci.WithHostNamespace(specs.NetworkNamespace),
			oci.WithHostResolvconf,
			oci.WithProcessArgs("sleep", "infinity"),
		),
	)
}

// Starts the container's long-running task with no attached IO.
func (c *Container) startTask(ctx context.Context, ctr client.Container) error {
	task, err := ctr.NewTask(ctx, cio.NullIO)
	if err != nil {
		return err
	}
	if err := task.Start(ctx); err != nil {
		task.Delete(ctx)
		return err
	}
	return nil
}

// Removes an existing container with this ID, if one exists.
func (c *Container) remove(ctx context.Context) {
	existing, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return
	}
	if task, err := existing.Task(ctx, nil); err == nil {
		task.Kill(ctx, syscall.SIGKILL)
		task.Delete(ctx, client.WithProcessKill)
	}
	existing.Delete(ctx, client.WithSnapshotCleanup)
}
