package containerd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	client "github.com/containerd/containerd/v2/client"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"

	"github.com/cruciblehq/onebin/internal/runtime"
)

const (

	// Default snapshotter for container filesystems.
	DefaultSnapshotter = "overlayfs"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"

	// Engine name reported by [Runtime.Name].
	engineName = "containerd"
)

// Manages the containerd client and provides image and container operations.
type Runtime struct {
	client      *client.Client // Containerd client for managing containers and images.
	snapshotter string         // Snapshotter used for images and containers.
}

var _ runtime.Runtime = (*Runtime)(nil)

// Creates a runtime connected to the containerd socket at the given address.
//
// The namespace scopes all containerd operations to a single tenant. An empty
// snapshotter selects [DefaultSnapshotter]; "fuse-overlayfs" allows running
// without root. The runtime must be closed when no longer needed.
func New(address, namespace, snapshotter string) (*Runtime, error) {
	c, err := client.New(address, client.WithDefaultNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}
	if snapshotter == "" {
		snapshotter = DefaultSnapshotter
	}
	return &Runtime{client: c, snapshotter: snapshotter}, nil
}

func (rt *Runtime) Name() string {
	return engineName
}

// Closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Ensures the base image, then creates and starts a build container.
//
// The image is resolved for the requested platform and unpacked into the
// snapshotter. A container is created with a fresh snapshot and a
// long-running task (sleep infinity) is started so that subsequent Exec calls
// have a running process to attach to. Any existing container with the same
// ID is removed before the new one is created.
func (rt *Runtime) StartContainer(ctx context.Context, spec runtime.ContainerSpec) (runtime.Container, error) {
	image, err := rt.ensureImage(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", runtime.ErrImage, spec.Image, err)
	}

	c := &Container{
		client:      rt.client,
		id:          spec.ID,
		platform:    spec.Platform,
		snapshotter: rt.snapshotter,
	}

	// Remove any stale container left behind by an interrupted build.
	c.remove(ctx)

	ctr, err := c.create(ctx, image, spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}

	if err := c.startTask(ctx, ctr); err != nil {
		ctr.Delete(ctx, client.WithSnapshotCleanup)
		return nil, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}

	slog.Debug("container started", "id", spec.ID, "image", spec.Image, "digest", image.Target().Digest)

	return c, nil
}

// Returns the image for the requested platform, pulling it when required.
//
// With [runtime.PullMissing] a locally stored image is reused and only
// unpacked if its layers are missing from the snapshotter. With
// [runtime.PullAlways] the reference is always resolved against the
// registry.
func (rt *Runtime) ensureImage(ctx context.Context, spec runtime.ContainerSpec) (client.Image, error) {
	p, err := platforms.Parse(spec.Platform)
	if err != nil {
		return nil, err
	}
	matcher := platforms.Only(p)

	if spec.Pull != runtime.PullAlways {
		stored, err := rt.client.ImageService().Get(ctx, spec.Image)
		switch {
		case err == nil:
			image := client.NewImageWithPlatform(rt.client, stored, matcher)
			if err := rt.unpack(ctx, image); err != nil {
				return nil, err
			}
			return image, nil
		case !errdefs.IsNotFound(err):
			return nil, err
		}
	}

	progress(spec.Progress, "pulling %s (%s)\n", spec.Image, spec.Platform)

	image, err := rt.client.Pull(ctx, spec.Image,
		client.WithPlatformMatcher(matcher),
		client.WithPullUnpack,
		client.WithPullSnapshotter(rt.snapshotter),
	)
	if err != nil {
		return nil, err
	}

	progress(spec.Progress, "pulled %s@%s\n", spec.Image, image.Target().Digest)
	return image, nil
}

// Unpacks the image layers into the snapshotter unless already present.
func (rt *Runtime) unpack(ctx context.Context, image client.Image) error {
	unpacked, err := image.IsUnpacked(ctx, rt.snapshotter)
	if err != nil {
		return err
	}
	if unpacked {
		return nil
	}
	return image.Unpack(ctx, rt.snapshotter)
}

// Returns a handle for an existing container.
//
// The container is not loaded or verified; the handle is a lightweight
// reference that resolves the container lazily on subsequent calls.
func (rt *Runtime) Container(id string) runtime.Container {
	return &Container{
		client:      rt.client,
		id:          id,
		snapshotter: rt.snapshotter,
	}
}

// Writes a progress line when w is set.
func progress(w io.Writer, format string, args ...any) {
	if w != nil {
		fmt.Fprintf(w, format, args...)
	}
}
