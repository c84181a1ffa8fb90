// Package docker implements the build container runtime on a Docker Engine
// API endpoint.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"

	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cruciblehq/onebin/internal/runtime"
)

const (

	// Engine name reported by [Runtime.Name].
	engineName = "docker"

	// Label recording which tool created a container.
	managedByLabel = "dev.onebin.managed-by"
)

// Manages the Docker client and provides image and container operations.
type Runtime struct {
	client *client.Client
}

var _ runtime.Runtime = (*Runtime)(nil)

// Creates a runtime for the Docker daemon at host.
//
// An empty host falls back to DOCKER_HOST and the other standard Docker
// environment variables. The API version is negotiated with the daemon.
func New(host string) (*Runtime, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	c, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", runtime.ErrRuntime, err)
	}
	return &Runtime{client: c}, nil
}

func (rt *Runtime) Name() string {
	return engineName
}

// Closes the Docker client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Ensures the base image, then creates and starts a build container.
//
// The container keeps a "sleep infinity" process running so that execs can
// be attached one after another. It shares the host network so package
// installs can reach their indexes. Any container with the same name is
// force-removed first.
func (rt *Runtime) StartContainer(ctx context.Context, spec runtime.ContainerSpec) (runtime.Container, error) {
	platform, err := ociPlatform(spec.Platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", runtime.ErrImage, spec.Image, err)
	}

	if err := rt.ensureImage(ctx, spec); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", runtime.ErrImage, spec.Image, err)
	}

	c := &Container{client: rt.client, id: spec.ID}

	// Remove any stale container left behind by an interrupted build.
	if err := c.Destroy(ctx); err != nil {
		return nil, err
	}

	labels := map[string]string{managedByLabel: "onebin"}
	maps.Copy(labels, spec.Labels)

	config := &container.Config{
		Image:      spec.Image,
		Entrypoint: []string{"sleep"},
		Cmd:        []string{"infinity"},
		Env:        spec.Env,
		Labels:     labels,
	}
	hostConfig := &container.HostConfig{
		NetworkMode: "host",
	}

	if _, err := rt.client.ContainerCreate(ctx, config, hostConfig, nil, platform, spec.ID); err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", runtime.ErrRuntime, spec.ID, err)
	}

	if err := rt.client.ContainerStart(ctx, spec.ID, container.StartOptions{}); err != nil {
		c.Destroy(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("%w: start %s: %w", runtime.ErrRuntime, spec.ID, err)
	}

	slog.Debug("container started", "id", spec.ID, "image", spec.Image)

	return c, nil
}

// Pulls the image unless the policy allows reusing a local copy.
func (rt *Runtime) ensureImage(ctx context.Context, spec runtime.ContainerSpec) error {
	if spec.Pull != runtime.PullAlways {
		_, _, err := rt.client.ImageInspectWithRaw(ctx, spec.Image)
		switch {
		case err == nil:
			return nil
		case !errdefs.IsNotFound(err):
			return err
		}
	}

	rc, err := rt.client.ImagePull(ctx, spec.Image, image.PullOptions{Platform: spec.Platform})
	if err != nil {
		return err
	}
	defer rc.Close()

	out := spec.Progress
	if out == nil {
		out = io.Discard
	}

	// The stream reports pull failures as JSON messages rather than as a
	// transport error.
	return jsonmessage.DisplayJSONMessagesStream(rc, out, 0, false, nil)
}

// Returns a handle for an existing container.
//
// The container is not inspected; a missing container surfaces on first use.
func (rt *Runtime) Container(id string) runtime.Container {
	return &Container{client: rt.client, id: id}
}

// Parses and normalizes a platform string for the create call.
func ociPlatform(s string) (*ocispec.Platform, error) {
	p, err := platforms.Parse(s)
	if err != nil {
		return nil, err
	}
	p = platforms.Normalize(p)
	return &ocispec.Platform{OS: p.OS, Architecture: p.Architecture, Variant: p.Variant}, nil
}
