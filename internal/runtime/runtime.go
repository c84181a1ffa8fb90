package runtime

import (
	"context"
	"io"
)

// Base image pull policies.
type PullPolicy string

const (
	PullMissing PullPolicy = "missing" // Pull only when absent from the local store.
	PullAlways  PullPolicy = "always"  // Pull on every start, refreshing the reference.
)

// Lifecycle state of a container as seen by the engine.
type State string

const (
	ContainerRunning    State = "running"
	ContainerStopped    State = "stopped"
	ContainerNotCreated State = "not-created"
)

// Parameters for starting a build container.
type ContainerSpec struct {
	ID       string            // Container identifier, unique per build.
	Image    string            // Fully-qualified image reference.
	Platform string            // OCI platform (e.g., "linux/amd64").
	Pull     PullPolicy        // When to pull the image.
	Env      []string          // Extra "key=value" environment for the container.
	Labels   map[string]string // Labels recorded on the container.
	Progress io.Writer         // Receives pull progress. May be nil.
}

// A container engine.
type Runtime interface {

	// Short engine name, e.g. "docker".
	Name() string

	// Ensures the image is available per the pull policy, then creates and
	// starts a container running a keeper process. Any stale container with
	// the same ID is removed first. Errors acquiring the image wrap
	// [ErrImage].
	StartContainer(ctx context.Context, spec ContainerSpec) (Container, error)

	// Returns a handle for a container by ID without verifying it exists.
	Container(id string) Container

	// Releases the engine connection.
	Close() error
}

// A handle to a build container.
type Container interface {
	ID() string

	// Reports the container's lifecycle state.
	Status(ctx context.Context) (State, error)

	// Runs a process inside the container and waits for it to exit. A
	// non-zero exit code is reported in the result, not as an error.
	Exec(ctx context.Context, req ExecRequest) (*ExecResult, error)

	// Creates a directory, including parents.
	MkdirAll(ctx context.Context, path string) error

	// Extracts a tar stream into destDir, which must exist.
	CopyTo(ctx context.Context, r io.Reader, destDir string) error

	// Writes a tar stream of path to w. The archive holds a single top-level
	// entry named after the base of path. Errors wrap [ErrNotFound] when
	// the path or the container does not exist.
	CopyFrom(ctx context.Context, w io.Writer, path string) error

	// Removes the container and its filesystem. Succeeds when the
	// container does not exist.
	Destroy(ctx context.Context) error
}
