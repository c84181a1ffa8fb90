package cli

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"path"
	"slices"
	"sync"
	"testing"

	"github.com/cruciblehq/onebin/internal/runtime"
	"github.com/cruciblehq/onebin/internal/settings"
)

// Runtime whose containers pretend to run the bundling commands.
type fakeRuntime struct {
	mu        sync.Mutex
	failStart map[string]bool // Recipes whose environment cannot start.
	failDeps  map[string]bool // Recipes whose dependency install exits 1.
	destroyed map[string]int
	closed    bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		failStart: make(map[string]bool),
		failDeps:  make(map[string]bool),
		destroyed: make(map[string]int),
	}
}

// Installs rt as the runtime for the duration of the test.
func useRuntime(t *testing.T, rt *fakeRuntime) {
	t.Helper()
	prev := newRuntime
	newRuntime = func(*settings.Settings) (runtime.Runtime, error) { return rt, nil }
	t.Cleanup(func() { newRuntime = prev })
}

func (f *fakeRuntime) Name() string { return "fake" }

func (f *fakeRuntime) Close() error {
	f.closed = true
	return nil
}

func (f *fakeRuntime) StartContainer(ctx context.Context, spec runtime.ContainerSpec) (runtime.Container, error) {
	name := spec.Labels["dev.onebin.recipe"]
	if f.failStart[name] {
		return nil, fmt.Errorf("%w: %s unavailable", runtime.ErrImage, spec.Image)
	}
	return &fakeContainer{rt: f, id: spec.ID, recipe: name, files: make(map[string][]byte)}, nil
}

func (f *fakeRuntime) Container(id string) runtime.Container {
	return &fakeContainer{rt: f, id: id, files: make(map[string][]byte)}
}

type fakeContainer struct {
	rt     *fakeRuntime
	id     string
	recipe string
	files  map[string][]byte
}

func (c *fakeContainer) ID() string { return c.id }

func (c *fakeContainer) Status(ctx context.Context) (runtime.State, error) {
	return runtime.ContainerRunning, nil
}

func (c *fakeContainer) Exec(ctx context.Context, req runtime.ExecRequest) (*runtime.ExecResult, error) {
	args := req.Args
	switch {
	case args[0] == "test":
		if _, ok := c.files[args[2]]; !ok {
			return &runtime.ExecResult{ExitCode: 1}, nil
		}
		return &runtime.ExecResult{}, nil
	case slices.Contains(args, "-r") && c.rt.failDeps[c.recipe]:
		return &runtime.ExecResult{ExitCode: 1, Stderr: "no matching distribution\n"}, nil
	case slices.Contains(args, "--distpath"):
		c.files[path.Join(value(args, "--distpath"), value(args, "--name"))] = []byte("dynamic")
	case args[0] == "staticx":
		c.files[args[2]] = []byte("static " + c.recipe)
	}

	if req.Stdout != nil {
		fmt.Fprintf(req.Stdout, "ran %s\n", path.Base(args[0]))
	}
	return &runtime.ExecResult{}, nil
}

func (c *fakeContainer) MkdirAll(ctx context.Context, dir string) error {
	return nil
}

func (c *fakeContainer) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

func (c *fakeContainer) CopyFrom(ctx context.Context, w io.Writer, p string) error {
	data, ok := c.files[p]
	if !ok {
		return fmt.Errorf("%w: %s", runtime.ErrNotFound, p)
	}
	tw := tar.NewWriter(w)
	if err := tw.WriteHeader(&tar.Header{Name: path.Base(p), Mode: 0o755, Size: int64(len(data)), Typeflag: tar.TypeReg}); err != nil {
		return err
	}
	if _, err := tw.Write(data); err != nil {
		return err
	}
	return tw.Close()
}

func (c *fakeContainer) Destroy(ctx context.Context) error {
	c.rt.mu.Lock()
	defer c.rt.mu.Unlock()
	c.rt.destroyed[c.id]++
	return nil
}

func value(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
