package build

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cruciblehq/onebin/internal/recipe"
	"github.com/cruciblehq/onebin/internal/runtime"
)

// In-memory runtime whose containers interpret the commands the pipeline
// issues.
type fakeRuntime struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer
	startErr   error
	destroyed  map[string]int
	configure  func(*fakeContainer)
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		containers: make(map[string]*fakeContainer),
		destroyed:  make(map[string]int),
	}
}

func (f *fakeRuntime) Name() string { return "fake" }
func (f *fakeRuntime) Close() error { return nil }

func (f *fakeRuntime) StartContainer(ctx context.Context, spec runtime.ContainerSpec) (runtime.Container, error) {
	if f.startErr != nil {
		return nil, fmt.Errorf("%w: %w", runtime.ErrImage, f.startErr)
	}
	c := &fakeContainer{
		rt:    f,
		id:    spec.ID,
		spec:  spec,
		files: make(map[string][]byte),
		fail:  make(map[string]int),
	}
	if f.configure != nil {
		f.configure(c)
	}

	f.mu.Lock()
	f.containers[spec.ID] = c
	f.mu.Unlock()
	return c, nil
}

func (f *fakeRuntime) Container(id string) runtime.Container {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[id]; ok {
		return c
	}
	return &fakeContainer{rt: f, id: id, gone: true}
}

// Returns the only container started so far.
func (f *fakeRuntime) only(t *testing.T) *fakeContainer {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.containers, 1)
	for _, c := range f.containers {
		return c
	}
	return nil
}

type fakeContainer struct {
	rt    *fakeRuntime
	id    string
	spec  runtime.ContainerSpec
	gone  bool
	files map[string][]byte

	fail     map[string]int  // Exit code by command name.
	noOutput map[string]bool // Commands that succeed without producing output.
	hang     map[string]bool // Commands that block until the context ends.
	commands [][]string
}

func (c *fakeContainer) ID() string { return c.id }

func (c *fakeContainer) Status(ctx context.Context) (runtime.State, error) {
	if c.gone {
		return runtime.ContainerNotCreated, nil
	}
	return runtime.ContainerRunning, nil
}

func (c *fakeContainer) Exec(ctx context.Context, req runtime.ExecRequest) (*runtime.ExecResult, error) {
	if c.gone {
		return nil, fmt.Errorf("%w: %s", runtime.ErrNotFound, c.id)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	args := req.Args
	c.commands = append(c.commands, args)

	name := commandName(args)
	if c.hang[name] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if code, ok := c.fail[name]; ok {
		if req.Stderr != nil {
			fmt.Fprintf(req.Stderr, "%s: simulated failure\n", name)
		}
		return &runtime.ExecResult{ExitCode: code, Stderr: name + ": simulated failure\n"}, nil
	}

	switch name {
	case "test":
		if _, ok := c.files[args[2]]; ok {
			return &runtime.ExecResult{}, nil
		}
		return &runtime.ExecResult{ExitCode: 1}, nil
	case "pyinstaller":
		if !c.noOutput[name] {
			c.files[path.Join(flagValue(args, "--distpath"), flagValue(args, "--name"))] = []byte("dynamic")
		}
	case "staticx":
		in := args[len(args)-2]
		if _, ok := c.files[in]; !ok {
			return &runtime.ExecResult{ExitCode: 1, Stderr: "no input"}, nil
		}
		if !c.noOutput[name] {
			c.files[args[len(args)-1]] = []byte("static:" + string(c.files[in]))
		}
	}

	if req.Stdout != nil {
		fmt.Fprintf(req.Stdout, "ran %s\n", name)
	}
	return &runtime.ExecResult{}, nil
}

func (c *fakeContainer) MkdirAll(ctx context.Context, dir string) error {
	if c.gone {
		return runtime.ErrNotFound
	}
	return nil
}

func (c *fakeContainer) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		c.files[path.Join(destDir, hdr.Name)] = data
	}
}

func (c *fakeContainer) CopyFrom(ctx context.Context, w io.Writer, p string) error {
	if c.gone {
		return fmt.Errorf("%w: %s", runtime.ErrNotFound, c.id)
	}
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
	delete(c.rt.containers, c.id)
	c.gone = true
	return nil
}

// Returns the command name, looking through "sh -c" and "python -m".
func commandName(args []string) string {
	switch {
	case len(args) == 0:
		return ""
	case len(args) >= 3 && args[1] == "-c":
		return strings.Fields(args[2])[0]
	case len(args) >= 3 && args[1] == "-m":
		if slices.Contains(args, "-r") {
			return args[2] + "-r"
		}
		return args[2]
	default:
		return path.Base(args[0])
	}
}

func flagValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// Writes a minimal project and loads its recipe.
func loadRecipe(t *testing.T, extra string) *recipe.Recipe {
	t.Helper()
	dir := t.TempDir()

	files := map[string]string{
		"requirements.txt": "requests==2.32.3\n",
		"app/main.py":      "print('hi')\n",
		"app/util.py":      "X = 1\n",
		"README.md":        "not a source\n",
	}
	for name, content := range files {
		writeFile(t, dir, name, content)
	}

	yaml := `name: app
base:
  image: docker.io/library/python:3.12-slim
  platform: linux/amd64
manifest: requirements.txt
sources:
  - "app/**/*.py"
entrypoint: app/main.py
` + extra
	writeFile(t, dir, "onebin.yaml", yaml)

	r, err := recipe.Load(filepath.Join(dir, "onebin.yaml"))
	require.NoError(t, err)
	return r
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// Reads every regular file from a tar stream.
func readTar(t *testing.T, data []byte) map[string]string {
	t.Helper()
	out := make(map[string]string)
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = string(body)
	}
}

// Returns a container spec for a fixed instance ID, using plan when set.
func containerSpec(t *testing.T, plan *Plan) runtime.ContainerSpec {
	t.Helper()
	spec := runtime.ContainerSpec{ID: "app-00000000", Image: "docker.io/library/python:3.12-slim", Platform: "linux/amd64"}
	if plan != nil {
		spec.Image = plan.Image
		spec.Platform = plan.Platform
		spec.Env = plan.Env
	}
	return spec
}
