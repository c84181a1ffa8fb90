package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/hashicorp/go-multierror"
	"github.com/koron-go/prefixw"
	"golang.org/x/sync/errgroup"

	"github.com/cruciblehq/onebin/internal/build"
	"github.com/cruciblehq/onebin/internal/recipe"
	"github.com/cruciblehq/onebin/internal/runtime"
	"github.com/cruciblehq/onebin/internal/source"
)

// Streams that builds write to.
var (
	buildStdout io.Writer = os.Stdout
	buildStderr io.Writer = os.Stderr
)

// Represents the 'onebin build' command.
type BuildCmd struct {
	Recipes []string      `arg:"" optional:"" type:"path" help:"Recipe files or directories containing one. Defaults to the working directory." placeholder:"RECIPE"`
	Output  string        `short:"o" type:"path" help:"Artifact destination. Only valid with a single recipe." placeholder:"PATH"`
	Jobs    int           `short:"j" help:"Maximum number of concurrent builds. Overrides settings."`
	Timeout time.Duration `help:"Per-build timeout. Overrides recipes and settings."`
	Keep    bool          `help:"Keep build instances for inspection instead of tearing them down."`
}

// Executes the build command.
//
// Recipes build concurrently up to the job limit. A failing build does not
// stop the others; all failures are reported together, in argument order.
// Each successful build prints its artifact path on stdout.
func (c *BuildCmd) Run(ctx context.Context) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}

	recipes, err := loadRecipes(c.Recipes)
	if err != nil {
		return err
	}
	if c.Output != "" && len(recipes) > 1 {
		return fmt.Errorf("%w: --output requires a single recipe, got %d", ErrUsage, len(recipes))
	}

	jobs := s.Jobs
	if c.Jobs > 0 {
		jobs = c.Jobs
	}
	timeout := s.Timeout
	if c.Timeout > 0 {
		timeout = c.Timeout
	}

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	rt, err := newRuntime(s)
	if err != nil {
		return err
	}
	defer rt.Close()

	stdout := &syncWriter{w: buildStdout}
	stderr := &syncWriter{w: buildStderr}
	prefixed := len(recipes) > 1 && jobs > 1

	results := make([]*build.Result, len(recipes))
	errs := make([]error, len(recipes))

	var g errgroup.Group
	g.SetLimit(jobs)

	for i, r := range recipes {
		g.Go(func() error {
			opts := build.Options{
				Recipe:      r,
				Destination: r.Destination(cwd),
				Timeout:     timeout,
				Keep:        c.Keep,
				Stdout:      stdout,
				Stderr:      stderr,
			}
			if c.Output != "" {
				opts.Destination = c.Output
			}
			if prefixed {
				opts.Stdout = prefixw.New(stdout, r.Name+" | ")
				opts.Stderr = prefixw.New(stderr, r.Name+" | ")
			}

			results[i], errs[i] = runOne(ctx, rt, opts)
			return nil
		})
	}
	g.Wait()

	var result *multierror.Error
	for i, r := range recipes {
		if errs[i] != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", r.Name, errs[i]))
			continue
		}
		art := results[i].Artifact
		slog.Info("built",
			"recipe", r.Name,
			"path", art.Path,
			"size", units.HumanSize(float64(art.Size)),
			"digest", art.Digest,
		)
		fmt.Fprintln(stdout, art.Path)
	}

	return result.ErrorOrNil()
}

// Derives the source epoch and runs a single build.
func runOne(ctx context.Context, rt runtime.Runtime, opts build.Options) (*build.Result, error) {
	epoch, err := source.Epoch(opts.Recipe.Dir())
	if err != nil {
		return nil, err
	}
	opts.Epoch = epoch

	start := time.Now()
	res, err := build.Run(ctx, rt, opts)
	if err != nil {
		return nil, err
	}

	slog.Debug("build finished", "recipe", opts.Recipe.Name, "id", res.ID, "elapsed", units.HumanDuration(time.Since(start)))
	return res, nil
}

// Loads and validates every recipe named on the command line.
//
// A directory argument resolves to the conventional recipe file inside it.
// With no arguments the working directory is used. All recipes are loaded
// before any build starts, so a broken recipe fails the whole invocation.
func loadRecipes(args []string) ([]*recipe.Recipe, error) {
	if len(args) == 0 {
		args = []string{"."}
	}

	var (
		recipes []*recipe.Recipe
		result  *multierror.Error
	)
	for _, arg := range args {
		r, err := loadRecipe(arg)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		recipes = append(recipes, r)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return recipes, nil
}

// Serializes writes from concurrent builds.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
