package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cruciblehq/onebin/internal/recipe"
	"github.com/cruciblehq/onebin/internal/runtime"
)

// Controls a build run.
type Options struct {
	Recipe          *recipe.Recipe // Validated recipe to build.
	Destination     string         // Host path for the artifact.
	Epoch           int64          // SOURCE_DATE_EPOCH for the build.
	Timeout         time.Duration  // Overall timeout. Zero uses the recipe timeout.
	TeardownTimeout time.Duration  // Bound on teardown. Zero uses [DefaultTeardownTimeout].
	Keep            bool           // Skip teardown, leaving the instance for inspection.
	Stdout          io.Writer      // Receives the steps' standard output. Nil discards it.
	Stderr          io.Writer      // Receives the steps' standard error. Nil discards it.
}

// Returned after a successful build.
type Result struct {
	ID       string    // Instance identifier.
	Artifact *Artifact // The extracted artifact.
}

// Holds the state of one build run.
type pipeline struct {
	rt       runtime.Runtime
	recipe   string
	id       string
	plan     *Plan
	archiver archiver
	stdout   io.Writer
	stderr   io.Writer
}

// Builds a recipe into a statically-linked executable at the destination.
//
// A fresh instance is created from the recipe's base image, provisioned
// step by step, and the static artifact is copied to opts.Destination.
// The instance is torn down afterwards whatever the outcome, unless
// opts.Keep is set. On failure no file is written to the destination.
func Run(ctx context.Context, rt runtime.Runtime, opts Options) (*Result, error) {
	r := opts.Recipe

	plan, err := NewPlan(r, opts.Epoch)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.TimeoutDuration()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := &pipeline{
		rt:       rt,
		recipe:   r.Name,
		id:       NewInstanceID(r.Name),
		plan:     plan,
		archiver: archiver{root: r.Dir(), mtime: time.Unix(opts.Epoch, 0).UTC()},
		stdout:   writerOrDiscard(opts.Stdout),
		stderr:   writerOrDiscard(opts.Stderr),
	}
	m := newMachine(p.id)

	slog.Info("building", "recipe", r.Name, "id", p.id, "image", plan.Image, "platform", plan.Platform)

	defer func() {
		if opts.Keep {
			slog.Info("keeping instance", "id", p.id)
			return
		}
		if err := Teardown(ctx, rt, p.id, opts.TeardownTimeout); err != nil {
			slog.Error("teardown failed", "id", p.id, "error", err)
			return
		}
		m.to(StateCleaned)
	}()

	art, err := p.build(ctx, m, opts.Destination)
	if err != nil {
		return nil, err
	}

	return &Result{ID: p.id, Artifact: art}, nil
}

// Provisions the instance and extracts the artifact, driving m through
// the build states.
func (p *pipeline) build(ctx context.Context, m *machine, dest string) (*Artifact, error) {
	if err := m.to(StateProvisioning); err != nil {
		return nil, err
	}

	ctr, err := p.rt.StartContainer(ctx, runtime.ContainerSpec{
		ID:       p.id,
		Image:    p.plan.Image,
		Platform: p.plan.Platform,
		Pull:     p.plan.Pull,
		Env:      p.plan.Env,
		Labels:   map[string]string{"dev.onebin.recipe": p.recipe},
		Progress: p.stderr,
	})
	if err != nil {
		m.to(StateFailed)
		return nil, fmt.Errorf("%w: step %s: %w", ErrEnvironmentAcquisition, StepAcquire, err)
	}

	static, err := p.provision(ctx, ctr)
	if err != nil {
		m.to(StateFailed)
		return nil, err
	}
	if err := m.to(StateProvisioned); err != nil {
		return nil, err
	}

	if err := m.to(StateExtracting); err != nil {
		return nil, err
	}
	art, err := Extract(ctx, ctr, static, dest)
	if err != nil {
		m.to(StateExtractFailed)
		return nil, err
	}
	if err := m.to(StateDone); err != nil {
		return nil, err
	}

	return art, nil
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
