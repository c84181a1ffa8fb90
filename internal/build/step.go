package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/cruciblehq/onebin/internal/recipe"
	"github.com/cruciblehq/onebin/internal/runtime"
)

// Executes the plan's steps in order against the instance.
//
// The first failing step aborts the sequence. On success the static bundle
// exists in the instance.
func (p *pipeline) provision(ctx context.Context, ctr runtime.Container) (StaticBundle, error) {
	if err := ctr.MkdirAll(ctx, p.plan.Workdir); err != nil {
		return StaticBundle{}, fmt.Errorf("%w: workdir: %w", ErrProvisioningStep, err)
	}

	state := newStepState(p.plan.Workdir)
	for i, step := range p.plan.Steps {
		slog.Info("step", "id", p.id, "n", i+1, "of", len(p.plan.Steps), "step", step.Name)
		if err := p.executeStep(ctx, ctr, step, state); err != nil {
			return StaticBundle{}, err
		}
	}

	return p.plan.Static, nil
}

// Executes a single step.
func (p *pipeline) executeStep(ctx context.Context, ctr runtime.Container, step Step, state *stepState) error {
	if len(step.Files) > 0 {
		if err := copyFiles(ctx, ctr, p.archiver, step.Files, step.Dest); err != nil {
			return fmt.Errorf("%w: step %s: %w", ErrProvisioningStep, step.Name, err)
		}
	}

	if step.Hook != nil {
		return p.executeDirective(ctx, ctr, *step.Hook, state)
	}

	if step.Input != "" {
		if err := requirePath(ctx, ctr, step.Name, step.Input); err != nil {
			return err
		}
	}

	if len(step.Args) > 0 {
		if err := p.run(ctx, ctr, step.Name, runtime.ExecRequest{Args: step.Args, Workdir: p.plan.Workdir}); err != nil {
			return err
		}
	}

	if step.Output != "" {
		return requirePath(ctx, ctr, step.Name, step.Output)
	}
	return nil
}

// Executes a hook directive with scoped modifier overrides.
//
// Modifier-only directives persist in state; operations resolve their own
// modifiers over it without changing it.
func (p *pipeline) executeDirective(ctx context.Context, ctr runtime.Container, d recipe.Directive, state *stepState) error {
	if d.Run == "" && d.Copy == "" {
		state.apply(d)
		return nil
	}

	resolved := state.resolve(d)
	if err := ctr.MkdirAll(ctx, resolved.workdir); err != nil {
		return fmt.Errorf("%w: step %s: %w", ErrProvisioningStep, StepHook, err)
	}

	if d.Copy != "" {
		if err := executeCopy(ctx, ctr, p.archiver, d.Copy, resolved.workdir); err != nil {
			return fmt.Errorf("%w: step %s: %w", ErrProvisioningStep, StepHook, err)
		}
		return nil
	}

	slog.Debug("run", "command", d.Run, "shell", resolved.shell, "workdir", resolved.workdir)
	return p.run(ctx, ctr, StepHook, runtime.ExecRequest{
		Args:    runtime.ShellArgs(resolved.shell, d.Run),
		Env:     resolved.environ(),
		Workdir: resolved.workdir,
	})
}

// Runs a step command, streaming its output, and converts a non-zero exit
// into a [StepError].
func (p *pipeline) run(ctx context.Context, ctr runtime.Container, name string, req runtime.ExecRequest) error {
	req.Stdout = p.stdout
	req.Stderr = p.stderr

	cmd, err := quote(req.Args)
	if err != nil {
		return err
	}
	slog.Debug("exec", "id", p.id, "step", name, "command", cmd)

	result, err := ctr.Exec(ctx, req)
	if err != nil {
		return fmt.Errorf("%w: step %s: %w", ErrProvisioningStep, name, err)
	}
	if result.ExitCode != 0 {
		return &StepError{Step: name, Command: cmd, ExitCode: result.ExitCode, Stderr: result.Stderr}
	}
	return nil
}

// Fails with [ErrArtifactMissing] unless p is a regular file in the instance.
func requirePath(ctx context.Context, ctr runtime.Container, step, p string) error {
	result, err := ctr.Exec(ctx, runtime.ExecRequest{Args: []string{"test", "-f", p}, Stdout: io.Discard})
	if err != nil {
		return fmt.Errorf("%w: step %s: checking %s: %w", ErrProvisioningStep, step, p, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: step %s: %s", ErrArtifactMissing, step, p)
	}
	return nil
}
