package build

import (
	"maps"
	"slices"

	"github.com/cruciblehq/onebin/internal/recipe"
	"github.com/cruciblehq/onebin/internal/runtime"
)

// Tracks accumulated modifiers while hook directives execute.
//
// State flows linearly through the directive list. Modifier-only directives
// update the state permanently via apply. Operations read the effective
// values for a single directive via resolve without modifying the
// persistent state.
type stepState struct {
	shell   string
	workdir string
	env     map[string]string
}

// Creates a new [stepState] rooted at workdir.
func newStepState(workdir string) *stepState {
	return &stepState{
		shell:   runtime.DefaultShell,
		workdir: workdir,
		env:     make(map[string]string),
	}
}

// Persists modifier fields from a directive into the state.
func (s *stepState) apply(d recipe.Directive) {
	if d.Shell != "" {
		s.shell = d.Shell
	}
	if d.Workdir != "" {
		s.workdir = d.Workdir
	}
	maps.Copy(s.env, d.Env)
}

// Returns a new [stepState] with the directive's modifiers overlaid on the
// persistent state. The receiver is not modified.
func (s *stepState) resolve(d recipe.Directive) *stepState {
	resolved := &stepState{
		shell:   s.shell,
		workdir: s.workdir,
		env:     make(map[string]string, len(s.env)+len(d.Env)),
	}
	maps.Copy(resolved.env, s.env)
	maps.Copy(resolved.env, d.Env)

	if d.Shell != "" {
		resolved.shell = d.Shell
	}
	if d.Workdir != "" {
		resolved.workdir = d.Workdir
	}

	return resolved
}

// Formats the environment as "key=value" strings in key order.
func (s *stepState) environ() []string {
	keys := slices.Sorted(maps.Keys(s.env))
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+s.env[k])
	}
	return env
}
