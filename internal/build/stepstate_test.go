package build

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cruciblehq/onebin/internal/recipe"
	"github.com/cruciblehq/onebin/internal/runtime"
)

func TestNewStepState(t *testing.T) {
	s := newStepState("/src")
	assert.Equal(t, runtime.DefaultShell, s.shell)
	assert.Equal(t, "/src", s.workdir)
	assert.Empty(t, s.env)
}

func TestApply(t *testing.T) {
	s := newStepState("/src")

	s.apply(recipe.Directive{Shell: "/bin/bash"})
	assert.Equal(t, "/bin/bash", s.shell)

	s.apply(recipe.Directive{Workdir: "/app"})
	assert.Equal(t, "/app", s.workdir)
	assert.Equal(t, "/bin/bash", s.shell, "shell changed after workdir apply")

	s.apply(recipe.Directive{Env: map[string]string{"A": "1", "B": "2"}})
	s.apply(recipe.Directive{Env: map[string]string{"A": "override"}})
	assert.Equal(t, map[string]string{"A": "override", "B": "2"}, s.env)

	s.apply(recipe.Directive{})
	assert.Equal(t, "/bin/bash", s.shell)
	assert.Equal(t, "/app", s.workdir)
}

func TestResolveDoesNotMutate(t *testing.T) {
	s := newStepState("/src")
	s.apply(recipe.Directive{Env: map[string]string{"A": "1"}})

	r := s.resolve(recipe.Directive{Shell: "/bin/bash", Workdir: "/tmp", Env: map[string]string{"A": "2", "B": "3"}})
	assert.Equal(t, "/bin/bash", r.shell)
	assert.Equal(t, "/tmp", r.workdir)
	assert.Equal(t, []string{"A=2", "B=3"}, r.environ())

	assert.Equal(t, runtime.DefaultShell, s.shell)
	assert.Equal(t, "/src", s.workdir)
	assert.Equal(t, []string{"A=1"}, s.environ())
}

func TestEnvironSorted(t *testing.T) {
	s := newStepState("/src")
	s.apply(recipe.Directive{Env: map[string]string{"Z": "1", "M": "2", "A": "3"}})
	assert.Equal(t, []string{"A=3", "M=2", "Z=1"}, s.environ())
}
