package build

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cruciblehq/onebin/internal/recipe"
)

func TestNewPlanDeterministic(t *testing.T) {
	r := loadRecipe(t, "env:\n  ZED: \"1\"\n  ALPHA: \"2\"\n  PYTHONHASHSEED: \"1\"\n")

	a, err := NewPlan(r, 42)
	require.NoError(t, err)
	b, err := NewPlan(r, 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	assert.Equal(t, []string{
		"PYTHONHASHSEED=1",
		"SOURCE_DATE_EPOCH=42",
		"PIP_DISABLE_PIP_VERSION_CHECK=1",
		"PIP_NO_INPUT=1",
		"DEBIAN_FRONTEND=noninteractive",
		"ALPHA=2",
		"ZED=1",
	}, a.Env)
}

func TestNewPlanSteps(t *testing.T) {
	r := loadRecipe(t, "")
	p, err := NewPlan(r, 0)
	require.NoError(t, err)

	var names []string
	for _, s := range p.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{StepSystem, StepTools, StepDependencies, StepSources, StepBundle, StepStatic}, names)

	assert.Equal(t, "docker.io/library/python:3.12-slim", p.Image)
	assert.Equal(t, "/src/dist/main", p.Dynamic.Path)
	assert.Equal(t, "/src/dist/main-static", p.Static.Path)

	sources := p.Steps[3]
	assert.Equal(t, []string{"app/main.py", "app/util.py"}, sources.Files)
	assert.Equal(t, "/src", sources.Dest)

	deps := p.Steps[2]
	assert.Equal(t, []string{"requirements.txt"}, deps.Files)
	assert.Equal(t, []string{"python3", "-m", "pip", "install", "--no-cache-dir", "-r", "/src/requirements.txt"}, deps.Args)

	bundle := p.Steps[4]
	assert.Equal(t, []string{
		"pyinstaller", "--onefile", "--noconfirm", "--clean",
		"--distpath", "/src/dist", "--name", "main", "/src/app/main.py",
	}, bundle.Args)
	assert.Equal(t, p.Dynamic.Path, bundle.Output)

	static := p.Steps[5]
	assert.Equal(t, p.Dynamic.Path, static.Input)
	assert.Equal(t, []string{"staticx", "/src/dist/main", "/src/dist/main-static"}, static.Args)
	assert.Equal(t, p.Static.Path, static.Output)
}

func TestNewPlanApk(t *testing.T) {
	r := loadRecipe(t, "system:\n  manager: apk\n  packages: [binutils, patchelf]\ntools: []\n")
	p, err := NewPlan(r, 0)
	require.NoError(t, err)

	assert.Equal(t, StepSystem, p.Steps[0].Name)
	assert.Equal(t, []string{"apk", "add", "--no-cache", "binutils", "patchelf"}, p.Steps[0].Args)
	assert.Equal(t, StepDependencies, p.Steps[1].Name, "an empty tool list skips the tools step")
}

func TestSystemInstallApt(t *testing.T) {
	args, err := systemInstall(recipe.ManagerApt, []string{"binutils", "libc-bin"})
	require.NoError(t, err)
	require.Len(t, args, 3)
	assert.Equal(t, "/bin/sh", args[0])
	assert.Contains(t, args[2], "apt-get install -y --no-install-recommends binutils libc-bin")

	_, err = systemInstall("yum", nil)
	assert.ErrorIs(t, err, recipe.ErrRecipe)
}

func TestPlanRender(t *testing.T) {
	r := loadRecipe(t, "verify:\n  args: [\"--help\"]\n")
	p, err := NewPlan(r, 0)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.Render(&buf))

	out := buf.String()
	assert.Contains(t, out, "image     docker.io/library/python:3.12-slim (linux/amd64, pull missing)")
	assert.Contains(t, out, "copy 2 file(s) to /src")
	assert.Contains(t, out, "run staticx /src/dist/main /src/dist/main-static")
	assert.Contains(t, out, "verify")
	assert.Contains(t, out, "artifact  /src/dist/main-static")
}

func TestMatchSourcesNoMatch(t *testing.T) {
	_, err := matchSources(t.TempDir(), []string{"**/*.py"})
	assert.ErrorIs(t, err, recipe.ErrRecipe)
}
