package recipe

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `name: wtf-ds
base:
  image: python:3.12.3-slim-bookworm
manifest: requirements.txt
sources: ["*.py"]
entrypoint: wtf-ds.py
`

const fullTOML = `name = "wtf-ds"
requires = ">= 0.1"
python = "python3.12"
tools = ["pyinstaller==6.6.0", "staticx==0.14.1"]
manifest = "requirements.txt"
sources = ["*.py", "lib/**/*.py"]
entrypoint = "wtf-ds.py"
workdir = "/build"
timeout = "5m"

[base]
image = "python@sha256:0123456789012345678901234567890123456789012345678901234567890123"
platform = "linux/arm64"
pull = "always"

[system]
manager = "apk"
packages = ["binutils", "patchelf"]

[output]
dir = "out"
name = "wtf"
destination = "bin/wtf"

[env]
LANG = "C.UTF-8"

[[hooks.before_bundle]]
run = "python3 -m compileall ."

[verify]
args = ["--help"]
`

// Writes a recipe directory with a manifest and entry point.
func writeProject(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "requirements.txt"), []byte("colored==2.2.4\nujson\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wtf-ds.py"), []byte("print('hi')\n"), 0644))
	return filepath.Join(dir, name)
}

func TestLoadApkDefaultPackages(t *testing.T) {
	path := writeProject(t, "onebin.yaml", minimalYAML+"system:\n  manager: apk\n")

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"binutils", "musl-utils", "patchelf"}, r.System.Packages)
}

func TestLoadYAMLDefaults(t *testing.T) {
	path := writeProject(t, "onebin.yaml", minimalYAML)

	r, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wtf-ds", r.Name)
	assert.Equal(t, "docker.io/library/python:3.12.3-slim-bookworm", r.Image())
	assert.Equal(t, PullMissing, r.Base.Pull)
	assert.Equal(t, ManagerApt, r.System.Manager)
	assert.Equal(t, []string{"binutils", "libc-bin", "patchelf"}, r.System.Packages)
	assert.Equal(t, []string{"pyinstaller", "staticx"}, r.Tools)
	assert.Equal(t, "python3", r.Python)
	assert.Equal(t, ModeOneFile, r.Bundle.Mode)
	assert.Equal(t, "/src", r.Workdir)
	assert.Equal(t, "wtf-ds", r.Output.Name)
	assert.Equal(t, 30*time.Minute, r.TimeoutDuration())
	assert.Equal(t, filepath.Dir(path), r.Dir())
	assert.Equal(t, path, r.File())

	assert.Equal(t, "/src/dist/wtf-ds", r.DynamicPath())
	assert.Equal(t, "/src/dist/wtf-ds-static", r.StaticPath())
	assert.Equal(t, "/src/requirements.txt", r.ManifestPath())
	assert.Equal(t, "/work/wtf-ds", r.Destination("/work"))
}

func TestLoadTOML(t *testing.T) {
	path := writeProject(t, "onebin.toml", fullTOML)

	r, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "python3.12", r.Python)
	assert.Equal(t, "linux/arm64", r.Base.Platform)
	assert.Equal(t, PullAlways, r.Base.Pull)
	assert.Equal(t, ManagerApk, r.System.Manager)
	assert.Equal(t, "C.UTF-8", r.Env["LANG"])
	require.Len(t, r.Hooks.BeforeBundle, 1)
	assert.Equal(t, "python3 -m compileall .", r.Hooks.BeforeBundle[0].Run)
	assert.Equal(t, []string{"--help"}, r.Verify.Args)
	assert.Equal(t, 5*time.Minute, r.TimeoutDuration())
	assert.Equal(t, "/build/out/wtf-static", r.StaticPath())
	assert.Equal(t, "/work/bin/wtf", r.Destination("/work"))
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeProject(t, "onebin.yaml", minimalYAML+"entrypiont: typo.py\n")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrRecipe)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := writeProject(t, "onebin.json", "{}")

	_, err := Load(path)
	require.ErrorIs(t, err, ErrRecipe)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "onebin.yaml"))
	require.ErrorIs(t, err, ErrRecipe)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDestinationAbsolute(t *testing.T) {
	r := &Recipe{Output: Output{Name: "app", Destination: "/opt/bin/app"}}
	assert.Equal(t, "/opt/bin/app", r.Destination("/work"))
}
