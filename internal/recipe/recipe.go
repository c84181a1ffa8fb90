package recipe

import (
	"path"
	"path/filepath"
	goruntime "runtime"
	"slices"
	"strings"
	"time"
)

// Package managers supported for system package installation.
const (
	ManagerApt = "apt"
	ManagerApk = "apk"
)

// Pull policies for the base image.
const (
	PullMissing = "missing" // Pull only when the image is not present locally.
	PullAlways  = "always"  // Re-pull the reference on every build.
)

// Bundler modes. Only single-file bundles can be statically linked.
const (
	ModeOneFile = "onefile"
)

const (
	defaultPython  = "python3"
	defaultWorkdir = "/src"
	defaultOutDir  = "dist"
	defaultTimeout = Duration(30 * time.Minute)

	// Suffix appended to the artifact name for the statically-linked bundle.
	staticSuffix = "-static"
)

// Default system packages by manager: a binary inspector, the C library's
// ldd and an ELF patcher, which the static-linking post-processor shells
// out to.
var defaultSystemPackages = map[string][]string{
	ManagerApt: {"binutils", "libc-bin", "patchelf"},
	ManagerApk: {"binutils", "musl-utils", "patchelf"},
}

// Default packaging tools: the single-file bundler and the static-linking
// post-processor.
var defaultTools = []string{"pyinstaller", "staticx"}

// Declarative description of a single-binary build.
type Recipe struct {
	Name       string            `yaml:"name" toml:"name"`                                 // Recipe name, used for instance IDs and the default artifact name.
	Requires   string            `yaml:"requires,omitempty" toml:"requires,omitempty"`     // Semantic version constraint on onebin itself.
	Base       Base              `yaml:"base" toml:"base"`                                 // Base runtime image.
	System     System            `yaml:"system" toml:"system"`                             // System packages.
	Python     string            `yaml:"python,omitempty" toml:"python,omitempty"`         // Interpreter used for package installs.
	Tools      []string          `yaml:"tools,omitempty" toml:"tools,omitempty"`           // Packaging tools installed with the ecosystem package manager.
	Manifest   string            `yaml:"manifest" toml:"manifest"`                         // Dependency manifest, relative to the recipe directory.
	Sources    []string          `yaml:"sources" toml:"sources"`                           // Source globs, relative to the recipe directory.
	Entrypoint string            `yaml:"entrypoint" toml:"entrypoint"`                     // Entry-point script, relative to the recipe directory.
	Bundle     Bundle            `yaml:"bundle,omitempty" toml:"bundle,omitempty"`         // Bundler options.
	Output     Output            `yaml:"output,omitempty" toml:"output,omitempty"`         // Output locations.
	Workdir    string            `yaml:"workdir,omitempty" toml:"workdir,omitempty"`       // Working directory inside the build environment.
	Env        map[string]string `yaml:"env,omitempty" toml:"env,omitempty"`               // Extra environment for every step.
	Hooks      Hooks             `yaml:"hooks,omitempty" toml:"hooks,omitempty"`           // Extra directives.
	Verify     Verify            `yaml:"verify,omitempty" toml:"verify,omitempty"`         // Smoke test for the static artifact.
	Timeout    Duration          `yaml:"timeout,omitempty" toml:"timeout,omitempty"`       // Overall build timeout.

	dir   string // Directory containing the recipe file.
	file  string // Path of the recipe file.
	image string // Normalized, pinned base image reference.
}

type Base struct {
	Image    string `yaml:"image" toml:"image"`                           // Pinned image reference.
	Platform string `yaml:"platform,omitempty" toml:"platform,omitempty"` // OCI platform, e.g. "linux/amd64".
	Pull     string `yaml:"pull,omitempty" toml:"pull,omitempty"`         // One of [PullMissing] or [PullAlways].
}

type System struct {
	Manager  string   `yaml:"manager,omitempty" toml:"manager,omitempty"`
	Packages []string `yaml:"packages,omitempty" toml:"packages,omitempty"`
}

type Bundle struct {
	Mode string   `yaml:"mode,omitempty" toml:"mode,omitempty"`
	Args []string `yaml:"args,omitempty" toml:"args,omitempty"` // Extra bundler arguments.
}

type Output struct {
	Dir         string `yaml:"dir,omitempty" toml:"dir,omitempty"`                 // Output directory inside the build environment, relative to workdir.
	Name        string `yaml:"name,omitempty" toml:"name,omitempty"`               // Artifact name.
	Destination string `yaml:"destination,omitempty" toml:"destination,omitempty"` // Host destination path.
}

type Hooks struct {
	BeforeBundle []Directive `yaml:"before_bundle,omitempty" toml:"before_bundle,omitempty"`
}

// An extra run or copy operation, with optional modifiers.
//
// At most one of Run and Copy is set. Copy has the form "src dest"; src is
// resolved against the recipe directory and may be a glob. Modifiers on an
// operation apply to it alone; a directive with only modifiers applies them
// to every directive after it.
type Directive struct {
	Run     string            `yaml:"run,omitempty" toml:"run,omitempty"`
	Copy    string            `yaml:"copy,omitempty" toml:"copy,omitempty"`
	Shell   string            `yaml:"shell,omitempty" toml:"shell,omitempty"`
	Workdir string            `yaml:"workdir,omitempty" toml:"workdir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" toml:"env,omitempty"`
}

type Verify struct {
	Args []string `yaml:"args,omitempty" toml:"args,omitempty"`
}

// Fills unset fields with their defaults.
func (r *Recipe) applyDefaults() {
	if r.Base.Platform == "" {
		r.Base.Platform = "linux/" + goruntime.GOARCH
	}
	if r.Base.Pull == "" {
		r.Base.Pull = PullMissing
	}
	if r.System.Manager == "" {
		r.System.Manager = ManagerApt
	}
	if r.System.Packages == nil {
		r.System.Packages = slices.Clone(defaultSystemPackages[r.System.Manager])
	}
	if r.Python == "" {
		r.Python = defaultPython
	}
	if r.Tools == nil {
		r.Tools = append([]string(nil), defaultTools...)
	}
	if r.Bundle.Mode == "" {
		r.Bundle.Mode = ModeOneFile
	}
	if r.Workdir == "" {
		r.Workdir = defaultWorkdir
	}
	if r.Output.Dir == "" {
		r.Output.Dir = defaultOutDir
	}
	if r.Output.Name == "" && r.Entrypoint != "" {
		base := path.Base(filepath.ToSlash(r.Entrypoint))
		r.Output.Name = strings.TrimSuffix(base, path.Ext(base))
	}
	if r.Timeout == 0 {
		r.Timeout = defaultTimeout
	}
}

// Directory containing the recipe file. Relative recipe paths resolve
// against it.
func (r *Recipe) Dir() string {
	return r.dir
}

// Path of the file the recipe was loaded from.
func (r *Recipe) File() string {
	return r.file
}

// Normalized, fully-qualified base image reference.
func (r *Recipe) Image() string {
	return r.image
}

// Absolute in-instance output directory.
func (r *Recipe) OutputDir() string {
	return path.Join(r.Workdir, filepath.ToSlash(r.Output.Dir))
}

// In-instance path of the dynamically-linked bundle.
func (r *Recipe) DynamicPath() string {
	return path.Join(r.OutputDir(), r.Output.Name)
}

// In-instance path of the statically-linked bundle.
func (r *Recipe) StaticPath() string {
	return path.Join(r.OutputDir(), r.Output.Name+staticSuffix)
}

// In-instance path of the dependency manifest.
func (r *Recipe) ManifestPath() string {
	return path.Join(r.Workdir, filepath.ToSlash(r.Manifest))
}

// Host path of the dependency manifest.
func (r *Recipe) ManifestHostPath() string {
	return r.hostPath(r.Manifest)
}

// Host destination for the artifact.
//
// An explicit destination is resolved against cwd when relative. Without
// one, the artifact is written to cwd under the output name.
func (r *Recipe) Destination(cwd string) string {
	dest := r.Output.Destination
	if dest == "" {
		dest = r.Output.Name
	}
	if filepath.IsAbs(dest) {
		return filepath.Clean(dest)
	}
	return filepath.Join(cwd, dest)
}

// Returns the overall build timeout.
func (r *Recipe) TimeoutDuration() time.Duration {
	return time.Duration(r.Timeout)
}

// Resolves a recipe-relative path on the host.
func (r *Recipe) hostPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.dir, filepath.FromSlash(p))
}
