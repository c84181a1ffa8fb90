package build

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/frioux/shellquote"

	"github.com/cruciblehq/onebin/internal/recipe"
	"github.com/cruciblehq/onebin/internal/runtime"
)

// Provisioning step names, in execution order.
const (
	StepAcquire      = "acquire"
	StepSystem       = "system"
	StepTools        = "tools"
	StepDependencies = "dependencies"
	StepSources      = "sources"
	StepHook         = "hook"
	StepBundle       = "bundle"
	StepStatic       = "static"
	StepVerify       = "verify"
)

// A single provisioning step.
//
// Fields are applied in order: Files are copied into Dest, Hook is
// executed, Input must exist, Args are run, and Output must exist.
type Step struct {
	Name   string            // Step name, one of the Step* constants.
	Files  []string          // Recipe-relative host files copied into the instance.
	Dest   string            // In-instance directory receiving Files, relative paths preserved.
	Hook   *recipe.Directive // Extra directive, for [StepHook].
	Input  string            // In-instance path that must exist before Args run.
	Args   []string          // Command run in the instance.
	Output string            // In-instance path that must exist after Args run.
}

// The fully resolved provisioning sequence for a recipe.
//
// A plan depends only on the recipe, the files it matches and the source
// epoch, so the same inputs always give the same plan.
type Plan struct {
	Image    string        // Pinned base image reference.
	Platform string        // OCI platform.
	Pull     runtime.PullPolicy
	Workdir  string        // In-instance working directory.
	Env      []string      // Environment shared by every step.
	Steps    []Step        // Steps after acquisition, in order.
	Dynamic  DynamicBundle // Output of the bundle step.
	Static   StaticBundle  // Output of the static step.
}

// Resolves the provisioning plan for r.
//
// Source patterns are expanded against the recipe directory; the matched
// files are sorted so the injected tree does not depend on directory
// order. epoch is exported as SOURCE_DATE_EPOCH.
func NewPlan(r *recipe.Recipe, epoch int64) (*Plan, error) {
	sources, err := matchSources(r.Dir(), r.Sources)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		Image:    r.Image(),
		Platform: r.Base.Platform,
		Pull:     runtime.PullPolicy(r.Base.Pull),
		Workdir:  r.Workdir,
		Env:      buildEnv(r, epoch),
		Dynamic:  DynamicBundle{Path: r.DynamicPath()},
		Static:   StaticBundle{Path: r.StaticPath()},
	}

	if len(r.System.Packages) > 0 {
		args, err := systemInstall(r.System.Manager, r.System.Packages)
		if err != nil {
			return nil, err
		}
		p.Steps = append(p.Steps, Step{Name: StepSystem, Args: args})
	}

	if len(r.Tools) > 0 {
		args := append([]string{r.Python, "-m", "pip", "install", "--no-cache-dir"}, r.Tools...)
		p.Steps = append(p.Steps, Step{Name: StepTools, Args: args})
	}

	p.Steps = append(p.Steps, Step{
		Name:  StepDependencies,
		Files: []string{path.Clean(filepath.ToSlash(r.Manifest))},
		Dest:  r.Workdir,
		Args:  []string{r.Python, "-m", "pip", "install", "--no-cache-dir", "-r", r.ManifestPath()},
	})

	p.Steps = append(p.Steps, Step{Name: StepSources, Files: sources, Dest: r.Workdir})

	for i := range r.Hooks.BeforeBundle {
		p.Steps = append(p.Steps, Step{Name: StepHook, Hook: &r.Hooks.BeforeBundle[i]})
	}

	bundle := []string{
		"pyinstaller", "--onefile", "--noconfirm", "--clean",
		"--distpath", r.OutputDir(),
		"--name", r.Output.Name,
	}
	bundle = append(bundle, r.Bundle.Args...)
	bundle = append(bundle, path.Join(r.Workdir, filepath.ToSlash(r.Entrypoint)))
	p.Steps = append(p.Steps, Step{Name: StepBundle, Args: bundle, Output: p.Dynamic.Path})

	p.Steps = append(p.Steps, Step{
		Name:   StepStatic,
		Input:  p.Dynamic.Path,
		Args:   []string{"staticx", p.Dynamic.Path, p.Static.Path},
		Output: p.Static.Path,
	})

	if len(r.Verify.Args) > 0 {
		args := append([]string{p.Static.Path}, r.Verify.Args...)
		p.Steps = append(p.Steps, Step{Name: StepVerify, Args: args})
	}

	return p, nil
}

// Writes a human-readable rendition of the plan.
func (p *Plan) Render(w io.Writer) error {
	fmt.Fprintf(w, "image     %s (%s, pull %s)\n", p.Image, p.Platform, p.Pull)
	fmt.Fprintf(w, "workdir   %s\n", p.Workdir)
	for _, e := range p.Env {
		fmt.Fprintf(w, "env       %s\n", e)
	}

	for i, s := range p.Steps {
		fmt.Fprintf(w, "%2d. %s\n", i+1, s.Name)
		if len(s.Files) > 0 {
			fmt.Fprintf(w, "      copy %d file(s) to %s\n", len(s.Files), s.Dest)
		}
		if s.Hook != nil {
			fmt.Fprintf(w, "      %s\n", describeDirective(*s.Hook))
		}
		if s.Input != "" {
			fmt.Fprintf(w, "      require %s\n", s.Input)
		}
		if len(s.Args) > 0 {
			cmd, err := quote(s.Args)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "      run %s\n", cmd)
		}
		if s.Output != "" {
			fmt.Fprintf(w, "      produce %s\n", s.Output)
		}
	}

	_, err := fmt.Fprintf(w, "artifact  %s\n", p.Static.Path)
	return err
}

// Returns the environment shared by every step.
//
// Reproducibility variables come first; recipe entries override them and
// are appended in key order.
func buildEnv(r *recipe.Recipe, epoch int64) []string {
	env := []string{
		"PYTHONHASHSEED=0",
		"SOURCE_DATE_EPOCH=" + strconv.FormatInt(epoch, 10),
		"PIP_DISABLE_PIP_VERSION_CHECK=1",
		"PIP_NO_INPUT=1",
		"DEBIAN_FRONTEND=noninteractive",
	}

	keys := make([]string, 0, len(r.Env))
	for k := range r.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	overrides := make([]string, 0, len(keys))
	for _, k := range keys {
		overrides = append(overrides, k+"="+r.Env[k])
	}
	return runtime.MergeEnv(env, overrides)
}

// Returns the command installing system packages with manager.
func systemInstall(manager string, packages []string) ([]string, error) {
	switch manager {
	case recipe.ManagerApk:
		return append([]string{"apk", "add", "--no-cache"}, packages...), nil
	case recipe.ManagerApt:
		pkgs, err := quote(packages)
		if err != nil {
			return nil, err
		}
		cmd := "apt-get update && apt-get install -y --no-install-recommends " + pkgs + " && rm -rf /var/lib/apt/lists/*"
		return runtime.ShellArgs(runtime.DefaultShell, cmd), nil
	default:
		return nil, fmt.Errorf("%w: unknown package manager %q", recipe.ErrRecipe, manager)
	}
}

// Expands source patterns against dir.
//
// Only regular files are returned, as sorted, slash-separated paths relative
// to dir, without duplicates.
func matchSources(dir string, patterns []string) ([]string, error) {
	fsys := os.DirFS(dir)
	seen := make(map[string]struct{})

	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, path.Clean(filepath.ToSlash(pattern)), doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
		if err != nil {
			return nil, fmt.Errorf("%w: sources %q: %w", recipe.ErrRecipe, pattern, err)
		}
		for _, m := range matches {
			info, err := fs.Stat(fsys, m)
			if err != nil {
				return nil, fmt.Errorf("%w: sources: %w", recipe.ErrRecipe, err)
			}
			if info.Mode().IsRegular() {
				seen[m] = struct{}{}
			}
		}
	}

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	slices.Sort(files)

	if len(files) == 0 {
		return nil, fmt.Errorf("%w: sources match no files", recipe.ErrRecipe)
	}
	return files, nil
}

// Quotes args into a single POSIX shell command line.
func quote(args []string) (string, error) {
	s, err := shellquote.Quote(args)
	if err != nil {
		return "", fmt.Errorf("%w: %w", recipe.ErrRecipe, err)
	}
	return s, nil
}

// One-line description of a hook directive.
func describeDirective(d recipe.Directive) string {
	var b strings.Builder
	if d.Run != "" {
		b.WriteString("run ")
		b.WriteString(d.Run)
	} else {
		b.WriteString("copy ")
		b.WriteString(d.Copy)
	}
	if d.Workdir != "" {
		b.WriteString(" (in ")
		b.WriteString(d.Workdir)
		b.WriteString(")")
	}
	return b.String()
}
