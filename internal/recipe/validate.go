package recipe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/containerd/platforms"
	"github.com/hashicorp/go-multierror"
)

var (

	// Recipe names become part of container identifiers.
	recipeName = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

	// System package names for apt and apk, optionally with a version.
	systemPackage = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.+_:~=-]*$`)

	// Environment variable names.
	envName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Checks the recipe as a whole and records derived values.
//
// Every problem found is reported; the returned error wraps [ErrRecipe] and
// lists each one. On success the normalized image reference and platform
// are stored on the recipe.
func (r *Recipe) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	if !recipeName.MatchString(r.Name) {
		add("name %q must be lowercase alphanumeric with '.', '_' or '-'", r.Name)
	}

	if r.Requires != "" {
		if _, err := semver.NewConstraint(r.Requires); err != nil {
			add("requires %q: %w", r.Requires, err)
		}
	}

	if image, err := pinnedImage(r.Base.Image); err != nil {
		result = multierror.Append(result, err)
	} else {
		r.image = image
	}

	if p, err := platforms.Parse(r.Base.Platform); err != nil {
		add("base.platform %q: %w", r.Base.Platform, err)
	} else {
		r.Base.Platform = platforms.Format(platforms.Normalize(p))
	}

	switch r.Base.Pull {
	case PullMissing, PullAlways:
	default:
		add("base.pull %q must be %q or %q", r.Base.Pull, PullMissing, PullAlways)
	}

	switch r.System.Manager {
	case ManagerApt, ManagerApk:
	default:
		add("system.manager %q must be %q or %q", r.System.Manager, ManagerApt, ManagerApk)
	}
	for _, pkg := range r.System.Packages {
		if !systemPackage.MatchString(pkg) {
			add("system.packages: invalid package %q", pkg)
		}
	}

	if r.Python == "" || strings.ContainsAny(r.Python, " \t\n") {
		add("python %q must be a single command", r.Python)
	}
	for _, tool := range r.Tools {
		if _, err := ParseRequirement(tool); err != nil {
			add("tools: %w", err)
		}
	}

	if err := r.validateManifest(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := r.validateSources(); err != nil {
		result = multierror.Append(result, err)
	}

	if r.Bundle.Mode != ModeOneFile {
		add("bundle.mode %q is not supported, only %q can be statically linked", r.Bundle.Mode, ModeOneFile)
	}

	if !path.IsAbs(r.Workdir) {
		add("workdir %q must be absolute", r.Workdir)
	}
	if err := relativePath("output.dir", r.Output.Dir); err != nil {
		result = multierror.Append(result, err)
	}
	if r.Output.Name == "" || strings.ContainsAny(r.Output.Name, `/\`) || r.Output.Name == "." || r.Output.Name == ".." {
		add("output.name %q must be a plain file name", r.Output.Name)
	}

	for k := range r.Env {
		if !envName.MatchString(k) {
			add("env: invalid variable name %q", k)
		}
	}

	for i, d := range r.Hooks.BeforeBundle {
		switch {
		case d.Run != "" && d.Copy != "":
			add("hooks.before_bundle[%d]: run and copy are mutually exclusive", i)
		case d.Run == "" && d.Copy == "" && d.Shell == "" && d.Workdir == "" && len(d.Env) == 0:
			add("hooks.before_bundle[%d]: empty directive", i)
		}
		if d.Workdir != "" && !path.IsAbs(d.Workdir) {
			add("hooks.before_bundle[%d].workdir %q must be absolute", i, d.Workdir)
		}
		for k := range d.Env {
			if !envName.MatchString(k) {
				add("hooks.before_bundle[%d].env: invalid variable name %q", i, k)
			}
		}
	}

	if r.Timeout <= 0 {
		add("timeout must be positive")
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrRecipe, err)
	}
	return nil
}

// Checks the running onebin version against the requires constraint.
//
// Developer builds have no semantic version and always pass.
func (r *Recipe) CheckVersion(current string) error {
	if r.Requires == "" {
		return nil
	}

	constraint, err := semver.NewConstraint(r.Requires)
	if err != nil {
		return fmt.Errorf("%w: requires %q: %w", ErrRecipe, r.Requires, err)
	}

	v, err := semver.NewVersion(current)
	if err != nil {
		return nil
	}

	if !constraint.Check(v) {
		return fmt.Errorf("%w: %s does not satisfy %q", ErrIncompatible, v, r.Requires)
	}
	return nil
}

// Checks that the manifest exists and parses.
func (r *Recipe) validateManifest() error {
	if r.Manifest == "" {
		return errors.New("manifest is required")
	}
	if err := relativePath("manifest", r.Manifest); err != nil {
		return err
	}
	if _, err := ReadManifest(r.ManifestHostPath()); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	return nil
}

// Checks source patterns and that they cover the entry point.
func (r *Recipe) validateSources() error {
	var result *multierror.Error

	if len(r.Sources) == 0 {
		result = multierror.Append(result, errors.New("sources must list at least one pattern"))
	}
	for _, pattern := range r.Sources {
		if err := relativePath("sources", pattern); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			result = multierror.Append(result, fmt.Errorf("sources: invalid pattern %q", pattern))
		}
	}

	if r.Entrypoint == "" {
		result = multierror.Append(result, errors.New("entrypoint is required"))
		return result.ErrorOrNil()
	}
	if err := relativePath("entrypoint", r.Entrypoint); err != nil {
		return multierror.Append(result, err).ErrorOrNil()
	}

	info, err := os.Stat(r.hostPath(r.Entrypoint))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		result = multierror.Append(result, fmt.Errorf("entrypoint %q does not exist", r.Entrypoint))
	case err != nil:
		result = multierror.Append(result, fmt.Errorf("entrypoint: %w", err))
	case !info.Mode().IsRegular():
		result = multierror.Append(result, fmt.Errorf("entrypoint %q is not a regular file", r.Entrypoint))
	}

	if !r.matchesSources(filepath.ToSlash(r.Entrypoint)) {
		result = multierror.Append(result, fmt.Errorf("entrypoint %q is not matched by any source pattern", r.Entrypoint))
	}

	return result.ErrorOrNil()
}

// Whether a slash-separated, recipe-relative path is matched by sources.
func (r *Recipe) matchesSources(p string) bool {
	p = path.Clean(p)
	for _, pattern := range r.Sources {
		if ok, err := doublestar.Match(path.Clean(pattern), p); err == nil && ok {
			return true
		}
	}
	return false
}

// Requires p to be relative and to stay within the recipe directory.
func relativePath(field, p string) error {
	if p == "" {
		return fmt.Errorf("%s must not be empty", field)
	}
	if filepath.IsAbs(p) || path.IsAbs(p) {
		return fmt.Errorf("%s %q must be relative", field, p)
	}
	clean := path.Clean(filepath.ToSlash(p))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%s %q escapes the recipe directory", field, p)
	}
	return nil
}
