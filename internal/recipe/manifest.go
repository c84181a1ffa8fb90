package recipe

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Operators that start a version specifier in a requirement line.
var versionOperators = []string{"===", "==", "~=", "!=", ">=", "<=", ">", "<"}

// Project names as accepted by the ecosystem package index.
var projectName = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?$`)

// A single dependency: a package name with optional extras and version
// specifier.
type Requirement struct {
	Name    string // Project name.
	Extras  string // Extras without brackets, e.g. "socks".
	Version string // Version specifier including the operator, e.g. "==1.2.3".
	Line    int    // 1-based line number in the manifest, 0 when not from a file.
}

// Whether the requirement pins an exact version.
func (r Requirement) Pinned() bool {
	return strings.HasPrefix(r.Version, "==") && !strings.Contains(r.Version, ",") && !strings.Contains(r.Version, "*")
}

// Formats the requirement back into its canonical line form.
func (r Requirement) String() string {
	s := r.Name
	if r.Extras != "" {
		s += "[" + r.Extras + "]"
	}
	return s + r.Version
}

// Flat list of requirements read from a dependency manifest.
type Manifest struct {
	Requirements []Requirement
}

// Returns the requirements without an exact version pin.
func (m *Manifest) Unpinned() []Requirement {
	var out []Requirement
	for _, req := range m.Requirements {
		if !req.Pinned() {
			out = append(out, req)
		}
	}
	return out
}

// Reads and parses the dependency manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	defer f.Close()

	m, err := ParseManifest(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parses a flat requirements list.
//
// Blank lines and comments are skipped, environment markers are dropped.
// Option lines ("-r other.txt", "--index-url ...") are rejected: the
// manifest must be self-contained so that it can be installed inside the
// build environment without further host files.
func ParseManifest(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	scanner := bufio.NewScanner(r)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if idx := strings.Index(line, " #"); idx >= 0 {
			line = line[:idx]
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "-") {
			return nil, fmt.Errorf("%w: line %d: options are not supported: %q", ErrManifest, lineNum, line)
		}

		req, err := ParseRequirement(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		req.Line = lineNum
		m.Requirements = append(m.Requirements, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}

	return m, nil
}

// Parses a single requirement such as "requests[socks]>=2.31,<3".
func ParseRequirement(spec string) (Requirement, error) {
	if idx := strings.Index(spec, ";"); idx >= 0 {
		spec = spec[:idx]
	}
	spec = strings.TrimSpace(spec)

	var req Requirement
	name := spec
	if idx := specifierIndex(spec); idx >= 0 {
		name = strings.TrimSpace(spec[:idx])
		req.Version = strings.ReplaceAll(spec[idx:], " ", "")
	}

	if open := strings.IndexByte(name, '['); open >= 0 {
		if !strings.HasSuffix(name, "]") {
			return Requirement{}, fmt.Errorf("%w: unterminated extras in %q", ErrManifest, spec)
		}
		req.Extras = strings.ReplaceAll(name[open+1:len(name)-1], " ", "")
		name = strings.TrimSpace(name[:open])
	}

	if !projectName.MatchString(name) {
		return Requirement{}, fmt.Errorf("%w: invalid project name in %q", ErrManifest, spec)
	}
	if req.Version != "" && len(strings.TrimLeft(req.Version, "=~!<>")) == 0 {
		return Requirement{}, fmt.Errorf("%w: missing version in %q", ErrManifest, spec)
	}

	req.Name = name
	return req, nil
}

// Returns the index of the first version operator in spec, or -1.
func specifierIndex(spec string) int {
	for i := range len(spec) {
		for _, op := range versionOperators {
			if strings.HasPrefix(spec[i:], op) {
				return i
			}
		}
	}
	return -1
}
