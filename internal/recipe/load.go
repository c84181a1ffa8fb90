package recipe

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Loads, defaults and validates the recipe at path.
//
// The file format is selected by extension: ".yaml" and ".yml" are decoded
// as YAML, ".toml" as TOML. Unknown fields are rejected in both formats so
// that typos do not silently fall back to defaults.
func Load(path string) (*Recipe, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRecipe, err)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRecipe, err)
	}

	r, err := Decode(data, filepath.Ext(abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	r.file = abs
	r.dir = filepath.Dir(abs)
	r.applyDefaults()

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return r, nil
}

// Decodes a recipe from data in the format named by ext (".yaml", ".yml"
// or ".toml"). Defaults are not applied.
func Decode(data []byte, ext string) (*Recipe, error) {
	r := &Recipe{}

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(r); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w", ErrRecipe, err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(r); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrRecipe, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported recipe format %q", ErrRecipe, ext)
	}

	return r, nil
}
