package cli

import (
	"os"
	"path/filepath"

	"github.com/cruciblehq/onebin/internal"
	"github.com/cruciblehq/onebin/internal/paths"
	"github.com/cruciblehq/onebin/internal/recipe"
)

// Loads the recipe at arg, which may be a file or a directory.
//
// The recipe's version constraint is checked against the running binary.
func loadRecipe(arg string) (*recipe.Recipe, error) {
	file := arg
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		found, err := paths.FindRecipe(arg)
		if err != nil {
			return nil, err
		}
		file = found
	}

	r, err := recipe.Load(filepath.Clean(file))
	if err != nil {
		return nil, err
	}
	if err := r.CheckVersion(internal.Version()); err != nil {
		return nil, err
	}
	return r, nil
}
