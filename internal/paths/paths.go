package paths

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	appName = "onebin"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644

	// Permission mode applied to extracted artifacts.
	ExecutableMode os.FileMode = 0755
)

// Conventional recipe file names, in lookup order.
var RecipeNames = []string{"onebin.yaml", "onebin.yml", "onebin.toml"}

// Directory holding user-level settings.
//
//	Linux:   $XDG_CONFIG_HOME/onebin or ~/.config/onebin
//	macOS:   ~/Library/Application Support/onebin
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// Path to the user-level settings file.
//
//	Linux:   $XDG_CONFIG_HOME/onebin/config.yaml
//	macOS:   ~/Library/Application Support/onebin/config.yaml
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// Returns the first conventional recipe file present in dir.
//
// Returns an error wrapping [fs.ErrNotExist] when none of [RecipeNames] is
// present.
func FindRecipe(dir string) (string, error) {
	for _, name := range RecipeNames {
		p := filepath.Join(dir, name)
		info, err := os.Stat(p)
		if err == nil && info.Mode().IsRegular() {
			return p, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", &fs.PathError{Op: "find recipe", Path: dir, Err: fs.ErrNotExist}
}
