// Package settings loads user-level onebin settings.
//
// Settings come from three layers, later ones winning: built-in defaults,
// the settings file (see [paths.ConfigFile]), and ONEBIN_* environment
// variables, where nested keys use underscores (ONEBIN_CONTAINERD_ADDRESS).
// Command-line flags are applied on top by the caller.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cruciblehq/onebin/internal/paths"
)

// Container engines.
const (
	EngineDocker     = "docker"
	EngineContainerd = "containerd"
)

var ErrSettings = errors.New("invalid settings")

// Resolved settings.
type Settings struct {
	Engine     string        // Container engine, [EngineDocker] or [EngineContainerd].
	Docker     Docker        // Docker engine connection.
	Containerd Containerd    // Containerd engine connection.
	Timeout    time.Duration // Default per-build timeout. Zero defers to the recipe.
	Jobs       int           // Maximum number of concurrent builds.
}

type Docker struct {
	Host string // Daemon address. Empty uses DOCKER_HOST or the platform default.
}

type Containerd struct {
	Address     string // Socket path.
	Namespace   string // Namespace isolating onebin's images and containers.
	Snapshotter string // Snapshotter for container filesystems.
}

// Registers defaults on v.
func setDefaults(v *viper.Viper) {
	v.SetDefault("engine", EngineDocker)
	v.SetDefault("docker.host", "")
	v.SetDefault("containerd.address", "/run/containerd/containerd.sock")
	v.SetDefault("containerd.namespace", "onebin")
	v.SetDefault("containerd.snapshotter", "overlayfs")
	v.SetDefault("timeout", "0s")
	v.SetDefault("jobs", 1)
}

// Loads settings from file, the environment and defaults.
//
// An empty file selects [paths.ConfigFile]. A missing file is not an error.
func Load(file string) (*Settings, error) {
	if file == "" {
		file = paths.ConfigFile()
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ONEBIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(file); err == nil {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrSettings, file, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrSettings, err)
	}

	s := &Settings{
		Engine: strings.ToLower(v.GetString("engine")),
		Docker: Docker{
			Host: v.GetString("docker.host"),
		},
		Containerd: Containerd{
			Address:     v.GetString("containerd.address"),
			Namespace:   v.GetString("containerd.namespace"),
			Snapshotter: v.GetString("containerd.snapshotter"),
		},
		Timeout: v.GetDuration("timeout"),
		Jobs:    v.GetInt("jobs"),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Checks value ranges and the engine name.
func (s *Settings) Validate() error {
	switch s.Engine {
	case EngineDocker, EngineContainerd:
	default:
		return fmt.Errorf("%w: engine %q must be %q or %q", ErrSettings, s.Engine, EngineDocker, EngineContainerd)
	}
	if s.Jobs < 1 {
		return fmt.Errorf("%w: jobs must be at least 1, got %d", ErrSettings, s.Jobs)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrSettings)
	}
	if s.Engine == EngineContainerd && (s.Containerd.Address == "" || s.Containerd.Namespace == "") {
		return fmt.Errorf("%w: containerd.address and containerd.namespace are required", ErrSettings)
	}
	return nil
}
