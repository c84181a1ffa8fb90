package cli

import (
	"fmt"
	"log/slog"

	"github.com/cruciblehq/onebin/internal/build"
	"github.com/cruciblehq/onebin/internal/runtime"
	"github.com/cruciblehq/onebin/internal/runtime/containerd"
	"github.com/cruciblehq/onebin/internal/runtime/docker"
	"github.com/cruciblehq/onebin/internal/settings"
)

// Loads settings and applies global flag overrides.
func loadSettings() (*settings.Settings, error) {
	s, err := settings.Load(RootCmd.Config)
	if err != nil {
		return nil, err
	}
	if RootCmd.Engine != "" {
		s.Engine = RootCmd.Engine
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Constructor commands use to reach the container engine.
var newRuntime = openRuntime

// Connects to the configured container engine.
//
// Failing to connect is an environment acquisition failure.
func openRuntime(s *settings.Settings) (runtime.Runtime, error) {
	var (
		rt  runtime.Runtime
		err error
	)

	switch s.Engine {
	case settings.EngineContainerd:
		rt, err = containerd.New(s.Containerd.Address, s.Containerd.Namespace, s.Containerd.Snapshotter)
	default:
		rt, err = docker.New(s.Docker.Host)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", build.ErrEnvironmentAcquisition, s.Engine, err)
	}

	slog.Debug("engine", "name", rt.Name())
	return rt, nil
}
