package cli

import (
	"context"

	"github.com/cruciblehq/onebin/internal/build"
)

// Represents the 'onebin clean' command.
type CleanCmd struct {
	IDs []string `arg:"" name:"id" help:"Instance identifiers, as logged by 'onebin build --keep'."`
}

// Executes the clean command.
//
// Tearing down an instance that does not exist succeeds, so the command can
// be repeated safely.
func (c *CleanCmd) Run(ctx context.Context) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}

	rt, err := newRuntime(s)
	if err != nil {
		return err
	}
	defer rt.Close()

	return build.Clean(ctx, rt, c.IDs...)
}
