package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cruciblehq/onebin/internal/build"
	"github.com/cruciblehq/onebin/internal/recipe"
	"github.com/cruciblehq/onebin/internal/source"
)

// Represents the 'onebin check' command.
type CheckCmd struct {
	Recipe string `arg:"" optional:"" type:"path" help:"Recipe file or directory containing one. Defaults to the working directory." placeholder:"RECIPE"`
}

// Executes the check command.
//
// Loads and validates the recipe and prints the provisioning plan. No
// container engine is contacted. Unpinned dependencies are reported as
// warnings since they make builds drift over time.
func (c *CheckCmd) Run(ctx context.Context) error {
	arg := c.Recipe
	if arg == "" {
		arg = "."
	}

	r, err := loadRecipe(arg)
	if err != nil {
		return err
	}

	manifest, err := recipe.ReadManifest(r.ManifestHostPath())
	if err != nil {
		return err
	}
	for _, req := range manifest.Unpinned() {
		slog.Warn("dependency is not pinned to an exact version", "requirement", req.String(), "line", req.Line)
	}

	epoch, err := source.Epoch(r.Dir())
	if err != nil {
		return err
	}

	plan, err := build.NewPlan(r, epoch)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "recipe    %s (%s)\n", r.Name, r.File())
	return plan.Render(os.Stdout)
}
