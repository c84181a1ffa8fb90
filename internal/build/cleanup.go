package build

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/cruciblehq/onebin/internal/runtime"
)

// Upper bound on a single teardown.
const DefaultTeardownTimeout = 2 * time.Minute

// Returns a fresh instance identifier for a recipe.
//
// The identifier is the recipe name followed by eight hex characters of a
// random UUID.
func NewInstanceID(name string) string {
	return fmt.Sprintf("%s-%s", name, uuid.NewString()[:8])
}

// Destroys the instance with the given ID.
//
// The context's cancellation is ignored so that teardown still runs after
// an interrupt; timeout bounds it instead. Destroying an instance that does
// not exist succeeds.
func Teardown(ctx context.Context, rt runtime.Runtime, id string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTeardownTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := rt.Container(id).Destroy(ctx); err != nil {
		return fmt.Errorf("teardown %s: %w", id, err)
	}
	slog.Debug("instance destroyed", "id", id)
	return nil
}

// Destroys every listed instance, continuing past failures.
func Clean(ctx context.Context, rt runtime.Runtime, ids ...string) error {
	var result *multierror.Error
	for _, id := range ids {
		if err := Teardown(ctx, rt, id, 0); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		slog.Info("cleaned", "id", id)
	}
	return result.ErrorOrNil()
}
