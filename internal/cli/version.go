package cli

import (
	"context"
	"fmt"
	"os"
	goruntime "runtime"

	"github.com/cruciblehq/onebin/internal"
)

// Represents the 'onebin version' command.
type VersionCmd struct {
	Short bool `help:"Print only the version number."`
}

// Prints the onebin version, and unless --short, the toolchain and host
// platform the binary was built for.
func (c *VersionCmd) Run(ctx context.Context) error {
	if c.Short {
		fmt.Fprintln(os.Stdout, internal.Version())
		return nil
	}
	fmt.Fprintf(os.Stdout, "%s (%s, %s/%s)\n", internal.VersionString(), goruntime.Version(), goruntime.GOOS, goruntime.GOARCH)
	return nil
}
