// Package build turns a recipe into a statically-linked executable.
//
// A build runs in a single disposable instance created from the recipe's
// pinned base image. The [Plan] lists the provisioning steps: system
// packages, packaging tools, application dependencies, sources, optional
// hook directives, the single-file bundle ([DynamicBundle]) and its
// statically-linked rewrite ([StaticBundle]). Once provisioned, the static
// bundle is copied out to the host by [Extract] and the instance is torn
// down, whether or not the build succeeded.
//
// Failures are classified by sentinel errors that [ExitCode] maps to the
// process exit status.
//
// Example usage:
//
//	result, err := build.Run(ctx, rt, build.Options{
//	    Recipe:      r,
//	    Destination: r.Destination(cwd),
//	    Epoch:       epoch,
//	    Stdout:      os.Stdout,
//	    Stderr:      os.Stderr,
//	})
//	if err != nil {
//	    os.Exit(build.ExitCode(err))
//	}
//	fmt.Println(result.Artifact.Path)
package build
