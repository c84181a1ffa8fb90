package recipe

import (
	"fmt"

	"github.com/distribution/reference"
)

// Tag that floats to whatever was pushed last.
const floatingTag = "latest"

// Parses an image reference and requires it to be pinned.
//
// A reference is pinned when it carries a digest, or an explicit tag other
// than "latest". The normalized, fully-qualified form is returned (e.g.
// "python:3.12" becomes "docker.io/library/python:3.12").
func pinnedImage(ref string) (string, error) {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return "", fmt.Errorf("base image %q: %w", ref, err)
	}

	if _, ok := named.(reference.Canonical); ok {
		return named.String(), nil
	}

	tagged, ok := named.(reference.Tagged)
	if !ok {
		return "", fmt.Errorf("%w: %q has no tag or digest", ErrUnpinned, ref)
	}
	if tagged.Tag() == floatingTag {
		return "", fmt.Errorf("%w: %q uses the floating %q tag", ErrUnpinned, ref, floatingTag)
	}

	return named.String(), nil
}
