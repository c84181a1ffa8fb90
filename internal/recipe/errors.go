package recipe

import "errors"

var (
	ErrRecipe       = errors.New("invalid recipe")
	ErrManifest     = errors.New("invalid dependency manifest")
	ErrUnpinned     = errors.New("base image is not pinned")
	ErrIncompatible = errors.New("recipe requires a different onebin version")
)
