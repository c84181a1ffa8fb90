// Package recipe loads and validates build recipes.
//
// A recipe declares how to provision a disposable build environment for an
// interpreted-language program and how to package it into a single static
// executable: the pinned base image, system and ecosystem packages, the
// dependency manifest, application sources, the entry-point script and the
// output locations. Recipes are read from YAML or TOML files; the format is
// chosen by extension.
//
// Loaded recipes have defaults applied and are validated as a whole, so all
// problems in a file are reported together. A [Recipe] is treated as
// immutable once [Load] returns it.
//
// Example recipe:
//
//	name: wtf-ds
//	base:
//	  image: python:3.12.3-slim-bookworm
//	manifest: requirements.txt
//	sources: ["*.py"]
//	entrypoint: wtf-ds.py
package recipe
