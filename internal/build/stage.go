package build

// The single-file bundle produced by the bundler, still dynamically linked
// against the build environment's C library.
type DynamicBundle struct {
	Path string // In-instance path.
}

// The statically-linked executable produced from a [DynamicBundle]. This is
// the artifact that leaves the build environment.
type StaticBundle struct {
	Path string // In-instance path.
}
