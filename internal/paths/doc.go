// Provides well-known file locations and permission modes.
//
// User-level settings follow XDG conventions on Linux and platform-native
// conventions on macOS and Windows, under an "onebin" subdirectory. Recipes
// are looked up in the working directory under conventional names.
package paths
