// Parses flags and runs the onebin commands.
//
// Global flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//	    --config    Settings file.
//	    --engine    Container engine (docker or containerd).
//
// Flags override build-time defaults set via linker flags and the settings
// file. After parsing, the global logger is reconfigured to reflect the
// final level and verbosity before the command runs.
package cli
