package internal

import (
	"strconv"
	"sync/atomic"
)

// Output modes. Seeded from linker flags and overridden by CLI flags.
var (
	quietMode   atomic.Bool
	debugMode   atomic.Bool
	verboseMode atomic.Bool
)

func init() {
	if v, err := strconv.ParseBool(rawQuiet); err == nil {
		quietMode.Store(v)
	}
	if v, err := strconv.ParseBool(rawDebug); err == nil {
		debugMode.Store(v)
	}
	if v, err := strconv.ParseBool(rawVerbose); err == nil {
		verboseMode.Store(v)
	}
}

// Enables or disables quiet mode. Quiet mode hides informational logs but
// never the build environment's own output stream.
func SetQuiet(enabled bool) {
	quietMode.Store(enabled)
}

func IsQuiet() bool {
	return quietMode.Load()
}

func SetDebug(enabled bool) {
	debugMode.Store(enabled)
}

func IsDebug() bool {
	return debugMode.Load()
}

// Enables or disables verbose logging, which adds source locations to log
// records.
func SetVerbose(enabled bool) {
	verboseMode.Store(enabled)
}

func IsVerbose() bool {
	return verboseMode.Load()
}
