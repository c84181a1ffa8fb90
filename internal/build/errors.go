package build

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/cruciblehq/onebin/internal/recipe"
)

var (
	ErrEnvironmentAcquisition = errors.New("build environment could not be created")
	ErrProvisioningStep       = errors.New("provisioning step failed")
	ErrArtifactMissing        = errors.New("expected artifact is missing")
	ErrExtraction             = errors.New("artifact extraction failed")
	ErrCopy                   = errors.New("copy failed")
	ErrTransition             = errors.New("illegal state transition")
)

// Process exit codes, one per error class.
const (
	ExitOK                     = 0
	ExitUsage                  = 1
	ExitEnvironmentAcquisition = 2
	ExitProvisioningStep       = 3
	ExitArtifactMissing        = 4
	ExitExtraction             = 5
)

// A provisioning step whose command exited with a non-zero status.
//
// Unwraps to [ErrProvisioningStep].
type StepError struct {
	Step     string // Step name, e.g. "dependencies".
	Command  string // Quoted command line.
	ExitCode int    // Exit status of the command.
	Stderr   string // Trailing portion of the command's standard error.
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("%s: step %s: %s exited with code %d", ErrProvisioningStep, e.Step, e.Command, e.ExitCode)
	if tail := strings.TrimSpace(e.Stderr); tail != "" {
		msg += ": " + lastLine(tail)
	}
	return msg
}

func (e *StepError) Unwrap() error {
	return ErrProvisioningStep
}

// Maps an error to the process exit code for its class.
//
// For aggregated errors the first one decides, so that with several recipes
// the first failing recipe in argument order determines the code. Errors
// outside the build taxonomy are usage or configuration errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var merr *multierror.Error
	if errors.As(err, &merr) && len(merr.Errors) > 0 {
		err = merr.Errors[0]
	}

	switch {
	case errors.Is(err, recipe.ErrRecipe):
		return ExitUsage
	case errors.Is(err, ErrEnvironmentAcquisition):
		return ExitEnvironmentAcquisition
	case errors.Is(err, ErrArtifactMissing):
		return ExitArtifactMissing
	case errors.Is(err, ErrExtraction):
		return ExitExtraction
	case errors.Is(err, ErrProvisioningStep):
		return ExitProvisioningStep
	default:
		return ExitUsage
	}
}

// Returns the last non-empty line of s.
func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
