package runtime

import "errors"

var (
	ErrRuntime  = errors.New("runtime error")
	ErrImage    = errors.New("base image unavailable")
	ErrNotFound = errors.New("container not found")
)
