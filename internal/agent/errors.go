package agent

import "errors"

var (
	ErrCancelled     = errors.New("authentication cancelled")
	ErrNotAuthorized = errors.New("not authorized")
	ErrFailed        = errors.New("authentication failed")
	ErrAlreadyActive = errors.New("authentication already in progress for cookie")
)
