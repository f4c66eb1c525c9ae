package util

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrQuestionNotFound     = errors.New("question not found")
	ErrQuestionNotPublished = errors.New("question not published")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidCredentials   = errors.New("invalid credentials")

	ErrApiUnavailable      = errors.New("CAD service temporarily unavailable")
	ErrWorkspaceNotEmpty   = errors.New("workspace contains prior geometry")
	ErrNoActiveAttempt     = errors.New("no attempt in progress")
	ErrElementTypeMismatch = errors.New("question does not match the open element type")
	ErrNoBodiesFound       = errors.New("no solid bodies found in the workspace")
)
