// Package domain holds cross-cutting domain definitions shared by the
// repository, usecase and transport layers.
package domain

import "errors"

var (
	// ErrCaseNotFound signals a missing case document.
	ErrCaseNotFound = errors.New("case not found")
	// ErrInvalidRequest signals a structurally invalid inbound request.
	ErrInvalidRequest = errors.New("invalid request")
)
