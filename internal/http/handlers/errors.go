// Package handlers defines HTTP-layer error codes used by the JSON endpoints.
//
// Codes are lowercase snake_case and stable: clients and operator tooling
// branch on them programmatically. The webhook endpoint does not use these
// (it answers in the provider's plain-text/TwiML dialect); they cover the
// sweep and any future operator-facing JSON surface.
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeSweepFailed      = "sweep_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
