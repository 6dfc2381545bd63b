package domain

import "errors"

// Registry and identity errors. These map one-to-one onto the wire error
// codes in messages.go.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionEnded    = errors.New("session has ended")
	ErrAlreadyActive   = errors.New("owner already has an active session")
	ErrNotAuthorized   = errors.New("caller is not the session owner")
	ErrUnauthenticated = errors.New("invalid credential")
)

// ErrorCode translates a domain error to its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return ErrCodeSessionNotFound
	case errors.Is(err, ErrSessionEnded):
		return ErrCodeSessionEnded
	case errors.Is(err, ErrAlreadyActive):
		return ErrCodeAlreadyActive
	case errors.Is(err, ErrNotAuthorized):
		return ErrCodeNotAuthorized
	case errors.Is(err, ErrUnauthenticated):
		return ErrCodeUnauthenticated
	default:
		return ErrCodeInternalError
	}
}
