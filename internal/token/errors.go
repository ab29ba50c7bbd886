package token

import "errors"

var (
	// ErrInvalidToken is the uniform verification failure. Callers never see
	// the underlying reason; the pipeline maps it to a 401.
	ErrInvalidToken = errors.New("token: invalid token")

	// ErrSessionNotFound indicates a refresh token without a live session.
	ErrSessionNotFound = errors.New("token: session not found")
)
