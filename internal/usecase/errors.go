package usecase

import "errors"

var (
	// ErrInvalidCredential covers every reason a password or token is rejected.
	// Callers must not be able to tell the reasons apart.
	ErrInvalidCredential = errors.New("invalid credentials")
	// ErrPrincipalNotFound indicates a valid access token whose subject no longer resolves.
	ErrPrincipalNotFound = errors.New("principal not found")
	// ErrEmailTaken indicates registration with an email that already exists.
	ErrEmailTaken = errors.New("email already registered")
)
