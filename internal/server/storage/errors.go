package storage

import "errors"

// Common storage errors
var (
	// ErrUserNotFound indicates that user was not found in storage
	ErrUserNotFound = errors.New("user not found")

	// ErrEmailAlreadyExists indicates that a user with this email is
	// already registered for the provider
	ErrEmailAlreadyExists = errors.New("email already exists")

	// ErrVerificationNotFound indicates that no credential matches the
	// verification token
	ErrVerificationNotFound = errors.New("verification token not found")
)
