// Package common defines sentinel errors shared by the storage, core and
// transport layers. Callers should match them with errors.Is.
package common

import "errors"

var (
	// Storage-level errors.
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// Validation errors.
	ErrValidation       = errors.New("validation error")
	ErrUnknownMediaKind = errors.New("unknown media kind")
)
