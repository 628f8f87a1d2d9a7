package db

import "errors"

// Sentinel errors returned by the store. Callers match them with errors.Is;
// absence of a row is an expected, recoverable outcome and is reported via
// ErrNotFound rather than a raw sql.ErrNoRows.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation error")
)
