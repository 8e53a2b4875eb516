package storage

import "errors"

// Sentinel errors returned by both store engines. Callers use errors.Is to
// classify them into the taxonomy in pkg/errs at a component boundary.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)
