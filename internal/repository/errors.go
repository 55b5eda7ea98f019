package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a unique-constraint collision on insert.
	ErrDuplicate = errors.New("repository: duplicate")
)
