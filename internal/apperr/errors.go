// Package apperr holds the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrOutOfRange    = errors.New("line out of range")
	ErrNoList        = errors.New("no task list configured")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrRemote        = errors.New("remote store error")
)
