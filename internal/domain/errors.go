// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates a request is missing or carries invalid arguments.
// Wrap it with the offending field: fmt.Errorf("%w: task is required", ErrValidation).
var ErrValidation = errors.New("validation failed")
