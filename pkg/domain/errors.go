// Package domain holds the error kinds shared by every bank entity. Entity
// packages wrap these so storage and HTTP layers can classify failures with
// errors.Is without knowing each entity's sentinels.
package domain

import "errors"

var (
	// ErrNotFound marks a lookup that matched no row.
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyExists marks a unique key collision, e.g. a generated account
	// number or transaction id that is already taken.
	ErrAlreadyExists = errors.New("resource already exists")
	// ErrValidation marks input rejected before any write.
	ErrValidation = errors.New("validation error")
	// ErrUnauthorized marks a caller that failed authentication.
	ErrUnauthorized = errors.New("unauthorized")
)
