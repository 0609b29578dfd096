package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrTenantRequired is returned when a request carries no tenant scope.
	ErrTenantRequired = errors.New("tenant id required")
	// ErrActorRequired is returned when a mutating request carries no actor.
	ErrActorRequired = errors.New("actor id required")
)
