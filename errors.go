package lattice

import "errors"

var (
	// ErrNotAuthorized is returned when the caller lacks verified
	// claims or attempts an operation on a record it does not own.
	ErrNotAuthorized = errors.New("lattice: not authorized")

	// ErrNotRegistered is returned when an authenticated identity has
	// no user record yet.
	ErrNotRegistered = errors.New("lattice: identity not registered")

	// ErrEmailDomain is returned when registration is restricted to an
	// email domain the claims do not carry.
	ErrEmailDomain = errors.New("lattice: email domain not allowed")

	// ErrUserNotFound is returned when a referenced user record does
	// not exist.
	ErrUserNotFound = errors.New("lattice: user not found")

	// ErrMemberRoleNotFound is returned when a referenced member role
	// does not exist.
	ErrMemberRoleNotFound = errors.New("lattice: member role not found")
)
