package entity

import "errors"

var (
	// ErrEncode is returned when a record cannot be mapped to a store
	// document.
	ErrEncode = errors.New("entity: encode failed")

	// ErrDecode is returned when a store document cannot be mapped back
	// to a record, including malformed stored timestamps.
	ErrDecode = errors.New("entity: decode failed")

	// ErrValidation is returned when a lifecycle hook rejects a save or
	// delete, e.g. a referential-integrity violation.
	ErrValidation = errors.New("entity: validation failed")
)
