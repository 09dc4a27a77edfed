package identity

import (
	"errors"
	"fmt"
)

// ErrVerificationFailed is the terminal rejection for a presented
// token. Every structural, signature, or claim failure wraps it, so
// callers can treat all of them as a single 401-style outcome while
// logs keep the precise cause.
var ErrVerificationFailed = errors.New("identity: token verification failed")

// Specific verification failures. All unwrap to ErrVerificationFailed.
var (
	ErrMalformedToken   = fmt.Errorf("%w: malformed token", ErrVerificationFailed)
	ErrUnknownKey       = fmt.Errorf("%w: no key for token", ErrVerificationFailed)
	ErrSignatureInvalid = fmt.Errorf("%w: signature invalid", ErrVerificationFailed)
	ErrClaimInvalid     = fmt.Errorf("%w: claim invalid", ErrVerificationFailed)
)

// ErrKeyFetch is returned when the signing key set cannot be
// retrieved or refreshed. It is transient infrastructure failure, not
// a verdict on the token, and deliberately does not wrap
// ErrVerificationFailed.
var ErrKeyFetch = errors.New("identity: key set fetch failed")
