// Package identity verifies bearer tokens issued by the external
// identity provider and exposes the verified claims to the rest of
// the service.
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Provider endpoints and token parameters.
const (
	// DefaultKeyURL serves the provider's current RSA signing keys.
	DefaultKeyURL = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"

	issuerBase = "https://securetoken.google.com"

	defaultLeeway = 30 * time.Second
)

// Config carries the verification parameters for one project.
type Config struct {
	// ProjectID is the identity-provider project. It determines the
	// expected issuer and audience.
	ProjectID string

	// Leeway is the clock-skew allowance applied to temporal claims.
	Leeway time.Duration

	// KeyURL overrides the signing-key endpoint.
	KeyURL string

	// RefreshMargin is subtracted from the advertised key lifetime.
	RefreshMargin time.Duration
}

// DefaultConfig returns the production defaults for a project.
func DefaultConfig(projectID string) Config {
	return Config{
		ProjectID:     projectID,
		Leeway:        defaultLeeway,
		KeyURL:        DefaultKeyURL,
		RefreshMargin: defaultRefreshMargin,
	}
}

// Claims are the verified facts about a token's bearer.
type Claims struct {
	Subject   string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time

	UserID        string
	Email         string
	EmailVerified bool
}

// KeyProvider supplies the signing keys tokens are checked against.
type KeyProvider interface {
	Keys(ctx context.Context) (jwk.Set, error)
}

// Verifier checks bearer tokens for a single project.
type Verifier struct {
	config Config
	keys   KeyProvider
	now    func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithKeyProvider replaces the default HTTP-backed key cache.
func WithKeyProvider(p KeyProvider) VerifierOption {
	return func(v *Verifier) { v.keys = p }
}

// WithVerifierClock overrides the verifier's time source. For tests.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a verifier for the configured project. Zero
// config fields fall back to the production defaults.
func NewVerifier(config Config, opts ...VerifierOption) (*Verifier, error) {
	if config.ProjectID == "" {
		return nil, fmt.Errorf("identity: project id is required")
	}
	defaults := DefaultConfig(config.ProjectID)
	if config.Leeway == 0 {
		config.Leeway = defaults.Leeway
	}
	if config.KeyURL == "" {
		config.KeyURL = defaults.KeyURL
	}
	if config.RefreshMargin == 0 {
		config.RefreshMargin = defaults.RefreshMargin
	}

	v := &Verifier{
		config: config,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.keys == nil {
		v.keys = NewKeySetCache(config.KeyURL, WithRefreshMargin(config.RefreshMargin))
	}

	return v, nil
}

// Verify checks a compact serialized token and returns its claims.
// Any defect of the token itself wraps ErrVerificationFailed; a key
// set retrieval failure wraps ErrKeyFetch instead, since retrying may
// succeed.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	kid, err := signingKeyID(token)
	if err != nil {
		return nil, err
	}

	set, err := v.keys.Keys(ctx)
	if err != nil {
		return nil, err
	}

	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("%w: kid %q", ErrUnknownKey, kid)
	}

	tok, err := jwt.ParseString(token,
		jwt.WithKey(jwa.RS256, key),
		jwt.WithValidate(false),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	now := v.now()
	err = jwt.Validate(tok,
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithAcceptableSkew(v.config.Leeway),
		jwt.WithIssuer(v.issuer()),
		jwt.WithAudience(v.config.ProjectID),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
		jwt.WithRequiredClaim(jwt.IssuedAtKey),
		jwt.WithRequiredClaim(jwt.SubjectKey),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrClaimInvalid, err)
	}

	// jwt.Validate only bounds iat from below (nbf semantics). A token
	// claiming issuance beyond the skew allowance is forged or from a
	// badly skewed clock, so it is rejected here.
	if tok.IssuedAt().After(now.Add(v.config.Leeway)) {
		return nil, fmt.Errorf("%w: token issued in the future", ErrClaimInvalid)
	}

	return claimsFrom(tok), nil
}

func (v *Verifier) issuer() string {
	return issuerBase + "/" + v.config.ProjectID
}

// signingKeyID extracts the kid from the token's protected header
// without verifying anything.
func signingKeyID(token string) (string, error) {
	msg, err := jws.ParseString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return "", fmt.Errorf("%w: no signature", ErrMalformedToken)
	}

	kid := sigs[0].ProtectedHeaders().KeyID()
	if kid == "" {
		return "", fmt.Errorf("%w: missing kid header", ErrMalformedToken)
	}

	return kid, nil
}

// claimsFrom copies the registered and provider-private claims out of
// a validated token.
func claimsFrom(tok jwt.Token) *Claims {
	claims := &Claims{
		Subject:   tok.Subject(),
		Issuer:    tok.Issuer(),
		Audience:  tok.Audience(),
		ExpiresAt: tok.Expiration(),
		IssuedAt:  tok.IssuedAt(),
		UserID:    tok.Subject(),
	}

	if v, ok := tok.Get("user_id"); ok {
		if s, ok := v.(string); ok && s != "" {
			claims.UserID = s
		}
	}
	if v, ok := tok.Get("email"); ok {
		if s, ok := v.(string); ok {
			claims.Email = s
		}
	}
	if v, ok := tok.Get("email_verified"); ok {
		if b, ok := v.(bool); ok {
			claims.EmailVerified = b
		}
	}

	return claims
}
