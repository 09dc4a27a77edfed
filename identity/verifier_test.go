package identity_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/latticehq/lattice/identity"
)

const testProject = "lattice-test"

var verifyTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// signingKey is an RSA key pair with its public half in a JWK set.
type signingKey struct {
	private jwk.Key
	set     jwk.Set
}

func newSigningKey(t *testing.T, kid string) signingKey {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	private, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("jwk.FromRaw() error = %v", err)
	}
	if err := private.Set(jwk.KeyIDKey, kid); err != nil {
		t.Fatalf("set kid: %v", err)
	}

	public, err := jwk.PublicKeyOf(private)
	if err != nil {
		t.Fatalf("public key: %v", err)
	}
	set := jwk.NewSet()
	if err := set.AddKey(public); err != nil {
		t.Fatalf("add key: %v", err)
	}

	return signingKey{private: private, set: set}
}

// staticKeys serves a fixed set, or a fixed error.
type staticKeys struct {
	set jwk.Set
	err error
}

func (s staticKeys) Keys(context.Context) (jwk.Set, error) { return s.set, s.err }

func newTestVerifier(t *testing.T, provider identity.KeyProvider) *identity.Verifier {
	t.Helper()

	v, err := identity.NewVerifier(
		identity.Config{ProjectID: testProject},
		identity.WithKeyProvider(provider),
		identity.WithVerifierClock(func() time.Time { return verifyTime }),
	)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}

	return v
}

// tokenOverrides tweaks the default healthy token.
type tokenOverrides struct {
	issuer   string
	audience string
	subject  *string
	issuedAt time.Time
	expires  time.Time
}

func signToken(t *testing.T, key jwk.Key, o tokenOverrides) string {
	t.Helper()

	if o.issuer == "" {
		o.issuer = "https://securetoken.google.com/" + testProject
	}
	if o.audience == "" {
		o.audience = testProject
	}
	if o.issuedAt.IsZero() {
		o.issuedAt = verifyTime.Add(-time.Minute)
	}
	if o.expires.IsZero() {
		o.expires = verifyTime.Add(time.Hour)
	}

	b := jwt.NewBuilder().
		Issuer(o.issuer).
		Audience([]string{o.audience}).
		IssuedAt(o.issuedAt).
		Expiration(o.expires).
		Claim("email", "ada@example.org").
		Claim("email_verified", true).
		Claim("user_id", "firebase-uid-1")

	subject := "firebase-uid-1"
	if o.subject != nil {
		subject = *o.subject
	}
	if subject != "" {
		b = b.Subject(subject)
	}

	tok, err := b.Build()
	if err != nil {
		t.Fatalf("build token: %v", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	return string(signed)
}

func TestVerifyValidToken(t *testing.T) {
	key := newSigningKey(t, "key-1")
	v := newTestVerifier(t, staticKeys{set: key.set})

	claims, err := v.Verify(t.Context(), signToken(t, key.private, tokenOverrides{}))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if claims.Subject != "firebase-uid-1" || claims.UserID != "firebase-uid-1" {
		t.Errorf("subject/user id = %q/%q", claims.Subject, claims.UserID)
	}
	if claims.Email != "ada@example.org" || !claims.EmailVerified {
		t.Errorf("email = %q verified = %v", claims.Email, claims.EmailVerified)
	}
	if claims.Issuer != "https://securetoken.google.com/"+testProject {
		t.Errorf("issuer = %q", claims.Issuer)
	}
	if !claims.ExpiresAt.Equal(verifyTime.Add(time.Hour)) {
		t.Errorf("expires at = %v", claims.ExpiresAt)
	}
}

func TestVerifyExpiryLeeway(t *testing.T) {
	key := newSigningKey(t, "key-1")
	v := newTestVerifier(t, staticKeys{set: key.set})

	// 10s past expiry is inside the 30s allowance.
	tok := signToken(t, key.private, tokenOverrides{expires: verifyTime.Add(-10 * time.Second)})
	if _, err := v.Verify(t.Context(), tok); err != nil {
		t.Errorf("Verify() error = %v inside the clock-skew allowance", err)
	}
}

func TestVerifyRejections(t *testing.T) {
	key := newSigningKey(t, "key-1")
	wrongKey := newSigningKey(t, "key-1")
	otherKid := newSigningKey(t, "key-2")
	noSubject := ""

	tests := []struct {
		name  string
		token func(t *testing.T) string
		want  error
	}{
		{
			name:  "garbage token",
			token: func(*testing.T) string { return "not-a-token" },
			want:  identity.ErrMalformedToken,
		},
		{
			name: "kid not in key set",
			token: func(t *testing.T) string {
				return signToken(t, otherKid.private, tokenOverrides{})
			},
			want: identity.ErrUnknownKey,
		},
		{
			name: "signed by an impostor key",
			token: func(t *testing.T) string {
				return signToken(t, wrongKey.private, tokenOverrides{})
			},
			want: identity.ErrSignatureInvalid,
		},
		{
			name: "expired beyond leeway",
			token: func(t *testing.T) string {
				return signToken(t, key.private, tokenOverrides{expires: verifyTime.Add(-time.Hour)})
			},
			want: identity.ErrClaimInvalid,
		},
		{
			name: "issued in the future",
			token: func(t *testing.T) string {
				return signToken(t, key.private, tokenOverrides{issuedAt: verifyTime.Add(time.Minute)})
			},
			want: identity.ErrClaimInvalid,
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				return signToken(t, key.private, tokenOverrides{issuer: "https://securetoken.google.com/other"})
			},
			want: identity.ErrClaimInvalid,
		},
		{
			name: "wrong audience",
			token: func(t *testing.T) string {
				return signToken(t, key.private, tokenOverrides{audience: "other-project"})
			},
			want: identity.ErrClaimInvalid,
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				return signToken(t, key.private, tokenOverrides{subject: &noSubject})
			},
			want: identity.ErrClaimInvalid,
		},
	}

	v := newTestVerifier(t, staticKeys{set: key.set})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(t.Context(), tt.token(t))
			if !errors.Is(err, tt.want) {
				t.Errorf("Verify() error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, identity.ErrVerificationFailed) {
				t.Errorf("Verify() error = %v does not unwrap to ErrVerificationFailed", err)
			}
		})
	}
}

func TestVerifyKeyFetchFailureIsTransient(t *testing.T) {
	key := newSigningKey(t, "key-1")
	fetchErr := errors.New("identity: key set fetch failed: origin down")
	v := newTestVerifier(t, staticKeys{err: fetchErr})

	_, err := v.Verify(t.Context(), signToken(t, key.private, tokenOverrides{}))
	if !errors.Is(err, fetchErr) {
		t.Fatalf("Verify() error = %v, want the provider error passed through", err)
	}
	if errors.Is(err, identity.ErrVerificationFailed) {
		t.Error("a key fetch failure must not read as a token rejection")
	}
}
