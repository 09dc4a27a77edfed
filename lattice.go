// Package lattice is the membership record service: user records,
// member roles, and the memberships binding them, kept in a document
// store and guarded by bearer-token identity verification.
package lattice

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/latticehq/lattice/entity"
	"github.com/latticehq/lattice/identity"
	"github.com/latticehq/lattice/store"
)

// TokenVerifier checks bearer tokens. *identity.Verifier is the
// production implementation.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*identity.Claims, error)
}

// Service exposes the record operations. All methods are safe for
// concurrent use.
type Service struct {
	entities *entity.Context
	verifier TokenVerifier
	logger   *slog.Logger
	config   Config
}

// Option configures a Service.
type Option func(*Service)

// WithDatabase sets the backing document store. Required.
func WithDatabase(db store.Database) Option {
	return func(s *Service) { s.entities = entity.NewContext(db) }
}

// WithVerifier sets the bearer-token verifier. Without one,
// Authenticate is unavailable but the record operations still work,
// which suits offline tooling and tests.
func WithVerifier(v TokenVerifier) Option {
	return func(s *Service) { s.verifier = v }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithConfig sets the service configuration.
func WithConfig(config Config) Option {
	return func(s *Service) { s.config = config }
}

// New creates a Service.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		logger: slog.Default(),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.entities == nil {
		return nil, fmt.Errorf("lattice: a database is required")
	}

	return s, nil
}

// Authenticate verifies a bearer token and returns a context carrying
// its claims for the record operations.
func (s *Service) Authenticate(ctx context.Context, token string) (context.Context, error) {
	if s.verifier == nil {
		return nil, fmt.Errorf("%w: no token verifier configured", ErrNotAuthorized)
	}

	claims, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "token verified", "subject", claims.Subject)

	return WithClaims(ctx, claims), nil
}
