package lattice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/latticehq/lattice/entity"
	"github.com/latticehq/lattice/id"
	"github.com/latticehq/lattice/identity"
	"github.com/latticehq/lattice/membership"
	"github.com/latticehq/lattice/user"
)

// requireClaims pulls verified claims from the context.
func requireClaims(ctx context.Context) (*identity.Claims, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: no verified claims in context", ErrNotAuthorized)
	}

	return claims, nil
}

// Viewer returns the user record of the authenticated caller.
func (s *Service) Viewer(ctx context.Context) (*user.User, error) {
	claims, err := requireClaims(ctx)
	if err != nil {
		return nil, err
	}

	u, err := user.FindByAuthID(claims.UserID).Load(ctx, s.entities)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrNotRegistered
	}

	return u, nil
}

// RegisterUserInput carries the self-registration fields.
type RegisterUserInput struct {
	FirstName string
	LastName  string
	Phone     *string
	PhotoURL  *string
}

// RegisterUser creates a user record for the authenticated identity.
// Registration is idempotent per identity: an already-registered
// caller gets its existing record back with created=false.
func (s *Service) RegisterUser(ctx context.Context, input RegisterUserInput) (*user.User, bool, error) {
	claims, err := requireClaims(ctx)
	if err != nil {
		return nil, false, err
	}

	existing, err := user.FindByAuthID(claims.UserID).Load(ctx, s.entities)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if err := s.checkEmailDomain(claims.Email); err != nil {
		return nil, false, err
	}

	u := user.New(input.FirstName, input.LastName, claims.Email, claims.UserID)
	u.Phone = input.Phone
	u.PhotoURL = input.PhotoURL

	if err := entity.Save(ctx, s.entities, *u); err != nil {
		return nil, false, err
	}

	s.logger.InfoContext(ctx, "user registered", "user", u.GlobalID().String())

	return u, true, nil
}

func (s *Service) checkEmailDomain(email string) error {
	domain := s.config.AllowedEmailDomain
	if domain == "" {
		return nil
	}

	_, got, ok := strings.Cut(email, "@")
	if !ok || !strings.EqualFold(got, domain) {
		return fmt.Errorf("%w: %q is not an @%s address", ErrEmailDomain, email, domain)
	}

	return nil
}

// UpdateUserInput carries the profile fields a user may change. Nil
// fields keep their current value.
type UpdateUserInput struct {
	UserID id.GlobalID

	Bio             *string
	WebsiteURL      *string
	TwitterHandle   *string
	InstagramHandle *string
}

// UpdateUser updates profile fields on the caller's own record. A
// caller naming any other record is rejected.
func (s *Service) UpdateUser(ctx context.Context, input UpdateUserInput) (*user.User, error) {
	viewer, err := s.Viewer(ctx)
	if err != nil {
		return nil, err
	}

	oid, err := input.UserID.For(id.TypeUser)
	if err != nil {
		return nil, err
	}
	if oid != viewer.ID {
		return nil, fmt.Errorf("%w: cannot update another user's record", ErrNotAuthorized)
	}

	if input.Bio != nil {
		viewer.Bio = input.Bio
	}
	if input.WebsiteURL != nil {
		viewer.WebsiteURL = input.WebsiteURL
	}
	if input.TwitterHandle != nil {
		viewer.TwitterHandle = input.TwitterHandle
	}
	if input.InstagramHandle != nil {
		viewer.InstagramHandle = input.InstagramHandle
	}
	viewer.Touch()

	if err := entity.Save(ctx, s.entities, *viewer); err != nil {
		return nil, err
	}

	return viewer, nil
}

// User loads a user record by global identifier.
func (s *Service) User(ctx context.Context, gid id.GlobalID) (*user.User, error) {
	oid, err := gid.For(id.TypeUser)
	if err != nil {
		return nil, err
	}

	u, err := entity.Find[user.User](oid).Load(ctx, s.entities)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, gid.String())
	}

	return u, nil
}

// Users lists user records. A non-empty query performs full-text
// search over names and email, ordered by relevance; an empty query
// lists everyone by name.
func (s *Service) Users(ctx context.Context, query string) ([]user.User, error) {
	q := entity.Filter[user.User](user.Conditions{Query: query})
	if strings.TrimSpace(query) == "" {
		q = q.Sort(
			bson.E{Key: "first_name", Value: 1},
			bson.E{Key: "last_name", Value: 1},
		)
	}

	return q.Load(ctx, s.entities)
}

// MemberRoles lists every member role by name.
func (s *Service) MemberRoles(ctx context.Context) ([]membership.Role, error) {
	return entity.All[membership.Role]().
		Sort(bson.E{Key: "name", Value: 1}).
		Load(ctx, s.entities)
}

// CreateMemberRole creates a member role. The caller must be a
// registered user.
func (s *Service) CreateMemberRole(ctx context.Context, name, description string) (*membership.Role, error) {
	if _, err := s.Viewer(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: role name is required", entity.ErrValidation)
	}

	r := membership.NewRole(name, description)
	if err := entity.Save(ctx, s.entities, *r); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "member role created", "role", r.GlobalID().String(), "name", r.Name)

	return r, nil
}

// UpdateMemberRoleInput carries the role fields to change. Nil fields
// keep their current value.
type UpdateMemberRoleInput struct {
	RoleID id.GlobalID

	Name        *string
	Description *string
}

// UpdateMemberRole updates a member role.
func (s *Service) UpdateMemberRole(ctx context.Context, input UpdateMemberRoleInput) (*membership.Role, error) {
	if _, err := s.Viewer(ctx); err != nil {
		return nil, err
	}

	r, err := s.memberRole(ctx, input.RoleID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, fmt.Errorf("%w: role name is required", entity.ErrValidation)
		}
		r.Name = *input.Name
	}
	if input.Description != nil {
		r.Description = *input.Description
	}
	r.Touch()

	if err := entity.Save(ctx, s.entities, *r); err != nil {
		return nil, err
	}

	return r, nil
}

// DeleteMemberRole removes a member role and returns its identifier.
// Roles still referenced by a membership are rejected.
func (s *Service) DeleteMemberRole(ctx context.Context, roleID id.GlobalID) (id.GlobalID, error) {
	if _, err := s.Viewer(ctx); err != nil {
		return id.Nil, err
	}

	r, err := s.memberRole(ctx, roleID)
	if err != nil {
		return id.Nil, err
	}

	if err := entity.Delete(ctx, s.entities, *r); err != nil {
		return id.Nil, err
	}

	s.logger.InfoContext(ctx, "member role deleted", "role", roleID.String())

	return roleID, nil
}

func (s *Service) memberRole(ctx context.Context, gid id.GlobalID) (*membership.Role, error) {
	oid, err := gid.For(id.TypeMemberRole)
	if err != nil {
		return nil, err
	}

	r, err := entity.Find[membership.Role](oid).Load(ctx, s.entities)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrMemberRoleNotFound, gid.String())
	}

	return r, nil
}

// CreateMembershipInput names the user and role to bind and the
// period the membership covers.
type CreateMembershipInput struct {
	UserID id.GlobalID
	RoleID id.GlobalID
	Start  time.Time
	End    time.Time
}

// CreateMembership grants a user a role for a period. Referential
// checks run in the membership's save hook.
func (s *Service) CreateMembership(ctx context.Context, input CreateMembershipInput) (*membership.Membership, error) {
	if _, err := s.Viewer(ctx); err != nil {
		return nil, err
	}

	userOID, err := input.UserID.For(id.TypeUser)
	if err != nil {
		return nil, err
	}
	roleOID, err := input.RoleID.For(id.TypeMemberRole)
	if err != nil {
		return nil, err
	}

	m := membership.New(userOID, roleOID, input.Start, input.End)
	if err := entity.Save(ctx, s.entities, *m); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "membership created",
		"membership", m.GlobalID().String(),
		"user", input.UserID.String(),
		"role", input.RoleID.String(),
	)

	return m, nil
}

// MembershipsInput narrows a membership listing. Nil fields match
// everything.
type MembershipsInput struct {
	UserID *id.GlobalID
	RoleID *id.GlobalID
}

// Memberships lists memberships, newest period first.
func (s *Service) Memberships(ctx context.Context, input MembershipsInput) ([]membership.Membership, error) {
	cond := membership.Conditions{}
	if input.UserID != nil {
		oid, err := input.UserID.For(id.TypeUser)
		if err != nil {
			return nil, err
		}
		cond.User = &oid
	}
	if input.RoleID != nil {
		oid, err := input.RoleID.For(id.TypeMemberRole)
		if err != nil {
			return nil, err
		}
		cond.Role = &oid
	}

	return entity.Filter[membership.Membership](cond).
		Sort(bson.E{Key: "start", Value: -1}).
		Load(ctx, s.entities)
}
