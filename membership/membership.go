// Package membership defines member roles and the memberships that
// grant a user a role over a period of time.
package membership

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/latticehq/lattice/entity"
	"github.com/latticehq/lattice/id"
	"github.com/latticehq/lattice/store"
	"github.com/latticehq/lattice/user"
)

// Store collections for the membership schemas.
const (
	CollectionName     = "memberships"
	RoleCollectionName = "member_roles"
)

// Role is a named membership category, e.g. "Board" or "Volunteer".
type Role struct {
	ID        bson.ObjectID `bson:"id"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`

	Name        string `bson:"name"`
	Description string `bson:"description"`
}

// NewRole creates a role with a fresh identifier and current
// timestamps.
func NewRole(name, description string) *Role {
	now := entity.Now()

	return &Role{
		ID:          bson.NewObjectID(),
		CreatedAt:   now,
		UpdatedAt:   now,
		Name:        name,
		Description: description,
	}
}

func (r Role) ObjectID() bson.ObjectID   { return r.ID }
func (r Role) ObjectType() id.ObjectType { return id.TypeMemberRole }
func (r Role) CollectionName() string    { return RoleCollectionName }

// GlobalID returns the role's typed global identifier.
func (r Role) GlobalID() id.GlobalID { return entity.GlobalID(r) }

// Touch advances the update timestamp.
func (r *Role) Touch() {
	r.UpdatedAt = entity.Now()
}

// BeforeDelete rejects removal of a role any membership still
// references. The check is not atomic against a concurrent membership
// insert.
func (r Role) BeforeDelete(ctx context.Context, c *entity.Context) error {
	n, err := entity.Filter[Membership](Conditions{Role: &r.ID}).Count(ctx, c)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: role %q is referenced by %d membership(s)", entity.ErrValidation, r.Name, n)
	}

	return nil
}

// Membership grants a user a role between Start and End.
type Membership struct {
	ID        bson.ObjectID `bson:"id"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`

	UserID bson.ObjectID `bson:"user_id"`
	RoleID bson.ObjectID `bson:"role_id"`
	Start  time.Time     `bson:"start"`
	End    time.Time     `bson:"end"`
}

// New creates a membership with a fresh identifier and current
// timestamps.
func New(userID, roleID bson.ObjectID, start, end time.Time) *Membership {
	now := entity.Now()

	return &Membership{
		ID:        bson.NewObjectID(),
		CreatedAt: now,
		UpdatedAt: now,
		UserID:    userID,
		RoleID:    roleID,
		Start:     start.UTC().Truncate(time.Millisecond),
		End:       end.UTC().Truncate(time.Millisecond),
	}
}

func (m Membership) ObjectID() bson.ObjectID   { return m.ID }
func (m Membership) ObjectType() id.ObjectType { return id.TypeMembership }
func (m Membership) CollectionName() string    { return CollectionName }

// GlobalID returns the membership's typed global identifier.
func (m Membership) GlobalID() id.GlobalID { return entity.GlobalID(m) }

// Active reports whether the membership covers the given instant.
func (m Membership) Active(at time.Time) bool {
	return !at.Before(m.Start) && at.Before(m.End)
}

// BeforeSave rejects memberships with an inverted period or dangling
// user or role references.
func (m Membership) BeforeSave(ctx context.Context, c *entity.Context) error {
	if !m.End.After(m.Start) {
		return fmt.Errorf("%w: membership end must be after start", entity.ErrValidation)
	}

	ok, err := entity.Find[user.User](m.UserID).Exists(ctx, c)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: membership references unknown user %s", entity.ErrValidation, m.UserID.Hex())
	}

	ok, err = entity.Find[Role](m.RoleID).Exists(ctx, c)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: membership references unknown role %s", entity.ErrValidation, m.RoleID.Hex())
	}

	return nil
}

// Conditions selects memberships by referenced user and/or role. Nil
// fields match everything.
type Conditions struct {
	User *bson.ObjectID
	Role *bson.ObjectID
}

// Filter maps the conditions to a store filter.
func (c Conditions) Filter() store.Document {
	f := store.Document{}
	if c.User != nil {
		f["user_id"] = *c.User
	}
	if c.Role != nil {
		f["role_id"] = *c.Role
	}

	return f
}
