// Package user defines the person record behind an authenticated
// identity and its lookup helpers.
package user

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/latticehq/lattice/entity"
	"github.com/latticehq/lattice/id"
	"github.com/latticehq/lattice/store"
)

// CollectionName is the store collection holding user records.
const CollectionName = "users"

// User is a registered person. AuthID ties the record to the external
// identity provider subject; Email is unique per user.
type User struct {
	ID        bson.ObjectID `bson:"id"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`

	FirstName string `bson:"first_name"`
	LastName  string `bson:"last_name"`
	Email     string `bson:"email"`
	AuthID    string `bson:"auth_id"`

	Phone           *string `bson:"phone,omitempty"`
	PhotoURL        *string `bson:"photo_url,omitempty"`
	WebsiteURL      *string `bson:"website_url,omitempty"`
	TwitterHandle   *string `bson:"twitter_handle,omitempty"`
	InstagramHandle *string `bson:"instagram_handle,omitempty"`
	Bio             *string `bson:"bio,omitempty"`
}

// New creates a user with a fresh identifier and current timestamps.
func New(firstName, lastName, email, authID string) *User {
	now := entity.Now()

	return &User{
		ID:        bson.NewObjectID(),
		CreatedAt: now,
		UpdatedAt: now,
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		AuthID:    authID,
	}
}

func (u User) ObjectID() bson.ObjectID   { return u.ID }
func (u User) ObjectType() id.ObjectType { return id.TypeUser }
func (u User) CollectionName() string    { return CollectionName }

// GlobalID returns the user's typed global identifier.
func (u User) GlobalID() id.GlobalID { return entity.GlobalID(u) }

// FullName joins the name parts, tolerating an empty component.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Touch advances the update timestamp. Callers mutate fields, Touch,
// then save.
func (u *User) Touch() {
	u.UpdatedAt = entity.Now()
}

// FindByEmail builds a lookup for the user owning an email address.
func FindByEmail(email string) entity.FindOneQuery[User] {
	return entity.FindOne[User](store.Document{"email": email})
}

// FindByAuthID builds a lookup keyed by identity-provider subject.
func FindByAuthID(authID string) entity.FindOneQuery[User] {
	return entity.FindOne[User](store.Document{"auth_id": authID})
}

// Conditions selects users. A non-empty Query performs full-text
// search over the indexed name and email fields.
type Conditions struct {
	Query string
}

// Filter maps the conditions to a store filter.
func (c Conditions) Filter() store.Document {
	f := store.Document{}
	if q := strings.TrimSpace(c.Query); q != "" {
		f["$text"] = bson.M{"$search": q}
	}

	return f
}
