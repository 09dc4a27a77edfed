// Package id defines the type-tagged global identifier scheme for all
// Lattice records.
//
// Every record is addressed internally by its storage ObjectID and
// externally by a GlobalID, which pairs the ObjectID with the record's
// ObjectType. The textual form is "<ObjectType>:<hex>"; the form that
// leaves the process is that text base64-encoded, so clients treat it
// as an opaque handle. Decoding fails closed: malformed encodings,
// unknown type tags, and type-mismatched extraction are all rejected.
package id

import (
	"encoding/base64"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ObjectType identifies which schema a record belongs to.
type ObjectType string

// ObjectType constants for all Lattice record schemas.
const (
	TypeUser       ObjectType = "User"
	TypeMembership ObjectType = "Membership"
	TypeMemberRole ObjectType = "MemberRole"
)

// ParseObjectType parses a string into a known ObjectType.
// The set of types is closed; anything else is an error.
func ParseObjectType(s string) (ObjectType, error) {
	switch t := ObjectType(s); t {
	case TypeUser, TypeMembership, TypeMemberRole:
		return t, nil
	default:
		return "", fmt.Errorf("id: unknown object type %q", s)
	}
}

// String returns the stable string representation of the type tag.
func (t ObjectType) String() string { return string(t) }

// GlobalID is an opaque, type-tagged identifier combining a record's
// storage ObjectID and its ObjectType.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type GlobalID struct {
	objectID   bson.ObjectID
	objectType ObjectType
	valid      bool
}

// Nil is the zero-value GlobalID.
var Nil GlobalID

// New creates a GlobalID from an ObjectID and an ObjectType.
func New(objectID bson.ObjectID, objectType ObjectType) GlobalID {
	return GlobalID{objectID: objectID, objectType: objectType, valid: true}
}

// Parse parses the textual form "<ObjectType>:<hex>" into a GlobalID.
func Parse(s string) (GlobalID, error) {
	typ, oid, ok := strings.Cut(s, ":")
	if !ok {
		return Nil, fmt.Errorf("id: parse %q: invalid structure", s)
	}

	objectType, err := ParseObjectType(typ)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	objectID, err := bson.ObjectIDFromHex(oid)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: invalid object id: %w", s, err)
	}

	return New(objectID, objectType), nil
}

// Decode reverses the external encoding: base64-decode, then Parse.
func Decode(encoded string) (GlobalID, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Nil, fmt.Errorf("id: decode %q: %w", encoded, err)
	}

	return Parse(string(raw))
}

// MustParse is like Parse but panics on error. Use for hardcoded values.
func MustParse(s string) GlobalID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// String returns the textual form "<ObjectType>:<hex>".
// Returns an empty string for the Nil GlobalID.
func (g GlobalID) String() string {
	if !g.valid {
		return ""
	}

	return fmt.Sprintf("%s:%s", g.objectType, g.objectID.Hex())
}

// Encode returns the opaque external form (base64 of the textual form).
func (g GlobalID) Encode() string {
	if !g.valid {
		return ""
	}

	return base64.StdEncoding.EncodeToString([]byte(g.String()))
}

// ObjectType returns the type tag of this GlobalID.
func (g GlobalID) ObjectType() ObjectType {
	return g.objectType
}

// For extracts the underlying ObjectID after checking that the GlobalID
// carries the expected type. A mismatched type is an error, never a
// silent coercion.
func (g GlobalID) For(expected ObjectType) (bson.ObjectID, error) {
	if !g.valid {
		return bson.ObjectID{}, fmt.Errorf("id: nil global id")
	}

	if g.objectType != expected {
		return bson.ObjectID{}, fmt.Errorf("id: expected type %q, got %q", expected, g.objectType)
	}

	return g.objectID, nil
}

// IsNil reports whether this GlobalID is the zero value.
func (g GlobalID) IsNil() bool {
	return !g.valid
}

// MarshalText implements encoding.TextMarshaler using the external
// (opaque) encoding.
func (g GlobalID) MarshalText() ([]byte, error) {
	if !g.valid {
		return []byte{}, nil
	}

	return []byte(g.Encode()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *GlobalID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*g = Nil

		return nil
	}

	decoded, err := Decode(string(data))
	if err != nil {
		return err
	}

	*g = decoded

	return nil
}
