package entity

import (
	"fmt"
	"maps"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/latticehq/lattice/store"
)

// Document field names the codec normalizes between the record and
// store representations.
const (
	fieldID         = "id"
	fieldPrimaryKey = "_id"
	fieldCreatedAt  = "created_at"
	fieldUpdatedAt  = "updated_at"
)

// Encode maps a record to its generic store document. The record's
// identifier field is renamed to the store's reserved primary-key
// field, and timestamp fields are normalized to the store's native
// temporal type. Records missing core identity or timestamp fields are
// rejected rather than silently defaulted.
func Encode[T Entity](rec T) (store.Document, error) {
	if rec.ObjectID().IsZero() {
		return nil, fmt.Errorf("%w: record has no object id", ErrEncode)
	}

	raw, err := bson.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	var doc store.Document
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}

	idValue, ok := doc[fieldID]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q field", ErrEncode, fieldID)
	}
	delete(doc, fieldID)
	doc[fieldPrimaryKey] = idValue

	for _, field := range []string{fieldCreatedAt, fieldUpdatedAt} {
		if err := normalizeTimestamp(doc, field); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncode, err)
		}
	}

	return doc, nil
}

// Decode maps a generic store document back to a typed record. It is
// the inverse of Encode for any document Encode produced: the reserved
// primary-key field is renamed back to the record identifier, and
// string timestamps (legacy documents) are parsed to native temporal
// values, failing on malformed input.
func Decode[T Entity](doc store.Document) (T, error) {
	var rec T

	if doc == nil {
		return rec, fmt.Errorf("%w: nil document", ErrDecode)
	}

	out := make(store.Document, len(doc))
	maps.Copy(out, doc)

	idValue, ok := out[fieldPrimaryKey]
	if !ok {
		return rec, fmt.Errorf("%w: missing %q field", ErrDecode, fieldPrimaryKey)
	}
	delete(out, fieldPrimaryKey)
	out[fieldID] = idValue

	for _, field := range []string{fieldCreatedAt, fieldUpdatedAt} {
		if err := normalizeTimestamp(out, field); err != nil {
			return rec, fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}

	raw, err := bson.Marshal(out)
	if err != nil {
		return rec, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if err := bson.Unmarshal(raw, &rec); err != nil {
		return rec, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return rec, nil
}

// normalizeTimestamp coerces doc[field] to the store's native temporal
// type. String values are parsed as RFC 3339; anything else is
// rejected.
func normalizeTimestamp(doc store.Document, field string) error {
	v, ok := doc[field]
	if !ok {
		return fmt.Errorf("missing %q field", field)
	}

	switch t := v.(type) {
	case bson.DateTime:
		return nil
	case time.Time:
		doc[field] = bson.NewDateTimeFromTime(t)

		return nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return fmt.Errorf("parse %q: %v", field, err)
		}
		doc[field] = bson.NewDateTimeFromTime(parsed)

		return nil
	default:
		return fmt.Errorf("field %q has unsupported type %T", field, v)
	}
}
