// Package memory provides an in-memory implementation of the Lattice
// document store. It is intended for testing and development; it
// interprets the filter subset the entity layer emits (field equality
// and $text search) plus sort, skip, and limit.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/latticehq/lattice/store"
)

// Compile-time interface check.
var _ store.Database = (*Store)(nil)

// Store is a thread-safe in-memory database.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

// Collection returns the named collection, creating it on first use.
func (s *Store) Collection(name string) store.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[name]
	if !ok {
		col = &collection{}
		s.collections[name] = col
	}

	return col
}

// collection holds documents in insertion order.
type collection struct {
	mu   sync.RWMutex
	docs []store.Document
}

func (c *collection) FindOne(_ context.Context, filter store.Document) (store.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, doc := range c.docs {
		if _, ok := match(doc, filter); ok {
			return clone(doc), nil
		}
	}

	return nil, nil
}

func (c *collection) Find(_ context.Context, filter store.Document, opts store.FindOptions) (store.Iterator, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	type scored struct {
		doc   store.Document
		score int
	}

	var hits []scored
	for _, doc := range c.docs {
		if score, ok := match(doc, filter); ok {
			hits = append(hits, scored{doc: clone(doc), score: score})
		}
	}

	slices.SortStableFunc(hits, func(a, b scored) int {
		for _, e := range opts.Sort {
			if isRelevanceMeta(e.Value) {
				// Relevance always sorts best-first.
				if c := b.score - a.score; c != 0 {
					return c
				}

				continue
			}
			dir := 1
			if n, ok := sortDirection(e.Value); ok && n < 0 {
				dir = -1
			}
			if c := compareValues(a.doc[e.Key], b.doc[e.Key]) * dir; c != 0 {
				return c
			}
		}

		return 0
	})

	if wantsRelevanceProjection(opts.Projection) {
		for _, h := range hits {
			h.doc["score"] = float64(h.score)
		}
	}

	if opts.Skip > 0 {
		if opts.Skip >= int64(len(hits)) {
			hits = nil
		} else {
			hits = hits[opts.Skip:]
		}
	}
	if opts.Limit > 0 && int64(len(hits)) > opts.Limit {
		hits = hits[:opts.Limit]
	}

	docs := make([]store.Document, len(hits))
	for i, h := range hits {
		docs[i] = h.doc
	}

	return &iterator{docs: docs, pos: -1}, nil
}

func (c *collection) Count(_ context.Context, filter store.Document) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var n int64
	for _, doc := range c.docs {
		if _, ok := match(doc, filter); ok {
			n++
		}
	}

	return n, nil
}

func (c *collection) ReplaceOne(_ context.Context, filter, doc store.Document, upsert bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.docs {
		if _, ok := match(existing, filter); ok {
			c.docs[i] = clone(doc)

			return nil
		}
	}

	if upsert {
		c.docs = append(c.docs, clone(doc))
	}

	return nil
}

func (c *collection) DeleteOne(_ context.Context, filter store.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, existing := range c.docs {
		if _, ok := match(existing, filter); ok {
			c.docs = slices.Delete(c.docs, i, i+1)

			return nil
		}
	}

	return nil
}

// iterator walks a pre-materialized result snapshot.
type iterator struct {
	docs []store.Document
	pos  int
}

func (it *iterator) Next(_ context.Context) bool {
	if it.pos+1 >= len(it.docs) {
		return false
	}
	it.pos++

	return true
}

func (it *iterator) Current() (store.Document, error) {
	if it.pos < 0 || it.pos >= len(it.docs) {
		return nil, fmt.Errorf("memory: iterator out of range")
	}

	return it.docs[it.pos], nil
}

func (it *iterator) Err() error { return nil }

func (it *iterator) Close(_ context.Context) error { return nil }

// match reports whether doc satisfies filter, returning the full-text
// relevance score when the filter carries a $text clause.
func match(doc, filter store.Document) (int, bool) {
	score := 0
	for key, want := range filter {
		if key == "$text" {
			q, ok := searchTerm(want)
			if !ok {
				return 0, false
			}
			s, ok := textScore(doc, q)
			if !ok {
				return 0, false
			}
			score = s

			continue
		}

		got, ok := doc[key]
		if !ok || !matchValue(got, want) {
			return 0, false
		}
	}

	return score, true
}

// matchValue applies a field constraint: an $in clause or plain
// equality.
func matchValue(got, want any) bool {
	if clause, ok := want.(bson.M); ok {
		if list, ok := clause["$in"]; ok {
			rv := reflect.ValueOf(list)
			if rv.Kind() != reflect.Slice {
				return false
			}
			for i := 0; i < rv.Len(); i++ {
				if reflect.DeepEqual(got, rv.Index(i).Interface()) {
					return true
				}
			}

			return false
		}
	}

	return reflect.DeepEqual(got, want)
}

// searchTerm extracts the $search string from a $text clause.
func searchTerm(v any) (string, bool) {
	clause, ok := v.(bson.M)
	if !ok {
		return "", false
	}
	q, ok := clause["$search"].(string)

	return q, ok && q != ""
}

// textScore counts the string fields of doc containing the query,
// case-insensitively. Zero matches means the document is excluded.
func textScore(doc store.Document, query string) (int, bool) {
	q := strings.ToLower(query)
	score := 0
	for _, v := range doc {
		s, ok := v.(string)
		if ok && strings.Contains(strings.ToLower(s), q) {
			score++
		}
	}

	return score, score > 0
}

func isRelevanceMeta(v any) bool {
	m, ok := v.(bson.M)
	if !ok {
		return false
	}
	_, ok = m["$meta"]

	return ok
}

func wantsRelevanceProjection(p bson.M) bool {
	if p == nil {
		return false
	}

	return isRelevanceMeta(p["score"])
}

func sortDirection(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

// compareValues orders the scalar types the entity layer stores.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case bson.DateTime:
		if bv, ok := b.(bson.DateTime); ok {
			return int(av - bv)
		}
	case int32:
		if bv, ok := b.(int32); ok {
			return int(av - bv)
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return int(av - bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}

			return 0
		}
	case bson.ObjectID:
		if bv, ok := b.(bson.ObjectID); ok {
			return strings.Compare(av.Hex(), bv.Hex())
		}
	}

	return 0
}

func clone(doc store.Document) store.Document {
	out := make(store.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}

	return out
}
