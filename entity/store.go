package entity

import (
	"context"
	"fmt"

	"github.com/latticehq/lattice/store"
)

// Lifecycle hooks. A schema implements only the hooks it needs;
// absent hooks are no-ops. Before hooks may reject the operation;
// after hooks are for side effects only and cannot roll back the
// already-committed write.
type (
	// BeforeSaver is invoked before a record is written. An error
	// aborts the save.
	BeforeSaver interface {
		BeforeSave(ctx context.Context, c *Context) error
	}

	// AfterSaver is invoked after a record is written. An error
	// surfaces to the caller but the write stands.
	AfterSaver interface {
		AfterSave(ctx context.Context, c *Context) error
	}

	// BeforeDeleter is invoked before a record is removed. An error
	// aborts the delete; referential-integrity checks live here.
	BeforeDeleter interface {
		BeforeDelete(ctx context.Context, c *Context) error
	}

	// AfterDeleter is invoked after a record is removed.
	AfterDeleter interface {
		AfterDelete(ctx context.Context, c *Context) error
	}
)

// Save upserts a record by primary key: insert when absent, full
// replace when present (last write wins at the field level). The write
// filter is the primary key alone, never caller-supplied conditions.
func Save[T Entity](ctx context.Context, c *Context, rec T) error {
	if h, ok := any(rec).(BeforeSaver); ok {
		if err := h.BeforeSave(ctx, c); err != nil {
			return fmt.Errorf("entity: before save: %w", err)
		}
	}

	doc, err := Encode(rec)
	if err != nil {
		return err
	}

	byID := store.Document{fieldPrimaryKey: rec.ObjectID()}
	if err := collectionFor[T](c).ReplaceOne(ctx, byID, doc, true); err != nil {
		return fmt.Errorf("entity: save: %w", err)
	}

	if h, ok := any(rec).(AfterSaver); ok {
		if err := h.AfterSave(ctx, c); err != nil {
			return fmt.Errorf("entity: after save: %w", err)
		}
	}

	return nil
}

// Delete removes a record by primary key. The role-in-use style checks
// a BeforeDeleter performs are not atomic against concurrent inserts
// of a new referencing record; that race is a documented gap of the
// store's single-document atomicity model.
func Delete[T Entity](ctx context.Context, c *Context, rec T) error {
	if h, ok := any(rec).(BeforeDeleter); ok {
		if err := h.BeforeDelete(ctx, c); err != nil {
			return fmt.Errorf("entity: before delete: %w", err)
		}
	}

	if rec.ObjectID().IsZero() {
		return fmt.Errorf("%w: record has no object id", ErrEncode)
	}

	byID := store.Document{fieldPrimaryKey: rec.ObjectID()}
	if err := collectionFor[T](c).DeleteOne(ctx, byID); err != nil {
		return fmt.Errorf("entity: delete: %w", err)
	}

	if h, ok := any(rec).(AfterDeleter); ok {
		if err := h.AfterDelete(ctx, c); err != nil {
			return fmt.Errorf("entity: after delete: %w", err)
		}
	}

	return nil
}
