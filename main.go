// Package repo provides a generic base repository for Go applications: CRUD,
// filtering, pagination, soft delete and relation management for any entity
// type, on top of an existing ORM or driver supplied by a provider package.
package repo

import (
	"context"
	"fmt"
)

// =====================================
// Core Interfaces
// =====================================

// Repository is the entity-agnostic facade implemented by every provider.
//
// Every call starts from a pristine builder for T, applies the options given
// to that call (conditions, ordering, trashed mode, ad-hoc scopes), runs, and
// throws the builder away. Nothing a call configures is visible to the next.
//
// Mutating operations run in one store transaction each and report failure
// as false; the cause is logged, never returned.
type Repository[T any] interface {
	// ===============================
	// Lookups
	// ===============================

	// All returns every entity matching the options.
	// Soft-deleted rows are excluded unless Trashed() says otherwise.
	All(ctx context.Context, opts ...QueryOption) ([]*T, error)

	// First returns the first entity matching the options.
	// Returns ErrorTypeNotFound when nothing matches.
	First(ctx context.Context, opts ...QueryOption) (*T, error)

	// Find looks an entity up by primary key.
	// Any failure, including "not found", is logged and reported as false.
	// Example: user, ok := repo.Find(ctx, 1, OnlyTrashed())
	Find(ctx context.Context, id interface{}, opts ...QueryOption) (*T, bool)

	// FindByField returns the entities whose field equals value.
	FindByField(ctx context.Context, field string, value interface{}, opts ...QueryOption) ([]*T, error)

	// FindWhere returns the entities matching every condition.
	// Malformed conditions fail with ErrorTypeInvalidArgument before any query runs.
	FindWhere(ctx context.Context, conds []Condition, opts ...QueryOption) ([]*T, error)

	// FindWhereIn returns the entities whose field is one of values.
	FindWhereIn(ctx context.Context, field string, values interface{}, opts ...QueryOption) ([]*T, error)

	// FindWhereNotIn returns the entities whose field is none of values.
	FindWhereNotIn(ctx context.Context, field string, values interface{}, opts ...QueryOption) ([]*T, error)

	// FindWhereBetween returns the entities whose field lies in [from, to].
	FindWhereBetween(ctx context.Context, field string, from, to interface{}, opts ...QueryOption) ([]*T, error)

	// Limit returns at most n matching entities.
	Limit(ctx context.Context, n int, opts ...QueryOption) ([]*T, error)

	// Count returns the number of matching entities.
	Count(ctx context.Context, opts ...QueryOption) (int64, error)

	// Exists reports whether at least one entity matches.
	Exists(ctx context.Context, opts ...QueryOption) (bool, error)

	// Pluck returns the values of one column for every matching entity.
	Pluck(ctx context.Context, column string, opts ...QueryOption) ([]interface{}, error)

	// ===============================
	// Pagination
	// ===============================

	// Paginate returns one page of matching entities together with the total.
	// A zero limit in req uses the configured default (15 unless configured).
	Paginate(ctx context.Context, req PageRequest, opts ...QueryOption) (*Paginator[T], error)

	// SimplePaginate returns one page without counting the total; it only
	// knows whether a next page exists.
	SimplePaginate(ctx context.Context, req PageRequest, opts ...QueryOption) (*Paginator[T], error)

	// ===============================
	// Upserts
	// ===============================

	// FirstOrNew returns the first entity matching attrs, or a new unsaved
	// entity carrying attrs.
	FirstOrNew(ctx context.Context, attrs map[string]interface{}) (*T, error)

	// FirstOrCreate returns the first entity matching attrs, creating it when missing.
	FirstOrCreate(ctx context.Context, attrs map[string]interface{}) (*T, error)

	// UpdateOrCreate updates the first entity matching attrs with values, or
	// creates one from attrs and values.
	UpdateOrCreate(ctx context.Context, attrs, values map[string]interface{}) (*T, error)

	// ===============================
	// Mutations
	// ===============================

	// Create inserts entity; generated keys are written back into it.
	Create(ctx context.Context, entity *T) bool

	// Insert inserts every entity atomically.
	Insert(ctx context.Context, entities []*T) bool

	// Update sets values on the entity with the given id.
	// Returns false when the id does not exist.
	Update(ctx context.Context, id interface{}, values map[string]interface{}) bool

	// Delete deletes (soft deletes, when the entity supports it) the entity with id.
	// Returns false when the id does not exist.
	Delete(ctx context.Context, id interface{}) bool

	// ForceDelete removes the entity with id permanently, trashed or not.
	ForceDelete(ctx context.Context, id interface{}) bool

	// Restore clears the soft delete marker of a trashed entity.
	Restore(ctx context.Context, id interface{}) bool

	// DeleteWhere deletes every entity matching conds. Malformed conditions
	// are returned as an error before the transaction begins; operational
	// failures are logged and reported as false.
	DeleteWhere(ctx context.Context, conds ...Condition) (bool, error)

	// DeleteWhereIn deletes every entity whose field is one of values.
	DeleteWhereIn(ctx context.Context, field string, values interface{}) (bool, error)

	// ===============================
	// Escape Hatch and Metadata
	// ===============================

	// Raw runs a provider native statement outside the fixed verb set.
	Raw(ctx context.Context, query string, args ...interface{}) (Result, error)

	// EntityInfo describes the entity type handled by the repository.
	EntityInfo() (*EntityInfo, error)
}

// RelationRepository adds relation management to Repository.
type RelationRepository[T any] interface {
	Repository[T]

	// Sync makes relation on the entity with id contain ids. With detaching
	// the relation ends up containing exactly ids; without, the previous
	// members are kept.
	Sync(ctx context.Context, id interface{}, relation string, ids []interface{}, detaching bool) (*SyncResult, bool)

	// SyncWithoutDetaching is Sync with detaching false.
	SyncWithoutDetaching(ctx context.Context, id interface{}, relation string, ids []interface{}) (*SyncResult, bool)

	// Attach adds ids to relation.
	Attach(ctx context.Context, id interface{}, relation string, ids ...interface{}) bool

	// Detach removes ids from relation; no ids removes every member.
	Detach(ctx context.Context, id interface{}, relation string, ids ...interface{}) bool
}

// SyncResult lists what a Sync changed.
type SyncResult struct {
	Attached []interface{}
	Detached []interface{}
}

// Result represents the result of a raw statement
type Result interface {
	// LastInsertId returns the ID of the last inserted row.
	LastInsertId() (int64, error)

	// RowsAffected returns the number of rows affected by the statement.
	RowsAffected() (int64, error)
}

// DiffIDs splits desired against current into the ids to attach and the ids
// to detach. Ids are compared by their formatted value so that 1 and int64(1)
// match.
func DiffIDs(current, desired []interface{}, detaching bool) (attach, detach []interface{}) {
	have := make(map[string]struct{}, len(current))
	for _, id := range current {
		have[idKey(id)] = struct{}{}
	}
	want := make(map[string]struct{}, len(desired))
	for _, id := range desired {
		k := idKey(id)
		if _, dup := want[k]; dup {
			continue
		}
		want[k] = struct{}{}
		if _, ok := have[k]; !ok {
			attach = append(attach, id)
		}
	}
	if detaching {
		for _, id := range current {
			if _, ok := want[idKey(id)]; !ok {
				detach = append(detach, id)
			}
		}
	}
	return attach, detach
}

// NormalizeIDs converts driver values scanned into interface{} to the form
// callers pass ids in: []byte, as returned by text protocol drivers, becomes
// a string.
func NormalizeIDs(ids []interface{}) []interface{} {
	for i, id := range ids {
		if b, ok := id.([]byte); ok {
			ids[i] = string(b)
		}
	}
	return ids
}

func idKey(id interface{}) string {
	if b, ok := id.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(id)
}
