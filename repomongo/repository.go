package repomongo

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/lemmego/repo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// =====================================
// Generic MongoDB Repository Implementation
// =====================================

// Repository implements repo.Repository for documents of type T.
//
// The collection comes from T's CollectionName method, or the lowercased
// type name with an "s" suffix. A *time.Time field stored as "deleted_at"
// makes T soft deleted; time.Time fields stored as "created_at" and
// "updated_at" are maintained on writes.
type Repository[T any] struct {
	collection   *mongo.Collection
	client       *mongo.Client
	transactions bool
	schema       *schema
	opts         repo.Options
	logger       *zap.Logger
	entity       string
}

// NewRepository creates a repository for T on the provider's database.
// Example: users := repomongo.NewRepository[User](provider)
func NewRepository[T any](p *Provider, opts ...repo.Option) *Repository[T] {
	o := repo.NewOptions(p.opts, opts...)
	entityType := reflect.TypeOf((*T)(nil)).Elem()
	s := schemaOf(entityType)
	return &Repository[T]{
		collection:   p.database.Collection(s.collection),
		client:       p.client,
		transactions: p.transactions,
		schema:       s,
		opts:         o,
		logger:       o.EntityLogger(ProviderName, entityType),
		entity:       repo.EntityName(entityType),
	}
}

// Collection returns the collection T is stored in.
func (r *Repository[T]) Collection() *mongo.Collection {
	return r.collection
}

func withOptions(opts []repo.QueryOption, extra ...repo.QueryOption) []repo.QueryOption {
	out := make([]repo.QueryOption, 0, len(opts)+len(extra))
	out = append(out, opts...)
	return append(out, extra...)
}

// ===============================
// Lookups
// ===============================

func (r *Repository[T]) find(ctx context.Context, opts []repo.QueryOption, extra ...bson.D) ([]*T, error) {
	spec, err := buildQuery(r.schema, opts, extra...)
	if err != nil {
		return nil, err
	}

	cursor, err := r.collection.Find(ctx, spec.filter, spec.findOptions())
	if err != nil {
		return nil, convertMongoError(err)
	}
	defer cursor.Close(ctx)

	entities := []*T{}
	for cursor.Next(ctx) {
		entity := new(T)
		if err := cursor.Decode(entity); err != nil {
			return nil, repo.NewErrorWithCause(repo.ErrorTypeSerialization, "failed to decode document", err)
		}
		if err := repo.RunHooks(ctx, repo.StageAfterFind, entity); err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, convertMongoError(cursor.Err())
}

func (r *Repository[T]) first(ctx context.Context, opts []repo.QueryOption, extra ...bson.D) (*T, error) {
	entities, err := r.find(ctx, withOptions(opts, repo.Limit(1)), extra...)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, repo.NewError(repo.ErrorTypeNotFound, "document not found")
	}
	return entities[0], nil
}

func (r *Repository[T]) findByID(ctx context.Context, id interface{}, opts []repo.QueryOption) (*T, error) {
	key, err := r.schema.idValue(id)
	if err != nil {
		return nil, err
	}
	return r.first(ctx, opts, bson.D{{Key: "_id", Value: key}})
}

// All returns every entity matching the options
func (r *Repository[T]) All(ctx context.Context, opts ...repo.QueryOption) ([]*T, error) {
	return r.find(ctx, opts)
}

// First returns the first entity matching the options
func (r *Repository[T]) First(ctx context.Context, opts ...repo.QueryOption) (*T, error) {
	return r.first(ctx, opts)
}

// Find looks an entity up by _id; hex strings are accepted for ObjectIDs
func (r *Repository[T]) Find(ctx context.Context, id interface{}, opts ...repo.QueryOption) (*T, bool) {
	entity, err := r.findByID(ctx, id, opts)
	if err != nil {
		repo.LogLookupFailure(r.logger, "find", err)
		return nil, false
	}
	return entity, true
}

func (r *Repository[T]) FindByField(ctx context.Context, field string, value interface{}, opts ...repo.QueryOption) ([]*T, error) {
	return r.find(ctx, withOptions(opts, repo.WhereField(field, value)))
}

func (r *Repository[T]) FindWhere(ctx context.Context, conds []repo.Condition, opts ...repo.QueryOption) ([]*T, error) {
	return r.find(ctx, withOptions(opts, repo.Where(conds...)))
}

func (r *Repository[T]) FindWhereIn(ctx context.Context, field string, values interface{}, opts ...repo.QueryOption) ([]*T, error) {
	return r.find(ctx, withOptions(opts, repo.Where(repo.In(field, values))))
}

func (r *Repository[T]) FindWhereNotIn(ctx context.Context, field string, values interface{}, opts ...repo.QueryOption) ([]*T, error) {
	return r.find(ctx, withOptions(opts, repo.Where(repo.NotIn(field, values))))
}

func (r *Repository[T]) FindWhereBetween(ctx context.Context, field string, from, to interface{}, opts ...repo.QueryOption) ([]*T, error) {
	return r.find(ctx, withOptions(opts, repo.Where(repo.Between(field, from, to))))
}

func (r *Repository[T]) Limit(ctx context.Context, n int, opts ...repo.QueryOption) ([]*T, error) {
	return r.find(ctx, withOptions(opts, repo.Limit(n)))
}

// Count returns the number of matching documents; limit and offset are ignored
func (r *Repository[T]) Count(ctx context.Context, opts ...repo.QueryOption) (int64, error) {
	spec, err := buildQuery(r.schema, opts)
	if err != nil {
		return 0, err
	}
	count, err := r.collection.CountDocuments(ctx, spec.filter)
	return count, convertMongoError(err)
}

func (r *Repository[T]) Exists(ctx context.Context, opts ...repo.QueryOption) (bool, error) {
	spec, err := buildQuery(r.schema, opts)
	if err != nil {
		return false, err
	}
	count, err := r.collection.CountDocuments(ctx, spec.filter, options.Count().SetLimit(1))
	return count > 0, convertMongoError(err)
}

// Pluck returns column of every matching document; dotted columns address
// embedded documents
func (r *Repository[T]) Pluck(ctx context.Context, column string, opts ...repo.QueryOption) ([]interface{}, error) {
	if !repo.ValidIdentifier(column) {
		return nil, repo.NewError(repo.ErrorTypeInvalidArgument, fmt.Sprintf("invalid column %q", column))
	}
	spec, err := buildQuery(r.schema, opts)
	if err != nil {
		return nil, err
	}
	key := r.schema.key(column)
	spec.projection = bson.D{{Key: key, Value: 1}}

	cursor, err := r.collection.Find(ctx, spec.filter, spec.findOptions())
	if err != nil {
		return nil, convertMongoError(err)
	}
	defer cursor.Close(ctx)

	values := []interface{}{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, repo.NewErrorWithCause(repo.ErrorTypeSerialization, "failed to decode document", err)
		}
		values = append(values, lookup(doc, key))
	}
	return values, convertMongoError(cursor.Err())
}

func lookup(doc bson.M, path string) interface{} {
	head, rest, nested := strings.Cut(path, ".")
	v := doc[head]
	if !nested {
		return v
	}
	if sub, ok := v.(bson.M); ok {
		return lookup(sub, rest)
	}
	return nil
}

// ===============================
// Pagination
// ===============================

func (r *Repository[T]) Paginate(ctx context.Context, req repo.PageRequest, opts ...repo.QueryOption) (*repo.Paginator[T], error) {
	return r.paginate(ctx, repo.MethodPaginate, req, opts)
}

func (r *Repository[T]) SimplePaginate(ctx context.Context, req repo.PageRequest, opts ...repo.QueryOption) (*repo.Paginator[T], error) {
	return r.paginate(ctx, repo.MethodSimplePaginate, req, opts)
}

func (r *Repository[T]) paginate(ctx context.Context, method repo.PaginationMethod, req repo.PageRequest, opts []repo.QueryOption) (*repo.Paginator[T], error) {
	return repo.RunPagination(ctx, method, r.opts.Config, req, repo.PageQuery[T]{
		Count: func(ctx context.Context) (int64, error) {
			return r.Count(ctx, opts...)
		},
		Fetch: func(ctx context.Context, limit, offset int) ([]*T, error) {
			return r.find(ctx, withOptions(opts, repo.Limit(limit), repo.Offset(offset)))
		},
	})
}

// ===============================
// Upserts
// ===============================

// matching builds an equality filter on attrs
func (r *Repository[T]) matching(attrs map[string]interface{}) (bson.D, error) {
	if len(attrs) == 0 {
		return nil, repo.NewError(repo.ErrorTypeInvalidArgument, "attributes must not be empty")
	}
	if err := r.schema.checkColumns(attrs); err != nil {
		return nil, err
	}
	filter := bson.D{}
	for _, col := range sortedKeys(attrs) {
		key := r.schema.key(col)
		value := attrs[col]
		if key == "_id" {
			id, err := r.schema.idValue(value)
			if err != nil {
				return nil, err
			}
			value = id
		}
		filter = append(filter, bson.E{Key: key, Value: value})
	}
	return filter, nil
}

// assign writes values into entity through a bson round trip, so values are
// converted the way the driver decodes stored documents
func (r *Repository[T]) assign(entity *T, values map[string]interface{}) error {
	if err := r.schema.checkColumns(values); err != nil {
		return err
	}
	raw, err := bson.Marshal(entity)
	if err != nil {
		return repo.NewErrorWithCause(repo.ErrorTypeSerialization, "failed to encode entity", err)
	}
	doc := bson.M{}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return repo.NewErrorWithCause(repo.ErrorTypeSerialization, "failed to encode entity", err)
	}
	for col, value := range values {
		key := r.schema.key(col)
		if key == "_id" {
			if value, err = r.schema.idValue(value); err != nil {
				return err
			}
		}
		doc[key] = value
	}
	if raw, err = bson.Marshal(doc); err != nil {
		return repo.NewErrorWithCause(repo.ErrorTypeInvalidArgument, "values cannot be stored", err)
	}
	if err := bson.Unmarshal(raw, entity); err != nil {
		return repo.NewErrorWithCause(repo.ErrorTypeInvalidArgument, "values do not fit "+r.schema.name, err)
	}
	return nil
}

// FirstOrNew returns the first entity matching attrs or an unsaved one carrying them
func (r *Repository[T]) FirstOrNew(ctx context.Context, attrs map[string]interface{}) (*T, error) {
	filter, err := r.matching(attrs)
	if err != nil {
		return nil, err
	}
	entity, err := r.first(ctx, nil, filter)
	if err == nil || !repo.IsNotFound(err) {
		return entity, err
	}
	entity = new(T)
	if err := r.assign(entity, attrs); err != nil {
		return nil, err
	}
	return entity, nil
}

// FirstOrCreate returns the first entity matching attrs, creating it when missing
func (r *Repository[T]) FirstOrCreate(ctx context.Context, attrs map[string]interface{}) (*T, error) {
	filter, err := r.matching(attrs)
	if err != nil {
		return nil, err
	}
	var entity *T
	created := false
	err = r.transaction(ctx, func(tx context.Context) error {
		var err error
		entity, err = r.first(tx, nil, filter)
		if !repo.IsNotFound(err) {
			return err
		}
		entity = new(T)
		if err := r.assign(entity, attrs); err != nil {
			return err
		}
		created = true
		return r.insert(tx, entity)
	})
	if err != nil {
		return nil, err
	}
	if created {
		r.dispatch(ctx, repo.EventCreated, r.schema.primaryKey(entity), entity)
	}
	return entity, nil
}

// UpdateOrCreate updates the first entity matching attrs with values, or
// creates one from both
func (r *Repository[T]) UpdateOrCreate(ctx context.Context, attrs, values map[string]interface{}) (*T, error) {
	filter, err := r.matching(attrs)
	if err != nil {
		return nil, err
	}
	if err := r.schema.checkColumns(values); err != nil {
		return nil, err
	}
	var entity *T
	action := repo.EventUpdated
	err = r.transaction(ctx, func(tx context.Context) error {
		var err error
		entity, err = r.first(tx, nil, filter)
		switch {
		case err == nil:
			return r.update(tx, entity, values)
		case repo.IsNotFound(err):
			action = repo.EventCreated
			entity = new(T)
			if err := r.assign(entity, attrs); err != nil {
				return err
			}
			if err := r.assign(entity, values); err != nil {
				return err
			}
			return r.insert(tx, entity)
		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	r.dispatch(ctx, action, r.schema.primaryKey(entity), entity)
	return entity, nil
}

// ===============================
// Transactions
// ===============================

// txContext is the context of one mutation; it commits or rolls back the
// session transaction bound to it, if any
type txContext interface {
	context.Context
	repo.Tx
}

// sessionTx runs a mutation in a session transaction
type sessionTx struct {
	mongo.SessionContext
}

func (t sessionTx) Commit() error {
	defer t.EndSession(context.Background())
	return convertMongoError(t.CommitTransaction(t))
}

func (t sessionTx) Rollback() error {
	defer t.EndSession(context.Background())
	return convertMongoError(t.AbortTransaction(context.Background()))
}

// directTx runs a mutation without a transaction, for standalone servers
type directTx struct {
	context.Context
}

func (directTx) Commit() error   { return nil }
func (directTx) Rollback() error { return nil }

func (r *Repository[T]) begin(ctx context.Context) (txContext, error) {
	if !r.transactions {
		return directTx{ctx}, nil
	}
	session, err := r.client.StartSession()
	if err != nil {
		return nil, convertMongoError(err)
	}
	if err := session.StartTransaction(); err != nil {
		session.EndSession(ctx)
		return nil, convertMongoError(err)
	}
	return sessionTx{mongo.NewSessionContext(ctx, session)}, nil
}

// atomically runs fn in one transaction, logging and swallowing its failure
func (r *Repository[T]) atomically(ctx context.Context, op string, fn func(tx context.Context) error) bool {
	return repo.Atomically(ctx, r.logger, op, r.begin, func(tx txContext) error {
		return fn(tx)
	})
}

// transaction runs fn in one transaction and returns its failure
func (r *Repository[T]) transaction(ctx context.Context, fn func(tx context.Context) error) error {
	tx, err := r.begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}

func (r *Repository[T]) dispatch(ctx context.Context, action repo.EventAction, id, value interface{}) {
	r.opts.Dispatch(ctx, repo.Event{Action: action, Entity: r.entity, ID: id, Value: value})
}

// ===============================
// Mutations
// ===============================

func (r *Repository[T]) insert(ctx context.Context, entity *T) error {
	if err := repo.RunHooks(ctx, repo.StageBeforeCreate, entity); err != nil {
		return err
	}
	r.schema.ensureID(entity)
	r.schema.touch(entity, time.Now(), true)

	result, err := r.collection.InsertOne(ctx, entity)
	if err != nil {
		return convertMongoError(err)
	}
	r.schema.setID(entity, result.InsertedID)
	return repo.RunHooks(ctx, repo.StageAfterCreate, entity)
}

// update sets values on entity and stores the changed keys
func (r *Repository[T]) update(ctx context.Context, entity *T, values map[string]interface{}) error {
	if len(values) == 0 {
		return nil
	}
	if err := r.assign(entity, values); err != nil {
		return err
	}
	if err := repo.RunHooks(ctx, repo.StageBeforeUpdate, entity); err != nil {
		return err
	}
	r.schema.touch(entity, time.Now(), false)

	raw, err := bson.Marshal(entity)
	if err != nil {
		return repo.NewErrorWithCause(repo.ErrorTypeSerialization, "failed to encode entity", err)
	}
	doc := bson.M{}
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return repo.NewErrorWithCause(repo.ErrorTypeSerialization, "failed to encode entity", err)
	}

	set := bson.D{}
	for _, col := range sortedKeys(values) {
		key := r.schema.key(col)
		set = append(set, bson.E{Key: key, Value: doc[key]})
	}
	if r.schema.updatedAt != nil {
		if _, ok := values[updatedAtKey]; !ok {
			set = append(set, bson.E{Key: updatedAtKey, Value: doc[updatedAtKey]})
		}
	}

	id := r.schema.primaryKey(entity)
	result, err := r.collection.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return convertMongoError(err)
	}
	if result.MatchedCount == 0 {
		return repo.NewError(repo.ErrorTypeNotFound, "document not found")
	}
	return repo.RunHooks(ctx, repo.StageAfterUpdate, entity)
}

// Create inserts entity; a zero ObjectID _id is generated
func (r *Repository[T]) Create(ctx context.Context, entity *T) bool {
	ok := r.atomically(ctx, "create", func(tx context.Context) error {
		return r.insert(tx, entity)
	})
	if ok {
		r.dispatch(ctx, repo.EventCreated, r.schema.primaryKey(entity), entity)
	}
	return ok
}

// Insert inserts every entity in one transaction
func (r *Repository[T]) Insert(ctx context.Context, entities []*T) bool {
	if len(entities) == 0 {
		return true
	}
	ok := r.atomically(ctx, "insert", func(tx context.Context) error {
		now := time.Now()
		docs := make([]interface{}, len(entities))
		for i, entity := range entities {
			if err := repo.RunHooks(tx, repo.StageBeforeCreate, entity); err != nil {
				return err
			}
			r.schema.ensureID(entity)
			r.schema.touch(entity, now, true)
			docs[i] = entity
		}
		result, err := r.collection.InsertMany(tx, docs)
		if err != nil {
			return convertMongoError(err)
		}
		for i, id := range result.InsertedIDs {
			r.schema.setID(entities[i], id)
		}
		for _, entity := range entities {
			if err := repo.RunHooks(tx, repo.StageAfterCreate, entity); err != nil {
				return err
			}
		}
		return nil
	})
	if ok {
		for _, entity := range entities {
			r.dispatch(ctx, repo.EventCreated, r.schema.primaryKey(entity), entity)
		}
	}
	return ok
}

// Update sets values on the document with the given id
func (r *Repository[T]) Update(ctx context.Context, id interface{}, values map[string]interface{}) bool {
	var entity *T
	ok := r.atomically(ctx, "update", func(tx context.Context) error {
		var err error
		if entity, err = r.findByID(tx, id, nil); err != nil {
			return err
		}
		return r.update(tx, entity, values)
	})
	if ok {
		r.dispatch(ctx, repo.EventUpdated, id, entity)
	}
	return ok
}

// Delete deletes the document with the given id, softly when T supports it
func (r *Repository[T]) Delete(ctx context.Context, id interface{}) bool {
	ok := r.atomically(ctx, "delete", func(tx context.Context) error {
		entity, err := r.findByID(tx, id, nil)
		if err != nil {
			return err
		}
		if err := repo.RunHooks(tx, repo.StageBeforeDelete, entity); err != nil {
			return err
		}
		filter := bson.D{{Key: "_id", Value: r.schema.primaryKey(entity)}}

		if r.schema.softDelete != nil {
			now := time.Now()
			_, err = r.collection.UpdateOne(tx, filter, bson.D{{Key: "$set", Value: bson.D{{Key: softDeleteKey, Value: now}}}})
			if err != nil {
				return convertMongoError(err)
			}
			r.schema.setDeletedAt(entity, &now)
		} else if _, err = r.collection.DeleteOne(tx, filter); err != nil {
			return convertMongoError(err)
		}
		return repo.RunHooks(tx, repo.StageAfterDelete, entity)
	})
	if ok {
		r.dispatch(ctx, repo.EventDeleted, id, nil)
	}
	return ok
}

// ForceDelete removes the document with the given id permanently
func (r *Repository[T]) ForceDelete(ctx context.Context, id interface{}) bool {
	ok := r.atomically(ctx, "force_delete", func(tx context.Context) error {
		entity, err := r.findByID(tx, id, []repo.QueryOption{repo.WithTrashed()})
		if err != nil {
			return err
		}
		if err := repo.RunHooks(tx, repo.StageBeforeDelete, entity); err != nil {
			return err
		}
		if _, err := r.collection.DeleteOne(tx, bson.D{{Key: "_id", Value: r.schema.primaryKey(entity)}}); err != nil {
			return convertMongoError(err)
		}
		return repo.RunHooks(tx, repo.StageAfterDelete, entity)
	})
	if ok {
		r.dispatch(ctx, repo.EventForceDeleted, id, nil)
	}
	return ok
}

// Restore clears the soft delete marker of a trashed document
func (r *Repository[T]) Restore(ctx context.Context, id interface{}) bool {
	var entity *T
	ok := r.atomically(ctx, "restore", func(tx context.Context) error {
		if r.schema.softDelete == nil {
			return repo.Unsupported(ProviderName, r.schema.name+" is not soft deleted")
		}
		var err error
		if entity, err = r.findByID(tx, id, []repo.QueryOption{repo.OnlyTrashed()}); err != nil {
			return err
		}
		filter := bson.D{{Key: "_id", Value: r.schema.primaryKey(entity)}}
		if _, err := r.collection.UpdateOne(tx, filter, bson.D{{Key: "$set", Value: bson.D{{Key: softDeleteKey, Value: nil}}}}); err != nil {
			return convertMongoError(err)
		}
		r.schema.setDeletedAt(entity, nil)
		return nil
	})
	if ok {
		r.dispatch(ctx, repo.EventRestored, id, entity)
	}
	return ok
}

// DeleteWhere deletes every document matching conds. Conditions MongoDB
// cannot express are reported like malformed ones.
func (r *Repository[T]) DeleteWhere(ctx context.Context, conds ...repo.Condition) (bool, error) {
	if len(conds) == 0 {
		return false, repo.NewError(repo.ErrorTypeInvalidArgument, "DeleteWhere requires at least one condition")
	}
	spec, err := buildQuery(r.schema, []repo.QueryOption{repo.Where(conds...)})
	if err != nil {
		return false, err
	}
	ok := r.atomically(ctx, "delete_where", func(tx context.Context) error {
		var err error
		if r.schema.softDelete != nil {
			_, err = r.collection.UpdateMany(tx, spec.filter,
				bson.D{{Key: "$set", Value: bson.D{{Key: softDeleteKey, Value: time.Now()}}}})
		} else {
			_, err = r.collection.DeleteMany(tx, spec.filter)
		}
		return convertMongoError(err)
	})
	if ok {
		r.dispatch(ctx, repo.EventDeleted, nil, conds)
	}
	return ok, nil
}

// DeleteWhereIn deletes every document whose field is one of values
func (r *Repository[T]) DeleteWhereIn(ctx context.Context, field string, values interface{}) (bool, error) {
	return r.DeleteWhere(ctx, repo.In(field, values))
}

// ===============================
// Escape Hatch and Metadata
// ===============================

// Result implements repo.Result for database commands
type Result struct {
	n int64
}

// LastInsertId is not reported by MongoDB commands
func (r *Result) LastInsertId() (int64, error) {
	return 0, repo.Unsupported(ProviderName, "LastInsertId")
}

// RowsAffected returns the "n" field of the command reply
func (r *Result) RowsAffected() (int64, error) {
	return r.n, nil
}

// Raw runs a database command given as extended JSON, e.g.
// {"update": "users", "updates": [...]}
func (r *Repository[T]) Raw(ctx context.Context, query string, args ...interface{}) (repo.Result, error) {
	if len(args) > 0 {
		return nil, repo.Unsupported(ProviderName, "bind arguments in raw commands")
	}
	var cmd bson.D
	if err := bson.UnmarshalExtJSON([]byte(query), false, &cmd); err != nil {
		return nil, repo.NewErrorWithCause(repo.ErrorTypeInvalidArgument, "invalid MongoDB command", err)
	}

	var reply bson.M
	if err := r.collection.Database().RunCommand(ctx, cmd).Decode(&reply); err != nil {
		return nil, convertMongoError(err)
	}

	result := &Result{}
	switch n := reply["n"].(type) {
	case int32:
		result.n = int64(n)
	case int64:
		result.n = n
	case float64:
		result.n = int64(n)
	}
	return result, nil
}

// EntityInfo returns metadata about T
func (r *Repository[T]) EntityInfo() (*repo.EntityInfo, error) {
	return r.schema.entityInfo(), nil
}

var _ repo.Repository[struct{}] = (*Repository[struct{}])(nil)
