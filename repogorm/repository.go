package repogorm

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"

	"github.com/lemmego/repo"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// =====================================
// Repository Implementation
// =====================================

// Repository implements repo.RelationRepository using GORM
type Repository[T any] struct {
	db      *gorm.DB
	dialect string
	opts    repo.Options
	logger  *zap.Logger
	entity  string
}

var _ repo.RelationRepository[struct{}] = (*Repository[struct{}])(nil)

// NewRepository returns the repository of T served by p.
func NewRepository[T any](p *Provider, opts ...repo.Option) *Repository[T] {
	o := repo.NewOptions(p.opts, opts...)
	entityType := reflect.TypeOf((*T)(nil)).Elem()
	return &Repository[T]{
		db:      p.db,
		dialect: p.dialect(),
		opts:    o,
		logger:  o.EntityLogger(ProviderName, entityType),
		entity:  repo.EntityName(entityType),
	}
}

// DB returns the underlying GORM handle.
func (r *Repository[T]) DB() *gorm.DB {
	return r.db
}

func (r *Repository[T]) schema() (*schema.Schema, error) {
	stmt := &gorm.Statement{DB: r.db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, convertGormError(err)
	}
	return stmt.Schema, nil
}

// session returns a connection bound to ctx with no statement state.
func (r *Repository[T]) session(ctx context.Context) *gorm.DB {
	return r.db.Session(&gorm.Session{NewDB: true, Context: ctx})
}

func (r *Repository[T]) query(root *gorm.DB, mode buildMode, opts []repo.QueryOption) (*gorm.DB, *schema.Schema, error) {
	sch, err := r.schema()
	if err != nil {
		return nil, nil, err
	}
	db, err := buildQuery(root, sch, r.dialect, mode, opts...)
	if err != nil {
		return nil, nil, err
	}
	return db, sch, nil
}

func primaryColumn(sch *schema.Schema) (string, error) {
	if sch.PrioritizedPrimaryField == nil {
		return "", repo.NewError(repo.ErrorTypeInvalidArgument,
			fmt.Sprintf("%s has no single primary key", sch.Name))
	}
	return sch.Table + "." + sch.PrioritizedPrimaryField.DBName, nil
}

func withOptions(opts []repo.QueryOption, extra ...repo.QueryOption) []repo.QueryOption {
	out := make([]repo.QueryOption, 0, len(opts)+len(extra))
	out = append(out, opts...)
	return append(out, extra...)
}

// ===============================
// Lookups
// ===============================

// All returns every entity matching the options
func (r *Repository[T]) All(ctx context.Context, opts ...repo.QueryOption) ([]*T, error) {
	db, _, err := r.query(r.session(ctx), modeSelect, opts)
	if err != nil {
		return nil, err
	}
	out := []*T{}
	if err := db.Find(&out).Error; err != nil {
		return nil, convertGormError(err)
	}
	return out, nil
}

// First returns the first entity matching the options
func (r *Repository[T]) First(ctx context.Context, opts ...repo.QueryOption) (*T, error) {
	return r.first(r.session(ctx), opts)
}

func (r *Repository[T]) first(root *gorm.DB, opts []repo.QueryOption) (*T, error) {
	db, _, err := r.query(root, modeSelect, opts)
	if err != nil {
		return nil, err
	}
	entity := new(T)
	if err := db.First(entity).Error; err != nil {
		return nil, convertGormError(err)
	}
	return entity, nil
}

// Find looks an entity up by primary key
func (r *Repository[T]) Find(ctx context.Context, id interface{}, opts ...repo.QueryOption) (*T, bool) {
	entity, err := r.findByID(r.session(ctx), id, opts)
	if err != nil {
		repo.LogLookupFailure(r.logger, "find", err)
		return nil, false
	}
	return entity, true
}

func (r *Repository[T]) findByID(root *gorm.DB, id interface{}, opts []repo.QueryOption) (*T, error) {
	sch, err := r.schema()
	if err != nil {
		return nil, err
	}
	pk, err := primaryColumn(sch)
	if err != nil {
		return nil, err
	}
	byID := repo.OptionFunc(func(q *repo.Query) {
		q.Conditions = append(q.Conditions, repo.Eq(pk, id))
	})
	return r.first(root, withOptions(opts, byID))
}

// FindByField returns the entities whose field equals value
func (r *Repository[T]) FindByField(ctx context.Context, field string, value interface{}, opts ...repo.QueryOption) ([]*T, error) {
	return r.All(ctx, withOptions(opts, repo.WhereField(field, value))...)
}

// FindWhere returns the entities matching every condition
func (r *Repository[T]) FindWhere(ctx context.Context, conds []repo.Condition, opts ...repo.QueryOption) ([]*T, error) {
	return r.All(ctx, withOptions(opts, repo.Where(conds...))...)
}

// FindWhereIn returns the entities whose field is one of values
func (r *Repository[T]) FindWhereIn(ctx context.Context, field string, values interface{}, opts ...repo.QueryOption) ([]*T, error) {
	return r.All(ctx, withOptions(opts, repo.Where(repo.In(field, values)))...)
}

// FindWhereNotIn returns the entities whose field is none of values
func (r *Repository[T]) FindWhereNotIn(ctx context.Context, field string, values interface{}, opts ...repo.QueryOption) ([]*T, error) {
	return r.All(ctx, withOptions(opts, repo.Where(repo.NotIn(field, values)))...)
}

// FindWhereBetween returns the entities whose field lies in [from, to]
func (r *Repository[T]) FindWhereBetween(ctx context.Context, field string, from, to interface{}, opts ...repo.QueryOption) ([]*T, error) {
	return r.All(ctx, withOptions(opts, repo.Where(repo.Between(field, from, to)))...)
}

// Limit returns at most n matching entities
func (r *Repository[T]) Limit(ctx context.Context, n int, opts ...repo.QueryOption) ([]*T, error) {
	return r.All(ctx, withOptions(opts, repo.Limit(n))...)
}

// Count counts entities matching the given options
func (r *Repository[T]) Count(ctx context.Context, opts ...repo.QueryOption) (int64, error) {
	db, _, err := r.query(r.session(ctx), modeCount, opts)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, convertGormError(err)
	}
	return count, nil
}

// Exists checks if any entity matches the given options
func (r *Repository[T]) Exists(ctx context.Context, opts ...repo.QueryOption) (bool, error) {
	count, err := r.Count(ctx, opts...)
	return count > 0, err
}

// Pluck returns column for every matching entity
func (r *Repository[T]) Pluck(ctx context.Context, column string, opts ...repo.QueryOption) ([]interface{}, error) {
	if !repo.ValidIdentifier(column) {
		return nil, repo.NewError(repo.ErrorTypeInvalidArgument, fmt.Sprintf("invalid column %q", column))
	}
	db, _, err := r.query(r.session(ctx), modePluck, opts)
	if err != nil {
		return nil, err
	}
	values := []interface{}{}
	if err := db.Pluck(column, &values).Error; err != nil {
		return nil, convertGormError(err)
	}
	return values, nil
}

// ===============================
// Pagination
// ===============================

// Paginate returns one page of matching entities with the total count
func (r *Repository[T]) Paginate(ctx context.Context, req repo.PageRequest, opts ...repo.QueryOption) (*repo.Paginator[T], error) {
	return r.paginate(ctx, repo.MethodPaginate, req, opts)
}

// SimplePaginate returns one page of matching entities without counting
func (r *Repository[T]) SimplePaginate(ctx context.Context, req repo.PageRequest, opts ...repo.QueryOption) (*repo.Paginator[T], error) {
	return r.paginate(ctx, repo.MethodSimplePaginate, req, opts)
}

func (r *Repository[T]) paginate(ctx context.Context, method repo.PaginationMethod, req repo.PageRequest, opts []repo.QueryOption) (*repo.Paginator[T], error) {
	return repo.RunPagination(ctx, method, r.opts.Config, req, repo.PageQuery[T]{
		Count: func(ctx context.Context) (int64, error) {
			return r.Count(ctx, opts...)
		},
		Fetch: func(ctx context.Context, limit, offset int) ([]*T, error) {
			return r.All(ctx, withOptions(opts, repo.Limit(limit), repo.Offset(offset))...)
		},
	})
}

// ===============================
// Upserts
// ===============================

func validateAttributes(attrs map[string]interface{}) error {
	if len(attrs) == 0 {
		return repo.NewError(repo.ErrorTypeInvalidArgument, "attributes must not be empty")
	}
	for k := range attrs {
		if !repo.ValidIdentifier(k) {
			return repo.NewError(repo.ErrorTypeInvalidArgument, fmt.Sprintf("invalid column %q", k))
		}
	}
	return nil
}

// FirstOrNew returns the first entity matching attrs or an unsaved one carrying them
func (r *Repository[T]) FirstOrNew(ctx context.Context, attrs map[string]interface{}) (*T, error) {
	if err := validateAttributes(attrs); err != nil {
		return nil, err
	}
	entity := new(T)
	if err := r.session(ctx).Where(attrs).FirstOrInit(entity).Error; err != nil {
		return nil, convertGormError(err)
	}
	return entity, nil
}

// FirstOrCreate returns the first entity matching attrs, creating it when missing
func (r *Repository[T]) FirstOrCreate(ctx context.Context, attrs map[string]interface{}) (*T, error) {
	if err := validateAttributes(attrs); err != nil {
		return nil, err
	}
	entity := new(T)
	created := false
	err := r.session(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(attrs).Take(entity).Error
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		created = true
		return tx.Where(attrs).FirstOrCreate(entity).Error
	})
	if err != nil {
		return nil, convertGormError(err)
	}
	if created {
		r.dispatch(ctx, repo.EventCreated, nil, entity)
	}
	return entity, nil
}

// UpdateOrCreate updates the first entity matching attrs with values, or
// creates one from both
func (r *Repository[T]) UpdateOrCreate(ctx context.Context, attrs, values map[string]interface{}) (*T, error) {
	if err := validateAttributes(attrs); err != nil {
		return nil, err
	}
	entity := new(T)
	action := repo.EventUpdated
	err := r.session(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where(attrs).Take(entity).Error
		switch {
		case err == nil:
			if len(values) == 0 {
				return nil
			}
			return tx.Model(entity).Updates(values).Error
		case repo.IsNotFound(convertGormError(err)):
			action = repo.EventCreated
			return tx.Where(attrs).Assign(values).FirstOrCreate(entity).Error
		default:
			return err
		}
	})
	if err != nil {
		return nil, convertGormError(err)
	}
	r.dispatch(ctx, action, nil, entity)
	return entity, nil
}

// ===============================
// Mutations
// ===============================

// gormTx adapts a GORM transaction to repo.Tx
type gormTx struct {
	*gorm.DB
}

func (t gormTx) Commit() error   { return t.DB.Commit().Error }
func (t gormTx) Rollback() error { return t.DB.Rollback().Error }

func (r *Repository[T]) begin(ctx context.Context) (gormTx, error) {
	tx := r.db.WithContext(ctx).Begin()
	return gormTx{tx}, convertGormError(tx.Error)
}

func (r *Repository[T]) atomically(ctx context.Context, op string, fn func(tx *gorm.DB) error) bool {
	return repo.Atomically(ctx, r.logger, op, r.begin, func(tx gormTx) error {
		return fn(tx.DB)
	})
}

func (r *Repository[T]) dispatch(ctx context.Context, action repo.EventAction, id, value interface{}) {
	r.opts.Dispatch(ctx, repo.Event{Action: action, Entity: r.entity, ID: id, Value: value})
}

// Create inserts entity
func (r *Repository[T]) Create(ctx context.Context, entity *T) bool {
	ok := r.atomically(ctx, "create", func(tx *gorm.DB) error {
		return convertGormError(tx.Create(entity).Error)
	})
	if ok {
		r.dispatch(ctx, repo.EventCreated, nil, entity)
	}
	return ok
}

// Insert inserts every entity in one transaction
func (r *Repository[T]) Insert(ctx context.Context, entities []*T) bool {
	if len(entities) == 0 {
		return true
	}
	ok := r.atomically(ctx, "insert", func(tx *gorm.DB) error {
		return convertGormError(tx.CreateInBatches(entities, 100).Error)
	})
	if ok {
		for _, e := range entities {
			r.dispatch(ctx, repo.EventCreated, nil, e)
		}
	}
	return ok
}

// Update sets values on the entity with the given id
func (r *Repository[T]) Update(ctx context.Context, id interface{}, values map[string]interface{}) bool {
	var entity *T
	ok := r.atomically(ctx, "update", func(tx *gorm.DB) error {
		var err error
		if entity, err = r.findByID(tx, id, nil); err != nil {
			return err
		}
		if len(values) == 0 {
			return nil
		}
		return convertGormError(tx.Model(entity).Updates(values).Error)
	})
	if ok {
		r.dispatch(ctx, repo.EventUpdated, id, entity)
	}
	return ok
}

// Delete deletes the entity with the given id, softly when T supports it
func (r *Repository[T]) Delete(ctx context.Context, id interface{}) bool {
	ok := r.atomically(ctx, "delete", func(tx *gorm.DB) error {
		entity, err := r.findByID(tx, id, nil)
		if err != nil {
			return err
		}
		return convertGormError(tx.Delete(entity).Error)
	})
	if ok {
		r.dispatch(ctx, repo.EventDeleted, id, nil)
	}
	return ok
}

// ForceDelete removes the entity with the given id permanently
func (r *Repository[T]) ForceDelete(ctx context.Context, id interface{}) bool {
	ok := r.atomically(ctx, "force_delete", func(tx *gorm.DB) error {
		entity, err := r.findByID(tx, id, []repo.QueryOption{repo.WithTrashed()})
		if err != nil {
			return err
		}
		return convertGormError(tx.Unscoped().Delete(entity).Error)
	})
	if ok {
		r.dispatch(ctx, repo.EventForceDeleted, id, nil)
	}
	return ok
}

// Restore clears the soft delete marker of a trashed entity
func (r *Repository[T]) Restore(ctx context.Context, id interface{}) bool {
	var entity *T
	ok := r.atomically(ctx, "restore", func(tx *gorm.DB) error {
		sch, err := r.schema()
		if err != nil {
			return err
		}
		field := softDeleteField(sch)
		if field == nil {
			return repo.Unsupported(ProviderName, sch.Name+" is not soft deleted")
		}
		if entity, err = r.findByID(tx, id, []repo.QueryOption{repo.OnlyTrashed()}); err != nil {
			return err
		}
		return convertGormError(tx.Unscoped().Model(entity).Update(field.DBName, nil).Error)
	})
	if ok {
		r.dispatch(ctx, repo.EventRestored, id, entity)
	}
	return ok
}

// DeleteWhere deletes every entity matching conds
func (r *Repository[T]) DeleteWhere(ctx context.Context, conds ...repo.Condition) (bool, error) {
	if len(conds) == 0 {
		return false, repo.NewError(repo.ErrorTypeInvalidArgument, "DeleteWhere requires at least one condition")
	}
	if err := repo.ValidateConditions(conds...); err != nil {
		return false, err
	}
	// a condition naming an unknown relation or column is the caller's error
	var buildErr error
	ok := r.atomically(ctx, "delete_where", func(tx *gorm.DB) error {
		db, sch, err := r.query(tx, modeCount, []repo.QueryOption{repo.Where(conds...)})
		if err != nil {
			buildErr = err
			return err
		}
		return convertGormError(db.Delete(reflect.New(sch.ModelType).Interface()).Error)
	})
	if buildErr != nil {
		return false, buildErr
	}
	if ok {
		r.dispatch(ctx, repo.EventDeleted, nil, conds)
	}
	return ok, nil
}

// DeleteWhereIn deletes every entity whose field is one of values
func (r *Repository[T]) DeleteWhereIn(ctx context.Context, field string, values interface{}) (bool, error) {
	return r.DeleteWhere(ctx, repo.In(field, values))
}

// ===============================
// Escape Hatch and Metadata
// ===============================

// Result implements repo.Result
type Result struct {
	lastInsertId int64
	rowsAffected int64
}

// LastInsertId returns the last insert ID
func (r *Result) LastInsertId() (int64, error) {
	return r.lastInsertId, nil
}

// RowsAffected returns the number of affected rows
func (r *Result) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// Raw executes a raw SQL statement
func (r *Repository[T]) Raw(ctx context.Context, query string, args ...interface{}) (repo.Result, error) {
	result := r.session(ctx).Exec(query, args...)
	if result.Error != nil {
		return nil, convertGormError(result.Error)
	}
	return &Result{rowsAffected: result.RowsAffected}, nil
}

// EntityInfo returns metadata about T
func (r *Repository[T]) EntityInfo() (*repo.EntityInfo, error) {
	sch, err := r.schema()
	if err != nil {
		return nil, err
	}

	info := &repo.EntityInfo{
		Name:      sch.Name,
		TableName: sch.Table,
		Fields:    make([]repo.FieldInfo, 0, len(sch.Fields)),
	}
	if f := softDeleteField(sch); f != nil {
		info.SoftDeleteColumn = f.DBName
	}

	for _, field := range sch.Fields {
		if field.DBName == "" {
			continue
		}
		info.Fields = append(info.Fields, repo.FieldInfo{
			Name:            field.Name,
			Column:          field.DBName,
			Type:            field.FieldType,
			DatabaseType:    string(field.DataType),
			IsPrimaryKey:    field.PrimaryKey,
			IsNullable:      !field.NotNull,
			IsAutoIncrement: field.AutoIncrement,
			DefaultValue:    field.DefaultValueInterface,
		})
		if field.PrimaryKey {
			info.PrimaryKey = append(info.PrimaryKey, field.DBName)
		}
	}

	names := make([]string, 0, len(sch.Relationships.Relations))
	for name := range sch.Relationships.Relations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		info.Relations = append(info.Relations, relationInfo(sch.Relationships.Relations[name]))
	}
	return info, nil
}

func relationInfo(rel *schema.Relationship) repo.RelationInfo {
	ri := repo.RelationInfo{Name: rel.Name, TargetEntity: rel.FieldSchema.Name}
	switch rel.Type {
	case schema.HasOne:
		ri.Type = repo.RelationOneToOne
	case schema.HasMany:
		ri.Type = repo.RelationOneToMany
	case schema.BelongsTo:
		ri.Type = repo.RelationManyToOne
	case schema.Many2Many:
		ri.Type = repo.RelationManyToMany
		ri.JoinTable = rel.JoinTable.Table
	}
	if rel.Polymorphic != nil {
		ri.Type = repo.RelationMorph
	}
	for _, ref := range rel.References {
		if ref.PrimaryKey == nil || ref.ForeignKey == nil {
			continue
		}
		if rel.Type == schema.Many2Many && !ref.OwnPrimaryKey {
			continue
		}
		ri.ForeignKey = ref.ForeignKey.DBName
		ri.References = ref.PrimaryKey.DBName
		break
	}
	return ri
}
