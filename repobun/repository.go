package repobun

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/lemmego/repo"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
	"go.uber.org/zap"
)

// =====================================
// Repository Implementation
// =====================================

// Repository implements repo.RelationRepository using Bun
type Repository[T any] struct {
	db      *bun.DB
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

// DB returns the underlying Bun handle.
func (r *Repository[T]) DB() *bun.DB {
	return r.db
}

func (r *Repository[T]) table() *schema.Table {
	return r.db.Table(reflect.TypeOf((*T)(nil)).Elem())
}

func (r *Repository[T]) query(db bun.IDB, mode buildMode, model interface{}, opts []repo.QueryOption) (*bun.SelectQuery, error) {
	return buildQuery(db, r.table(), r.dialect, mode, model, opts...)
}

func primaryColumn(table *schema.Table) (string, error) {
	if len(table.PKs) != 1 {
		return "", repo.NewError(repo.ErrorTypeInvalidArgument,
			fmt.Sprintf("%s has no single primary key", table.TypeName))
	}
	return table.Alias + "." + table.PKs[0].Name, nil
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
	out := []*T{}
	q, err := r.query(r.db, modeSelect, &out, opts)
	if err != nil {
		return nil, err
	}
	if err := q.Scan(ctx); err != nil {
		return nil, convertBunError(err)
	}
	return out, nil
}

// First returns the first entity matching the options
func (r *Repository[T]) First(ctx context.Context, opts ...repo.QueryOption) (*T, error) {
	return r.first(ctx, r.db, opts)
}

func (r *Repository[T]) first(ctx context.Context, db bun.IDB, opts []repo.QueryOption) (*T, error) {
	entity := new(T)
	q, err := r.query(db, modeSelect, entity, opts)
	if err != nil {
		return nil, err
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, convertBunError(err)
	}
	return entity, nil
}

// Find looks an entity up by primary key
func (r *Repository[T]) Find(ctx context.Context, id interface{}, opts ...repo.QueryOption) (*T, bool) {
	entity, err := r.findByID(ctx, r.db, id, opts)
	if err != nil {
		repo.LogLookupFailure(r.logger, "find", err)
		return nil, false
	}
	return entity, true
}

func (r *Repository[T]) findByID(ctx context.Context, db bun.IDB, id interface{}, opts []repo.QueryOption) (*T, error) {
	pk, err := primaryColumn(r.table())
	if err != nil {
		return nil, err
	}
	byID := repo.OptionFunc(func(q *repo.Query) {
		q.Conditions = append(q.Conditions, repo.Eq(pk, id))
	})
	return r.first(ctx, db, withOptions(opts, byID))
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
	q, err := r.query(r.db, modeCount, (*T)(nil), opts)
	if err != nil {
		return 0, err
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, convertBunError(err)
	}
	return int64(count), nil
}

// Exists checks if any entity matches the given options
func (r *Repository[T]) Exists(ctx context.Context, opts ...repo.QueryOption) (bool, error) {
	q, err := r.query(r.db, modeCount, (*T)(nil), opts)
	if err != nil {
		return false, err
	}
	exists, err := q.Exists(ctx)
	if err != nil {
		return false, convertBunError(err)
	}
	return exists, nil
}

// Pluck returns column for every matching entity
func (r *Repository[T]) Pluck(ctx context.Context, column string, opts ...repo.QueryOption) ([]interface{}, error) {
	if !repo.ValidIdentifier(column) {
		return nil, repo.NewError(repo.ErrorTypeInvalidArgument, fmt.Sprintf("invalid column %q", column))
	}
	q, err := r.query(r.db, modePluck, (*T)(nil), opts)
	if err != nil {
		return nil, err
	}
	rows, err := q.ColumnExpr("?", bun.Ident(column)).Rows(ctx)
	if err != nil {
		return nil, convertBunError(err)
	}
	defer rows.Close()

	values := []interface{}{}
	for rows.Next() {
		var v interface{}
		if err := rows.Scan(&v); err != nil {
			return nil, convertBunError(err)
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, convertBunError(err)
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

// sortedColumns returns the keys of values in a stable order.
func sortedColumns(values map[string]interface{}) []string {
	cols := make([]string, 0, len(values))
	for col := range values {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// matching narrows a query to the rows whose columns equal attrs.
func matching(table *schema.Table, attrs map[string]interface{}) repo.QueryOption {
	conds := make([]repo.Condition, 0, len(attrs))
	for _, col := range sortedColumns(attrs) {
		conds = append(conds, repo.Eq(table.Alias+"."+col, attrs[col]))
	}
	return repo.Where(conds...)
}

// assign copies values into the matching fields of entity.
func assign(table *schema.Table, entity interface{}, values map[string]interface{}) error {
	strct := reflect.ValueOf(entity).Elem()
	for col, val := range values {
		field, ok := table.FieldMap[col]
		if !ok {
			return repo.NewError(repo.ErrorTypeInvalidArgument,
				fmt.Sprintf("%s has no column %q", table.TypeName, col))
		}
		fv := field.Value(strct)
		switch src := reflect.ValueOf(val); {
		case val == nil:
			fv.Set(reflect.Zero(fv.Type()))
		case src.Type().AssignableTo(fv.Type()):
			fv.Set(src)
		case src.Type().ConvertibleTo(fv.Type()) && src.Kind() != reflect.String && fv.Kind() != reflect.String:
			fv.Set(src.Convert(fv.Type()))
		default:
			if err := field.ScanValue(strct, val); err != nil {
				return repo.NewErrorWithCause(repo.ErrorTypeInvalidArgument,
					fmt.Sprintf("cannot assign %T to column %q", val, col), err)
			}
		}
	}
	return nil
}

func (r *Repository[T]) take(ctx context.Context, db bun.IDB, attrs map[string]interface{}) (*T, error) {
	return r.first(ctx, db, []repo.QueryOption{matching(r.table(), attrs)})
}

// FirstOrNew returns the first entity matching attrs or an unsaved one carrying them
func (r *Repository[T]) FirstOrNew(ctx context.Context, attrs map[string]interface{}) (*T, error) {
	if err := validateAttributes(attrs); err != nil {
		return nil, err
	}
	entity, err := r.take(ctx, r.db, attrs)
	if err == nil {
		return entity, nil
	}
	if !repo.IsNotFound(err) {
		return nil, err
	}
	entity = new(T)
	if err := assign(r.table(), entity, attrs); err != nil {
		return nil, err
	}
	return entity, nil
}

// FirstOrCreate returns the first entity matching attrs, creating it when missing
func (r *Repository[T]) FirstOrCreate(ctx context.Context, attrs map[string]interface{}) (*T, error) {
	return r.upsert(ctx, attrs, nil, false)
}

// UpdateOrCreate updates the first entity matching attrs with values, or
// creates one from both
func (r *Repository[T]) UpdateOrCreate(ctx context.Context, attrs, values map[string]interface{}) (*T, error) {
	return r.upsert(ctx, attrs, values, true)
}

func (r *Repository[T]) upsert(ctx context.Context, attrs, values map[string]interface{}, update bool) (*T, error) {
	if err := validateAttributes(attrs); err != nil {
		return nil, err
	}
	table := r.table()
	var entity *T
	var action repo.EventAction
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		entity, err = r.take(ctx, &tx, attrs)
		switch {
		case err == nil:
			if !update || len(values) == 0 {
				return nil
			}
			action = repo.EventUpdated
			return r.update(ctx, &tx, entity, values)
		case repo.IsNotFound(err):
			action = repo.EventCreated
			entity = new(T)
			if err := assign(table, entity, attrs); err != nil {
				return err
			}
			if err := assign(table, entity, values); err != nil {
				return err
			}
			_, err := tx.NewInsert().Model(entity).Exec(ctx)
			return convertBunError(err)
		default:
			return err
		}
	})
	if err != nil {
		return nil, convertBunError(err)
	}
	if update && action == "" {
		action = repo.EventUpdated
	}
	if action != "" {
		r.dispatch(ctx, action, nil, entity)
	}
	return entity, nil
}

// ===============================
// Mutations
// ===============================

func (r *Repository[T]) begin(ctx context.Context) (bun.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	return tx, convertBunError(err)
}

func (r *Repository[T]) atomically(ctx context.Context, op string, fn func(tx bun.IDB) error) bool {
	return repo.Atomically(ctx, r.logger, op, r.begin, func(tx bun.Tx) error {
		return fn(&tx)
	})
}

func (r *Repository[T]) dispatch(ctx context.Context, action repo.EventAction, id, value interface{}) {
	r.opts.Dispatch(ctx, repo.Event{Action: action, Entity: r.entity, ID: id, Value: value})
}

// update sets values on entity and reloads it.
func (r *Repository[T]) update(ctx context.Context, db bun.IDB, entity *T, values map[string]interface{}) error {
	q := db.NewUpdate().Model(entity).WherePK()
	for _, col := range sortedColumns(values) {
		if !repo.ValidIdentifier(col) {
			return repo.NewError(repo.ErrorTypeInvalidArgument, fmt.Sprintf("invalid column %q", col))
		}
		q = q.Set("? = ?", bun.Ident(col), values[col])
	}
	if _, err := q.Exec(ctx); err != nil {
		return convertBunError(err)
	}
	return convertBunError(db.NewSelect().Model(entity).WherePK().Scan(ctx))
}

// Create inserts entity
func (r *Repository[T]) Create(ctx context.Context, entity *T) bool {
	ok := r.atomically(ctx, "create", func(tx bun.IDB) error {
		_, err := tx.NewInsert().Model(entity).Exec(ctx)
		return convertBunError(err)
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
	ok := r.atomically(ctx, "insert", func(tx bun.IDB) error {
		_, err := tx.NewInsert().Model(&entities).Exec(ctx)
		return convertBunError(err)
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
	ok := r.atomically(ctx, "update", func(tx bun.IDB) error {
		var err error
		if entity, err = r.findByID(ctx, tx, id, nil); err != nil {
			return err
		}
		if len(values) == 0 {
			return nil
		}
		return r.update(ctx, tx, entity, values)
	})
	if ok {
		r.dispatch(ctx, repo.EventUpdated, id, entity)
	}
	return ok
}

// Delete deletes the entity with the given id, softly when T supports it
func (r *Repository[T]) Delete(ctx context.Context, id interface{}) bool {
	ok := r.atomically(ctx, "delete", func(tx bun.IDB) error {
		entity, err := r.findByID(ctx, tx, id, nil)
		if err != nil {
			return err
		}
		_, err = tx.NewDelete().Model(entity).WherePK().Exec(ctx)
		return convertBunError(err)
	})
	if ok {
		r.dispatch(ctx, repo.EventDeleted, id, nil)
	}
	return ok
}

// ForceDelete removes the entity with the given id permanently
func (r *Repository[T]) ForceDelete(ctx context.Context, id interface{}) bool {
	ok := r.atomically(ctx, "force_delete", func(tx bun.IDB) error {
		entity, err := r.findByID(ctx, tx, id, []repo.QueryOption{repo.WithTrashed()})
		if err != nil {
			return err
		}
		_, err = tx.NewDelete().Model(entity).WherePK().ForceDelete().Exec(ctx)
		return convertBunError(err)
	})
	if ok {
		r.dispatch(ctx, repo.EventForceDeleted, id, nil)
	}
	return ok
}

// Restore clears the soft delete marker of a trashed entity
func (r *Repository[T]) Restore(ctx context.Context, id interface{}) bool {
	var entity *T
	ok := r.atomically(ctx, "restore", func(tx bun.IDB) error {
		table := r.table()
		field := table.SoftDeleteField
		if field == nil {
			return repo.Unsupported(ProviderName, table.TypeName+" is not soft deleted")
		}
		var err error
		if entity, err = r.findByID(ctx, tx, id, []repo.QueryOption{repo.OnlyTrashed()}); err != nil {
			return err
		}
		_, err = tx.NewUpdate().Model(entity).WherePK().WhereAllWithDeleted().
			Set("? = NULL", bun.Ident(field.Name)).
			Exec(ctx)
		if err != nil {
			return convertBunError(err)
		}
		fv := field.Value(reflect.ValueOf(entity).Elem())
		fv.Set(reflect.Zero(fv.Type()))
		return nil
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
	ok := r.atomically(ctx, "delete_where", func(tx bun.IDB) error {
		matched := []*T{}
		q, err := r.query(tx, modeCount, &matched, []repo.QueryOption{repo.Where(conds...)})
		if err != nil {
			buildErr = err
			return err
		}
		if err := q.Scan(ctx); err != nil {
			return convertBunError(err)
		}
		if len(matched) == 0 {
			return nil
		}
		_, err = tx.NewDelete().Model(&matched).WherePK().Exec(ctx)
		return convertBunError(err)
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

// Raw executes a raw SQL statement
func (r *Repository[T]) Raw(ctx context.Context, query string, args ...interface{}) (repo.Result, error) {
	res, err := r.db.NewRaw(query, args...).Exec(ctx)
	if err != nil {
		return nil, convertBunError(err)
	}
	return res, nil
}

// EntityInfo returns metadata about T
func (r *Repository[T]) EntityInfo() (*repo.EntityInfo, error) {
	table := r.table()

	info := &repo.EntityInfo{
		Name:      table.TypeName,
		TableName: table.Name,
		Fields:    make([]repo.FieldInfo, 0, len(table.Fields)),
	}
	if table.SoftDeleteField != nil {
		info.SoftDeleteColumn = table.SoftDeleteField.Name
	}

	for _, field := range table.Fields {
		fi := repo.FieldInfo{
			Name:            field.GoName,
			Column:          field.Name,
			Type:            field.IndirectType,
			DatabaseType:    field.UserSQLType,
			IsPrimaryKey:    field.IsPK,
			IsNullable:      !field.NotNull,
			IsAutoIncrement: field.AutoIncrement,
		}
		if fi.DatabaseType == "" {
			fi.DatabaseType = field.DiscoveredSQLType
		}
		if field.SQLDefault != "" {
			fi.DefaultValue = field.SQLDefault
		}
		info.Fields = append(info.Fields, fi)
		if field.IsPK {
			info.PrimaryKey = append(info.PrimaryKey, field.Name)
		}
	}

	names := make([]string, 0, len(table.Relations))
	for name := range table.Relations {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		info.Relations = append(info.Relations, relationInfo(table.Relations[name]))
	}
	return info, nil
}

func relationInfo(rel *schema.Relation) repo.RelationInfo {
	ri := repo.RelationInfo{Name: rel.Field.GoName, TargetEntity: rel.JoinTable.TypeName}
	switch rel.Type {
	case schema.HasOneRelation:
		ri.Type = repo.RelationOneToOne
	case schema.HasManyRelation:
		ri.Type = repo.RelationOneToMany
	case schema.BelongsToRelation:
		ri.Type = repo.RelationManyToOne
	case schema.ManyToManyRelation:
		ri.Type = repo.RelationManyToMany
		ri.JoinTable = rel.M2MTable.Name
	}
	if rel.PolymorphicField != nil {
		ri.Type = repo.RelationMorph
	}

	switch {
	case rel.Type == schema.ManyToManyRelation && len(rel.M2MBasePKs) > 0:
		ri.ForeignKey = rel.M2MBasePKs[0].Name
		ri.References = rel.BasePKs[0].Name
	case rel.Type == schema.BelongsToRelation && len(rel.BasePKs) > 0:
		ri.ForeignKey = rel.BasePKs[0].Name
		ri.References = rel.JoinPKs[0].Name
	case len(rel.JoinPKs) > 0:
		ri.ForeignKey = rel.JoinPKs[0].Name
		ri.References = rel.BasePKs[0].Name
	}
	return ri
}
