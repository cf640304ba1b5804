package reporedis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/lemmego/repo"
	"go.uber.org/zap"
)

// =====================================
// Cache Namespace
// =====================================

// namespace is the versioned key space of one entity type. Every committed
// write bumps the version, so entries cached before it are never read again
// and age out through the TTL.
type namespace struct {
	store  repo.KeyValueStore
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

func (n *namespace) versionKey() string {
	return n.prefix + ":version"
}

// version returns the current generation; false means the store failed and
// the call must bypass the cache.
func (n *namespace) version(ctx context.Context) (int64, bool) {
	data, err := n.store.Get(ctx, n.versionKey())
	if repo.IsNotFound(err) {
		return 0, true
	}
	if err != nil {
		n.logger.Warn("cache version lookup failed", zap.Error(err))
		return 0, false
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		n.logger.Warn("cache version is not a number", zap.ByteString("value", data))
		return 0, false
	}
	return v, true
}

// key hashes the operation and its arguments into the current generation
func (n *namespace) key(version int64, op, args string) string {
	return fmt.Sprintf("%s:v%d:%s:%016x", n.prefix, version, op, xxhash.Sum64String(op+"\x00"+args))
}

// invalidate starts a new generation
func (n *namespace) invalidate(ctx context.Context) error {
	if _, err := n.store.Incr(ctx, n.versionKey()); err != nil {
		n.logger.Warn("cache invalidation failed", zap.Error(err))
		return err
	}
	return nil
}

// remember returns the cached result of op, or runs load and caches what it
// returns. Store failures never fail the call; they are logged and load runs
// uncached. Errors from load are not cached.
func remember[V any](ctx context.Context, n *namespace, op, args string, load func() (V, error)) (V, error) {
	version, ok := n.version(ctx)
	if !ok {
		return load()
	}
	key := n.key(version, op, args)

	data, err := n.store.Get(ctx, key)
	switch {
	case err == nil:
		var cached V
		decodeErr := json.Unmarshal(data, &cached)
		if decodeErr == nil {
			return cached, nil
		}
		n.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(decodeErr))
	case !repo.IsNotFound(err):
		n.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}

	value, err := load()
	if err != nil {
		return value, err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		n.logger.Warn("result is not cacheable", zap.String("op", op), zap.Error(err))
		return value, nil
	}
	if err := n.store.Set(ctx, key, payload, n.ttl); err != nil {
		n.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

// =====================================
// Cached Repository
// =====================================

var errMissing = errors.New("entity not found")

// CachedRepository caches the reads of another repository in a KeyValueStore.
// Results are stored as JSON, so T must survive a JSON round trip. Calls
// with scopes, row locks or invalid options are passed through uncached,
// as is Pluck, whose values would lose their Go types.
type CachedRepository[T any] struct {
	inner  repo.Repository[T]
	ns     *namespace
	logger *zap.Logger
}

var _ repo.Repository[struct{}] = (*CachedRepository[struct{}])(nil)

// NewCachedRepository wraps inner. Keys live under Config.Cache.Prefix
// followed by the entity name and expire after Config.Cache.TTL.
//
// Example:
//
//	users := repogorm.NewRepository[User](db)
//	cached := reporedis.NewCachedRepository[User](users, redisProvider.Store(),
//	    repo.WithConfig(config))
func NewCachedRepository[T any](inner repo.Repository[T], store repo.KeyValueStore, opts ...repo.Option) *CachedRepository[T] {
	o := repo.NewOptions(repo.Options{Config: repo.DefaultConfig()}, opts...)
	entity := reflect.TypeOf((*T)(nil)).Elem()
	logger := o.EntityLogger(ProviderName, entity)

	prefix := o.Config.Cache.Prefix
	if prefix == "" {
		prefix = repo.DefaultConfig().Cache.Prefix
	}

	return &CachedRepository[T]{
		inner:  inner,
		logger: logger,
		ns: &namespace{
			store:  store,
			prefix: prefix + ":" + strings.ToLower(repo.EntityName(entity)),
			ttl:    o.Config.Cache.TTL,
			logger: logger,
		},
	}
}

// CacheBound puts a read cache in front of the repository of T bound on the
// named connection, so everything resolving it through the registry reads
// through the cache.
//
// Example:
//
//	repo.Bind[User](registry, repo.DefaultConnection, repogorm.NewRepository[User](db))
//	reporedis.CacheBound[User](registry, repo.DefaultConnection, cache.Store(), repo.WithConfig(config))
func CacheBound[T any](registry *repo.Registry, connection string, store repo.KeyValueStore, opts ...repo.Option) error {
	return repo.Decorate(registry, connection, func(inner repo.Repository[T]) repo.Repository[T] {
		if rel, ok := inner.(repo.RelationRepository[T]); ok {
			return NewCachedRelationRepository[T](rel, store, opts...)
		}
		return NewCachedRepository[T](inner, store, opts...)
	})
}

// Unwrap returns the wrapped repository.
func (r *CachedRepository[T]) Unwrap() repo.Repository[T] {
	return r.inner
}

// Flush drops every cached result of the entity type.
func (r *CachedRepository[T]) Flush(ctx context.Context) error {
	return r.ns.invalidate(ctx)
}

// written invalidates after a committed write
func (r *CachedRepository[T]) written(ctx context.Context, ok bool) {
	if ok {
		_ = r.ns.invalidate(ctx)
	}
}

func (r *CachedRepository[T]) All(ctx context.Context, opts ...repo.QueryOption) ([]*T, error) {
	fp, ok := fingerprint(opts)
	if !ok {
		return r.inner.All(ctx, opts...)
	}
	return remember(ctx, r.ns, "all", fp, func() ([]*T, error) {
		return r.inner.All(ctx, opts...)
	})
}

func (r *CachedRepository[T]) First(ctx context.Context, opts ...repo.QueryOption) (*T, error) {
	fp, ok := fingerprint(opts)
	if !ok {
		return r.inner.First(ctx, opts...)
	}
	return remember(ctx, r.ns, "first", fp, func() (*T, error) {
		return r.inner.First(ctx, opts...)
	})
}

// Find only caches hits; a miss is asked again next time.
func (r *CachedRepository[T]) Find(ctx context.Context, id interface{}, opts ...repo.QueryOption) (*T, bool) {
	fp, ok := fingerprint(opts)
	if !ok {
		return r.inner.Find(ctx, id, opts...)
	}
	entity, err := remember(ctx, r.ns, "find", fmt.Sprint(id)+"|"+fp, func() (*T, error) {
		if e, found := r.inner.Find(ctx, id, opts...); found {
			return e, nil
		}
		return nil, errMissing
	})
	return entity, err == nil
}

func (r *CachedRepository[T]) FindByField(ctx context.Context, field string, value interface{}, opts ...repo.QueryOption) ([]*T, error) {
	fp, ok := fingerprint(opts)
	if !ok {
		return r.inner.FindByField(ctx, field, value, opts...)
	}
	return remember(ctx, r.ns, "field", fmt.Sprintf("%s=%v|%s", field, value, fp), func() ([]*T, error) {
		return r.inner.FindByField(ctx, field, value, opts...)
	})
}

func (r *CachedRepository[T]) FindWhere(ctx context.Context, conds []repo.Condition, opts ...repo.QueryOption) ([]*T, error) {
	fp, ok := fingerprint(opts)
	if !ok || repo.ValidateConditions(conds...) != nil {
		return r.inner.FindWhere(ctx, conds, opts...)
	}
	return remember(ctx, r.ns, "where", describeConditions(conds)+"|"+fp, func() ([]*T, error) {
		return r.inner.FindWhere(ctx, conds, opts...)
	})
}

func (r *CachedRepository[T]) FindWhereIn(ctx context.Context, field string, values interface{}, opts ...repo.QueryOption) ([]*T, error) {
	fp, ok := fingerprint(opts)
	if !ok || !repo.IsList(values) {
		return r.inner.FindWhereIn(ctx, field, values, opts...)
	}
	return remember(ctx, r.ns, "in", fmt.Sprintf("%s%v|%s", field, values, fp), func() ([]*T, error) {
		return r.inner.FindWhereIn(ctx, field, values, opts...)
	})
}

func (r *CachedRepository[T]) FindWhereNotIn(ctx context.Context, field string, values interface{}, opts ...repo.QueryOption) ([]*T, error) {
	fp, ok := fingerprint(opts)
	if !ok || !repo.IsList(values) {
		return r.inner.FindWhereNotIn(ctx, field, values, opts...)
	}
	return remember(ctx, r.ns, "notin", fmt.Sprintf("%s%v|%s", field, values, fp), func() ([]*T, error) {
		return r.inner.FindWhereNotIn(ctx, field, values, opts...)
	})
}

func (r *CachedRepository[T]) FindWhereBetween(ctx context.Context, field string, from, to interface{}, opts ...repo.QueryOption) ([]*T, error) {
	fp, ok := fingerprint(opts)
	if !ok {
		return r.inner.FindWhereBetween(ctx, field, from, to, opts...)
	}
	return remember(ctx, r.ns, "between", fmt.Sprintf("%s[%v,%v]|%s", field, from, to, fp), func() ([]*T, error) {
		return r.inner.FindWhereBetween(ctx, field, from, to, opts...)
	})
}

func (r *CachedRepository[T]) Limit(ctx context.Context, n int, opts ...repo.QueryOption) ([]*T, error) {
	fp, ok := fingerprint(opts)
	if !ok {
		return r.inner.Limit(ctx, n, opts...)
	}
	return remember(ctx, r.ns, "limit", strconv.Itoa(n)+"|"+fp, func() ([]*T, error) {
		return r.inner.Limit(ctx, n, opts...)
	})
}

func (r *CachedRepository[T]) Count(ctx context.Context, opts ...repo.QueryOption) (int64, error) {
	fp, ok := fingerprint(opts)
	if !ok {
		return r.inner.Count(ctx, opts...)
	}
	return remember(ctx, r.ns, "count", fp, func() (int64, error) {
		return r.inner.Count(ctx, opts...)
	})
}

func (r *CachedRepository[T]) Exists(ctx context.Context, opts ...repo.QueryOption) (bool, error) {
	fp, ok := fingerprint(opts)
	if !ok {
		return r.inner.Exists(ctx, opts...)
	}
	return remember(ctx, r.ns, "exists", fp, func() (bool, error) {
		return r.inner.Exists(ctx, opts...)
	})
}

func (r *CachedRepository[T]) Pluck(ctx context.Context, column string, opts ...repo.QueryOption) ([]interface{}, error) {
	return r.inner.Pluck(ctx, column, opts...)
}

func (r *CachedRepository[T]) Paginate(ctx context.Context, req repo.PageRequest, opts ...repo.QueryOption) (*repo.Paginator[T], error) {
	return r.paginate(ctx, repo.MethodPaginate, req, opts, r.inner.Paginate)
}

func (r *CachedRepository[T]) SimplePaginate(ctx context.Context, req repo.PageRequest, opts ...repo.QueryOption) (*repo.Paginator[T], error) {
	return r.paginate(ctx, repo.MethodSimplePaginate, req, opts, r.inner.SimplePaginate)
}

type pageFunc[T any] func(context.Context, repo.PageRequest, ...repo.QueryOption) (*repo.Paginator[T], error)

func (r *CachedRepository[T]) paginate(ctx context.Context, method repo.PaginationMethod, req repo.PageRequest, opts []repo.QueryOption, page pageFunc[T]) (*repo.Paginator[T], error) {
	fp, ok := fingerprint(opts)
	if !ok {
		return page(ctx, req, opts...)
	}
	args := fmt.Sprintf("%d/%d %s?%s %s|%s", req.Page, req.Limit, req.Path, req.Query.Encode(), req.PageName, fp)
	p, err := remember(ctx, r.ns, string(method), args, func() (*repo.Paginator[T], error) {
		return page(ctx, req, opts...)
	})
	if p != nil {
		p.Method = method
	}
	return p, err
}

// FirstOrNew never writes, so it is not cached and does not invalidate.
func (r *CachedRepository[T]) FirstOrNew(ctx context.Context, attrs map[string]interface{}) (*T, error) {
	return r.inner.FirstOrNew(ctx, attrs)
}

func (r *CachedRepository[T]) FirstOrCreate(ctx context.Context, attrs map[string]interface{}) (*T, error) {
	entity, err := r.inner.FirstOrCreate(ctx, attrs)
	r.written(ctx, err == nil)
	return entity, err
}

func (r *CachedRepository[T]) UpdateOrCreate(ctx context.Context, attrs, values map[string]interface{}) (*T, error) {
	entity, err := r.inner.UpdateOrCreate(ctx, attrs, values)
	r.written(ctx, err == nil)
	return entity, err
}

func (r *CachedRepository[T]) Create(ctx context.Context, entity *T) bool {
	ok := r.inner.Create(ctx, entity)
	r.written(ctx, ok)
	return ok
}

func (r *CachedRepository[T]) Insert(ctx context.Context, entities []*T) bool {
	ok := r.inner.Insert(ctx, entities)
	r.written(ctx, ok)
	return ok
}

func (r *CachedRepository[T]) Update(ctx context.Context, id interface{}, values map[string]interface{}) bool {
	ok := r.inner.Update(ctx, id, values)
	r.written(ctx, ok)
	return ok
}

func (r *CachedRepository[T]) Delete(ctx context.Context, id interface{}) bool {
	ok := r.inner.Delete(ctx, id)
	r.written(ctx, ok)
	return ok
}

func (r *CachedRepository[T]) ForceDelete(ctx context.Context, id interface{}) bool {
	ok := r.inner.ForceDelete(ctx, id)
	r.written(ctx, ok)
	return ok
}

func (r *CachedRepository[T]) Restore(ctx context.Context, id interface{}) bool {
	ok := r.inner.Restore(ctx, id)
	r.written(ctx, ok)
	return ok
}

func (r *CachedRepository[T]) DeleteWhere(ctx context.Context, conds ...repo.Condition) (bool, error) {
	ok, err := r.inner.DeleteWhere(ctx, conds...)
	r.written(ctx, ok)
	return ok, err
}

func (r *CachedRepository[T]) DeleteWhereIn(ctx context.Context, field string, values interface{}) (bool, error) {
	ok, err := r.inner.DeleteWhereIn(ctx, field, values)
	r.written(ctx, ok)
	return ok, err
}

// Raw may write anything, so a successful statement always invalidates.
func (r *CachedRepository[T]) Raw(ctx context.Context, query string, args ...interface{}) (repo.Result, error) {
	res, err := r.inner.Raw(ctx, query, args...)
	r.written(ctx, err == nil)
	return res, err
}

func (r *CachedRepository[T]) EntityInfo() (*repo.EntityInfo, error) {
	return r.inner.EntityInfo()
}

// =====================================
// Cached Relation Repository
// =====================================

// CachedRelationRepository adds relation management to CachedRepository.
// Relation changes invalidate the owning entity's cache only; repositories
// caching the related type must be flushed by the caller.
type CachedRelationRepository[T any] struct {
	*CachedRepository[T]
	relations repo.RelationRepository[T]
}

var _ repo.RelationRepository[struct{}] = (*CachedRelationRepository[struct{}])(nil)

// NewCachedRelationRepository wraps inner like NewCachedRepository.
func NewCachedRelationRepository[T any](inner repo.RelationRepository[T], store repo.KeyValueStore, opts ...repo.Option) *CachedRelationRepository[T] {
	return &CachedRelationRepository[T]{
		CachedRepository: NewCachedRepository[T](inner, store, opts...),
		relations:        inner,
	}
}

func (r *CachedRelationRepository[T]) Sync(ctx context.Context, id interface{}, relation string, ids []interface{}, detaching bool) (*repo.SyncResult, bool) {
	res, ok := r.relations.Sync(ctx, id, relation, ids, detaching)
	r.written(ctx, ok)
	return res, ok
}

func (r *CachedRelationRepository[T]) SyncWithoutDetaching(ctx context.Context, id interface{}, relation string, ids []interface{}) (*repo.SyncResult, bool) {
	res, ok := r.relations.SyncWithoutDetaching(ctx, id, relation, ids)
	r.written(ctx, ok)
	return res, ok
}

func (r *CachedRelationRepository[T]) Attach(ctx context.Context, id interface{}, relation string, ids ...interface{}) bool {
	ok := r.relations.Attach(ctx, id, relation, ids...)
	r.written(ctx, ok)
	return ok
}

func (r *CachedRelationRepository[T]) Detach(ctx context.Context, id interface{}, relation string, ids ...interface{}) bool {
	ok := r.relations.Detach(ctx, id, relation, ids...)
	r.written(ctx, ok)
	return ok
}

// =====================================
// Cache Keys
// =====================================

// fingerprint renders the options of one call as key material. It reports
// false for calls that must not be cached.
func fingerprint(opts []repo.QueryOption) (string, bool) {
	q := repo.NewQuery(opts...)
	if q.Validate() != nil || q.HasScopes() {
		return "", false
	}
	if q.Lock != repo.LockNone && q.Lock != "" {
		return "", false
	}

	var b strings.Builder
	b.WriteString(describeConditions(q.Conditions))
	for _, o := range q.Orders {
		fmt.Fprintf(&b, "|order %s %s", o.Field, o.Direction)
	}
	if q.Limit != nil {
		fmt.Fprintf(&b, "|limit %d", *q.Limit)
	}
	if q.Offset != nil {
		fmt.Fprintf(&b, "|offset %d", *q.Offset)
	}
	if len(q.Fields) > 0 {
		fmt.Fprintf(&b, "|select %s", strings.Join(q.Fields, ","))
	}
	if len(q.Hidden) > 0 {
		fmt.Fprintf(&b, "|hide %s", strings.Join(q.Hidden, ","))
	}
	for _, j := range q.Joins {
		fmt.Fprintf(&b, "|%s join %s %s on %s", j.Type, j.Table, j.Alias, j.Condition)
	}
	if len(q.Groups) > 0 {
		fmt.Fprintf(&b, "|group %s", strings.Join(q.Groups, ","))
	}
	if q.Distinct {
		b.WriteString("|distinct")
	}
	for _, p := range q.Preloads {
		fmt.Fprintf(&b, "|with %s", p.Relation)
		if p.Constraint != nil {
			fmt.Fprintf(&b, " (%s)", p.Constraint)
		}
	}
	if len(q.Counts) > 0 {
		fmt.Fprintf(&b, "|count %s", strings.Join(q.Counts, ","))
	}
	fmt.Fprintf(&b, "|%s", q.Trashed)
	return b.String(), true
}

// describeConditions renders conds as key material. Condition.String covers
// bind arguments and nested constraints, so subqueries differing only in
// their arguments get distinct keys.
func describeConditions(conds []repo.Condition) string {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.String()
	}
	return strings.Join(parts, " AND ")
}
