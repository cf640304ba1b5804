package repo

import "context"

// =====================================
// Criteria Builder
// =====================================

// Criteria provides a fluent interface for assembling the options of a
// repository call. A Criteria can be reused; every execution hands the
// collected options to the repository, which builds a fresh query from them.
type Criteria[T any] struct {
	opts []QueryOption
}

// NewCriteria creates an empty criteria for entity type T.
// Example: c := NewCriteria[User]()
func NewCriteria[T any]() *Criteria[T] {
	return &Criteria[T]{opts: make([]QueryOption, 0)}
}

// Where adds typed conditions.
// Returns the same Criteria instance for method chaining.
// Example: c.Where(Compare("age", OpGreaterThan, 18), Eq("status", "active"))
func (c *Criteria[T]) Where(conds ...Condition) *Criteria[T] {
	c.opts = append(c.opts, Where(conds...))
	return c
}

// Filter adds loose filter specifications.
// Returns the same Criteria instance for method chaining.
// Example: c.Filter(F("age", "BETWEEN", []int{18, 30}))
func (c *Criteria[T]) Filter(filters ...Filter) *Criteria[T] {
	c.opts = append(c.opts, WhereFilters(filters...))
	return c
}

// OrderBy adds an ORDER BY clause.
// Example: c.OrderBy("name", OrderAsc).OrderBy("created_at", OrderDesc)
func (c *Criteria[T]) OrderBy(field string, direction OrderDirection) *Criteria[T] {
	c.opts = append(c.opts, OrderBy(field, direction))
	return c
}

// Limit sets the maximum number of results to return.
func (c *Criteria[T]) Limit(count int) *Criteria[T] {
	c.opts = append(c.opts, Limit(count))
	return c
}

// Offset sets the number of results to skip.
func (c *Criteria[T]) Offset(count int) *Criteria[T] {
	c.opts = append(c.opts, Offset(count))
	return c
}

// Select restricts the returned columns.
// Example: c.Select("id", "name", "email")
func (c *Criteria[T]) Select(fields ...string) *Criteria[T] {
	c.opts = append(c.opts, Columns(fields...))
	return c
}

// Hide leaves columns out of the result.
func (c *Criteria[T]) Hide(fields ...string) *Criteria[T] {
	c.opts = append(c.opts, Hidden(fields...))
	return c
}

// Join adds a JOIN clause.
// Example: c.Join(JoinLeft, "orders", "users.id = orders.user_id")
func (c *Criteria[T]) Join(joinType JoinType, table string, condition string) *Criteria[T] {
	c.opts = append(c.opts, Join(joinType, table, condition))
	return c
}

// GroupBy adds a GROUP BY clause.
func (c *Criteria[T]) GroupBy(fields ...string) *Criteria[T] {
	c.opts = append(c.opts, GroupBy(fields...))
	return c
}

// Distinct removes duplicate rows.
func (c *Criteria[T]) Distinct() *Criteria[T] {
	c.opts = append(c.opts, Distinct())
	return c
}

// Lock sets the row locking mode.
func (c *Criteria[T]) Lock(lockType LockType) *Criteria[T] {
	c.opts = append(c.opts, Lock(lockType))
	return c
}

// With eager loads relations.
// Example: c.With("Orders", "Profile")
func (c *Criteria[T]) With(relations ...string) *Criteria[T] {
	c.opts = append(c.opts, With(relations...))
	return c
}

// WithCount loads related row counts.
func (c *Criteria[T]) WithCount(relations ...string) *Criteria[T] {
	c.opts = append(c.opts, WithCount(relations...))
	return c
}

// Trashed selects soft delete visibility.
func (c *Criteria[T]) Trashed(mode TrashedMode) *Criteria[T] {
	c.opts = append(c.opts, Trashed(mode))
	return c
}

// Scope adds a provider native scope.
func (c *Criteria[T]) Scope(fn interface{}) *Criteria[T] {
	c.opts = append(c.opts, Scope(fn))
	return c
}

// Options returns a copy of the collected options.
func (c *Criteria[T]) Options() []QueryOption {
	out := make([]QueryOption, len(c.opts))
	copy(out, c.opts)
	return out
}

// Build applies the collected options to a new Query.
func (c *Criteria[T]) Build() *Query {
	return NewQuery(c.opts...)
}

// Get runs the criteria and returns all matching entities.
func (c *Criteria[T]) Get(ctx context.Context, r Repository[T]) ([]*T, error) {
	return r.All(ctx, c.opts...)
}

// First runs the criteria and returns the first matching entity.
func (c *Criteria[T]) First(ctx context.Context, r Repository[T]) (*T, error) {
	return r.First(ctx, c.opts...)
}

// Count returns the number of matching entities.
func (c *Criteria[T]) Count(ctx context.Context, r Repository[T]) (int64, error) {
	return r.Count(ctx, c.opts...)
}

// Paginate runs the criteria as a paginated lookup.
func (c *Criteria[T]) Paginate(ctx context.Context, r Repository[T], req PageRequest) (*Paginator[T], error) {
	return r.Paginate(ctx, req, c.opts...)
}
