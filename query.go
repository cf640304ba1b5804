package repo

import (
	"fmt"
	"strings"
)

// =====================================
// Query Building
// =====================================

// QueryOption configures a single repository call
type QueryOption interface {
	Apply(query *Query)
}

// Query collects the options of one repository call. A Query is built fresh
// for every call and never outlives it.
type Query struct {
	Conditions  []Condition
	Orders      []Order
	Limit       *int
	Offset      *int
	Fields      []string
	Hidden      []string
	Joins       []JoinClause
	Groups      []string
	Distinct    bool
	Lock        LockType
	Preloads    []Preload
	Counts      []string
	Trashed     TrashedMode
	Scopes      []interface{}
	ParseErrors []error
}

// Preload names a relation to eager load, with optional constraints on the
// loaded rows.
type Preload struct {
	Relation   string
	Constraint *SubQuery
}

// NewQuery applies opts to an empty query
func NewQuery(opts ...QueryOption) *Query {
	q := &Query{Lock: LockNone}
	for _, opt := range opts {
		if opt != nil {
			opt.Apply(q)
		}
	}
	return q
}

// Validate reports the first usage error carried by the query
func (q *Query) Validate() error {
	if len(q.ParseErrors) > 0 {
		return q.ParseErrors[0]
	}
	if err := ValidateConditions(q.Conditions...); err != nil {
		return err
	}
	for _, f := range q.Fields {
		if f != "*" {
			if err := validateIdentifier("column", f); err != nil {
				return err
			}
		}
	}
	for _, f := range q.Hidden {
		if err := validateIdentifier("column", f); err != nil {
			return err
		}
	}
	for _, o := range q.Orders {
		if err := validateIdentifier("order field", o.Field); err != nil {
			return err
		}
		if o.Direction != OrderAsc && o.Direction != OrderDesc {
			return invalidf("invalid order direction %q", o.Direction)
		}
	}
	for _, g := range q.Groups {
		if err := validateIdentifier("group field", g); err != nil {
			return err
		}
	}
	for _, p := range q.Preloads {
		if p.Constraint != nil {
			if err := p.Constraint.Validate(); err != nil {
				return err
			}
		}
	}
	if q.Limit != nil && *q.Limit < 0 {
		return invalidf("limit must not be negative")
	}
	if q.Offset != nil && *q.Offset < 0 {
		return invalidf("offset must not be negative")
	}
	return nil
}

// HasScopes reports whether the call carries ad-hoc scopes.
func (q *Query) HasScopes() bool {
	return len(q.Scopes) > 0
}

// String returns a human readable rendering of the query
func (q *Query) String() string {
	if q == nil {
		return ""
	}
	var parts []string
	for _, c := range q.Conditions {
		parts = append(parts, c.String())
	}
	s := "<Query"
	if len(parts) > 0 {
		s += " where " + strings.Join(parts, " AND ")
	}
	if q.Limit != nil {
		s += fmt.Sprintf(" limit %d", *q.Limit)
	}
	if q.Trashed != TrashedNone {
		s += " " + q.Trashed.String()
	}
	return s + ">"
}

// =====================================
// Query Option Implementations
// =====================================

// OptionFunc adapts a function to QueryOption
type OptionFunc func(query *Query)

func (f OptionFunc) Apply(query *Query) { f(query) }

// ConditionOption implements QueryOption for conditions
type ConditionOption struct {
	Conditions []Condition
}

func (o ConditionOption) Apply(query *Query) {
	query.Conditions = append(query.Conditions, o.Conditions...)
}

// OrderOption implements QueryOption for ordering
type OrderOption struct {
	Order Order
}

func (o OrderOption) Apply(query *Query) {
	query.Orders = append(query.Orders, o.Order)
}

// LimitOption implements QueryOption for limiting results
type LimitOption struct {
	Count int
}

func (o LimitOption) Apply(query *Query) {
	n := o.Count
	query.Limit = &n
}

// OffsetOption implements QueryOption for result offset
type OffsetOption struct {
	Count int
}

func (o OffsetOption) Apply(query *Query) {
	n := o.Count
	query.Offset = &n
}

// FieldsOption implements QueryOption for field selection
type FieldsOption struct {
	Fields []string
}

func (o FieldsOption) Apply(query *Query) {
	query.Fields = append(query.Fields, o.Fields...)
}

// HiddenOption implements QueryOption for field exclusion
type HiddenOption struct {
	Fields []string
}

func (o HiddenOption) Apply(query *Query) {
	query.Hidden = append(query.Hidden, o.Fields...)
}

// JoinOption implements QueryOption for joins
type JoinOption struct {
	Join JoinClause
}

func (o JoinOption) Apply(query *Query) {
	query.Joins = append(query.Joins, o.Join)
}

// GroupByOption implements QueryOption for grouping
type GroupByOption struct {
	Fields []string
}

func (o GroupByOption) Apply(query *Query) {
	query.Groups = append(query.Groups, o.Fields...)
}

// DistinctOption implements QueryOption for distinct results
type DistinctOption struct{}

func (o DistinctOption) Apply(query *Query) {
	query.Distinct = true
}

// LockOption implements QueryOption for row locking
type LockOption struct {
	Type LockType
}

func (o LockOption) Apply(query *Query) {
	query.Lock = o.Type
}

// PreloadOption implements QueryOption for eager loading
type PreloadOption struct {
	Preloads []Preload
}

func (o PreloadOption) Apply(query *Query) {
	query.Preloads = append(query.Preloads, o.Preloads...)
}

// CountOption implements QueryOption for relation counts
type CountOption struct {
	Relations []string
}

func (o CountOption) Apply(query *Query) {
	query.Counts = append(query.Counts, o.Relations...)
}

// TrashedOption implements QueryOption for soft delete visibility
type TrashedOption struct {
	Mode TrashedMode
}

func (o TrashedOption) Apply(query *Query) {
	query.Trashed = o.Mode
}

// ScopeOption implements QueryOption for ad-hoc scopes
type ScopeOption struct {
	Fn interface{}
}

func (o ScopeOption) Apply(query *Query) {
	query.Scopes = append(query.Scopes, o.Fn)
}

// =====================================
// Query Builder Functions
// =====================================

// Where adds conditions to the call
func Where(conds ...Condition) QueryOption {
	return ConditionOption{Conditions: conds}
}

// WhereFilters parses loose filters and adds the resulting conditions. A
// parse error is reported when the call validates its query.
func WhereFilters(filters ...Filter) QueryOption {
	conds, err := ParseFilters(filters...)
	if err != nil {
		return OptionFunc(func(q *Query) { q.ParseErrors = append(q.ParseErrors, err) })
	}
	return ConditionOption{Conditions: conds}
}

// WhereField adds an equality condition
func WhereField(field string, value interface{}) QueryOption {
	return Where(Eq(field, value))
}

// OrderBy creates an ordering option
func OrderBy(field string, direction OrderDirection) QueryOption {
	return OrderOption{Order: Order{Field: field, Direction: direction}}
}

// Latest orders by field descending
func Latest(field string) QueryOption {
	return OrderBy(field, OrderDesc)
}

// Limit creates a limit option
func Limit(count int) QueryOption {
	return LimitOption{Count: count}
}

// Offset creates an offset option
func Offset(count int) QueryOption {
	return OffsetOption{Count: count}
}

// Columns selects the listed columns only
func Columns(fields ...string) QueryOption {
	return FieldsOption{Fields: fields}
}

// Visible is an alias for Columns
func Visible(fields ...string) QueryOption {
	return FieldsOption{Fields: fields}
}

// Hidden leaves the listed columns out of the result
func Hidden(fields ...string) QueryOption {
	return HiddenOption{Fields: fields}
}

// Join creates a join option
func Join(joinType JoinType, table string, condition string, alias ...string) QueryOption {
	join := JoinClause{
		Type:      joinType,
		Table:     table,
		Condition: condition,
	}
	if len(alias) > 0 {
		join.Alias = alias[0]
	}
	return JoinOption{Join: join}
}

// GroupBy creates a group by option
func GroupBy(fields ...string) QueryOption {
	return GroupByOption{Fields: fields}
}

// Distinct creates a distinct option
func Distinct() QueryOption {
	return DistinctOption{}
}

// Lock creates a lock option
func Lock(lockType LockType) QueryOption {
	return LockOption{Type: lockType}
}

// With eager loads the named relations
func With(relations ...string) QueryOption {
	preloads := make([]Preload, 0, len(relations))
	for _, r := range relations {
		preloads = append(preloads, Preload{Relation: r})
	}
	return PreloadOption{Preloads: preloads}
}

// WithConstraint eager loads relation, restricted by fn
func WithConstraint(relation string, fn Constraint) QueryOption {
	return PreloadOption{Preloads: []Preload{{Relation: relation, Constraint: constraintQuery(fn)}}}
}

// WithCount loads the number of related rows for each relation
func WithCount(relations ...string) QueryOption {
	return CountOption{Relations: relations}
}

// Trashed selects soft delete visibility
func Trashed(mode TrashedMode) QueryOption {
	return TrashedOption{Mode: mode}
}

// WithTrashed includes soft-deleted rows
func WithTrashed() QueryOption {
	return TrashedOption{Mode: TrashedWith}
}

// OnlyTrashed returns soft-deleted rows only
func OnlyTrashed() QueryOption {
	return TrashedOption{Mode: TrashedOnly}
}

// Scope applies fn to the native builder of this call only. Providers accept
// their own builder transformer type and reject others.
func Scope(fn interface{}) QueryOption {
	return ScopeOption{Fn: fn}
}
