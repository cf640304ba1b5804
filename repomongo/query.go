package repomongo

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/lemmego/repo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ScopeFunc transforms the filter of a single call. Pass it with repo.Scope.
type ScopeFunc func(filter bson.D) bson.D

// =====================================
// Query Building
// =====================================

// findSpec is the filter and find options of one call
type findSpec struct {
	filter     bson.D
	sort       bson.D
	projection bson.D
	limit      *int64
	skip       *int64
}

func (f *findSpec) findOptions() *options.FindOptions {
	opts := options.Find()
	if len(f.sort) > 0 {
		opts.SetSort(f.sort)
	}
	if len(f.projection) > 0 {
		opts.SetProjection(f.projection)
	}
	if f.limit != nil {
		opts.SetLimit(*f.limit)
	}
	if f.skip != nil {
		opts.SetSkip(*f.skip)
	}
	return opts
}

// buildQuery turns the options of one call into a filter and find options.
// extra clauses are ANDed with the conditions before scopes run.
func buildQuery(s *schema, opts []repo.QueryOption, extra ...bson.D) (*findSpec, error) {
	q := repo.NewQuery(opts...)
	if err := q.Validate(); err != nil {
		return nil, err
	}

	switch {
	case len(q.Joins) > 0:
		return nil, repo.Unsupported(ProviderName, "joins")
	case len(q.Groups) > 0:
		return nil, repo.Unsupported(ProviderName, "GROUP BY")
	case q.Distinct:
		return nil, repo.Unsupported(ProviderName, "DISTINCT")
	case q.Lock != repo.LockNone && q.Lock != "":
		return nil, repo.Unsupported(ProviderName, "row locks")
	case len(q.Preloads) > 0:
		return nil, repo.Unsupported(ProviderName, "eager loading")
	case len(q.Counts) > 0:
		return nil, repo.Unsupported(ProviderName, "relation counts")
	}

	v := &visitor{schema: s}
	if err := repo.Translate(v, q.Conditions...); err != nil {
		return nil, err
	}
	v.parts = append(v.parts, extra...)
	v.parts = append(v.parts, trashedFilter(s, q.Trashed)...)

	spec := &findSpec{filter: and(v.parts)}

	for _, scope := range q.Scopes {
		switch fn := scope.(type) {
		case ScopeFunc:
			spec.filter = fn(spec.filter)
		case func(bson.D) bson.D:
			spec.filter = fn(spec.filter)
		default:
			return nil, repo.NewError(repo.ErrorTypeInvalidArgument,
				fmt.Sprintf("scope must be a repomongo.ScopeFunc, got %T", scope))
		}
		if spec.filter == nil {
			spec.filter = bson.D{}
		}
	}

	for _, o := range q.Orders {
		dir := 1
		if o.Direction == repo.OrderDesc {
			dir = -1
		}
		spec.sort = append(spec.sort, bson.E{Key: s.key(o.Field), Value: dir})
	}

	spec.projection = projection(s, q.Fields, q.Hidden)

	if q.Limit != nil {
		n := int64(*q.Limit)
		spec.limit = &n
	}
	if q.Offset != nil {
		n := int64(*q.Offset)
		spec.skip = &n
	}
	return spec, nil
}

// projection includes Fields, or excludes Hidden when no field is listed.
// MongoDB cannot mix both in one projection.
func projection(s *schema, fields, hidden []string) bson.D {
	var p bson.D
	if len(fields) > 0 {
		skip := map[string]bool{}
		for _, h := range hidden {
			skip[s.key(h)] = true
		}
		for _, f := range fields {
			if f == "*" {
				return nil
			}
			if k := s.key(f); !skip[k] {
				p = append(p, bson.E{Key: k, Value: 1})
			}
		}
		return p
	}
	for _, h := range hidden {
		p = append(p, bson.E{Key: s.key(h), Value: 0})
	}
	return p
}

func trashedFilter(s *schema, mode repo.TrashedMode) []bson.D {
	if s.softDelete == nil {
		if mode == repo.TrashedOnly {
			// nothing can be trashed
			return []bson.D{{{Key: "_id", Value: bson.D{{Key: "$exists", Value: false}}}}}
		}
		return nil
	}
	switch mode {
	case repo.TrashedNone:
		return []bson.D{{{Key: softDeleteKey, Value: nil}}}
	case repo.TrashedOnly:
		return []bson.D{{{Key: softDeleteKey, Value: bson.D{{Key: "$ne", Value: nil}}}}}
	}
	return nil
}

func and(parts []bson.D) bson.D {
	switch len(parts) {
	case 0:
		return bson.D{}
	case 1:
		return parts[0]
	}
	arr := make(bson.A, 0, len(parts))
	for _, p := range parts {
		arr = append(arr, p)
	}
	return bson.D{{Key: "$and", Value: arr}}
}

// =====================================
// Condition Translation
// =====================================

var compareOps = map[repo.Operator]string{
	repo.OpEqual:              "$eq",
	repo.OpNotEqual:           "$ne",
	repo.OpNotEqualAlt:        "$ne",
	repo.OpGreaterThan:        "$gt",
	repo.OpGreaterThanOrEqual: "$gte",
	repo.OpLessThan:           "$lt",
	repo.OpLessThanOrEqual:    "$lte",
}

// visitor implements repo.Visitor by collecting one filter document per
// condition
type visitor struct {
	schema *schema
	parts  []bson.D
}

func (v *visitor) add(d bson.D) {
	v.parts = append(v.parts, d)
}

// value converts hex strings compared against an ObjectID _id
func (v *visitor) value(key string, value interface{}) interface{} {
	if key != "_id" {
		return value
	}
	if s, ok := value.(string); ok {
		if oid, err := primitive.ObjectIDFromHex(s); err == nil {
			return oid
		}
	}
	return value
}

func (v *visitor) VisitCompare(c repo.CompareCondition) error {
	key := v.schema.key(c.Field)
	switch c.Op {
	case repo.OpIsNull:
		v.add(bson.D{{Key: key, Value: nil}})
		return nil
	case repo.OpIsNotNull:
		v.add(bson.D{{Key: key, Value: bson.D{{Key: "$ne", Value: nil}}}})
		return nil
	case repo.OpLike, repo.OpNotLike, repo.OpILike, repo.OpNotILike:
		pattern, ok := c.Value.(string)
		if !ok {
			return repo.NewError(repo.ErrorTypeInvalidArgument,
				fmt.Sprintf("%s on field %q expects a string pattern, got %T", c.Op, c.Field, c.Value))
		}
		re := primitive.Regex{Pattern: likePattern(pattern), Options: "s"}
		if c.Op == repo.OpILike || c.Op == repo.OpNotILike {
			re.Options = "is"
		}
		if c.Op == repo.OpNotLike || c.Op == repo.OpNotILike {
			v.add(bson.D{{Key: key, Value: bson.D{{Key: "$not", Value: re}}}})
		} else {
			v.add(bson.D{{Key: key, Value: re}})
		}
		return nil
	case repo.OpEqual:
		v.add(bson.D{{Key: key, Value: v.value(key, c.Value)}})
		return nil
	}
	op, ok := compareOps[c.Op]
	if !ok {
		return repo.Unsupported(ProviderName, fmt.Sprintf("operator %q", c.Op))
	}
	v.add(bson.D{{Key: key, Value: bson.D{{Key: op, Value: v.value(key, c.Value)}}}})
	return nil
}

// likePattern translates a SQL LIKE pattern into an anchored regular expression
func likePattern(s string) string {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range s {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return b.String()
}

func (v *visitor) VisitIn(c repo.InCondition) error {
	key := v.schema.key(c.Field)
	list := c.List()
	values := make(bson.A, len(list))
	for i, item := range list {
		values[i] = v.value(key, item)
	}
	op := "$in"
	if c.Not {
		op = "$nin"
	}
	v.add(bson.D{{Key: key, Value: bson.D{{Key: op, Value: values}}}})
	return nil
}

func (v *visitor) VisitDate(c repo.DateCondition) error {
	op, ok := compareOps[c.Op]
	if !ok {
		return repo.Unsupported(ProviderName, fmt.Sprintf("operator %q on date parts", c.Op))
	}
	path := "$" + v.schema.key(c.Field)

	var expr bson.D
	switch c.Part {
	case repo.DatePartDate:
		expr = bson.D{{Key: "$dateToString", Value: bson.D{
			{Key: "format", Value: "%Y-%m-%d"},
			{Key: "date", Value: path},
		}}}
	case repo.DatePartDay:
		expr = bson.D{{Key: "$dayOfMonth", Value: path}}
	case repo.DatePartMonth:
		expr = bson.D{{Key: "$month", Value: path}}
	case repo.DatePartYear:
		expr = bson.D{{Key: "$year", Value: path}}
	}

	value := repo.DatePartValue(c.Part, c.Value)
	v.add(bson.D{{Key: "$expr", Value: bson.D{{Key: op, Value: bson.A{expr, value}}}}})
	return nil
}

func (v *visitor) VisitExists(c repo.ExistsCondition) error {
	return repo.Unsupported(ProviderName, "EXISTS subqueries")
}

func (v *visitor) VisitHas(c repo.HasCondition) error {
	return repo.Unsupported(ProviderName, "relation conditions")
}

func (v *visitor) VisitMorph(c repo.MorphCondition) error {
	return repo.Unsupported(ProviderName, "polymorphic relation conditions")
}

func (v *visitor) VisitBetween(c repo.BetweenCondition) error {
	key := v.schema.key(c.Field)
	if c.Not {
		v.add(bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: key, Value: bson.D{{Key: "$lt", Value: c.From}}}},
			bson.D{{Key: key, Value: bson.D{{Key: "$gt", Value: c.To}}}},
		}}})
		return nil
	}
	v.add(bson.D{{Key: key, Value: bson.D{
		{Key: "$gte", Value: c.From},
		{Key: "$lte", Value: c.To},
	}}})
	return nil
}

func (v *visitor) VisitBetweenColumns(c repo.BetweenColumnsCondition) error {
	field := "$" + v.schema.key(c.Field)
	lower := "$" + v.schema.key(c.Lower)
	upper := "$" + v.schema.key(c.Upper)

	logic, low, high := "$and", "$gte", "$lte"
	if c.Not {
		logic, low, high = "$or", "$lt", "$gt"
	}
	v.add(bson.D{{Key: "$expr", Value: bson.D{{Key: logic, Value: bson.A{
		bson.D{{Key: low, Value: bson.A{field, lower}}},
		bson.D{{Key: high, Value: bson.A{field, upper}}},
	}}}}})
	return nil
}

func (v *visitor) VisitColumn(c repo.ColumnCondition) error {
	op, ok := compareOps[c.Op]
	if !ok {
		return repo.Unsupported(ProviderName, fmt.Sprintf("column operator %q", c.Op))
	}
	v.add(bson.D{{Key: "$expr", Value: bson.D{{Key: op, Value: bson.A{
		"$" + v.schema.key(c.First),
		"$" + v.schema.key(c.Second),
	}}}}})
	return nil
}

// VisitRaw reads the fragment as a MongoDB extended JSON filter document
func (v *visitor) VisitRaw(c repo.RawCondition) error {
	if len(c.Args) > 0 {
		return repo.Unsupported(ProviderName, "bind arguments in raw filters")
	}
	var doc bson.D
	if err := bson.UnmarshalExtJSON([]byte(c.SQL), false, &doc); err != nil {
		return repo.NewErrorWithCause(repo.ErrorTypeInvalidArgument, "invalid MongoDB filter", err)
	}
	v.add(doc)
	return nil
}
