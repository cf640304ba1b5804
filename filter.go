package repo

import (
	"fmt"
	"reflect"
	"strings"
)

// =====================================
// Loose Filter Specifications
// =====================================

// Filter is a loosely typed filter specification, either
//
//	Filter{field, value}
//	Filter{field, keyword, value}
//	Filter{field, keyword, value, extra}
//
// A two element filter whose value is itself a Filter uses the nested filter
// as the keyword form. See ParseFilters for the recognised keywords.
type Filter []interface{}

// F is shorthand for building a Filter.
func F(parts ...interface{}) Filter {
	return Filter(parts)
}

const (
	kindIn                = "IN"
	kindNotIn             = "NOTIN"
	kindDate              = "DATE"
	kindDay               = "DAY"
	kindMonth             = "MONTH"
	kindYear              = "YEAR"
	kindExists            = "EXISTS"
	kindHas               = "HAS"
	kindHasMorph          = "HASMORPH"
	kindDoesntHave        = "DOESNTHAVE"
	kindDoesntHaveMorph   = "DOESNTHAVEMORPH"
	kindBetween           = "BETWEEN"
	kindNotBetween        = "NOTBETWEEN"
	kindBetweenColumns    = "BETWEENCOLUMNS"
	kindNotBetweenColumns = "NOTBETWEENCOLUMNS"
	kindRaw               = "RAW"
)

// ParseFilters converts loose filters into typed conditions.
//
// Keywords are matched case-insensitively after collapsing whitespace. The
// first token picks the condition kind; for DATE, DAY, MONTH and YEAR a
// second token overrides the comparison operator ("DATE >"). Kinds:
//
//	IN, NOTIN                          value is a slice
//	DATE, DAY, MONTH, YEAR             value is a scalar, extra an optional operator
//	EXISTS                             value is a Constraint, the field is ignored
//	HAS, DOESNTHAVE                    field is the relation, value a Constraint or nil, extra an optional minimum count
//	HASMORPH, DOESNTHAVEMORPH          field is the relation, value a Constraint or nil, extra the []string of types
//	BETWEEN, NOTBETWEEN                value is a two element slice
//	BETWEENCOLUMNS, NOTBETWEENCOLUMNS  value is a two element slice of column names
//	RAW                                value is the fragment, extra optional bind arguments
//
// Any other keyword is treated as a comparison operator and must be one of
// the supported operators. A malformed filter fails the whole list and no
// condition is returned.
func ParseFilters(filters ...Filter) ([]Condition, error) {
	conds := make([]Condition, 0, len(filters))
	for i, f := range filters {
		c, err := parseFilter(f)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		conds = append(conds, c)
	}
	return conds, nil
}

func parseFilter(f Filter) (Condition, error) {
	if len(f) < 2 || len(f) > 4 {
		return nil, invalidf("filter must have 2 to 4 elements, got %d", len(f))
	}
	field, ok := f[0].(string)
	if !ok {
		return nil, invalidf("filter field must be a string, got %T", f[0])
	}

	if len(f) == 2 {
		switch v := f[1].(type) {
		case Filter:
			if len(v) < 2 || len(v) > 4 {
				return nil, invalidf("nested filter for %q must have 2 to 4 elements, got %d", field, len(v))
			}
			return parseFilter(v)
		case Constraint, func(*SubQuery):
			return nil, invalidf("field %q: a constraint needs a keyword", field)
		default:
			if !IsScalar(v) {
				return nil, invalidf("field %q expects a scalar value, got %T", field, v)
			}
			return Eq(field, v), nil
		}
	}

	keyword, ok := f[1].(string)
	if !ok {
		return nil, invalidf("filter keyword for %q must be a string, got %T", field, f[1])
	}
	var extra interface{}
	if len(f) == 4 {
		extra = f[3]
	}
	return parseKeyword(field, keyword, f[2], extra)
}

func parseKeyword(field, keyword string, value, extra interface{}) (Condition, error) {
	normalized := strings.Join(strings.Fields(keyword), " ")
	kind, opToken, _ := strings.Cut(normalized, " ")

	switch strings.ToUpper(kind) {
	case kindIn, kindNotIn:
		if !IsList(value) {
			return nil, invalidf("%s on field %q expects a slice, got %T", strings.ToUpper(kind), field, value)
		}
		return InCondition{Field: field, Values: value, Not: strings.EqualFold(kind, kindNotIn)}, nil

	case kindDate, kindDay, kindMonth, kindYear:
		if value == nil || !IsScalar(value) {
			return nil, invalidf("%s on field %q expects a scalar, got %T", strings.ToUpper(kind), field, value)
		}
		op := OpEqual
		raw := opToken
		if raw == "" {
			if s, ok := extra.(string); ok {
				raw = s
			} else if o, ok := extra.(Operator); ok {
				raw = string(o)
			}
		}
		if raw != "" {
			parsed, ok := ParseOperator(raw)
			if !ok || parsed.IsNullCheck() {
				return nil, invalidf("unsupported operator %q for %s", raw, strings.ToUpper(kind))
			}
			op = parsed
		}
		return DateCondition{Part: DatePart(strings.ToUpper(kind)), Field: field, Op: op, Value: value}, nil

	case kindExists:
		fn, err := asConstraint(kind, field, value, false)
		if err != nil {
			return nil, err
		}
		return ExistsCondition{Query: NewSubQuery(fn)}, nil

	case kindHas, kindDoesntHave:
		fn, err := asConstraint(kind, field, value, true)
		if err != nil {
			return nil, err
		}
		count := 0
		if extra != nil {
			n, ok := asInt(extra)
			if !ok {
				return nil, invalidf("%s on %q expects an integer count, got %T", strings.ToUpper(kind), field, extra)
			}
			count = n
		}
		return HasCondition{
			Relation:   field,
			Constraint: constraintQuery(fn),
			Count:      count,
			Not:        strings.EqualFold(kind, kindDoesntHave),
		}, nil

	case kindHasMorph, kindDoesntHaveMorph:
		fn, err := asConstraint(kind, field, value, true)
		if err != nil {
			return nil, err
		}
		types, ok := extra.([]string)
		if !ok || len(types) == 0 {
			return nil, invalidf("%s on %q expects a []string of morph types, got %T", strings.ToUpper(kind), field, extra)
		}
		return MorphCondition{
			Relation:   field,
			Types:      types,
			Constraint: constraintQuery(fn),
			Not:        strings.EqualFold(kind, kindDoesntHaveMorph),
		}, nil

	case kindBetween, kindNotBetween:
		bounds := ToList(value)
		if !IsList(value) || len(bounds) != 2 {
			return nil, invalidf("%s on field %q expects a two element slice", strings.ToUpper(kind), field)
		}
		return BetweenCondition{Field: field, From: bounds[0], To: bounds[1], Not: strings.EqualFold(kind, kindNotBetween)}, nil

	case kindBetweenColumns, kindNotBetweenColumns:
		cols := ToList(value)
		if !IsList(value) || len(cols) != 2 {
			return nil, invalidf("%s on field %q expects two column names", strings.ToUpper(kind), field)
		}
		lower, ok1 := cols[0].(string)
		upper, ok2 := cols[1].(string)
		if !ok1 || !ok2 {
			return nil, invalidf("%s on field %q expects two column names", strings.ToUpper(kind), field)
		}
		return BetweenColumnsCondition{Field: field, Lower: lower, Upper: upper, Not: strings.EqualFold(kind, kindNotBetweenColumns)}, nil

	case kindRaw:
		sql, ok := value.(string)
		if !ok {
			return nil, invalidf("RAW expects a string fragment, got %T", value)
		}
		var args []interface{}
		if extra != nil {
			if !IsList(extra) {
				return nil, invalidf("RAW arguments must be a slice, got %T", extra)
			}
			args = ToList(extra)
		}
		return RawCondition{SQL: sql, Args: args}, nil
	}

	op, ok := ParseOperator(normalized)
	if !ok {
		return nil, invalidf("unsupported operator %q for field %q", normalized, field)
	}
	if !op.IsNullCheck() && !IsScalar(value) {
		return nil, invalidf("field %q expects a scalar value, got %T", field, value)
	}
	if op == OpEqual && value == nil {
		op = OpIsNull
	}
	return CompareCondition{Field: field, Op: op, Value: value}, nil
}

func asConstraint(kind, field string, value interface{}, allowNil bool) (Constraint, error) {
	switch fn := value.(type) {
	case Constraint:
		if fn == nil && !allowNil {
			break
		}
		return fn, nil
	case func(*SubQuery):
		if fn == nil && !allowNil {
			break
		}
		return Constraint(fn), nil
	case nil:
		if allowNil {
			return nil, nil
		}
	}
	return nil, invalidf("%s on %q expects a constraint function, got %T", strings.ToUpper(kind), field, value)
}

func asInt(v interface{}) (int, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint()), true
	}
	return 0, false
}
