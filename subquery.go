package repo

import (
	"strings"
)

// =====================================
// SubQuery Support
// =====================================

// SubQuery describes the inner query of an EXISTS check or the extra
// constraints of a relation check.
//
// For Has and HasMorph conditions Table is ignored: the relation decides
// which table is queried.
type SubQuery struct {
	Table      string
	Conditions []Condition
}

// Constraint fills a SubQuery. It is evaluated once, when the condition is built.
type Constraint func(q *SubQuery)

// NewSubQuery evaluates fn against an empty SubQuery.
func NewSubQuery(fn Constraint) *SubQuery {
	q := &SubQuery{}
	if fn != nil {
		fn(q)
	}
	return q
}

func constraintQuery(fn Constraint) *SubQuery {
	if fn == nil {
		return nil
	}
	return NewSubQuery(fn)
}

// From sets the table the subquery reads from
func (q *SubQuery) From(table string) *SubQuery {
	q.Table = table
	return q
}

// Where adds conditions to the subquery
func (q *SubQuery) Where(conds ...Condition) *SubQuery {
	q.Conditions = append(q.Conditions, conds...)
	return q
}

// WhereColumn correlates a subquery column with a column of the outer query
func (q *SubQuery) WhereColumn(first string, op Operator, second string) *SubQuery {
	return q.Where(Column(first, op, second))
}

// WhereFilters parses loose filters into the subquery. A malformed filter
// leaves the subquery unchanged and is reported by Validate.
func (q *SubQuery) WhereFilters(filters ...Filter) *SubQuery {
	conds, err := ParseFilters(filters...)
	if err != nil {
		q.Conditions = append(q.Conditions, invalidCondition{err: err})
		return q
	}
	return q.Where(conds...)
}

// Validate validates every nested condition
func (q *SubQuery) Validate() error {
	for _, c := range q.Conditions {
		if c == nil {
			return invalidf("nil condition in subquery")
		}
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// String returns a human readable rendering
func (q *SubQuery) String() string {
	if q == nil {
		return ""
	}
	parts := make([]string, 0, len(q.Conditions))
	for _, c := range q.Conditions {
		parts = append(parts, c.String())
	}
	s := "SELECT * FROM " + q.Table
	if len(parts) > 0 {
		s += " WHERE " + strings.Join(parts, " AND ")
	}
	return s
}

// invalidCondition carries a parse error raised inside a Constraint so that
// it surfaces when the enclosing condition is validated.
type invalidCondition struct {
	err error
}

func (c invalidCondition) Accept(Visitor) error { return c.err }
func (c invalidCondition) Validate() error      { return c.err }
func (c invalidCondition) String() string       { return "<invalid: " + c.err.Error() + ">" }
