package repobun

import (
	"fmt"
	"strings"

	"github.com/lemmego/repo"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// ScopeFunc is the builder transformer accepted by repo.Scope.
type ScopeFunc = func(*bun.SelectQuery) *bun.SelectQuery

type buildMode int

const (
	modeSelect buildMode = iota
	modeCount
	modePluck
)

// =====================================
// Query Building Helpers
// =====================================

// buildQuery builds a select for table from the options of one call. model
// is the scan destination; relations are loaded into it.
func buildQuery(db bun.IDB, table *schema.Table, dialect string, mode buildMode, model interface{}, opts ...repo.QueryOption) (*bun.SelectQuery, error) {
	query := repo.NewQuery(opts...)
	if err := query.Validate(); err != nil {
		return nil, err
	}

	q := db.NewSelect().Model(model)

	switch query.Trashed {
	case repo.TrashedWith:
		if table.SoftDeleteField != nil {
			q = q.WhereAllWithDeleted()
		}
	case repo.TrashedOnly:
		if table.SoftDeleteField != nil {
			q = q.WhereDeleted()
		} else {
			q = q.Where("1 = 0")
		}
	}

	v := &visitor{db: db, q: q, table: table, alias: string(table.SQLAlias), dialect: dialect}
	if err := repo.Translate(v, query.Conditions...); err != nil {
		return nil, err
	}
	q = v.q

	for _, join := range query.Joins {
		joinClause := fmt.Sprintf("%s JOIN %s", join.Type, join.Table)
		if join.Alias != "" {
			joinClause += " AS " + join.Alias
		}
		q = q.Join(joinClause)
		if join.Condition != "" {
			q = q.JoinOn(join.Condition)
		}
	}

	if len(query.Groups) > 0 {
		q = q.Group(query.Groups...)
	}

	if mode != modeCount {
		for _, order := range query.Orders {
			q = q.OrderExpr(fmt.Sprintf("? %s", order.Direction), bun.Ident(order.Field))
		}
		if query.Limit != nil {
			q = q.Limit(*query.Limit)
		}
		if query.Offset != nil {
			q = q.Offset(*query.Offset)
		}
	}

	if mode == modeSelect {
		if query.Distinct {
			q = q.Distinct()
		}
		var err error
		if q, err = applySelection(db, q, table, dialect, query); err != nil {
			return nil, err
		}
		switch query.Lock {
		case repo.LockForUpdate:
			q = q.For("UPDATE")
		case repo.LockForShare:
			q = q.For("SHARE")
		}
	}

	for _, s := range query.Scopes {
		fn, ok := s.(ScopeFunc)
		if !ok {
			return nil, repo.NewError(repo.ErrorTypeInvalidArgument,
				fmt.Sprintf("bun scope must be func(*bun.SelectQuery) *bun.SelectQuery, got %T", s))
		}
		q = q.Apply(fn)
	}

	return q, nil
}

// applySelection applies projections, eager loads and relation counts.
func applySelection(db bun.IDB, q *bun.SelectQuery, table *schema.Table, dialect string, query *repo.Query) (*bun.SelectQuery, error) {
	if len(query.Fields) > 0 {
		q = q.Column(query.Fields...)
	} else if len(query.Counts) > 0 {
		q = q.ColumnExpr(string(table.SQLAlias) + ".*")
	}
	for _, name := range query.Counts {
		rel, err := findRelation(table, name)
		if err != nil {
			return nil, err
		}
		sub, err := relationQuery(db, table, rel, nil, dialect)
		if err != nil {
			return nil, err
		}
		q = q.ColumnExpr("(?) AS ?", sub.ColumnExpr("COUNT(*)"), bun.Ident(countColumn(rel)))
	}

	if len(query.Hidden) > 0 {
		q = q.ExcludeColumn(query.Hidden...)
	}

	for _, p := range query.Preloads {
		rel, err := findRelation(table, p.Relation)
		if err != nil {
			return nil, err
		}
		if p.Constraint == nil {
			q = q.Relation(rel.Field.GoName)
			continue
		}
		constraint := p.Constraint
		related := rel.JoinTable
		q = q.Relation(rel.Field.GoName, func(sq *bun.SelectQuery) *bun.SelectQuery {
			v := &visitor{db: db, q: sq, table: related, alias: string(related.SQLAlias), dialect: dialect}
			if err := repo.Translate(v, constraint.Conditions...); err != nil {
				return sq.Err(err)
			}
			return v.q
		})
	}
	return q, nil
}

// countColumn is the column WithCount loads a relation count into, e.g.
// "members_count" for Members. The entity declares it as a scanonly field.
func countColumn(rel *schema.Relation) string {
	return rel.Field.Name + "_count"
}

// findRelation looks a relation up by field name ("Orders") or by its
// column-style name ("orders").
func findRelation(table *schema.Table, name string) (*schema.Relation, error) {
	if rel, ok := table.Relations[name]; ok {
		return rel, nil
	}
	for relName, rel := range table.Relations {
		if strings.EqualFold(relName, name) || rel.Field.Name == name ||
			strings.EqualFold(strings.ReplaceAll(name, "_", ""), relName) {
			return rel, nil
		}
	}
	return nil, repo.NewError(repo.ErrorTypeInvalidArgument,
		fmt.Sprintf("unknown relation %q on %s", name, table.TypeName))
}

func column(alias schema.Safe, f *schema.Field) string {
	return string(alias) + "." + string(f.SQLName)
}

// relationQuery selects the rows of rel that belong to the current row of
// parent, narrowed by constraint. The related model's soft delete applies.
func relationQuery(db bun.IDB, parent *schema.Table, rel *schema.Relation, constraint *repo.SubQuery, dialect string) (*bun.SelectQuery, error) {
	related := rel.JoinTable
	sub := db.NewSelect().Model(related.ZeroIface)

	switch rel.Type {
	case schema.HasOneRelation, schema.HasManyRelation, schema.BelongsToRelation:
		for i, base := range rel.BasePKs {
			sub = sub.Where(fmt.Sprintf("%s = %s",
				column(related.SQLAlias, rel.JoinPKs[i]), column(parent.SQLAlias, base)))
		}
		if rel.PolymorphicField != nil {
			sub = sub.Where(column(related.SQLAlias, rel.PolymorphicField)+" = ?", rel.PolymorphicValue)
		}
	case schema.ManyToManyRelation:
		m2m := rel.M2MTable
		on := make([]string, 0, len(rel.JoinPKs))
		for i, pk := range rel.JoinPKs {
			on = append(on, fmt.Sprintf("%s = %s", column(m2m.SQLAlias, rel.M2MJoinPKs[i]), column(related.SQLAlias, pk)))
		}
		sub = sub.Join(fmt.Sprintf("JOIN %s AS %s ON %s", m2m.SQLName, m2m.SQLAlias, strings.Join(on, " AND ")))
		for i, pk := range rel.BasePKs {
			sub = sub.Where(fmt.Sprintf("%s = %s", column(m2m.SQLAlias, rel.M2MBasePKs[i]), column(parent.SQLAlias, pk)))
		}
	default:
		return nil, repo.NewError(repo.ErrorTypeUnsupported,
			fmt.Sprintf("relation %q has unsupported type %d", rel.Field.GoName, rel.Type))
	}

	if constraint != nil {
		v := &visitor{db: db, q: sub, table: related, alias: string(related.SQLAlias), dialect: dialect}
		if err := repo.Translate(v, constraint.Conditions...); err != nil {
			return nil, err
		}
		sub = v.q
	}
	return sub, nil
}

// =====================================
// Condition Visitor
// =====================================

// visitor adds one where clause per condition to q.
type visitor struct {
	db      bun.IDB
	q       *bun.SelectQuery
	table   *schema.Table // nil inside a plain EXISTS subquery
	alias   string        // quoted name the current row is reachable by
	dialect string
}

var _ repo.Visitor = (*visitor)(nil)

func (v *visitor) VisitCompare(c repo.CompareCondition) error {
	field := bun.Ident(c.Field)
	switch {
	case c.Op == repo.OpIsNull || (c.Op == repo.OpEqual && c.Value == nil):
		v.q = v.q.Where("? IS NULL", field)
	case c.Op == repo.OpIsNotNull || ((c.Op == repo.OpNotEqual || c.Op == repo.OpNotEqualAlt) && c.Value == nil):
		v.q = v.q.Where("? IS NOT NULL", field)
	case (c.Op == repo.OpILike || c.Op == repo.OpNotILike) && v.dialect != repo.DialectPgSQL:
		op := "LIKE"
		if c.Op == repo.OpNotILike {
			op = "NOT LIKE"
		}
		v.q = v.q.Where(fmt.Sprintf("LOWER(?) %s LOWER(?)", op), field, c.Value)
	default:
		v.q = v.q.Where(fmt.Sprintf("? %s ?", c.Op), field, c.Value)
	}
	return nil
}

func (v *visitor) VisitIn(c repo.InCondition) error {
	values := c.List()
	switch {
	case len(values) == 0 && c.Not:
		// NOT IN () holds for every row
	case len(values) == 0:
		v.q = v.q.Where("1 = 0")
	case c.Not:
		v.q = v.q.Where("? NOT IN (?)", bun.Ident(c.Field), bun.In(values))
	default:
		v.q = v.q.Where("? IN (?)", bun.Ident(c.Field), bun.In(values))
	}
	return nil
}

func (v *visitor) VisitDate(c repo.DateCondition) error {
	expr, err := repo.DatePartExpr(v.dialect, c.Part, c.Field)
	if err != nil {
		return err
	}
	v.q = v.q.Where(fmt.Sprintf("%s %s ?", expr, c.Op), repo.DatePartValue(c.Part, c.Value))
	return nil
}

func (v *visitor) VisitExists(c repo.ExistsCondition) error {
	sub := v.db.NewSelect().Table(c.Query.Table).ColumnExpr("1")
	inner := &visitor{db: v.db, q: sub, alias: c.Query.Table, dialect: v.dialect}
	if err := repo.Translate(inner, c.Query.Conditions...); err != nil {
		return err
	}
	if c.Not {
		v.q = v.q.Where("NOT EXISTS (?)", inner.q)
	} else {
		v.q = v.q.Where("EXISTS (?)", inner.q)
	}
	return nil
}

func (v *visitor) VisitHas(c repo.HasCondition) error {
	if v.table == nil {
		return repo.NewError(repo.ErrorTypeInvalidArgument,
			fmt.Sprintf("relation %q cannot be checked inside a plain subquery", c.Relation))
	}
	rel, err := findRelation(v.table, c.Relation)
	if err != nil {
		return err
	}
	sub, err := relationQuery(v.db, v.table, rel, c.Constraint, v.dialect)
	if err != nil {
		return err
	}

	n := c.MinCount()
	switch {
	case n == 1 && c.Not:
		v.q = v.q.Where("NOT EXISTS (?)", sub.ColumnExpr("1"))
	case n == 1:
		v.q = v.q.Where("EXISTS (?)", sub.ColumnExpr("1"))
	case c.Not:
		v.q = v.q.Where("(?) < ?", sub.ColumnExpr("COUNT(*)"), n)
	default:
		v.q = v.q.Where("(?) >= ?", sub.ColumnExpr("COUNT(*)"), n)
	}
	return nil
}

func (v *visitor) VisitMorph(c repo.MorphCondition) error {
	parts := make([]string, 0, len(c.Types))
	args := make([]interface{}, 0, 3*len(c.Types))
	for _, typ := range c.Types {
		sub := v.db.NewSelect().Table(typ).ColumnExpr("1").
			Where(fmt.Sprintf("? = %s.?", v.alias), bun.Ident(typ+".id"), bun.Ident(c.IDColumn()))
		if c.Constraint != nil {
			inner := &visitor{db: v.db, q: sub, alias: typ, dialect: v.dialect}
			if err := repo.Translate(inner, c.Constraint.Conditions...); err != nil {
				return err
			}
			sub = inner.q
		}
		parts = append(parts, fmt.Sprintf("(%s.? = ? AND EXISTS (?))", v.alias))
		args = append(args, bun.Ident(c.TypeColumn()), typ, sub)
	}

	expr := "(" + strings.Join(parts, " OR ") + ")"
	if c.Not {
		expr = "NOT " + expr
	}
	v.q = v.q.Where(expr, args...)
	return nil
}

func (v *visitor) VisitBetween(c repo.BetweenCondition) error {
	op := "BETWEEN"
	if c.Not {
		op = "NOT BETWEEN"
	}
	v.q = v.q.Where(fmt.Sprintf("? %s ? AND ?", op), bun.Ident(c.Field), c.From, c.To)
	return nil
}

func (v *visitor) VisitBetweenColumns(c repo.BetweenColumnsCondition) error {
	op := "BETWEEN"
	if c.Not {
		op = "NOT BETWEEN"
	}
	v.q = v.q.Where(fmt.Sprintf("? %s ? AND ?", op), bun.Ident(c.Field), bun.Ident(c.Lower), bun.Ident(c.Upper))
	return nil
}

func (v *visitor) VisitColumn(c repo.ColumnCondition) error {
	v.q = v.q.Where(fmt.Sprintf("? %s ?", c.Op), bun.Ident(c.First), bun.Ident(c.Second))
	return nil
}

func (v *visitor) VisitRaw(c repo.RawCondition) error {
	v.q = v.q.Where("("+c.SQL+")", c.Args...)
	return nil
}
