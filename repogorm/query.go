package repogorm

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/lemmego/repo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// ScopeFunc is the builder transformer accepted by repo.Scope.
type ScopeFunc = func(*gorm.DB) *gorm.DB

type buildMode int

const (
	modeSelect buildMode = iota
	modeCount
	modePluck
)

// =====================================
// Query Building Helpers
// =====================================

// buildQuery builds a GORM query for T from the options of one call. root
// carries the connection (or transaction) and context; the returned builder
// may be used for several finishers.
func buildQuery(root *gorm.DB, sch *schema.Schema, dialect string, mode buildMode, opts ...repo.QueryOption) (*gorm.DB, error) {
	query := repo.NewQuery(opts...)
	if err := query.Validate(); err != nil {
		return nil, err
	}

	db := fresh(root).Model(reflect.New(sch.ModelType).Interface())

	switch query.Trashed {
	case repo.TrashedWith:
		db = db.Unscoped()
	case repo.TrashedOnly:
		db = db.Unscoped()
		if f := softDeleteField(sch); f != nil {
			db = db.Where(fmt.Sprintf("%s.%s IS NOT NULL", sch.Table, f.DBName))
		} else {
			db = db.Where("1 = 0")
		}
	}

	v := &visitor{root: root, db: db, schema: sch, table: sch.Table, dialect: dialect}
	if err := repo.Translate(v, query.Conditions...); err != nil {
		return nil, err
	}
	db = v.db

	for _, join := range query.Joins {
		joinClause := fmt.Sprintf("%s JOIN %s", join.Type, join.Table)
		if join.Alias != "" {
			joinClause += " AS " + join.Alias
		}
		if join.Condition != "" {
			joinClause += " ON " + join.Condition
		}
		db = db.Joins(joinClause)
	}

	if len(query.Groups) > 0 {
		db = db.Group(strings.Join(query.Groups, ", "))
	}

	if mode != modeCount {
		for _, order := range query.Orders {
			db = db.Order(fmt.Sprintf("%s %s", order.Field, order.Direction))
		}
		if query.Limit != nil {
			db = db.Limit(*query.Limit)
		}
		if query.Offset != nil {
			db = db.Offset(*query.Offset)
		}
	}

	if mode == modeSelect {
		if query.Distinct {
			db = db.Distinct()
		}
		var err error
		if db, err = applySelection(root, db, sch, dialect, query); err != nil {
			return nil, err
		}
		switch query.Lock {
		case repo.LockForUpdate:
			db = db.Clauses(clause.Locking{Strength: "UPDATE"})
		case repo.LockForShare:
			db = db.Clauses(clause.Locking{Strength: "SHARE"})
		}
	}

	for _, s := range query.Scopes {
		fn, ok := s.(ScopeFunc)
		if !ok {
			return nil, repo.NewError(repo.ErrorTypeInvalidArgument,
				fmt.Sprintf("gorm scope must be func(*gorm.DB) *gorm.DB, got %T", s))
		}
		db = fn(db)
	}

	return db.Session(&gorm.Session{}), nil
}

// applySelection applies projections, preloads and relation counts.
func applySelection(root, db *gorm.DB, sch *schema.Schema, dialect string, query *repo.Query) (*gorm.DB, error) {
	if len(query.Counts) == 0 && len(query.Fields) > 0 {
		db = db.Select(query.Fields)
	}
	if len(query.Counts) > 0 {
		fields := query.Fields
		if len(fields) == 0 {
			fields = []string{sch.Table + ".*"}
		}
		selects := strings.Join(fields, ", ")
		var args []interface{}
		for _, name := range query.Counts {
			rel, err := findRelation(sch, name)
			if err != nil {
				return nil, err
			}
			sub, err := relationQuery(root, sch, rel, nil, dialect)
			if err != nil {
				return nil, err
			}
			selects += fmt.Sprintf(", (?) AS %s", countColumn(root, rel))
			args = append(args, sub.Select("COUNT(*)"))
		}
		db = db.Select(selects, args...)
	}

	if len(query.Hidden) > 0 {
		db = db.Omit(query.Hidden...)
	}

	for _, p := range query.Preloads {
		if p.Constraint == nil {
			db = db.Preload(p.Relation)
			continue
		}
		rel, err := findRelation(sch, p.Relation)
		if err != nil {
			return nil, err
		}
		constraint := p.Constraint
		db = db.Preload(rel.Name, func(tx *gorm.DB) *gorm.DB {
			v := &visitor{root: root, db: tx, schema: rel.FieldSchema, table: rel.FieldSchema.Table, dialect: dialect}
			if err := repo.Translate(v, constraint.Conditions...); err != nil {
				_ = tx.AddError(err)
				return tx
			}
			return v.db
		})
	}
	return db, nil
}

// countColumn is the column WithCount loads a relation count into, e.g.
// "orders_count" for Orders. The entity declares it as a read-only field.
func countColumn(db *gorm.DB, rel *schema.Relationship) string {
	return db.NamingStrategy.ColumnName("", rel.Name) + "_count"
}

// fresh returns a builder with no statement state, bound to root's
// connection and context.
func fresh(root *gorm.DB) *gorm.DB {
	return root.Session(&gorm.Session{NewDB: true})
}

func softDeleteField(sch *schema.Schema) *schema.Field {
	deletedAt := reflect.TypeOf(gorm.DeletedAt{})
	for _, f := range sch.Fields {
		if f.FieldType == deletedAt && f.DBName != "" {
			return f
		}
	}
	return nil
}

// findRelation looks a relation up by field name ("Orders") or by its
// column-style name ("orders").
func findRelation(sch *schema.Schema, name string) (*schema.Relationship, error) {
	if rel, ok := sch.Relationships.Relations[name]; ok {
		return rel, nil
	}
	for relName, rel := range sch.Relationships.Relations {
		if strings.EqualFold(relName, name) || strings.EqualFold(strings.ReplaceAll(name, "_", ""), relName) {
			return rel, nil
		}
	}
	return nil, repo.NewError(repo.ErrorTypeInvalidArgument,
		fmt.Sprintf("unknown relation %q on %s", name, sch.Name))
}

// relationQuery selects the rows of rel that belong to the current row of
// parent, narrowed by constraint. The related model's soft delete scope applies.
func relationQuery(root *gorm.DB, parent *schema.Schema, rel *schema.Relationship, constraint *repo.SubQuery, dialect string) (*gorm.DB, error) {
	related := rel.FieldSchema
	sub := fresh(root).Model(reflect.New(related.ModelType).Interface())

	switch rel.Type {
	case schema.HasOne, schema.HasMany:
		for _, ref := range rel.References {
			switch {
			case ref.PrimaryValue != "":
				sub = sub.Where(fmt.Sprintf("%s.%s = ?", related.Table, ref.ForeignKey.DBName), ref.PrimaryValue)
			case ref.OwnPrimaryKey:
				sub = sub.Where(fmt.Sprintf("%s.%s = %s.%s",
					related.Table, ref.ForeignKey.DBName, parent.Table, ref.PrimaryKey.DBName))
			}
		}
	case schema.BelongsTo:
		for _, ref := range rel.References {
			if ref.PrimaryValue != "" {
				continue
			}
			sub = sub.Where(fmt.Sprintf("%s.%s = %s.%s",
				related.Table, ref.PrimaryKey.DBName, parent.Table, ref.ForeignKey.DBName))
		}
	case schema.Many2Many:
		join := rel.JoinTable.Table
		var on []string
		for _, ref := range rel.References {
			switch {
			case ref.PrimaryValue != "":
				sub = sub.Where(fmt.Sprintf("%s.%s = ?", join, ref.ForeignKey.DBName), ref.PrimaryValue)
			case ref.OwnPrimaryKey:
				sub = sub.Where(fmt.Sprintf("%s.%s = %s.%s",
					join, ref.ForeignKey.DBName, parent.Table, ref.PrimaryKey.DBName))
			default:
				on = append(on, fmt.Sprintf("%s.%s = %s.%s",
					join, ref.ForeignKey.DBName, related.Table, ref.PrimaryKey.DBName))
			}
		}
		sub = sub.Joins(fmt.Sprintf("JOIN %s ON %s", join, strings.Join(on, " AND ")))
	default:
		return nil, repo.NewError(repo.ErrorTypeUnsupported,
			fmt.Sprintf("relation %q has unsupported type %s", rel.Name, rel.Type))
	}

	if constraint != nil {
		v := &visitor{root: root, db: sub, schema: related, table: related.Table, dialect: dialect}
		if err := repo.Translate(v, constraint.Conditions...); err != nil {
			return nil, err
		}
		sub = v.db
	}
	return sub, nil
}

// =====================================
// Condition Visitor
// =====================================

// visitor adds one where clause per condition to db.
type visitor struct {
	root    *gorm.DB
	db      *gorm.DB
	schema  *schema.Schema // nil inside a plain EXISTS subquery
	table   string
	dialect string
}

var _ repo.Visitor = (*visitor)(nil)

func (v *visitor) VisitCompare(c repo.CompareCondition) error {
	switch {
	case c.Op == repo.OpIsNull || (c.Op == repo.OpEqual && c.Value == nil):
		v.db = v.db.Where(c.Field + " IS NULL")
	case c.Op == repo.OpIsNotNull || ((c.Op == repo.OpNotEqual || c.Op == repo.OpNotEqualAlt) && c.Value == nil):
		v.db = v.db.Where(c.Field + " IS NOT NULL")
	case (c.Op == repo.OpILike || c.Op == repo.OpNotILike) && v.dialect != repo.DialectPgSQL:
		op := "LIKE"
		if c.Op == repo.OpNotILike {
			op = "NOT LIKE"
		}
		v.db = v.db.Where(fmt.Sprintf("LOWER(%s) %s LOWER(?)", c.Field, op), c.Value)
	default:
		v.db = v.db.Where(fmt.Sprintf("%s %s ?", c.Field, c.Op), c.Value)
	}
	return nil
}

func (v *visitor) VisitIn(c repo.InCondition) error {
	values := c.List()
	switch {
	case len(values) == 0 && c.Not:
		// NOT IN () holds for every row
	case len(values) == 0:
		v.db = v.db.Where("1 = 0")
	case c.Not:
		v.db = v.db.Where(fmt.Sprintf("%s NOT IN ?", c.Field), values)
	default:
		v.db = v.db.Where(fmt.Sprintf("%s IN ?", c.Field), values)
	}
	return nil
}

func (v *visitor) VisitDate(c repo.DateCondition) error {
	expr, err := repo.DatePartExpr(v.dialect, c.Part, c.Field)
	if err != nil {
		return err
	}
	v.db = v.db.Where(fmt.Sprintf("%s %s ?", expr, c.Op), repo.DatePartValue(c.Part, c.Value))
	return nil
}

func (v *visitor) VisitExists(c repo.ExistsCondition) error {
	sub := fresh(v.root).Table(c.Query.Table).Select("1")
	inner := &visitor{root: v.root, db: sub, table: c.Query.Table, dialect: v.dialect}
	if err := repo.Translate(inner, c.Query.Conditions...); err != nil {
		return err
	}
	if c.Not {
		v.db = v.db.Where("NOT EXISTS (?)", inner.db)
	} else {
		v.db = v.db.Where("EXISTS (?)", inner.db)
	}
	return nil
}

func (v *visitor) VisitHas(c repo.HasCondition) error {
	if v.schema == nil {
		return repo.NewError(repo.ErrorTypeInvalidArgument,
			fmt.Sprintf("relation %q cannot be checked inside a plain subquery", c.Relation))
	}
	rel, err := findRelation(v.schema, c.Relation)
	if err != nil {
		return err
	}
	sub, err := relationQuery(v.root, v.schema, rel, c.Constraint, v.dialect)
	if err != nil {
		return err
	}

	n := c.MinCount()
	switch {
	case n == 1 && c.Not:
		v.db = v.db.Where("NOT EXISTS (?)", sub.Select("1"))
	case n == 1:
		v.db = v.db.Where("EXISTS (?)", sub.Select("1"))
	case c.Not:
		v.db = v.db.Where("(?) < ?", sub.Select("COUNT(*)"), n)
	default:
		v.db = v.db.Where("(?) >= ?", sub.Select("COUNT(*)"), n)
	}
	return nil
}

func (v *visitor) VisitMorph(c repo.MorphCondition) error {
	parts := make([]string, 0, len(c.Types))
	args := make([]interface{}, 0, 2*len(c.Types))
	for _, typ := range c.Types {
		sub := fresh(v.root).Table(typ).Select("1").
			Where(fmt.Sprintf("%s.id = %s.%s", typ, v.table, c.IDColumn()))
		if c.Constraint != nil {
			inner := &visitor{root: v.root, db: sub, table: typ, dialect: v.dialect}
			if err := repo.Translate(inner, c.Constraint.Conditions...); err != nil {
				return err
			}
			sub = inner.db
		}
		parts = append(parts, fmt.Sprintf("(%s.%s = ? AND EXISTS (?))", v.table, c.TypeColumn()))
		args = append(args, typ, sub)
	}

	expr := "(" + strings.Join(parts, " OR ") + ")"
	if c.Not {
		expr = "NOT " + expr
	}
	v.db = v.db.Where(expr, args...)
	return nil
}

func (v *visitor) VisitBetween(c repo.BetweenCondition) error {
	op := "BETWEEN"
	if c.Not {
		op = "NOT BETWEEN"
	}
	v.db = v.db.Where(fmt.Sprintf("%s %s ? AND ?", c.Field, op), c.From, c.To)
	return nil
}

func (v *visitor) VisitBetweenColumns(c repo.BetweenColumnsCondition) error {
	op := "BETWEEN"
	if c.Not {
		op = "NOT BETWEEN"
	}
	v.db = v.db.Where(fmt.Sprintf("%s %s %s AND %s", c.Field, op, c.Lower, c.Upper))
	return nil
}

func (v *visitor) VisitColumn(c repo.ColumnCondition) error {
	v.db = v.db.Where(fmt.Sprintf("%s %s %s", c.First, c.Op, c.Second))
	return nil
}

func (v *visitor) VisitRaw(c repo.RawCondition) error {
	v.db = v.db.Where("("+c.SQL+")", c.Args...)
	return nil
}
