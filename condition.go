package repo

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
)

// =====================================
// Conditions
// =====================================

// Condition is a single predicate of a lookup. Conditions in a list are
// combined with AND.
//
// The set of conditions is closed: every variant dispatches to its own
// Visitor method, so a provider that implements Visitor handles all of them.
type Condition interface {
	// Accept dispatches the condition to the matching Visitor method.
	Accept(v Visitor) error

	// Validate reports a usage error for a malformed condition.
	Validate() error

	// String returns a human readable rendering, not executable SQL.
	String() string
}

// Visitor turns conditions into provider specific builder calls.
type Visitor interface {
	VisitCompare(c CompareCondition) error
	VisitIn(c InCondition) error
	VisitDate(c DateCondition) error
	VisitExists(c ExistsCondition) error
	VisitHas(c HasCondition) error
	VisitMorph(c MorphCondition) error
	VisitBetween(c BetweenCondition) error
	VisitBetweenColumns(c BetweenColumnsCondition) error
	VisitColumn(c ColumnCondition) error
	VisitRaw(c RawCondition) error
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidIdentifier reports whether s is a column name, optionally qualified
// by a table name.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

func validateIdentifier(kind, s string) error {
	if !ValidIdentifier(s) {
		return invalidf("invalid %s %q", kind, s)
	}
	return nil
}

// CompareCondition compares a column against a value
type CompareCondition struct {
	Field string
	Op    Operator
	Value interface{}
}

func (c CompareCondition) Accept(v Visitor) error { return v.VisitCompare(c) }

func (c CompareCondition) Validate() error {
	if err := validateIdentifier("field", c.Field); err != nil {
		return err
	}
	if _, ok := comparisonOperators[c.Op]; !ok {
		return invalidf("unsupported operator %q for field %q", c.Op, c.Field)
	}
	if !c.Op.IsNullCheck() && !IsScalar(c.Value) {
		return invalidf("field %q expects a scalar value, got %T", c.Field, c.Value)
	}
	return nil
}

func (c CompareCondition) String() string {
	if c.Op.IsNullCheck() {
		return fmt.Sprintf("%s %s", c.Field, c.Op)
	}
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
}

// InCondition checks set membership
type InCondition struct {
	Field  string
	Values interface{}
	Not    bool
}

func (c InCondition) Accept(v Visitor) error { return v.VisitIn(c) }

func (c InCondition) Validate() error {
	if err := validateIdentifier("field", c.Field); err != nil {
		return err
	}
	if !IsList(c.Values) {
		return invalidf("IN on field %q expects a slice, got %T", c.Field, c.Values)
	}
	return nil
}

func (c InCondition) String() string {
	op := "IN"
	if c.Not {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s %v", c.Field, op, c.Values)
}

// List returns the values as a []interface{}.
func (c InCondition) List() []interface{} {
	return ToList(c.Values)
}

// DateCondition compares part of a date/time column
type DateCondition struct {
	Part  DatePart
	Field string
	Op    Operator
	Value interface{}
}

func (c DateCondition) Accept(v Visitor) error { return v.VisitDate(c) }

func (c DateCondition) Validate() error {
	if err := validateIdentifier("field", c.Field); err != nil {
		return err
	}
	switch c.Part {
	case DatePartDate, DatePartDay, DatePartMonth, DatePartYear:
	default:
		return invalidf("unknown date part %q", c.Part)
	}
	if _, ok := comparisonOperators[c.Op]; !ok || c.Op.IsNullCheck() {
		return invalidf("unsupported operator %q for %s(%s)", c.Op, c.Part, c.Field)
	}
	if c.Value == nil || !IsScalar(c.Value) {
		return invalidf("%s(%s) expects a scalar value, got %T", c.Part, c.Field, c.Value)
	}
	return nil
}

func (c DateCondition) String() string {
	return fmt.Sprintf("%s(%s) %s %v", c.Part, c.Field, c.Op, c.Value)
}

// ExistsCondition checks that a subquery returns at least one row
type ExistsCondition struct {
	Query *SubQuery
	Not   bool
}

func (c ExistsCondition) Accept(v Visitor) error { return v.VisitExists(c) }

func (c ExistsCondition) Validate() error {
	if c.Query == nil {
		return invalidf("EXISTS requires a subquery")
	}
	if err := validateIdentifier("table", c.Query.Table); err != nil {
		return err
	}
	return c.Query.Validate()
}

func (c ExistsCondition) String() string {
	if c.Not {
		return fmt.Sprintf("NOT EXISTS (%s)", c.Query)
	}
	return fmt.Sprintf("EXISTS (%s)", c.Query)
}

// HasCondition checks that a relation has (or lacks) related rows
type HasCondition struct {
	Relation   string
	Constraint *SubQuery
	// Count is the minimum number of related rows; values below 1 mean 1.
	Count int
	Not   bool
}

func (c HasCondition) Accept(v Visitor) error { return v.VisitHas(c) }

func (c HasCondition) Validate() error {
	if c.Relation == "" {
		return invalidf("HAS requires a relation name")
	}
	if c.Count < 0 {
		return invalidf("HAS count must not be negative")
	}
	if c.Constraint != nil {
		return c.Constraint.Validate()
	}
	return nil
}

func (c HasCondition) String() string {
	kind := "HAS"
	if c.Not {
		kind = "DOESNTHAVE"
	}
	if c.Constraint == nil {
		return fmt.Sprintf("%s %s >= %d", kind, c.Relation, c.MinCount())
	}
	return fmt.Sprintf("%s %s >= %d (%s)", kind, c.Relation, c.MinCount(), c.Constraint)
}

// MinCount returns the effective minimum related row count.
func (c HasCondition) MinCount() int {
	if c.Count < 1 {
		return 1
	}
	return c.Count
}

// MorphCondition checks a polymorphic relation stored as a pair of columns
// <Relation>_type and <Relation>_id. Each entry of Types is both the stored
// type value and the table the id points into.
type MorphCondition struct {
	Relation   string
	Types      []string
	Constraint *SubQuery
	Not        bool
}

func (c MorphCondition) Accept(v Visitor) error { return v.VisitMorph(c) }

func (c MorphCondition) Validate() error {
	if err := validateIdentifier("relation", c.Relation); err != nil {
		return err
	}
	if len(c.Types) == 0 {
		return invalidf("morph relation %q requires at least one type", c.Relation)
	}
	for _, t := range c.Types {
		if err := validateIdentifier("morph type", t); err != nil {
			return err
		}
	}
	if c.Constraint != nil {
		return c.Constraint.Validate()
	}
	return nil
}

func (c MorphCondition) String() string {
	kind := "HASMORPH"
	if c.Not {
		kind = "DOESNTHAVEMORPH"
	}
	if c.Constraint == nil {
		return fmt.Sprintf("%s %s [%s]", kind, c.Relation, strings.Join(c.Types, ","))
	}
	return fmt.Sprintf("%s %s [%s] (%s)", kind, c.Relation, strings.Join(c.Types, ","), c.Constraint)
}

// TypeColumn returns the column holding the morph type.
func (c MorphCondition) TypeColumn() string { return c.Relation + "_type" }

// IDColumn returns the column holding the morph id.
func (c MorphCondition) IDColumn() string { return c.Relation + "_id" }

// BetweenCondition checks an inclusive range
type BetweenCondition struct {
	Field string
	From  interface{}
	To    interface{}
	Not   bool
}

func (c BetweenCondition) Accept(v Visitor) error { return v.VisitBetween(c) }

func (c BetweenCondition) Validate() error {
	if err := validateIdentifier("field", c.Field); err != nil {
		return err
	}
	if c.From == nil || c.To == nil || !IsScalar(c.From) || !IsScalar(c.To) {
		return invalidf("BETWEEN on field %q expects two scalar bounds", c.Field)
	}
	return nil
}

func (c BetweenCondition) String() string {
	op := "BETWEEN"
	if c.Not {
		op = "NOT BETWEEN"
	}
	return fmt.Sprintf("%s %s %v AND %v", c.Field, op, c.From, c.To)
}

// BetweenColumnsCondition checks that a column lies between two other columns
type BetweenColumnsCondition struct {
	Field string
	Lower string
	Upper string
	Not   bool
}

func (c BetweenColumnsCondition) Accept(v Visitor) error { return v.VisitBetweenColumns(c) }

func (c BetweenColumnsCondition) Validate() error {
	for _, col := range []string{c.Field, c.Lower, c.Upper} {
		if err := validateIdentifier("column", col); err != nil {
			return err
		}
	}
	return nil
}

func (c BetweenColumnsCondition) String() string {
	op := "BETWEEN"
	if c.Not {
		op = "NOT BETWEEN"
	}
	return fmt.Sprintf("%s %s %s AND %s", c.Field, op, c.Lower, c.Upper)
}

// ColumnCondition compares two columns
type ColumnCondition struct {
	First  string
	Op     Operator
	Second string
}

func (c ColumnCondition) Accept(v Visitor) error { return v.VisitColumn(c) }

func (c ColumnCondition) Validate() error {
	if err := validateIdentifier("column", c.First); err != nil {
		return err
	}
	if err := validateIdentifier("column", c.Second); err != nil {
		return err
	}
	if _, ok := comparisonOperators[c.Op]; !ok || c.Op.IsNullCheck() {
		return invalidf("unsupported column operator %q", c.Op)
	}
	return nil
}

func (c ColumnCondition) String() string {
	return fmt.Sprintf("%s %s %s", c.First, c.Op, c.Second)
}

// RawCondition is a provider native predicate fragment, passed through unescaped
type RawCondition struct {
	SQL  string
	Args []interface{}
}

func (c RawCondition) Accept(v Visitor) error { return v.VisitRaw(c) }

func (c RawCondition) Validate() error {
	if strings.TrimSpace(c.SQL) == "" {
		return invalidf("RAW requires a non-empty fragment")
	}
	return nil
}

func (c RawCondition) String() string {
	if len(c.Args) == 0 {
		return c.SQL
	}
	return fmt.Sprintf("%s %v", c.SQL, c.Args)
}

// =====================================
// Condition Constructors
// =====================================

// Eq builds an equality condition; a nil value checks IS NULL.
func Eq(field string, value interface{}) Condition {
	if value == nil {
		return CompareCondition{Field: field, Op: OpIsNull}
	}
	return CompareCondition{Field: field, Op: OpEqual, Value: value}
}

// Compare builds a comparison condition
func Compare(field string, op Operator, value interface{}) Condition {
	return CompareCondition{Field: field, Op: op, Value: value}
}

// IsNull builds an IS NULL condition
func IsNull(field string) Condition {
	return CompareCondition{Field: field, Op: OpIsNull}
}

// NotNull builds an IS NOT NULL condition
func NotNull(field string) Condition {
	return CompareCondition{Field: field, Op: OpIsNotNull}
}

// In builds a set membership condition; values must be a slice or array.
func In(field string, values interface{}) Condition {
	return InCondition{Field: field, Values: values}
}

// NotIn builds a negated set membership condition
func NotIn(field string, values interface{}) Condition {
	return InCondition{Field: field, Values: values, Not: true}
}

// Date builds a date-part comparison
func Date(part DatePart, field string, op Operator, value interface{}) Condition {
	if op == "" {
		op = OpEqual
	}
	return DateCondition{Part: part, Field: field, Op: op, Value: value}
}

// Exists builds an EXISTS condition from a subquery constraint
func Exists(fn Constraint) Condition {
	return ExistsCondition{Query: NewSubQuery(fn)}
}

// NotExists builds a NOT EXISTS condition
func NotExists(fn Constraint) Condition {
	return ExistsCondition{Query: NewSubQuery(fn), Not: true}
}

// Has checks that relation has at least one related row matching fn.
// fn may be nil.
func Has(relation string, fn Constraint) Condition {
	return HasCondition{Relation: relation, Constraint: constraintQuery(fn)}
}

// HasAtLeast checks that relation has at least count related rows matching fn
func HasAtLeast(relation string, count int, fn Constraint) Condition {
	return HasCondition{Relation: relation, Constraint: constraintQuery(fn), Count: count}
}

// DoesntHave checks that relation has no related row matching fn
func DoesntHave(relation string, fn Constraint) Condition {
	return HasCondition{Relation: relation, Constraint: constraintQuery(fn), Not: true}
}

// HasMorph checks a polymorphic relation against the given types
func HasMorph(relation string, types []string, fn Constraint) Condition {
	return MorphCondition{Relation: relation, Types: types, Constraint: constraintQuery(fn)}
}

// DoesntHaveMorph negates HasMorph
func DoesntHaveMorph(relation string, types []string, fn Constraint) Condition {
	return MorphCondition{Relation: relation, Types: types, Constraint: constraintQuery(fn), Not: true}
}

// Between builds an inclusive range condition
func Between(field string, from, to interface{}) Condition {
	return BetweenCondition{Field: field, From: from, To: to}
}

// NotBetween builds the complement of Between
func NotBetween(field string, from, to interface{}) Condition {
	return BetweenCondition{Field: field, From: from, To: to, Not: true}
}

// BetweenColumns checks lower <= field <= upper over three columns
func BetweenColumns(field, lower, upper string) Condition {
	return BetweenColumnsCondition{Field: field, Lower: lower, Upper: upper}
}

// NotBetweenColumns negates BetweenColumns
func NotBetweenColumns(field, lower, upper string) Condition {
	return BetweenColumnsCondition{Field: field, Lower: lower, Upper: upper, Not: true}
}

// Column compares two columns
func Column(first string, op Operator, second string) Condition {
	return ColumnCondition{First: first, Op: op, Second: second}
}

// Raw builds a raw predicate fragment
func Raw(sql string, args ...interface{}) Condition {
	return RawCondition{SQL: sql, Args: args}
}

// =====================================
// Value Shapes
// =====================================

// IsScalar reports whether v is a single value rather than a collection or function.
// Byte slices count as scalars.
func IsScalar(v interface{}) bool {
	if v == nil {
		return true
	}
	if _, ok := v.([]byte); ok {
		return true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Func, reflect.Chan:
		return false
	}
	return true
}

// IsList reports whether v is a slice or array.
func IsList(v interface{}) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// ToList copies a slice or array into a []interface{}.
func ToList(v interface{}) []interface{} {
	if list, ok := v.([]interface{}); ok {
		return list
	}
	if !IsList(v) {
		return nil
	}
	rv := reflect.ValueOf(v)
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func asTime(v interface{}) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	}
	return time.Time{}, false
}
