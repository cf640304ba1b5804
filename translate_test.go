package repo

import (
	"errors"
	"reflect"
	"testing"
)

// recordingVisitor records the conditions it is handed.
type recordingVisitor struct {
	seen []string
	fail error
}

func (v *recordingVisitor) record(c Condition) error {
	v.seen = append(v.seen, c.String())
	return v.fail
}

func (v *recordingVisitor) VisitCompare(c CompareCondition) error { return v.record(c) }
func (v *recordingVisitor) VisitIn(c InCondition) error           { return v.record(c) }
func (v *recordingVisitor) VisitDate(c DateCondition) error       { return v.record(c) }
func (v *recordingVisitor) VisitExists(c ExistsCondition) error   { return v.record(c) }
func (v *recordingVisitor) VisitHas(c HasCondition) error         { return v.record(c) }
func (v *recordingVisitor) VisitMorph(c MorphCondition) error     { return v.record(c) }
func (v *recordingVisitor) VisitBetween(c BetweenCondition) error { return v.record(c) }
func (v *recordingVisitor) VisitBetweenColumns(c BetweenColumnsCondition) error {
	return v.record(c)
}
func (v *recordingVisitor) VisitColumn(c ColumnCondition) error { return v.record(c) }
func (v *recordingVisitor) VisitRaw(c RawCondition) error       { return v.record(c) }

func TestTranslateDispatchesInOrder(t *testing.T) {
	v := &recordingVisitor{}
	err := Translate(v,
		Eq("name", "alice"),
		In("id", []int{1, 2}),
		Between("age", 18, 30),
		Column("a", OpLessThan, "b"),
		Raw("1 = 1"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"name = alice", "id IN [1 2]", "age BETWEEN 18 AND 30", "a < b", "1 = 1"}
	if !reflect.DeepEqual(v.seen, want) {
		t.Errorf("got %v, want %v", v.seen, want)
	}
}

func TestTranslateNoPartialApplication(t *testing.T) {
	v := &recordingVisitor{}
	err := Translate(v, Eq("name", "alice"), In("id", 5))
	if !IsInvalidArgument(err) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if len(v.seen) != 0 {
		t.Errorf("expected nothing dispatched, got %v", v.seen)
	}
}

func TestTranslateRejectsNil(t *testing.T) {
	v := &recordingVisitor{}
	if err := Translate(v, nil); !IsInvalidArgument(err) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestTranslatePropagatesVisitorError(t *testing.T) {
	boom := errors.New("boom")
	v := &recordingVisitor{fail: boom}
	if err := Translate(v, Eq("a", 1), Eq("b", 2)); !errors.Is(err, boom) {
		t.Errorf("expected visitor error, got %v", err)
	}
	if len(v.seen) != 1 {
		t.Errorf("expected translation to stop at the first failure, got %v", v.seen)
	}
}

func TestConditionValidation(t *testing.T) {
	valid := []Condition{
		Eq("users.name", "alice"),
		Compare("age", OpGreaterThanOrEqual, 18),
		IsNull("deleted_at"),
		NotNull("email"),
		NotIn("id", []string{"a"}),
		Date(DatePartYear, "created_at", "", 2024),
		Exists(func(q *SubQuery) { q.From("orders") }),
		NotExists(func(q *SubQuery) { q.From("orders") }),
		Has("Orders", nil),
		HasAtLeast("Orders", 2, nil),
		DoesntHave("Orders", func(q *SubQuery) { q.Where(Eq("status", "open")) }),
		HasMorph("commentable", []string{"posts"}, nil),
		DoesntHaveMorph("commentable", []string{"posts"}, nil),
		NotBetween("age", 1, 2),
		BetweenColumns("score", "min_score", "max_score"),
		NotBetweenColumns("score", "min_score", "max_score"),
	}
	for _, c := range valid {
		if err := c.Validate(); err != nil {
			t.Errorf("%s: unexpected error %v", c, err)
		}
	}

	invalid := []Condition{
		Compare("age", Operator("~~"), 1),
		Compare("age", OpEqual, []int{1}),
		Compare("1age", OpEqual, 1),
		In("id", nil),
		Date(DatePart("WEEK"), "created_at", OpEqual, 1),
		Date(DatePartDay, "created_at", OpIsNull, 1),
		ExistsCondition{},
		HasCondition{},
		HasCondition{Relation: "Orders", Count: -1},
		MorphCondition{Relation: "commentable"},
		MorphCondition{Relation: "commentable", Types: []string{"posts; --"}},
		Between("age", nil, 2),
		Between("age", []int{1}, 2),
		BetweenColumns("score", "min score", "max"),
		Column("a", OpIsNull, "b"),
		Raw("   "),
	}
	for _, c := range invalid {
		if err := c.Validate(); !IsInvalidArgument(err) {
			t.Errorf("%#v: expected invalid argument, got %v", c, err)
		}
	}
}

func TestEqWithNilIsNullCheck(t *testing.T) {
	c := Eq("deleted_at", nil).(CompareCondition)
	if c.Op != OpIsNull {
		t.Errorf("expected IS NULL, got %s", c.Op)
	}
}

func TestToList(t *testing.T) {
	if got := ToList([]int{1, 2}); !reflect.DeepEqual(got, []interface{}{1, 2}) {
		t.Errorf("unexpected list %v", got)
	}
	if got := ToList([2]string{"a", "b"}); !reflect.DeepEqual(got, []interface{}{"a", "b"}) {
		t.Errorf("unexpected list %v", got)
	}
	if ToList(5) != nil {
		t.Error("expected nil for scalar")
	}
	if IsList([]byte("x")) || !IsScalar([]byte("x")) {
		t.Error("byte slices are scalars")
	}
}
