package repomongo

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lemmego/repo"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// =====================================
// Document Schema
// =====================================

// Column names used for soft delete and timestamps when T declares them
const (
	softDeleteKey = "deleted_at"
	createdAtKey  = "created_at"
	updatedAtKey  = "updated_at"
)

var (
	objectIDType = reflect.TypeOf(primitive.ObjectID{})
	timeType     = reflect.TypeOf(time.Time{})
	timePtrType  = reflect.TypeOf((*time.Time)(nil))
)

// field is one bson encoded struct field
type field struct {
	name  string
	key   string
	index []int
	typ   reflect.Type
}

func (f *field) value(entity reflect.Value) reflect.Value {
	return entity.FieldByIndex(f.index)
}

// schema describes how T is stored. The key of a field follows the bson
// codec: the tag name, or the lowercased field name.
type schema struct {
	name       string
	collection string
	fields     []*field
	byKey      map[string]*field
	pk         *field
	softDelete *field
	createdAt  *field
	updatedAt  *field
}

var schemas sync.Map // reflect.Type -> *schema

// collectionNamer lets T choose its collection
type collectionNamer interface {
	CollectionName() string
}

func schemaOf(t reflect.Type) *schema {
	if cached, ok := schemas.Load(t); ok {
		return cached.(*schema)
	}

	s := &schema{
		name:       t.Name(),
		collection: collectionName(t),
		byKey:      map[string]*field{},
	}
	if t.Kind() == reflect.Struct {
		s.collect(t, nil)
	}
	s.pk = s.byKey["_id"]
	if f := s.byKey[softDeleteKey]; f != nil && f.typ == timePtrType {
		s.softDelete = f
	}
	if f := s.byKey[createdAtKey]; f != nil && f.typ == timeType {
		s.createdAt = f
	}
	if f := s.byKey[updatedAtKey]; f != nil && f.typ == timeType {
		s.updatedAt = f
	}

	actual, _ := schemas.LoadOrStore(t, s)
	return actual.(*schema)
}

func (s *schema) collect(t reflect.Type, index []int) {
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("bson")
		if tag == "-" {
			continue
		}
		name, flags, _ := strings.Cut(tag, ",")
		idx := append(append([]int(nil), index...), i)

		if strings.Contains(flags, "inline") && sf.Type.Kind() == reflect.Struct {
			s.collect(sf.Type, idx)
			continue
		}
		if name == "" {
			name = strings.ToLower(sf.Name)
		}
		f := &field{name: sf.Name, key: name, index: idx, typ: sf.Type}
		s.fields = append(s.fields, f)
		s.byKey[name] = f
	}
}

func collectionName(t reflect.Type) string {
	zero := reflect.New(t)
	if n, ok := zero.Interface().(collectionNamer); ok {
		return n.CollectionName()
	}
	if n, ok := zero.Elem().Interface().(collectionNamer); ok {
		return n.CollectionName()
	}
	name := strings.ToLower(t.Name())
	if !strings.HasSuffix(name, "s") {
		name += "s"
	}
	return name
}

// key maps a column name to its document key. "id" names the primary key
// unless T stores a separate id field.
func (s *schema) key(column string) string {
	if strings.EqualFold(column, "id") {
		if _, ok := s.byKey[column]; !ok {
			return "_id"
		}
	}
	return column
}

// idValue converts id to the type stored in _id; hex strings become
// ObjectIDs when _id is one.
func (s *schema) idValue(id interface{}) (interface{}, error) {
	if s.pk == nil {
		return nil, repo.NewError(repo.ErrorTypeInvalidArgument, s.name+" has no _id field")
	}
	if s.pk.typ != objectIDType {
		return id, nil
	}
	switch v := id.(type) {
	case primitive.ObjectID:
		return v, nil
	case string:
		oid, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return nil, repo.NewErrorWithCause(repo.ErrorTypeInvalidArgument, fmt.Sprintf("invalid object id %q", v), err)
		}
		return oid, nil
	}
	return nil, repo.NewError(repo.ErrorTypeInvalidArgument, fmt.Sprintf("invalid id type %T", id))
}

// primaryKey returns the _id of entity, or nil when T has none
func (s *schema) primaryKey(entity interface{}) interface{} {
	if s.pk == nil {
		return nil
	}
	return s.pk.value(reflect.ValueOf(entity).Elem()).Interface()
}

// ensureID generates an ObjectID for entities whose _id is still zero
func (s *schema) ensureID(entity interface{}) {
	if s.pk == nil || s.pk.typ != objectIDType {
		return
	}
	v := s.pk.value(reflect.ValueOf(entity).Elem())
	if v.Interface().(primitive.ObjectID).IsZero() {
		v.Set(reflect.ValueOf(primitive.NewObjectID()))
	}
}

// setID writes an id generated by the server back into entity
func (s *schema) setID(entity interface{}, id interface{}) {
	if s.pk == nil || id == nil {
		return
	}
	v := s.pk.value(reflect.ValueOf(entity).Elem())
	if !v.IsZero() {
		return
	}
	idv := reflect.ValueOf(id)
	switch {
	case idv.Type().AssignableTo(v.Type()):
		v.Set(idv)
	case idv.Type().ConvertibleTo(v.Type()) && idv.Kind() != reflect.String && v.Kind() != reflect.String:
		v.Set(idv.Convert(v.Type()))
	}
}

// touch sets the timestamps T declares: created_at only when creating and
// still zero, updated_at always.
func (s *schema) touch(entity interface{}, now time.Time, creating bool) {
	v := reflect.ValueOf(entity).Elem()
	if creating && s.createdAt != nil && s.createdAt.value(v).IsZero() {
		s.createdAt.value(v).Set(reflect.ValueOf(now))
	}
	if s.updatedAt != nil && (!creating || s.updatedAt.value(v).IsZero()) {
		s.updatedAt.value(v).Set(reflect.ValueOf(now))
	}
}

// setDeletedAt writes the soft delete marker into entity; nil clears it
func (s *schema) setDeletedAt(entity interface{}, at *time.Time) {
	if s.softDelete == nil {
		return
	}
	s.softDelete.value(reflect.ValueOf(entity).Elem()).Set(reflect.ValueOf(at))
}

// checkColumns reports the first column that is not a document key
func (s *schema) checkColumns(values map[string]interface{}) error {
	for _, col := range sortedKeys(values) {
		if !repo.ValidIdentifier(col) {
			return repo.NewError(repo.ErrorTypeInvalidArgument, fmt.Sprintf("invalid column %q", col))
		}
		if _, ok := s.byKey[s.key(col)]; !ok {
			return repo.NewError(repo.ErrorTypeInvalidArgument, fmt.Sprintf("unknown column %q on %s", col, s.name))
		}
	}
	return nil
}

func (s *schema) entityInfo() *repo.EntityInfo {
	info := &repo.EntityInfo{
		Name:      s.name,
		TableName: s.collection,
		Fields:    make([]repo.FieldInfo, 0, len(s.fields)),
	}
	if s.softDelete != nil {
		info.SoftDeleteColumn = softDeleteKey
	}
	for _, f := range s.fields {
		k := f.typ.Kind()
		info.Fields = append(info.Fields, repo.FieldInfo{
			Name:         f.name,
			Column:       f.key,
			Type:         f.typ,
			DatabaseType: "bson",
			IsPrimaryKey: f == s.pk,
			IsNullable:   k == reflect.Ptr || k == reflect.Slice || k == reflect.Map || k == reflect.Interface,
		})
	}
	if s.pk != nil {
		info.PrimaryKey = []string{"_id"}
	}
	return info
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
