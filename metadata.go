package repo

import "reflect"

// =====================================
// Entity Metadata
// =====================================

// EntityInfo contains metadata about an entity type
type EntityInfo struct {
	Name       string
	TableName  string
	Fields     []FieldInfo
	PrimaryKey []string
	Relations  []RelationInfo
	// SoftDeleteColumn is empty when the entity is deleted for real.
	SoftDeleteColumn string
}

// FieldInfo contains metadata about a field
type FieldInfo struct {
	Name            string
	Column          string
	Type            reflect.Type
	DatabaseType    string
	IsPrimaryKey    bool
	IsNullable      bool
	IsAutoIncrement bool
	DefaultValue    interface{}
}

// RelationInfo contains metadata about a relation
type RelationInfo struct {
	Name         string
	Type         RelationType
	TargetEntity string
	ForeignKey   string
	References   string
	JoinTable    string
}

// Relation returns the relation called name.
func (e *EntityInfo) Relation(name string) (RelationInfo, bool) {
	for _, r := range e.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return RelationInfo{}, false
}

// Column returns the field whose struct field or column name is name.
func (e *EntityInfo) Column(name string) (FieldInfo, bool) {
	for _, f := range e.Fields {
		if f.Column == name || f.Name == name {
			return f, true
		}
	}
	return FieldInfo{}, false
}

// SoftDeletes reports whether the entity is soft deleted.
func (e *EntityInfo) SoftDeletes() bool {
	return e.SoftDeleteColumn != ""
}
