package repogorm

import (
	"context"
	"fmt"
	"reflect"

	"github.com/lemmego/repo"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// =====================================
// Relationship Methods
// =====================================

// association manages the members of one relation of one owner row.
// Many-to-many members are rows of the join table; has-many members are
// related rows whose foreign key points at the owner.
type association struct {
	rel      *schema.Relationship
	owner    interface{}
	ownerKey interface{}

	table     string                 // join table, or the related table for has-many
	ownerCol  string                 // column holding the owner key
	memberCol string                 // column identifying a member
	morphCols map[string]interface{} // polymorphic type columns and their values
}

func (r *Repository[T]) association(tx *gorm.DB, id interface{}, relation string) (*association, error) {
	sch, err := r.schema()
	if err != nil {
		return nil, err
	}
	rel, err := findRelation(sch, relation)
	if err != nil {
		return nil, err
	}
	owner, err := r.findByID(tx, id, nil)
	if err != nil {
		return nil, err
	}

	a := &association{rel: rel, owner: owner, morphCols: map[string]interface{}{}}
	ownerValue := reflect.ValueOf(owner).Elem()

	switch rel.Type {
	case schema.Many2Many:
		a.table = rel.JoinTable.Table
		for _, ref := range rel.References {
			switch {
			case ref.PrimaryValue != "":
				a.morphCols[ref.ForeignKey.DBName] = ref.PrimaryValue
			case ref.OwnPrimaryKey:
				a.ownerCol = ref.ForeignKey.DBName
				a.ownerKey, _ = ref.PrimaryKey.ValueOf(tx.Statement.Context, ownerValue)
			default:
				a.memberCol = ref.ForeignKey.DBName
			}
		}
	case schema.HasMany:
		if rel.FieldSchema.PrioritizedPrimaryField == nil {
			return nil, repo.NewError(repo.ErrorTypeInvalidArgument,
				fmt.Sprintf("%s has no single primary key", rel.FieldSchema.Name))
		}
		a.table = rel.FieldSchema.Table
		a.memberCol = rel.FieldSchema.PrioritizedPrimaryField.DBName
		for _, ref := range rel.References {
			switch {
			case ref.PrimaryValue != "":
				a.morphCols[ref.ForeignKey.DBName] = ref.PrimaryValue
			case ref.OwnPrimaryKey:
				a.ownerCol = ref.ForeignKey.DBName
				a.ownerKey, _ = ref.PrimaryKey.ValueOf(tx.Statement.Context, ownerValue)
			}
		}
	default:
		return nil, repo.NewError(repo.ErrorTypeInvalidArgument,
			fmt.Sprintf("relation %q (%s) cannot be synced", rel.Name, rel.Type))
	}

	if a.ownerCol == "" || a.memberCol == "" {
		return nil, repo.Unsupported(ProviderName, fmt.Sprintf("composite keys on relation %q", rel.Name))
	}
	return a, nil
}

func (a *association) members(tx *gorm.DB) *gorm.DB {
	db := fresh(tx).Table(a.table).Where(fmt.Sprintf("%s = ?", a.ownerCol), a.ownerKey)
	for col, val := range a.morphCols {
		db = db.Where(fmt.Sprintf("%s = ?", col), val)
	}
	return db
}

func (a *association) current(tx *gorm.DB) ([]interface{}, error) {
	ids := []interface{}{}
	err := a.members(tx).Pluck(a.memberCol, &ids).Error
	return repo.NormalizeIDs(ids), err
}

func (a *association) attach(tx *gorm.DB, ids []interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	if a.rel.Type == schema.HasMany {
		values := map[string]interface{}{a.ownerCol: a.ownerKey}
		for col, val := range a.morphCols {
			values[col] = val
		}
		return fresh(tx).Table(a.table).
			Where(fmt.Sprintf("%s IN ?", a.memberCol), ids).
			Updates(values).Error
	}

	rows := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		row := map[string]interface{}{a.ownerCol: a.ownerKey, a.memberCol: id}
		for col, val := range a.morphCols {
			row[col] = val
		}
		rows = append(rows, row)
	}
	return fresh(tx).Table(a.table).Create(&rows).Error
}

func (a *association) detach(tx *gorm.DB, ids []interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	if a.rel.Type == schema.HasMany {
		return a.members(tx).
			Where(fmt.Sprintf("%s IN ?", a.memberCol), ids).
			Update(a.ownerCol, nil).Error
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s IN ?", a.table, a.ownerCol, a.memberCol)
	args := []interface{}{a.ownerKey, ids}
	for col, val := range a.morphCols {
		query += fmt.Sprintf(" AND %s = ?", col)
		args = append(args, val)
	}
	return fresh(tx).Exec(query, args...).Error
}

// clear detaches every member through GORM's association mode.
func (a *association) clear(tx *gorm.DB) error {
	return fresh(tx).Model(a.owner).Association(a.rel.Name).Clear()
}

// Sync makes relation on the entity with id contain exactly ids (detaching)
// or at least ids (not detaching)
func (r *Repository[T]) Sync(ctx context.Context, id interface{}, relation string, ids []interface{}, detaching bool) (*repo.SyncResult, bool) {
	result := &repo.SyncResult{}
	ok := r.atomically(ctx, "sync", func(tx *gorm.DB) error {
		a, err := r.association(tx, id, relation)
		if err != nil {
			return err
		}
		current, err := a.current(tx)
		if err != nil {
			return convertGormError(err)
		}
		result.Attached, result.Detached = repo.DiffIDs(current, ids, detaching)
		if err := a.detach(tx, result.Detached); err != nil {
			return convertGormError(err)
		}
		return convertGormError(a.attach(tx, result.Attached))
	})
	if !ok {
		return nil, false
	}
	r.dispatch(ctx, repo.EventSynced, id, result)
	return result, true
}

// SyncWithoutDetaching adds ids to relation, keeping the current members
func (r *Repository[T]) SyncWithoutDetaching(ctx context.Context, id interface{}, relation string, ids []interface{}) (*repo.SyncResult, bool) {
	return r.Sync(ctx, id, relation, ids, false)
}

// Attach adds ids to relation
func (r *Repository[T]) Attach(ctx context.Context, id interface{}, relation string, ids ...interface{}) bool {
	_, ok := r.Sync(ctx, id, relation, ids, false)
	return ok
}

// Detach removes ids from relation; without ids every member is removed
func (r *Repository[T]) Detach(ctx context.Context, id interface{}, relation string, ids ...interface{}) bool {
	result := &repo.SyncResult{}
	ok := r.atomically(ctx, "detach", func(tx *gorm.DB) error {
		a, err := r.association(tx, id, relation)
		if err != nil {
			return err
		}
		current, err := a.current(tx)
		if err != nil {
			return convertGormError(err)
		}
		if len(ids) == 0 {
			result.Detached = current
			return convertGormError(a.clear(tx))
		}
		// keep is current minus ids
		keep, _ := repo.DiffIDs(ids, current, false)
		_, result.Detached = repo.DiffIDs(current, keep, true)
		return convertGormError(a.detach(tx, result.Detached))
	})
	if ok {
		r.dispatch(ctx, repo.EventSynced, id, result)
	}
	return ok
}
