package repobun

import (
	"context"
	"fmt"
	"reflect"

	"github.com/lemmego/repo"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// =====================================
// Relationship Methods
// =====================================

// association manages the members of one relation of one owner row.
// Many-to-many members are rows of the join table; has-many members are
// related rows whose foreign key points at the owner.
type association struct {
	rel      *schema.Relation
	ownerKey interface{}

	table     schema.Safe            // join table, or the related table for has-many
	ownerCol  string                 // column holding the owner key
	memberCol string                 // column identifying a member
	morphCols map[string]interface{} // polymorphic type column and its value
}

func (r *Repository[T]) association(ctx context.Context, tx bun.IDB, id interface{}, relation string) (*association, error) {
	rel, err := findRelation(r.table(), relation)
	if err != nil {
		return nil, err
	}
	owner, err := r.findByID(ctx, tx, id, nil)
	if err != nil {
		return nil, err
	}
	if len(rel.BasePKs) != 1 {
		return nil, repo.Unsupported(ProviderName, fmt.Sprintf("composite keys on relation %q", rel.Field.GoName))
	}

	a := &association{
		rel:       rel,
		ownerKey:  rel.BasePKs[0].Value(reflect.ValueOf(owner).Elem()).Interface(),
		morphCols: map[string]interface{}{},
	}

	switch rel.Type {
	case schema.ManyToManyRelation:
		a.table = rel.M2MTable.SQLName
		a.ownerCol = rel.M2MBasePKs[0].Name
		if len(rel.M2MJoinPKs) == 1 {
			a.memberCol = rel.M2MJoinPKs[0].Name
		}
	case schema.HasManyRelation:
		related := rel.JoinTable
		if len(related.PKs) != 1 {
			return nil, repo.NewError(repo.ErrorTypeInvalidArgument,
				fmt.Sprintf("%s has no single primary key", related.TypeName))
		}
		a.table = related.SQLName
		a.ownerCol = rel.JoinPKs[0].Name
		a.memberCol = related.PKs[0].Name
		if rel.PolymorphicField != nil {
			a.morphCols[rel.PolymorphicField.Name] = rel.PolymorphicValue
		}
	default:
		return nil, repo.NewError(repo.ErrorTypeInvalidArgument,
			fmt.Sprintf("relation %q cannot be synced", rel.Field.GoName))
	}

	if a.memberCol == "" {
		return nil, repo.Unsupported(ProviderName, fmt.Sprintf("composite keys on relation %q", rel.Field.GoName))
	}
	return a, nil
}

func (a *association) current(ctx context.Context, tx bun.IDB) ([]interface{}, error) {
	q := tx.NewSelect().TableExpr(string(a.table)).
		ColumnExpr("?", bun.Ident(a.memberCol)).
		Where("? = ?", bun.Ident(a.ownerCol), a.ownerKey)
	for col, val := range a.morphCols {
		q = q.Where("? = ?", bun.Ident(col), val)
	}

	rows, err := q.Rows(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []interface{}{}
	for rows.Next() {
		var id interface{}
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return repo.NormalizeIDs(ids), rows.Err()
}

func (a *association) attach(ctx context.Context, tx bun.IDB, ids []interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	if a.rel.Type == schema.HasManyRelation {
		q := tx.NewUpdate().TableExpr(string(a.table)).
			Set("? = ?", bun.Ident(a.ownerCol), a.ownerKey).
			Where("? IN (?)", bun.Ident(a.memberCol), bun.In(ids))
		for col, val := range a.morphCols {
			q = q.Set("? = ?", bun.Ident(col), val)
		}
		_, err := q.Exec(ctx)
		return err
	}

	for _, id := range ids {
		row := map[string]interface{}{a.ownerCol: a.ownerKey, a.memberCol: id}
		if _, err := tx.NewInsert().Model(&row).TableExpr(string(a.table)).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *association) detach(ctx context.Context, tx bun.IDB, ids []interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	if a.rel.Type == schema.HasManyRelation {
		_, err := tx.NewUpdate().TableExpr(string(a.table)).
			Set("? = NULL", bun.Ident(a.ownerCol)).
			Where("? = ?", bun.Ident(a.ownerCol), a.ownerKey).
			Where("? IN (?)", bun.Ident(a.memberCol), bun.In(ids)).
			Exec(ctx)
		return err
	}

	_, err := tx.NewDelete().TableExpr(string(a.table)).
		Where("? = ?", bun.Ident(a.ownerCol), a.ownerKey).
		Where("? IN (?)", bun.Ident(a.memberCol), bun.In(ids)).
		Exec(ctx)
	return err
}

// Sync makes relation on the entity with id contain exactly ids (detaching)
// or at least ids (not detaching)
func (r *Repository[T]) Sync(ctx context.Context, id interface{}, relation string, ids []interface{}, detaching bool) (*repo.SyncResult, bool) {
	result := &repo.SyncResult{}
	ok := r.atomically(ctx, "sync", func(tx bun.IDB) error {
		a, err := r.association(ctx, tx, id, relation)
		if err != nil {
			return err
		}
		current, err := a.current(ctx, tx)
		if err != nil {
			return convertBunError(err)
		}
		result.Attached, result.Detached = repo.DiffIDs(current, ids, detaching)
		if err := a.detach(ctx, tx, result.Detached); err != nil {
			return convertBunError(err)
		}
		return convertBunError(a.attach(ctx, tx, result.Attached))
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
	ok := r.atomically(ctx, "detach", func(tx bun.IDB) error {
		a, err := r.association(ctx, tx, id, relation)
		if err != nil {
			return err
		}
		current, err := a.current(ctx, tx)
		if err != nil {
			return convertBunError(err)
		}
		if len(ids) == 0 {
			result.Detached = current
		} else {
			// keep is current minus ids
			keep, _ := repo.DiffIDs(ids, current, false)
			_, result.Detached = repo.DiffIDs(current, keep, true)
		}
		return convertBunError(a.detach(ctx, tx, result.Detached))
	})
	if ok {
		r.dispatch(ctx, repo.EventSynced, id, result)
	}
	return ok
}
