package repo

import "context"

// =====================================
// Entity Hook Interfaces
// =====================================

// Providers whose driver has no lifecycle callbacks of its own call these
// hooks around the corresponding write. ORM backed providers leave them to
// the ORM (GORM and Bun have their own hook interfaces).

// BeforeCreateHook is called before creating an entity
type BeforeCreateHook interface {
	BeforeCreate(ctx context.Context) error
}

// AfterCreateHook is called after successfully creating an entity
type AfterCreateHook interface {
	AfterCreate(ctx context.Context) error
}

// BeforeUpdateHook is called before updating an entity
type BeforeUpdateHook interface {
	BeforeUpdate(ctx context.Context) error
}

// AfterUpdateHook is called after successfully updating an entity
type AfterUpdateHook interface {
	AfterUpdate(ctx context.Context) error
}

// BeforeDeleteHook is called before deleting an entity
type BeforeDeleteHook interface {
	BeforeDelete(ctx context.Context) error
}

// AfterDeleteHook is called after successfully deleting an entity
type AfterDeleteHook interface {
	AfterDelete(ctx context.Context) error
}

// AfterFindHook is called for every entity a lookup returns
type AfterFindHook interface {
	AfterFind(ctx context.Context) error
}

// ValidationHook is called to validate an entity before create
type ValidationHook interface {
	Validate(ctx context.Context) error
}

// HookStage selects which hooks RunHooks calls
type HookStage int

const (
	StageBeforeCreate HookStage = iota
	StageAfterCreate
	StageBeforeUpdate
	StageAfterUpdate
	StageBeforeDelete
	StageAfterDelete
	StageAfterFind
)

// RunHooks calls the hook of stage implemented by entity, if any. Before
// create also runs ValidationHook first.
func RunHooks(ctx context.Context, stage HookStage, entity interface{}) error {
	var err error
	switch stage {
	case StageBeforeCreate:
		if h, ok := entity.(ValidationHook); ok {
			if err = h.Validate(ctx); err != nil {
				return NewErrorWithCause(ErrorTypeValidation, "entity validation failed", err)
			}
		}
		if h, ok := entity.(BeforeCreateHook); ok {
			err = h.BeforeCreate(ctx)
		}
	case StageAfterCreate:
		if h, ok := entity.(AfterCreateHook); ok {
			err = h.AfterCreate(ctx)
		}
	case StageBeforeUpdate:
		if h, ok := entity.(BeforeUpdateHook); ok {
			err = h.BeforeUpdate(ctx)
		}
	case StageAfterUpdate:
		if h, ok := entity.(AfterUpdateHook); ok {
			err = h.AfterUpdate(ctx)
		}
	case StageBeforeDelete:
		if h, ok := entity.(BeforeDeleteHook); ok {
			err = h.BeforeDelete(ctx)
		}
	case StageAfterDelete:
		if h, ok := entity.(AfterDeleteHook); ok {
			err = h.AfterDelete(ctx)
		}
	case StageAfterFind:
		if h, ok := entity.(AfterFindHook); ok {
			err = h.AfterFind(ctx)
		}
	}
	return err
}
