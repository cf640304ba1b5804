package repo

import (
	"context"
)

// =====================================
// Repository Events
// =====================================

// EventAction names a committed mutation
type EventAction string

const (
	EventCreated      EventAction = "created"
	EventUpdated      EventAction = "updated"
	EventDeleted      EventAction = "deleted"
	EventForceDeleted EventAction = "force_deleted"
	EventRestored     EventAction = "restored"
	EventSynced       EventAction = "synced"
)

// Event describes a committed mutation. Entity is the entity type name;
// ID is set for single-row mutations and Value carries the written entity
// when the repository has it.
type Event struct {
	Action EventAction
	Entity string
	ID     interface{}
	Value  interface{}
}

// EventHook is notified after a mutation commits. Hooks never run for a
// rolled back mutation.
type EventHook interface {
	HandleEvent(ctx context.Context, event Event)
}

// EventHookFunc adapts a function to EventHook
type EventHookFunc func(ctx context.Context, event Event)

func (f EventHookFunc) HandleEvent(ctx context.Context, event Event) { f(ctx, event) }

// Dispatch notifies every hook in order.
func (o Options) Dispatch(ctx context.Context, event Event) {
	for _, h := range o.Hooks {
		h.HandleEvent(ctx, event)
	}
}
