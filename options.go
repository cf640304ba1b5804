package repo

import (
	"reflect"

	"go.uber.org/zap"
)

// Options holds the collaborators shared by a provider and its repositories
type Options struct {
	Logger *zap.Logger
	Config Config
	Hooks  []EventHook
}

// Option configures Options
type Option func(*Options)

// WithLogger sets the logger receiving rollback and lookup failures.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithConfig replaces the configuration, e.g. to change pagination defaults
// for one repository.
func WithConfig(config Config) Option {
	return func(o *Options) {
		o.Config = config
	}
}

// WithPageLimit overrides the default page size.
func WithPageLimit(limit int) Option {
	return func(o *Options) {
		o.Config.Pagination.Limit = limit
	}
}

// WithEventHook adds a hook notified after committed mutations.
func WithEventHook(hook EventHook) Option {
	return func(o *Options) {
		if hook != nil {
			o.Hooks = append(o.Hooks, hook)
		}
	}
}

// NewOptions applies opts over base. A nil logger becomes a no-op logger.
func NewOptions(base Options, opts ...Option) Options {
	o := base
	o.Hooks = append([]EventHook(nil), base.Hooks...)
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// EntityLogger returns the options' logger annotated with provider and entity names.
func (o Options) EntityLogger(provider string, entity reflect.Type) *zap.Logger {
	return entityLogger(o.Logger, provider, EntityName(entity))
}

// EntityName returns the bare type name of entity, dereferencing pointers.
func EntityName(entity reflect.Type) string {
	for entity != nil && entity.Kind() == reflect.Ptr {
		entity = entity.Elem()
	}
	if entity == nil {
		return ""
	}
	return entity.Name()
}
