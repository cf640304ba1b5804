package repo

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// DefaultConnection is the connection name used by applications with a
// single store.
const DefaultConnection = "default"

// Registry holds the open connections of an application by name, and the
// repositories built on each connection by entity type. A repository is
// bound once at startup and resolved wherever it is needed, so decorators
// such as a read cache apply to every caller.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Provider
	repos map[binding]interface{}
}

type binding struct {
	conn   string
	entity reflect.Type
}

var (
	connectionsOnce sync.Once
	connections     *Registry
)

// Connections returns the process wide registry
func Connections() *Registry {
	connectionsOnce.Do(func() {
		connections = NewRegistry()
	})
	return connections
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]Provider),
		repos: make(map[binding]interface{}),
	}
}

// Connect registers provider under name. Names are unique.
func (r *Registry) Connect(name string, provider Provider) error {
	if name == "" || provider == nil {
		return NewError(ErrorTypeInvalidArgument, "a connection needs a name and a provider")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[name]; exists {
		return NewError(ErrorTypeDuplicate, fmt.Sprintf("connection %q is already registered", name))
	}
	r.conns[name] = provider
	return nil
}

// Provider returns the provider of the named connection
func (r *Registry) Provider(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.conns[name]
	if !ok {
		return nil, missingConnection(name)
	}
	return p, nil
}

// Names returns the connection names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.conns))
	for name := range r.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entities returns the names of the entities bound on a connection, sorted
func (r *Registry) Entities(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entities []string
	for b := range r.repos {
		if b.conn == name {
			entities = append(entities, EntityName(b.entity))
		}
	}
	sort.Strings(entities)
	return entities
}

// Disconnect closes the named connection and drops the repositories bound
// on it.
func (r *Registry) Disconnect(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.conns[name]
	if !ok {
		return missingConnection(name)
	}
	r.drop(name)
	if err := p.Close(); err != nil {
		return NewErrorWithCause(ErrorTypeConnection, fmt.Sprintf("closing connection %q", name), err)
	}
	return nil
}

// Close closes every connection and empties the registry. Every connection
// is closed even when one fails; the failures are joined.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, p := range r.conns {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("connection %s: %w", name, err))
		}
	}
	r.conns = make(map[string]Provider)
	r.repos = make(map[binding]interface{})
	return errors.Join(errs...)
}

// Health checks every connection; a nil entry is healthy
func (r *Registry) Health() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make(map[string]error, len(r.conns))
	for name, p := range r.conns {
		results[name] = p.Health()
	}
	return results
}

func (r *Registry) drop(conn string) {
	for b := range r.repos {
		if b.conn == conn {
			delete(r.repos, b)
		}
	}
}

func missingConnection(name string) error {
	return NewError(ErrorTypeNotFound, fmt.Sprintf("no connection named %q", name))
}

func entityOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// =====================================
// Repository Bindings
// =====================================

// Bind makes repository the repository of T on the named connection. The
// connection must be registered, and T can be bound once per connection.
//
// Example:
//
//	registry.Connect(repo.DefaultConnection, provider)
//	repo.Bind[User](registry, repo.DefaultConnection, repogorm.NewRepository[User](provider))
func Bind[T any](r *Registry, connection string, repository Repository[T]) error {
	if repository == nil {
		return NewError(ErrorTypeInvalidArgument, "cannot bind a nil repository")
	}
	entity := entityOf[T]()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connection]; !ok {
		return missingConnection(connection)
	}
	key := binding{conn: connection, entity: entity}
	if _, exists := r.repos[key]; exists {
		return NewError(ErrorTypeDuplicate,
			fmt.Sprintf("%s is already bound on connection %q", EntityName(entity), connection))
	}
	r.repos[key] = repository
	return nil
}

// Decorate replaces the repository of T on the named connection with what
// wrap returns for it. wrap runs under the registry lock and must not call
// back into the registry.
func Decorate[T any](r *Registry, connection string, wrap func(Repository[T]) Repository[T]) error {
	entity := entityOf[T]()
	key := binding{conn: connection, entity: entity}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.repos[key]
	if !ok {
		return missingBinding(entity, connection)
	}
	wrapped := wrap(current.(Repository[T]))
	if wrapped == nil {
		return NewError(ErrorTypeInvalidArgument,
			fmt.Sprintf("decorating %s produced no repository", EntityName(entity)))
	}
	r.repos[key] = wrapped
	return nil
}

// Resolve returns the repository of T on the named connection
func Resolve[T any](r *Registry, connection string) (Repository[T], error) {
	entity := entityOf[T]()

	r.mu.RLock()
	current, ok := r.repos[binding{conn: connection, entity: entity}]
	r.mu.RUnlock()

	if !ok {
		return nil, missingBinding(entity, connection)
	}
	return current.(Repository[T]), nil
}

// MustResolve is Resolve that panics when T is not bound
func MustResolve[T any](r *Registry, connection string) Repository[T] {
	repository, err := Resolve[T](r, connection)
	if err != nil {
		panic(err)
	}
	return repository
}

func missingBinding(entity reflect.Type, connection string) error {
	return NewError(ErrorTypeNotFound,
		fmt.Sprintf("no repository of %s bound on connection %q", EntityName(entity), connection))
}
