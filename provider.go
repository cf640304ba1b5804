package repo

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// =====================================
// Provider Interfaces
// =====================================

// Provider owns a store connection and hands out repositories for it.
// Repositories are created by the provider packages' generic constructors,
// e.g. repogorm.NewRepository[User](provider).
type Provider interface {
	// Configure applies new configuration to the provider.
	// Connection settings only take effect on the next connect.
	Configure(config Config) error

	// Health checks that the store is reachable.
	Health() error

	// Close releases the connection.
	Close() error

	// SupportedFeatures returns the capabilities of the provider.
	SupportedFeatures() []Feature

	// ProviderInfo returns metadata about the provider.
	ProviderInfo() ProviderInfo
}

// ProviderFactory creates providers for a set of drivers
type ProviderFactory interface {
	// Create opens a provider for config.
	Create(config Config, opts ...Option) (Provider, error)

	// SupportedDrivers lists the driver names accepted in Config.Driver.
	SupportedDrivers() []string
}

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]ProviderFactory)
)

// RegisterProvider makes a provider factory available by name.
// Provider packages call it from init.
func RegisterProvider(name string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[strings.ToLower(name)] = factory
}

// NewProvider creates a provider through the factory registered under name.
//
// Example:
//
//	provider, err := repo.NewProvider("gorm", config, repo.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	users := repogorm.NewRepository[User](provider.(*repogorm.Provider))
func NewProvider(name string, config Config, opts ...Option) (Provider, error) {
	factoriesMu.RLock()
	factory, ok := factories[strings.ToLower(name)]
	factoriesMu.RUnlock()
	if !ok {
		return nil, NewError(ErrorTypeUnsupported, fmt.Sprintf("no provider registered as %q", name))
	}
	return factory.Create(config, opts...)
}

// RegisteredProviders lists the registered factory names in order.
func RegisteredProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasFeature reports whether p supports feature.
func HasFeature(p Provider, feature Feature) bool {
	for _, f := range p.SupportedFeatures() {
		if f == feature {
			return true
		}
	}
	return false
}
