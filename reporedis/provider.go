// Package reporedis caches repository reads in Redis.
package reporedis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lemmego/repo"
)

// ProviderName is the name the factory registers under.
const ProviderName = "redis"

// =====================================
// Provider Implementation
// =====================================

// Provider implements repo.Provider using Redis
type Provider struct {
	client *redis.Client
	store  *Store
	config repo.Config
	opts   repo.Options
}

// Factory implements repo.ProviderFactory
type Factory struct{}

// Create creates a new Redis provider instance
func (f *Factory) Create(config repo.Config, opts ...repo.Option) (repo.Provider, error) {
	return New(config, opts...)
}

// SupportedDrivers returns the list of supported Redis drivers
func (f *Factory) SupportedDrivers() []string {
	return []string{"redis"}
}

// New connects to the Redis server described by config.
func New(config repo.Config, opts ...repo.Option) (*Provider, error) {
	redisOpts, err := clientOptions(config)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		client: redis.NewClient(redisOpts),
		config: config,
		opts:   repo.NewOptions(repo.Options{Config: config}, opts...),
	}
	p.store = NewStore(p.client)

	if err := p.Health(); err != nil {
		p.client.Close()
		return nil, repo.NewErrorWithCause(repo.ErrorTypeConnection, "failed to connect to Redis", err)
	}
	return p, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client, opts ...repo.Option) *Provider {
	o := repo.NewOptions(repo.Options{Config: repo.DefaultConfig()}, opts...)
	return &Provider{client: client, store: NewStore(client), config: o.Config, opts: o}
}

// clientOptions builds the go-redis options. ConnectionURL wins over the
// discrete fields.
func clientOptions(config repo.Config) (*redis.Options, error) {
	var opts *redis.Options
	if config.ConnectionURL != "" {
		parsed, err := redis.ParseURL(config.ConnectionURL)
		if err != nil {
			return nil, repo.NewErrorWithCause(repo.ErrorTypeInvalidArgument, "invalid Redis URL", err)
		}
		opts = parsed
	} else {
		host, port := config.Host, config.Port
		if host == "" {
			host = "localhost"
		}
		if port == 0 {
			port = 6379
		}
		opts = &redis.Options{
			Addr:     fmt.Sprintf("%s:%d", host, port),
			Username: config.Username,
			Password: config.Password,
		}
		if config.Database != "" {
			db, err := strconv.Atoi(config.Database)
			if err != nil {
				return nil, repo.NewError(repo.ErrorTypeInvalidArgument,
					fmt.Sprintf("redis database must be a number, got %q", config.Database))
			}
			opts.DB = db
		}
	}

	if config.MaxOpenConns > 0 {
		opts.PoolSize = config.MaxOpenConns
	}
	if config.MaxIdleConns > 0 {
		opts.MinIdleConns = config.MaxIdleConns
	}
	if config.ConnMaxLifetime > 0 {
		opts.MaxConnAge = config.ConnMaxLifetime
	}
	if config.ConnMaxIdleTime > 0 {
		opts.IdleTimeout = config.ConnMaxIdleTime
	}

	if redisOpts := config.ProviderOptions(ProviderName); redisOpts != nil {
		if d, ok := duration(redisOpts["dial_timeout"]); ok {
			opts.DialTimeout = d
		}
		if d, ok := duration(redisOpts["read_timeout"]); ok {
			opts.ReadTimeout = d
		}
		if d, ok := duration(redisOpts["write_timeout"]); ok {
			opts.WriteTimeout = d
		}
	}
	return opts, nil
}

// duration accepts durations as set in code and strings as read from YAML
func duration(v interface{}) (time.Duration, bool) {
	switch d := v.(type) {
	case time.Duration:
		return d, true
	case string:
		parsed, err := time.ParseDuration(d)
		return parsed, err == nil
	}
	return 0, false
}

// Client returns the underlying go-redis client.
func (p *Provider) Client() *redis.Client {
	return p.client
}

// Store returns the key-value store backed by the client.
func (p *Provider) Store() *Store {
	return p.store
}

// Configure applies configuration to the provider
func (p *Provider) Configure(config repo.Config) error {
	p.config = config
	p.opts.Config = config
	return nil
}

// Health checks the connection to Redis
func (p *Provider) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return convertRedisError(p.client.Ping(ctx).Err())
}

// Close closes the Redis connection
func (p *Provider) Close() error {
	return p.client.Close()
}

// SupportedFeatures returns the features supported by Redis
func (p *Provider) SupportedFeatures() []repo.Feature {
	return []repo.Feature{repo.FeatureCache}
}

// ProviderInfo returns information about the Redis provider
func (p *Provider) ProviderInfo() repo.ProviderInfo {
	return repo.ProviderInfo{
		Name:         "Redis",
		Version:      "6.0+",
		DatabaseType: repo.DatabaseTypeKV,
		Features:     p.SupportedFeatures(),
	}
}

func init() {
	repo.RegisterProvider(ProviderName, &Factory{})
}
