// Package repomongo provides a MongoDB backed implementation of the repo facade
package repomongo

import (
	"context"
	"fmt"
	"time"

	"github.com/lemmego/repo"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ProviderName is the name the MongoDB factory is registered under
const ProviderName = "mongo"

// =====================================
// Provider Implementation
// =====================================

// Provider implements repo.Provider using MongoDB
type Provider struct {
	client       *mongo.Client
	database     *mongo.Database
	config       repo.Config
	opts         repo.Options
	transactions bool
}

// Factory implements repo.ProviderFactory
type Factory struct{}

// Create creates a new MongoDB provider instance
func (f *Factory) Create(config repo.Config, opts ...repo.Option) (repo.Provider, error) {
	return New(config, opts...)
}

// SupportedDrivers returns the list of supported database drivers
func (f *Factory) SupportedDrivers() []string {
	return []string{"mongodb", "mongo"}
}

// New connects to MongoDB and pings the primary.
//
// Provider options are read from config.Options["mongo"]:
//   - "max_pool_size", "min_pool_size" (int) and "max_idle_time" (time.Duration)
//   - "transactions" (bool, default true): mutations run in session
//     transactions, which need a replica set; false runs them directly
func New(config repo.Config, opts ...repo.Option) (*Provider, error) {
	clientOpts := options.Client().ApplyURI(buildConnectionURI(config))
	mongoOpts := config.ProviderOptions(ProviderName)
	applyClientOptions(clientOpts, mongoOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, repo.NewErrorWithCause(repo.ErrorTypeConnection, "failed to connect to MongoDB", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, repo.NewErrorWithCause(repo.ErrorTypeConnection, "failed to ping MongoDB", err)
	}

	p := NewFromClient(client, config.Database, opts...)
	p.config = config
	p.opts.Config = config
	if enabled, ok := mongoOpts["transactions"].(bool); ok {
		p.transactions = enabled
	}
	return p, nil
}

// NewFromClient wraps an already connected client.
func NewFromClient(client *mongo.Client, database string, opts ...repo.Option) *Provider {
	o := repo.NewOptions(repo.Options{Config: repo.DefaultConfig()}, opts...)
	return &Provider{
		client:       client,
		database:     client.Database(database),
		config:       o.Config,
		opts:         o,
		transactions: true,
	}
}

// Database returns the database repositories read from.
func (p *Provider) Database() *mongo.Database {
	return p.database
}

// Configure applies configuration changes
func (p *Provider) Configure(config repo.Config) error {
	p.config = config
	p.opts.Config = config
	return nil
}

// Health checks the database connection health
func (p *Provider) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Ping(ctx, readpref.Primary()); err != nil {
		return repo.NewErrorWithCause(repo.ErrorTypeConnection, "ping failed", err)
	}
	return nil
}

// Close closes the database connection
func (p *Provider) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.client.Disconnect(ctx)
}

// SupportedFeatures returns the list of supported features
func (p *Provider) SupportedFeatures() []repo.Feature {
	features := []repo.Feature{
		repo.FeatureSoftDelete,
		repo.FeatureUpsert,
	}
	if p.transactions {
		features = append(features, repo.FeatureTransactions)
	}
	return features
}

// ProviderInfo returns information about this provider
func (p *Provider) ProviderInfo() repo.ProviderInfo {
	return repo.ProviderInfo{
		Name:         "MongoDB",
		Version:      "1.0.0",
		DatabaseType: repo.DatabaseTypeDocument,
		Features:     p.SupportedFeatures(),
	}
}

// buildConnectionURI builds MongoDB connection URI
func buildConnectionURI(config repo.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	uri := "mongodb://"
	if config.Username != "" {
		uri += config.Username
		if config.Password != "" {
			uri += ":" + config.Password
		}
		uri += "@"
	}

	host := config.Host
	if host == "" {
		host = "localhost"
	}
	port := config.Port
	if port == 0 {
		port = 27017
	}
	uri += fmt.Sprintf("%s:%d", host, port)

	if config.Database != "" {
		uri += "/" + config.Database
	}

	if config.SSL.Enabled {
		uri += "?tls=true"
		if config.SSL.CAFile != "" {
			uri += "&tlsCAFile=" + config.SSL.CAFile
		}
		if config.SSL.CertFile != "" {
			uri += "&tlsCertificateKeyFile=" + config.SSL.CertFile
		}
	}

	return uri
}

// applyClientOptions applies MongoDB-specific client options
func applyClientOptions(clientOpts *options.ClientOptions, mongoOpts map[string]interface{}) {
	if maxPoolSize, ok := mongoOpts["max_pool_size"].(int); ok {
		clientOpts.SetMaxPoolSize(uint64(maxPoolSize))
	}
	if minPoolSize, ok := mongoOpts["min_pool_size"].(int); ok {
		clientOpts.SetMinPoolSize(uint64(minPoolSize))
	}
	if maxIdleTime, ok := mongoOpts["max_idle_time"].(time.Duration); ok {
		clientOpts.SetMaxConnIdleTime(maxIdleTime)
	}
}

// =====================================
// Registration
// =====================================

func init() {
	repo.RegisterProvider(ProviderName, &Factory{})
	repo.RegisterProvider("mongodb", &Factory{})
}
