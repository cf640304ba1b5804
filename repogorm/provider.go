// Package repogorm implements the repository facade on top of GORM.
package repogorm

import (
	"fmt"
	"strings"

	"github.com/lemmego/repo"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// ProviderName is the name the factory registers under.
const ProviderName = "gorm"

// =====================================
// Provider Implementation
// =====================================

// Provider implements repo.Provider using GORM
type Provider struct {
	db     *gorm.DB
	config repo.Config
	opts   repo.Options
}

// Factory implements repo.ProviderFactory
type Factory struct{}

// Create creates a new GORM provider instance
func (f *Factory) Create(config repo.Config, opts ...repo.Option) (repo.Provider, error) {
	return New(config, opts...)
}

// SupportedDrivers returns the list of supported database drivers
func (f *Factory) SupportedDrivers() []string {
	return []string{"postgres", "postgresql", "mysql", "sqlite", "sqlite3", "sqlserver", "mssql"}
}

// New opens a connection described by config.
func New(config repo.Config, opts ...repo.Option) (*Provider, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: false,
		},
	}

	if gormOpts := config.ProviderOptions(ProviderName); gormOpts != nil {
		if logLevel, ok := gormOpts["log_level"].(string); ok {
			switch logLevel {
			case "silent":
				gormConfig.Logger = logger.Default.LogMode(logger.Silent)
			case "error":
				gormConfig.Logger = logger.Default.LogMode(logger.Error)
			case "warn":
				gormConfig.Logger = logger.Default.LogMode(logger.Warn)
			case "info":
				gormConfig.Logger = logger.Default.LogMode(logger.Info)
			}
		}
		if singularTable, ok := gormOpts["singular_table"].(bool); ok {
			gormConfig.NamingStrategy = schema.NamingStrategy{
				SingularTable: singularTable,
			}
		}
	}

	var dialector gorm.Dialector
	switch strings.ToLower(config.Driver) {
	case "postgres", "postgresql":
		dialector = postgres.Open(buildPostgresDSN(config))
	case "mysql":
		dialector = mysql.Open(buildMySQLDSN(config))
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(config.Database)
	case "sqlserver", "mssql":
		dialector = sqlserver.Open(buildSQLServerDSN(config))
	default:
		return nil, repo.NewError(repo.ErrorTypeUnsupported, fmt.Sprintf("unsupported driver: %s", config.Driver))
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, repo.NewErrorWithCause(repo.ErrorTypeConnection, "failed to connect to database", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, repo.NewErrorWithCause(repo.ErrorTypeConnection, "failed to get underlying sql.DB", err)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	return &Provider{
		db:     db,
		config: config,
		opts:   repo.NewOptions(repo.Options{Config: config}, opts...),
	}, nil
}

// NewFromDB wraps an already opened GORM connection.
func NewFromDB(db *gorm.DB, opts ...repo.Option) *Provider {
	o := repo.NewOptions(repo.Options{Config: repo.DefaultConfig()}, opts...)
	return &Provider{db: db, config: o.Config, opts: o}
}

// DB returns the underlying GORM handle.
func (p *Provider) DB() *gorm.DB {
	return p.db
}

// Configure applies configuration changes
func (p *Provider) Configure(config repo.Config) error {
	p.config = config
	p.opts.Config = config
	return nil
}

// Health checks the database connection health
func (p *Provider) Health() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return repo.NewErrorWithCause(repo.ErrorTypeConnection, "failed to get underlying sql.DB", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return repo.NewErrorWithCause(repo.ErrorTypeConnection, "ping failed", err)
	}
	return nil
}

// Close closes the database connection
func (p *Provider) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SupportedFeatures returns the list of supported features
func (p *Provider) SupportedFeatures() []repo.Feature {
	return []repo.Feature{
		repo.FeatureTransactions,
		repo.FeatureSoftDelete,
		repo.FeatureSubQueries,
		repo.FeatureRelations,
		repo.FeatureMorphs,
		repo.FeatureJoins,
		repo.FeatureRawSQL,
		repo.FeatureUpsert,
	}
}

// ProviderInfo returns information about this provider
func (p *Provider) ProviderInfo() repo.ProviderInfo {
	return repo.ProviderInfo{
		Name:         "GORM",
		Version:      "1.0.0",
		DatabaseType: repo.DatabaseTypeSQL,
		Features:     p.SupportedFeatures(),
	}
}

func (p *Provider) dialect() string {
	return repo.DialectFor(p.db.Dialector.Name())
}

// =====================================
// DSN Builders
// =====================================

// buildPostgresDSN builds a PostgreSQL DSN
func buildPostgresDSN(config repo.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		config.Host, config.Port, config.Username, config.Password, config.Database)

	if config.SSL.Enabled {
		dsn += " sslmode=" + config.SSL.Mode
		if config.SSL.CertFile != "" {
			dsn += " sslcert=" + config.SSL.CertFile
		}
		if config.SSL.KeyFile != "" {
			dsn += " sslkey=" + config.SSL.KeyFile
		}
		if config.SSL.CAFile != "" {
			dsn += " sslrootcert=" + config.SSL.CAFile
		}
	} else {
		dsn += " sslmode=disable"
	}

	return dsn
}

// buildMySQLDSN builds a MySQL DSN
func buildMySQLDSN(config repo.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.Username, config.Password, config.Host, config.Port, config.Database)

	if config.SSL.Enabled {
		dsn += "&tls=" + config.SSL.Mode
	}

	return dsn
}

// buildSQLServerDSN builds a SQL Server DSN
func buildSQLServerDSN(config repo.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?database=%s",
		config.Username, config.Password, config.Host, config.Port, config.Database)
}

// =====================================
// Registration
// =====================================

func init() {
	repo.RegisterProvider(ProviderName, &Factory{})
}
