// Package repobun provides a Bun backed implementation of the repo facade
package repobun

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lemmego/repo"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// ProviderName is the name the Bun factory is registered under
const ProviderName = "bun"

// =====================================
// Provider Implementation
// =====================================

// Provider implements repo.Provider using Bun
type Provider struct {
	db     *bun.DB
	config repo.Config
	opts   repo.Options
}

// Factory implements repo.ProviderFactory
type Factory struct{}

// Create creates a new Bun provider instance
func (f *Factory) Create(config repo.Config, opts ...repo.Option) (repo.Provider, error) {
	return New(config, opts...)
}

// SupportedDrivers returns the list of supported database drivers
func (f *Factory) SupportedDrivers() []string {
	return []string{"postgres", "postgresql", "mysql", "sqlite", "sqlite3"}
}

// New opens a Bun connection for config.
//
// Provider options are read from config.Options["bun"]:
//   - "driver": "pq" opens postgres through lib/pq instead of pgdriver
//   - "log_level": "debug" logs every query, anything but "silent" logs failed ones
func New(config repo.Config, opts ...repo.Option) (*Provider, error) {
	bunOpts := config.ProviderOptions(ProviderName)

	var sqlDB *sql.DB
	var err error

	switch strings.ToLower(config.Driver) {
	case "postgres", "postgresql":
		if driver, _ := bunOpts["driver"].(string); driver == "pq" {
			sqlDB, err = createPostgresConnection(config)
		} else {
			sqlDB, err = createPgDriverConnection(config)
		}
	case "mysql":
		sqlDB, err = createMySQLConnection(config)
	case "sqlite", "sqlite3":
		sqlDB, err = createSQLiteConnection(config)
	default:
		return nil, repo.NewError(repo.ErrorTypeUnsupported, fmt.Sprintf("unsupported driver: %s", config.Driver))
	}
	if err != nil {
		return nil, repo.NewErrorWithCause(repo.ErrorTypeConnection, "failed to connect to database", err)
	}

	// Configure connection pool
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

	var bunDB *bun.DB
	switch strings.ToLower(config.Driver) {
	case "postgres", "postgresql":
		bunDB = bun.NewDB(sqlDB, pgdialect.New())
	case "mysql":
		bunDB = bun.NewDB(sqlDB, mysqldialect.New())
	case "sqlite", "sqlite3":
		bunDB = bun.NewDB(sqlDB, sqlitedialect.New())
	}

	if logLevel, ok := bunOpts["log_level"].(string); ok && logLevel != "silent" {
		bunDB.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(logLevel == "debug"),
		))
	}

	return &Provider{
		db:     bunDB,
		config: config,
		opts:   repo.NewOptions(repo.Options{Config: config}, opts...),
	}, nil
}

// NewFromDB wraps an already opened Bun connection.
func NewFromDB(db *bun.DB, opts ...repo.Option) *Provider {
	o := repo.NewOptions(repo.Options{Config: repo.DefaultConfig()}, opts...)
	return &Provider{db: db, config: o.Config, opts: o}
}

// DB returns the underlying Bun handle.
func (p *Provider) DB() *bun.DB {
	return p.db
}

// RegisterModel registers join table models used by many-to-many relations.
func (p *Provider) RegisterModel(models ...interface{}) {
	p.db.RegisterModel(models...)
}

// Configure applies configuration changes
func (p *Provider) Configure(config repo.Config) error {
	p.config = config
	p.opts.Config = config
	return nil
}

// Health checks the database connection health
func (p *Provider) Health() error {
	if err := p.db.DB.Ping(); err != nil {
		return repo.NewErrorWithCause(repo.ErrorTypeConnection, "ping failed", err)
	}
	return nil
}

// Close closes the database connection
func (p *Provider) Close() error {
	return p.db.Close()
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
		Name:         "Bun",
		Version:      "1.0.0",
		DatabaseType: repo.DatabaseTypeSQL,
		Features:     p.SupportedFeatures(),
	}
}

func (p *Provider) dialect() string {
	switch p.db.Dialect().Name() {
	case dialect.PG:
		return repo.DialectPgSQL
	case dialect.MySQL:
		return repo.DialectMySQL
	case dialect.SQLite:
		return repo.DialectSQLite
	case dialect.MSSQL:
		return repo.DialectMsSQL
	}
	return ""
}

// =====================================
// Connection Helpers
// =====================================

// createPgDriverConnection creates a PostgreSQL connection using pgdriver
func createPgDriverConnection(config repo.Config) (*sql.DB, error) {
	connector := pgdriver.NewConnector(pgdriver.WithDSN(buildPostgresDSN(config)))
	return sql.OpenDB(connector), nil
}

// createPostgresConnection creates a PostgreSQL connection using lib/pq
func createPostgresConnection(config repo.Config) (*sql.DB, error) {
	return sql.Open("postgres", buildPostgresDSN(config))
}

// createMySQLConnection creates a MySQL connection
func createMySQLConnection(config repo.Config) (*sql.DB, error) {
	return sql.Open("mysql", buildMySQLDSN(config))
}

// createSQLiteConnection creates a SQLite connection
func createSQLiteConnection(config repo.Config) (*sql.DB, error) {
	return sql.Open("sqlite3", config.Database)
}

// buildPostgresDSN builds a PostgreSQL DSN string
func buildPostgresDSN(config repo.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		config.Username, config.Password, config.Host, config.Port, config.Database)

	params := []string{}
	if config.SSL.Enabled {
		params = append(params, "sslmode="+config.SSL.Mode)
		if config.SSL.CertFile != "" {
			params = append(params, "sslcert="+config.SSL.CertFile)
		}
		if config.SSL.KeyFile != "" {
			params = append(params, "sslkey="+config.SSL.KeyFile)
		}
		if config.SSL.CAFile != "" {
			params = append(params, "sslrootcert="+config.SSL.CAFile)
		}
	} else {
		params = append(params, "sslmode=disable")
	}

	return dsn + "?" + strings.Join(params, "&")
}

// buildMySQLDSN builds a MySQL DSN string
func buildMySQLDSN(config repo.Config) string {
	if config.ConnectionURL != "" {
		return config.ConnectionURL
	}

	mysqlConfig := mysql.NewConfig()
	mysqlConfig.User = config.Username
	mysqlConfig.Passwd = config.Password
	mysqlConfig.Net = "tcp"
	mysqlConfig.Addr = fmt.Sprintf("%s:%d", config.Host, config.Port)
	mysqlConfig.DBName = config.Database
	mysqlConfig.ParseTime = true
	if config.SSL.Enabled {
		mysqlConfig.TLSConfig = config.SSL.Mode
	}

	return mysqlConfig.FormatDSN()
}

// =====================================
// Registration
// =====================================

func init() {
	repo.RegisterProvider(ProviderName, &Factory{})
}
