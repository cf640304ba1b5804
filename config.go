package repo

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfig returns the configuration used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Pagination: PaginationConfig{
			Limit:    DefaultPaginationLimit,
			PageName: DefaultPageName,
		},
		Cache: CacheConfig{
			Prefix: "repo",
		},
	}
}

// LoadConfig reads repository.yaml from configPath, then applies
// REPOSITORY_* environment overrides (REPOSITORY_PAGINATION_LIMIT,
// REPOSITORY_DRIVER, ...). A missing file is not an error.
func LoadConfig(configPath string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("repository")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("REPOSITORY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"driver", "connection_url", "host", "port", "database", "username", "password",
		"max_open_conns", "max_idle_conns", "conn_max_lifetime", "conn_max_idle_time",
		"pagination.limit", "pagination.page_name", "cache.prefix", "cache.ttl",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, NewErrorWithCause(ErrorTypeValidation, "failed to read repository config", err)
		}
	}

	if v.IsSet("driver") {
		cfg.Driver = v.GetString("driver")
	}
	if v.IsSet("connection_url") {
		cfg.ConnectionURL = v.GetString("connection_url")
	}
	if v.IsSet("host") {
		cfg.Host = v.GetString("host")
	}
	if v.IsSet("port") {
		cfg.Port = v.GetInt("port")
	}
	if v.IsSet("database") {
		cfg.Database = v.GetString("database")
	}
	if v.IsSet("username") {
		cfg.Username = v.GetString("username")
	}
	if v.IsSet("password") {
		cfg.Password = v.GetString("password")
	}
	if v.IsSet("max_open_conns") {
		cfg.MaxOpenConns = v.GetInt("max_open_conns")
	}
	if v.IsSet("max_idle_conns") {
		cfg.MaxIdleConns = v.GetInt("max_idle_conns")
	}
	if v.IsSet("conn_max_lifetime") {
		cfg.ConnMaxLifetime = v.GetDuration("conn_max_lifetime")
	}
	if v.IsSet("conn_max_idle_time") {
		cfg.ConnMaxIdleTime = v.GetDuration("conn_max_idle_time")
	}
	if v.IsSet("ssl") {
		if err := v.UnmarshalKey("ssl", &cfg.SSL); err != nil {
			return cfg, NewErrorWithCause(ErrorTypeValidation, "invalid ssl section", err)
		}
	}
	if v.IsSet("options") {
		cfg.Options = v.GetStringMap("options")
	}
	if v.IsSet("pagination.limit") {
		cfg.Pagination.Limit = v.GetInt("pagination.limit")
	}
	if v.IsSet("pagination.page_name") {
		cfg.Pagination.PageName = v.GetString("pagination.page_name")
	}
	if v.IsSet("cache.prefix") {
		cfg.Cache.Prefix = v.GetString("cache.prefix")
	}
	if v.IsSet("cache.ttl") {
		cfg.Cache.TTL = v.GetDuration("cache.ttl")
	}

	if cfg.Pagination.Limit <= 0 {
		return cfg, NewError(ErrorTypeValidation, "pagination.limit must be positive")
	}
	return cfg, nil
}
