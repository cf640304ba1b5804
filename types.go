package repo

import (
	"strings"
	"time"
)

// =====================================
// Core Types and Constants
// =====================================

// Config represents database connection and repository configuration
type Config struct {
	// Connection details
	Driver        string `json:"driver" yaml:"driver" mapstructure:"driver"`
	ConnectionURL string `json:"connection_url" yaml:"connection_url" mapstructure:"connection_url"`
	Host          string `json:"host" yaml:"host" mapstructure:"host"`
	Port          int    `json:"port" yaml:"port" mapstructure:"port"`
	Database      string `json:"database" yaml:"database" mapstructure:"database"`
	Username      string `json:"username" yaml:"username" mapstructure:"username"`
	Password      string `json:"password" yaml:"password" mapstructure:"password"`

	// Connection pool settings
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`

	// Additional provider specific options, keyed by provider name
	Options map[string]interface{} `json:"options" yaml:"options" mapstructure:"options"`

	// SSL/TLS configuration
	SSL SSLConfig `json:"ssl" yaml:"ssl" mapstructure:"ssl"`

	Pagination PaginationConfig `json:"pagination" yaml:"pagination" mapstructure:"pagination"`
	Cache      CacheConfig      `json:"cache" yaml:"cache" mapstructure:"cache"`
}

// SSLConfig represents SSL/TLS configuration
type SSLConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	Mode     string `json:"mode" yaml:"mode" mapstructure:"mode"`
	CertFile string `json:"cert_file" yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file" mapstructure:"key_file"`
	CAFile   string `json:"ca_file" yaml:"ca_file" mapstructure:"ca_file"`
}

// PaginationConfig holds pagination defaults
type PaginationConfig struct {
	Limit    int    `json:"limit" yaml:"limit" mapstructure:"limit"`
	PageName string `json:"page_name" yaml:"page_name" mapstructure:"page_name"`
}

// CacheConfig holds settings for the caching repository decorator
type CacheConfig struct {
	Prefix string        `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
	TTL    time.Duration `json:"ttl" yaml:"ttl" mapstructure:"ttl"`
}

// DefaultPaginationLimit is the page size used when neither the caller nor
// the configuration supplies one.
const DefaultPaginationLimit = 15

// DefaultPageName is the query-string parameter carrying the page number.
const DefaultPageName = "page"

// PageLimit returns the configured page size, falling back to DefaultPaginationLimit.
func (c Config) PageLimit() int {
	if c.Pagination.Limit > 0 {
		return c.Pagination.Limit
	}
	return DefaultPaginationLimit
}

// PageName returns the configured page parameter name.
func (c Config) PageName() string {
	if c.Pagination.PageName != "" {
		return c.Pagination.PageName
	}
	return DefaultPageName
}

// ProviderOptions returns the option map registered for the named provider.
func (c Config) ProviderOptions(name string) map[string]interface{} {
	if c.Options == nil {
		return nil
	}
	if opts, ok := c.Options[name].(map[string]interface{}); ok {
		return opts
	}
	return nil
}

// ProviderInfo contains information about the provider
type ProviderInfo struct {
	Name         string
	Version      string
	DatabaseType DatabaseType
	Features     []Feature
}

// DatabaseType represents the type of database
type DatabaseType string

const (
	DatabaseTypeSQL      DatabaseType = "sql"
	DatabaseTypeDocument DatabaseType = "document"
	DatabaseTypeKV       DatabaseType = "key-value"
)

// Feature represents a provider capability
type Feature string

const (
	FeatureTransactions Feature = "transactions"
	FeatureSoftDelete   Feature = "soft_delete"
	FeatureSubQueries   Feature = "subqueries"
	FeatureRelations    Feature = "relations"
	FeatureMorphs       Feature = "polymorphic_relations"
	FeatureJoins        Feature = "joins"
	FeatureRawSQL       Feature = "raw_sql"
	FeatureUpsert       Feature = "upsert"
	FeatureCache        Feature = "cache"
)

// Operator represents a comparison operator
type Operator string

const (
	OpEqual              Operator = "="
	OpNotEqual           Operator = "!="
	OpNotEqualAlt        Operator = "<>"
	OpGreaterThan        Operator = ">"
	OpGreaterThanOrEqual Operator = ">="
	OpLessThan           Operator = "<"
	OpLessThanOrEqual    Operator = "<="
	OpLike               Operator = "LIKE"
	OpNotLike            Operator = "NOT LIKE"
	OpILike              Operator = "ILIKE"
	OpNotILike           Operator = "NOT ILIKE"
	OpIsNull             Operator = "IS NULL"
	OpIsNotNull          Operator = "IS NOT NULL"
)

var comparisonOperators = map[Operator]struct{}{
	OpEqual:              {},
	OpNotEqual:           {},
	OpNotEqualAlt:        {},
	OpGreaterThan:        {},
	OpGreaterThanOrEqual: {},
	OpLessThan:           {},
	OpLessThanOrEqual:    {},
	OpLike:               {},
	OpNotLike:            {},
	OpILike:              {},
	OpNotILike:           {},
	OpIsNull:             {},
	OpIsNotNull:          {},
}

// ParseOperator normalizes op (case and whitespace) and reports whether it is
// one of the supported comparison operators.
func ParseOperator(op string) (Operator, bool) {
	normalized := Operator(strings.ToUpper(strings.Join(strings.Fields(op), " ")))
	_, ok := comparisonOperators[normalized]
	return normalized, ok
}

// IsNullCheck reports whether the operator takes no operand.
func (o Operator) IsNullCheck() bool {
	return o == OpIsNull || o == OpIsNotNull
}

// Order represents sorting order
type Order struct {
	Field     string
	Direction OrderDirection
}

// OrderDirection represents sort direction
type OrderDirection string

const (
	OrderAsc  OrderDirection = "ASC"
	OrderDesc OrderDirection = "DESC"
)

// JoinClause represents a table join
type JoinClause struct {
	Type      JoinType
	Table     string
	Condition string
	Alias     string
}

// JoinType represents types of table joins
type JoinType string

const (
	JoinInner JoinType = "INNER"
	JoinLeft  JoinType = "LEFT"
	JoinRight JoinType = "RIGHT"
)

// LockType represents database lock types
type LockType string

const (
	LockNone      LockType = "NONE"
	LockForUpdate LockType = "FOR_UPDATE"
	LockForShare  LockType = "FOR_SHARE"
)

// TrashedMode selects how soft-deleted rows take part in a lookup
type TrashedMode int

const (
	// TrashedNone excludes soft-deleted rows.
	TrashedNone TrashedMode = iota
	// TrashedWith includes soft-deleted rows.
	TrashedWith
	// TrashedOnly returns soft-deleted rows only.
	TrashedOnly
)

// String returns the canonical name of the mode
func (m TrashedMode) String() string {
	switch m {
	case TrashedWith:
		return "withTrashed"
	case TrashedOnly:
		return "onlyTrashed"
	default:
		return "none"
	}
}

// ParseTrashedMode parses "none", "withTrashed" and "onlyTrashed" case-insensitively.
// The empty string is TrashedNone.
func ParseTrashedMode(s string) (TrashedMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TrashedNone, nil
	case "withtrashed", "with":
		return TrashedWith, nil
	case "onlytrashed", "only":
		return TrashedOnly, nil
	}
	return TrashedNone, NewError(ErrorTypeInvalidArgument, "unknown trashed mode: "+s)
}

// DatePart names the portion of a date/time column a DateCondition compares
type DatePart string

const (
	DatePartDate  DatePart = "DATE"
	DatePartDay   DatePart = "DAY"
	DatePartMonth DatePart = "MONTH"
	DatePartYear  DatePart = "YEAR"
)

// RelationType represents different types of entity relationships
type RelationType string

const (
	RelationOneToOne   RelationType = "one_to_one"
	RelationOneToMany  RelationType = "one_to_many"
	RelationManyToOne  RelationType = "many_to_one"
	RelationManyToMany RelationType = "many_to_many"
	RelationMorph      RelationType = "polymorphic"
)

// ErrorType represents different types of errors that can occur
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeDuplicate       ErrorType = "duplicate"
	ErrorTypeConnection      ErrorType = "connection"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeConstraint      ErrorType = "constraint"
	ErrorTypeTransaction     ErrorType = "transaction"
	ErrorTypeUnsupported     ErrorType = "unsupported"
	ErrorTypeInternal        ErrorType = "internal"
	ErrorTypeSerialization   ErrorType = "serialization"
	ErrorTypeInvalidArgument ErrorType = "invalid_argument"
	ErrorTypeDatabase        ErrorType = "database"
)
