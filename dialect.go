package repo

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect constants
const (
	DialectSQLite = "sqlite"
	DialectMySQL  = "mysql"
	DialectPgSQL  = "pgsql"
	DialectMsSQL  = "mssql"
)

// SupportedDialects is a list of all supported database dialects
var SupportedDialects = []string{
	DialectSQLite,
	DialectMySQL,
	DialectPgSQL,
	DialectMsSQL,
}

// IsDialectSupported checks if the given dialect is supported
func IsDialectSupported(dialect string) bool {
	for _, d := range SupportedDialects {
		if d == dialect {
			return true
		}
	}
	return false
}

// DialectFor maps driver and dialect names reported by ORMs ("postgres",
// "sqlite3", "sqlserver", ...) to a dialect constant.
func DialectFor(name string) string {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return DialectSQLite
	case "mysql", "mariadb":
		return DialectMySQL
	case "postgres", "postgresql", "pg", "pgsql":
		return DialectPgSQL
	case "sqlserver", "mssql":
		return DialectMsSQL
	}
	return ""
}

// DatePartExpr returns the SQL expression extracting part from column in
// dialect. Day, month and year are integers; DATE is a date value (text
// 'YYYY-MM-DD' on SQLite).
func DatePartExpr(dialect string, part DatePart, column string) (string, error) {
	switch dialect {
	case DialectSQLite:
		switch part {
		case DatePartDate:
			return fmt.Sprintf("date(%s)", column), nil
		case DatePartDay:
			return fmt.Sprintf("CAST(strftime('%%d', %s) AS INTEGER)", column), nil
		case DatePartMonth:
			return fmt.Sprintf("CAST(strftime('%%m', %s) AS INTEGER)", column), nil
		case DatePartYear:
			return fmt.Sprintf("CAST(strftime('%%Y', %s) AS INTEGER)", column), nil
		}
	case DialectMySQL:
		switch part {
		case DatePartDate:
			return fmt.Sprintf("DATE(%s)", column), nil
		case DatePartDay:
			return fmt.Sprintf("DAY(%s)", column), nil
		case DatePartMonth:
			return fmt.Sprintf("MONTH(%s)", column), nil
		case DatePartYear:
			return fmt.Sprintf("YEAR(%s)", column), nil
		}
	case DialectPgSQL:
		switch part {
		case DatePartDate:
			return fmt.Sprintf("CAST(%s AS DATE)", column), nil
		case DatePartDay:
			return fmt.Sprintf("EXTRACT(DAY FROM %s)", column), nil
		case DatePartMonth:
			return fmt.Sprintf("EXTRACT(MONTH FROM %s)", column), nil
		case DatePartYear:
			return fmt.Sprintf("EXTRACT(YEAR FROM %s)", column), nil
		}
	case DialectMsSQL:
		switch part {
		case DatePartDate:
			return fmt.Sprintf("CAST(%s AS DATE)", column), nil
		case DatePartDay:
			return fmt.Sprintf("DAY(%s)", column), nil
		case DatePartMonth:
			return fmt.Sprintf("MONTH(%s)", column), nil
		case DatePartYear:
			return fmt.Sprintf("YEAR(%s)", column), nil
		}
	default:
		return "", NewError(ErrorTypeUnsupported, fmt.Sprintf("unsupported dialect %q", dialect))
	}
	return "", invalidf("unknown date part %q", part)
}

// DatePartValue converts a date condition value into the comparable form
// produced by DatePartExpr: time values become 'YYYY-MM-DD' for DATE and
// the day, month or year number otherwise. Numeric strings compared against
// a day, month or year become integers.
func DatePartValue(part DatePart, value interface{}) interface{} {
	if s, ok := value.(string); ok && part != DatePartDate {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return n
		}
		return value
	}
	t, ok := asTime(value)
	if !ok {
		return value
	}
	switch part {
	case DatePartDate:
		return t.Format("2006-01-02")
	case DatePartDay:
		return t.Day()
	case DatePartMonth:
		return int(t.Month())
	case DatePartYear:
		return t.Year()
	}
	return value
}
