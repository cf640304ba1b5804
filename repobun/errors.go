package repobun

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lemmego/repo"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/driver/pgdriver"
)

// =====================================
// Error Conversion
// =====================================

// convertBunError converts Bun and driver errors to repo errors
func convertBunError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repo.Error
	if errors.As(err, &repoErr) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return repo.NewErrorWithCause(repo.ErrorTypeNotFound, "record not found", err)
	}
	if errors.Is(err, sql.ErrTxDone) {
		return repo.NewErrorWithCause(repo.ErrorTypeTransaction, "transaction already finished", err)
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return repo.NewErrorWithCause(repo.ErrorTypeDuplicate, "duplicate key violation", err)
		case sqlite3.ErrConstraintForeignKey:
			return repo.NewErrorWithCause(repo.ErrorTypeConstraint, "foreign key violation", err)
		}
		if sqliteErr.Code == sqlite3.ErrConstraint {
			return repo.NewErrorWithCause(repo.ErrorTypeConstraint, "constraint violation", err)
		}
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1062:
			return repo.NewErrorWithCause(repo.ErrorTypeDuplicate, "duplicate key violation", err)
		case 1451, 1452:
			return repo.NewErrorWithCause(repo.ErrorTypeConstraint, "foreign key violation", err)
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return repo.NewErrorWithCause(repo.ErrorTypeDuplicate, "duplicate key violation", err)
		case "foreign_key_violation", "check_violation", "not_null_violation":
			return repo.NewErrorWithCause(repo.ErrorTypeConstraint, "constraint violation", err)
		}
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Field('C') == "23505":
			return repo.NewErrorWithCause(repo.ErrorTypeDuplicate, "duplicate key violation", err)
		case pgErr.IntegrityViolation():
			return repo.NewErrorWithCause(repo.ErrorTypeConstraint, "constraint violation", err)
		case pgErr.StatementTimeout():
			return repo.NewErrorWithCause(repo.ErrorTypeTimeout, "operation timeout", err)
		}
	}

	// Fall back to the message for drivers without typed errors
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "duplicate") || strings.Contains(errStr, "unique"):
		return repo.NewErrorWithCause(repo.ErrorTypeDuplicate, "duplicate key violation", err)
	case strings.Contains(errStr, "foreign key") || strings.Contains(errStr, "constraint"):
		return repo.NewErrorWithCause(repo.ErrorTypeConstraint, "constraint violation", err)
	case strings.Contains(errStr, "timeout"):
		return repo.NewErrorWithCause(repo.ErrorTypeTimeout, "operation timeout", err)
	case strings.Contains(errStr, "connection"):
		return repo.NewErrorWithCause(repo.ErrorTypeConnection, "connection error", err)
	}

	return repo.NewErrorWithCause(repo.ErrorTypeDatabase, "database operation failed", err)
}
