package repogorm

import (
	"errors"
	"strings"

	"github.com/lemmego/repo"
	"gorm.io/gorm"
)

// =====================================
// Error Conversion
// =====================================

// convertGormError converts GORM errors to repo errors
func convertGormError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repo.Error
	if errors.As(err, &repoErr) {
		return err
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return repo.NewErrorWithCause(repo.ErrorTypeNotFound, "record not found", err)
	case errors.Is(err, gorm.ErrInvalidTransaction):
		return repo.NewErrorWithCause(repo.ErrorTypeTransaction, "invalid transaction", err)
	case errors.Is(err, gorm.ErrNotImplemented):
		return repo.NewErrorWithCause(repo.ErrorTypeUnsupported, "operation not implemented", err)
	case errors.Is(err, gorm.ErrMissingWhereClause):
		return repo.NewErrorWithCause(repo.ErrorTypeValidation, "missing where clause", err)
	case errors.Is(err, gorm.ErrUnsupportedRelation):
		return repo.NewErrorWithCause(repo.ErrorTypeUnsupported, "unsupported relation", err)
	case errors.Is(err, gorm.ErrPrimaryKeyRequired):
		return repo.NewErrorWithCause(repo.ErrorTypeValidation, "primary key required", err)
	case errors.Is(err, gorm.ErrModelValueRequired):
		return repo.NewErrorWithCause(repo.ErrorTypeValidation, "model value required", err)
	case errors.Is(err, gorm.ErrInvalidData):
		return repo.NewErrorWithCause(repo.ErrorTypeValidation, "invalid data", err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return repo.NewErrorWithCause(repo.ErrorTypeDuplicate, "duplicate key violation", err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return repo.NewErrorWithCause(repo.ErrorTypeConstraint, "foreign key violation", err)
	}

	// Check for common database constraint errors
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
