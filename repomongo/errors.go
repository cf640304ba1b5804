package repomongo

import (
	"context"
	"errors"
	"strings"

	"github.com/lemmego/repo"
	"go.mongodb.org/mongo-driver/mongo"
)

// =====================================
// Error Conversion
// =====================================

// convertMongoError converts MongoDB errors to repo errors
func convertMongoError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repo.Error
	if errors.As(err, &repoErr) {
		return err
	}

	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return repo.NewErrorWithCause(repo.ErrorTypeNotFound, "document not found", err)
	case errors.Is(err, mongo.ErrNilDocument), errors.Is(err, mongo.ErrNilValue):
		return repo.NewErrorWithCause(repo.ErrorTypeValidation, "nil document provided", err)
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err):
		return repo.NewErrorWithCause(repo.ErrorTypeTimeout, "operation timeout", err)
	case mongo.IsDuplicateKeyError(err):
		return repo.NewErrorWithCause(repo.ErrorTypeDuplicate, "duplicate key violation", err)
	case mongo.IsNetworkError(err):
		return repo.NewErrorWithCause(repo.ErrorTypeConnection, "connection error", err)
	}

	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, we := range writeErr.WriteErrors {
			if we.Code == 121 { // DocumentValidationFailure
				return repo.NewErrorWithCause(repo.ErrorTypeValidation, "document validation failed", err)
			}
		}
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case 26: // NamespaceNotFound
			return repo.NewErrorWithCause(repo.ErrorTypeNotFound, "collection not found", err)
		case 13, 18: // Unauthorized, AuthenticationFailed
			return repo.NewErrorWithCause(repo.ErrorTypeConnection, "authentication failed", err)
		case 20, 251, 244, 263: // IllegalOperation, NoSuchTransaction, TransactionTooOld, OperationNotSupportedInTransaction
			return repo.NewErrorWithCause(repo.ErrorTypeTransaction, "transaction failed", err)
		}
		if cmdErr.HasErrorLabel("TransientTransactionError") {
			return repo.NewErrorWithCause(repo.ErrorTypeTransaction, "transaction aborted", err)
		}
	}

	// Fall back to the message for errors the driver does not classify
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "transaction numbers are only allowed"):
		return repo.NewErrorWithCause(repo.ErrorTypeTransaction, "transactions need a replica set", err)
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "server selection"):
		return repo.NewErrorWithCause(repo.ErrorTypeConnection, "connection error", err)
	}

	return repo.NewErrorWithCause(repo.ErrorTypeDatabase, "database operation failed", err)
}
