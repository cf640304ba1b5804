package repo

import (
	"context"

	"go.uber.org/zap"
)

// =====================================
// Transactions
// =====================================

// Tx is a store transaction
type Tx interface {
	Commit() error
	Rollback() error
}

// Atomically runs fn inside a transaction opened by begin and commits it.
//
// When begin, fn or the commit fails the transaction is rolled back, the
// cause is logged against op and false is returned. A panic in fn rolls back
// and is re-raised.
func Atomically[X Tx](ctx context.Context, logger *zap.Logger, op string, begin func(context.Context) (X, error), fn func(tx X) error) bool {
	tx, err := begin(ctx)
	if err != nil {
		logger.Error("failed to begin transaction", zap.String("op", op), zap.Error(err))
		return false
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("rollback after panic failed", zap.String("op", op), zap.Error(rbErr))
		}
	}()

	if err := fn(tx); err != nil {
		finished = true
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("rollback failed", zap.String("op", op), zap.Error(rbErr))
		}
		logger.Error("transaction rolled back", zap.String("op", op), zap.Error(err))
		return false
	}

	finished = true
	if err := tx.Commit(); err != nil {
		logger.Error("commit failed", zap.String("op", op), zap.Error(err))
		return false
	}
	return true
}

// LogLookupFailure logs a failed lookup: not found at debug level, anything
// else at error level.
func LogLookupFailure(logger *zap.Logger, op string, err error) {
	if IsNotFound(err) {
		logger.Debug("entity not found", zap.String("op", op), zap.Error(err))
		return
	}
	logger.Error("lookup failed", zap.String("op", op), zap.Error(err))
}
