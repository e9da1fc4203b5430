package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"wordbounty/internal/interfaces"
	"wordbounty/internal/ledger"
	"wordbounty/internal/models"
	"wordbounty/internal/pkg/caching"
	"wordbounty/internal/pkg/metrics"
)

// callLedger runs one contract call under LEDGER_CALL_TIMEOUT. Any failure
// comes back as a *PaymentError.
func callLedger(ctx context.Context, op string, fn func(ctx context.Context) (*ledger.Receipt, error)) (*ledger.Receipt, *PaymentError) {
	ctx, cancel := context.WithTimeout(ctx, LEDGER_CALL_TIMEOUT)
	defer cancel()

	start := time.Now()
	receipt, err := fn(ctx)
	metrics.LedgerCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.LedgerCallsTotal.WithLabelValues(op, "ok").Inc()
		return receipt, nil
	case ledger.IsRevert(err):
		metrics.LedgerCallsTotal.WithLabelValues(op, "revert").Inc()
	case errors.Is(err, context.DeadlineExceeded):
		metrics.LedgerCallsTotal.WithLabelValues(op, "timeout").Inc()
	default:
		metrics.LedgerCallsTotal.WithLabelValues(op, "error").Inc()
	}
	return nil, paymentError(op, err)
}

// moveTransaction walks a journal row through steps and saves it once.
func moveTransaction(ctx context.Context, store interfaces.BountyStore, tx *models.Transaction, at time.Time, steps ...models.TransactionStatus) error {
	for _, to := range steps {
		if !tx.CanTransition(to) {
			return statef("transaction %s cannot move from %s to %s", tx.ID, tx.Status, to)
		}
		tx.Status = to
	}
	tx.UpdatedAt = at
	return store.UpdateTransaction(ctx, tx)
}

// failTransaction marks a journal row failed outside of any transaction.
// Errors are logged; the row stays pending and is visible to an operator.
func failTransaction(ctx context.Context, store interfaces.BountyStore, logger *slog.Logger, tx *models.Transaction, at time.Time, note string) {
	tx.Note = note
	if err := moveTransaction(ctx, store, tx, at, models.TransactionStatusFailed); err != nil {
		logger.Error("failed to mark transaction failed", "transaction_id", tx.ID, "error", err)
	}
}

func invalidateActiveBounties(ctx context.Context, cache caching.Cache, logger *slog.Logger) {
	if err := cache.DeletePattern(ctx, DBKeyActiveBountiesPattern()); err != nil {
		logger.Warn("failed to invalidate active bounties", "error", err)
	}
}

func hashString(h ledger.Hash) *string {
	s := h.Hex()
	return &s
}

func lockBounty(ctx context.Context, locker interfaces.Locker, bountyID string) (interfaces.Mutex, error) {
	mutex := locker.NewMutex(LockKeyBounty(bountyID))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, ErrBountyLock
	}
	return mutex, nil
}

func unlock(ctx context.Context, mutex interfaces.Mutex, logger *slog.Logger) {
	// the lock may already have expired
	if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
		logger.Debug("unlock", "error", err)
	}
}
