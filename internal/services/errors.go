package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"wordbounty/internal/pkg/metrics"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrBountyLock = errors.New("bounty locked")
)

// ValidationError is a malformed request: bad config, unknown id or a
// solution mismatch. Never retried.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func notFound(what string) error {
	return &ValidationError{Msg: what, Err: ErrNotFound}
}

// StateError is a transition the current status does not permit.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string {
	return e.Msg
}

func statef(format string, args ...any) error {
	return &StateError{Msg: fmt.Sprintf(format, args...)}
}

// PaymentError is a ledger call that reverted or timed out. Unknown is set
// when the call may still confirm later.
type PaymentError struct {
	Op      string
	Err     error
	Unknown bool
}

func (e *PaymentError) Error() string {
	if e.Unknown {
		return fmt.Sprintf("payment %s outcome unknown: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("payment %s failed: %v", e.Op, e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

func paymentError(op string, err error) *PaymentError {
	return &PaymentError{
		Op:      op,
		Err:     err,
		Unknown: errors.Is(err, context.DeadlineExceeded),
	}
}

// reconciliationWarning records a non-fatal inconsistency. It is logged,
// never returned.
func reconciliationWarning(logger *slog.Logger, kind string, msg string, args ...any) {
	metrics.ReconciliationWarningsTotal.WithLabelValues(kind).Inc()
	logger.Warn(msg, append([]any{"kind", kind}, args...)...)
}
