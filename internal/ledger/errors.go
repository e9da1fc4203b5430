package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrPaused              = errors.New("contract paused")
	ErrNotPaused           = errors.New("contract not paused")
	ErrInvalidCaller       = errors.New("invalid caller")
	ErrBelowMinimum        = errors.New("amount below minimum bounty")
	ErrBountyExists        = errors.New("bounty already exists")
	ErrInvalidDeadline     = errors.New("deadline must be in the future")
	ErrZeroCommitment      = errors.New("solution commitment is zero")
	ErrUnknownBounty       = errors.New("unknown bounty")
	ErrNotActive           = errors.New("bounty not active")
	ErrAlreadyParticipant  = errors.New("already a participant")
	ErrDeadlinePassed      = errors.New("deadline passed")
	ErrNotOwner            = errors.New("caller is not the owner")
	ErrNotCreator          = errors.New("caller is not the creator")
	ErrSolutionMismatch    = errors.New("solution does not match commitment")
	ErrNotParticipant      = errors.New("winner is not a participant")
	ErrInvalidPayout       = errors.New("invalid payout")
	ErrHasParticipants     = errors.New("bounty has participants")
	ErrDeadlineNotReached  = errors.New("deadline not reached")
	ErrFeeTooHigh          = errors.New("fee rate above ceiling")
	ErrNothingToWithdraw   = errors.New("nothing to withdraw")
	ErrInsufficientBalance = errors.New("insufficient contract balance")
)

// RevertError is returned when a guard rejects a call. No state was changed.
type RevertError struct {
	Op     string
	Reason error
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("ledger: %s reverted: %v", e.Op, e.Reason)
}

func (e *RevertError) Unwrap() error {
	return e.Reason
}

func revert(op string, reason error) error {
	return &RevertError{Op: op, Reason: reason}
}

func IsRevert(err error) bool {
	var r *RevertError
	return errors.As(err, &r)
}
