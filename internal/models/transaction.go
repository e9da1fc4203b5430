package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TransactionType string

const (
	TransactionTypeDeposit       TransactionType = "deposit"
	TransactionTypePrize         TransactionType = "prize"
	TransactionTypeRefund        TransactionType = "refund"
	TransactionTypeFeeWithdrawal TransactionType = "fee_withdrawal"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// Transaction is a journal entry for one value movement on the ledger.
// Amount + Fee is the gross value moved.
type Transaction struct {
	bun.BaseModel `bun:"table:bounty_transaction"`
	ID            string            `bun:"id,pk" json:"id"`
	BountyID      *string           `bun:"bounty_id" json:"bounty_id"`
	UserID        string            `bun:"user_id,notnull" json:"user_id"`
	ParticipantID *string           `bun:"participant_id" json:"participant_id"`
	Type          TransactionType   `bun:"type,notnull" json:"type"`
	Amount        int64             `bun:"amount,notnull" json:"amount"`
	Fee           int64             `bun:"fee,notnull,default:0" json:"fee"`
	TxHash        *string           `bun:"tx_hash" json:"tx_hash"`
	Status        TransactionStatus `bun:"status,notnull" json:"status"`
	Note          string            `bun:"note" json:"note,omitempty"`
	CreatedAt     time.Time         `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time         `bun:"updated_at" json:"updated_at"`
}

func (t *Transaction) Gross() int64 {
	return t.Amount + t.Fee
}

var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:   {TransactionStatusConfirmed, TransactionStatusFailed},
	TransactionStatusConfirmed: {TransactionStatusCompleted},
	// a timed-out ledger call that later confirms
	TransactionStatusFailed: {TransactionStatusCompleted},
}

func (t *Transaction) CanTransition(to TransactionStatus) bool {
	for _, s := range transactionTransitions[t.Status] {
		if s == to {
			return true
		}
	}
	return false
}
