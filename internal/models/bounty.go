package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BountyStatus string

const (
	BountyStatusDraft     BountyStatus = "draft"
	BountyStatusActive    BountyStatus = "active"
	BountyStatusCompleted BountyStatus = "completed"
	BountyStatusCancelled BountyStatus = "cancelled"
	BountyStatusExpired   BountyStatus = "expired"
)

type Criterion string

const (
	CriterionFirstToSolve     Criterion = "first-to-solve"
	CriterionFastestTime      Criterion = "fastest-time"
	CriterionFewestAttempts   Criterion = "fewest-attempts"
	CriterionMostWordsCorrect Criterion = "most-words-correct"
)

func (c Criterion) Valid() bool {
	switch c {
	case CriterionFirstToSolve, CriterionFastestTime, CriterionFewestAttempts, CriterionMostWordsCorrect:
		return true
	}
	return false
}

type Distribution string

const (
	DistributionWinnerTakeAll Distribution = "winner-take-all"
	DistributionSplitTopN     Distribution = "split-top-n"
)

func (d Distribution) Valid() bool {
	return d == DistributionWinnerTakeAll || d == DistributionSplitTopN
}

type Bounty struct {
	bun.BaseModel      `bun:"table:bounty"`
	ID                 string       `bun:"id,pk" json:"id"`
	LedgerKey          string       `bun:"ledger_key,notnull,unique" json:"ledger_key"`
	CreatorID          string       `bun:"creator_id,notnull" json:"creator_id"`
	CreatorWallet      string       `bun:"creator_wallet" json:"creator_wallet"`
	Title              string       `bun:"title" json:"title"`
	PrizeAmount        int64        `bun:"prize_amount,notnull" json:"prize_amount"`
	SolutionCommitment string       `bun:"solution_commitment,notnull" json:"solution_commitment"`
	Words              []string     `bun:"words,type:jsonb" json:"-"`
	WordLength         int          `bun:"word_length" json:"word_length"`
	WordCount          int          `bun:"word_count" json:"word_count"`
	MaxAttempts        int          `bun:"max_attempts" json:"max_attempts"`
	Criterion          Criterion    `bun:"criterion,notnull" json:"criterion"`
	Distribution       Distribution `bun:"distribution,notnull" json:"distribution"`
	Deadline           time.Time    `bun:"deadline,notnull" json:"deadline"`
	Status             BountyStatus `bun:"status,notnull" json:"status"`
	ParticipantCount   int          `bun:"participant_count,notnull,default:0" json:"participant_count"`
	TxHash             *string      `bun:"tx_hash" json:"tx_hash"`
	ContractRef        *string      `bun:"contract_ref" json:"contract_ref"`
	CreatedAt          time.Time    `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt          time.Time    `bun:"updated_at" json:"updated_at"`
	CompletedAt        *time.Time   `bun:"completed_at" json:"completed_at"`
}

func (b *Bounty) IsFree() bool {
	return b.PrizeAmount == 0
}

// Winner is one row of a settlement result.
type Winner struct {
	ParticipantID string `json:"participant_id"`
	UserID        string `json:"user_id"`
	WalletAddress string `json:"wallet_address"`
	Share         int64  `json:"prize_awarded"`
	Rank          int    `json:"rank"`
}
