package interfaces

import (
	"context"
	"time"

	"wordbounty/internal/ledger"
	"wordbounty/internal/models"

	"github.com/go-redis/redis_rate/v10"
)

type Limiter interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) error
}

type Mutex interface {
	LockContext(ctx context.Context) error
	UnlockContext(ctx context.Context) (bool, error)
}

type Locker interface {
	NewMutex(name string) Mutex
}

type WordValidator interface {
	IsValidWord(ctx context.Context, word string, length int) (bool, error)
}

type ProgressStore interface {
	GetProgress(ctx context.Context, participantID string) (*models.AttemptProgress, error)
	SaveProgress(ctx context.Context, progress *models.AttemptProgress) error
}

// EventCursor remembers the last ledger event already reconciled.
type EventCursor interface {
	GetCursor(ctx context.Context) (uint64, error)
	SetCursor(ctx context.Context, seq uint64) error
}

type Ledger interface {
	CreateBounty(ctx context.Context, call ledger.Call, key ledger.Hash, commitment ledger.Hash, deadline time.Time, metadata string) (*ledger.Receipt, error)
	JoinBounty(ctx context.Context, call ledger.Call, key ledger.Hash) (*ledger.Receipt, error)
	CompleteBounty(ctx context.Context, call ledger.Call, key ledger.Hash, payouts []ledger.Payout, solution string) (*ledger.Receipt, error)
	CancelBounty(ctx context.Context, call ledger.Call, key ledger.Hash) (*ledger.Receipt, error)
	ClaimExpiredBountyRefund(ctx context.Context, call ledger.Call, key ledger.Hash) (*ledger.Receipt, error)
	WithdrawFees(ctx context.Context, call ledger.Call) (*ledger.Receipt, error)
	Pause(ctx context.Context, call ledger.Call) (*ledger.Receipt, error)
	Unpause(ctx context.Context, call ledger.Call) (*ledger.Receipt, error)
	SetFeeBps(ctx context.Context, call ledger.Call, bps int64) (*ledger.Receipt, error)
	EmergencyWithdraw(ctx context.Context, call ledger.Call) (*ledger.Receipt, error)

	GetBounty(ctx context.Context, key ledger.Hash) (*ledger.Record, error)
	IsParticipant(ctx context.Context, key ledger.Hash, addr ledger.Address) (bool, error)
	GetContractBalance(ctx context.Context) (int64, error)
	Globals(ctx context.Context) (ledger.Globals, error)
	Events(ctx context.Context, afterSeq uint64, limit int) ([]ledger.Event, error)
	FindEvent(ctx context.Context, key ledger.Hash, evType ledger.EventType) (*ledger.Event, error)
}

// BountyStore is the off-chain store of bounties, participants, journal
// entries and users. Lookups return sql.ErrNoRows when nothing matches.
type BountyStore interface {
	// RunInTx runs fn in a transaction; tx is only valid inside fn.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx BountyStore) error) error

	InsertBounty(ctx context.Context, bounty *models.Bounty) error
	FindBounty(ctx context.Context, id string) (*models.Bounty, error)
	FindBountyByLedgerKey(ctx context.Context, key string) (*models.Bounty, error)
	ListActiveBounties(ctx context.Context, limit, offset int) ([]*models.Bounty, error)
	// ActivateBounty moves a draft to active; false if it was not a draft.
	ActivateBounty(ctx context.Context, id string, txHash, contractRef *string, at time.Time) (bool, error)
	// TransitionBounty is a status-guarded update; false if the bounty was not in from.
	TransitionBounty(ctx context.Context, id string, from, to models.BountyStatus, at time.Time) (bool, error)
	DeleteDraftBounty(ctx context.Context, id string) error
	IncrementParticipantCount(ctx context.Context, id string) error
	DeleteExpiredDrafts(ctx context.Context, cutoff time.Time) ([]string, error)

	InsertParticipant(ctx context.Context, participant *models.Participant) error
	FindParticipant(ctx context.Context, bountyID, userID string) (*models.Participant, error)
	FindParticipantByWallet(ctx context.Context, bountyID, wallet string) (*models.Participant, error)
	FindParticipantByID(ctx context.Context, id string) (*models.Participant, error)
	ListParticipants(ctx context.Context, bountyID string) ([]*models.Participant, error)
	UpdateParticipant(ctx context.Context, participant *models.Participant) error

	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	UpdateTransaction(ctx context.Context, tx *models.Transaction) error
	ListTransactions(ctx context.Context, bountyID string, txType models.TransactionType) ([]*models.Transaction, error)
	FailPendingDeposits(ctx context.Context, bountyIDs []string, at time.Time) (int64, error)

	FindUser(ctx context.Context, id string) (*models.User, error)
	FindUserByWallet(ctx context.Context, wallet string) (*models.User, error)
	InsertUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	AddUserWinnings(ctx context.Context, userID string, wins int, earnings int64) error

	FindConfig(ctx context.Context, key string) (*models.Config, error)
}
