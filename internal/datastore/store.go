package datastore

import (
	"context"
	"time"

	"wordbounty/internal/interfaces"
	"wordbounty/internal/models"

	"github.com/uptrace/bun"
)

// Store binds the datastore functions to a database handle.
type Store struct {
	db bun.IDB
}

var _ interfaces.BountyStore = (*Store)(nil)

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.BountyStore) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Store{db: tx})
	})
}

func (s *Store) InsertBounty(ctx context.Context, bounty *models.Bounty) error {
	return InsertBounty(ctx, s.db, bounty)
}

func (s *Store) FindBounty(ctx context.Context, id string) (*models.Bounty, error) {
	return FindBountyByID(ctx, s.db, id)
}

func (s *Store) FindBountyByLedgerKey(ctx context.Context, key string) (*models.Bounty, error) {
	return FindBountyByLedgerKey(ctx, s.db, key)
}

func (s *Store) ListActiveBounties(ctx context.Context, limit, offset int) ([]*models.Bounty, error) {
	return ListActiveBounties(ctx, s.db, limit, offset)
}

func (s *Store) ActivateBounty(ctx context.Context, id string, txHash, contractRef *string, at time.Time) (bool, error) {
	return ActivateBounty(ctx, s.db, id, txHash, contractRef, at)
}

func (s *Store) TransitionBounty(ctx context.Context, id string, from, to models.BountyStatus, at time.Time) (bool, error) {
	return TransitionBounty(ctx, s.db, id, from, to, at)
}

func (s *Store) DeleteDraftBounty(ctx context.Context, id string) error {
	return DeleteDraftBounty(ctx, s.db, id)
}

func (s *Store) IncrementParticipantCount(ctx context.Context, id string) error {
	return IncrementParticipantCount(ctx, s.db, id)
}

func (s *Store) DeleteExpiredDrafts(ctx context.Context, cutoff time.Time) ([]string, error) {
	return DeleteExpiredDrafts(ctx, s.db, cutoff)
}

func (s *Store) InsertParticipant(ctx context.Context, participant *models.Participant) error {
	return InsertParticipant(ctx, s.db, participant)
}

func (s *Store) FindParticipant(ctx context.Context, bountyID, userID string) (*models.Participant, error) {
	return FindParticipant(ctx, s.db, bountyID, userID)
}

func (s *Store) FindParticipantByWallet(ctx context.Context, bountyID, wallet string) (*models.Participant, error) {
	return FindParticipantByWallet(ctx, s.db, bountyID, wallet)
}

func (s *Store) FindParticipantByID(ctx context.Context, id string) (*models.Participant, error) {
	return FindParticipantByID(ctx, s.db, id)
}

func (s *Store) ListParticipants(ctx context.Context, bountyID string) ([]*models.Participant, error) {
	return ListParticipantsByBounty(ctx, s.db, bountyID)
}

func (s *Store) UpdateParticipant(ctx context.Context, participant *models.Participant) error {
	return UpdateParticipant(ctx, s.db, participant)
}

func (s *Store) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	return InsertTransaction(ctx, s.db, tx)
}

func (s *Store) UpdateTransaction(ctx context.Context, tx *models.Transaction) error {
	return UpdateTransaction(ctx, s.db, tx)
}

func (s *Store) ListTransactions(ctx context.Context, bountyID string, txType models.TransactionType) ([]*models.Transaction, error) {
	return ListTransactions(ctx, s.db, bountyID, txType)
}

func (s *Store) FailPendingDeposits(ctx context.Context, bountyIDs []string, at time.Time) (int64, error) {
	return FailPendingDeposits(ctx, s.db, bountyIDs, at)
}

func (s *Store) FindUser(ctx context.Context, id string) (*models.User, error) {
	return FindUserByID(ctx, s.db, id)
}

func (s *Store) FindUserByWallet(ctx context.Context, wallet string) (*models.User, error) {
	return FindUserByWallet(ctx, s.db, wallet)
}

func (s *Store) InsertUser(ctx context.Context, user *models.User) error {
	_, err := CreateUser(ctx, s.db, user)
	return err
}

func (s *Store) UpdateUser(ctx context.Context, user *models.User) error {
	_, err := EditUser(ctx, s.db, user)
	return err
}

func (s *Store) AddUserWinnings(ctx context.Context, userID string, wins int, earnings int64) error {
	return AddUserWinnings(ctx, s.db, userID, wins, earnings)
}

func (s *Store) FindConfig(ctx context.Context, key string) (*models.Config, error) {
	return GetConfigByKey(ctx, s.db, key)
}
