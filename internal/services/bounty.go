package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"wordbounty/internal/interfaces"
	"wordbounty/internal/ledger"
	"wordbounty/internal/models"
	"wordbounty/internal/pkg/caching"
	"wordbounty/internal/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/samber/do"
)

type ServiceBounty struct {
	container *do.Injector
	store     interfaces.BountyStore
	ledger    interfaces.Ledger
	locker    interfaces.Locker
	cache     caching.Cache
	logger    *slog.Logger
	clock     clockwork.Clock

	serviceConfig *ServiceConfig
}

func NewServiceBounty(container *do.Injector) (*ServiceBounty, error) {
	store, err := do.Invoke[interfaces.BountyStore](container)
	if err != nil {
		return nil, err
	}

	contract, err := do.Invoke[interfaces.Ledger](container)
	if err != nil {
		return nil, err
	}

	locker, err := do.Invoke[interfaces.Locker](container)
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	logger, err := do.Invoke[*slog.Logger](container)
	if err != nil {
		return nil, err
	}

	clock, err := do.Invoke[clockwork.Clock](container)
	if err != nil {
		return nil, err
	}

	serviceConfig, err := do.Invoke[*ServiceConfig](container)
	if err != nil {
		return nil, err
	}

	return &ServiceBounty{container, store, contract, locker, cache, logger.With("service", "bounty"), clock, serviceConfig}, nil
}

type CreateBountyInput struct {
	Title        string              `json:"title"`
	Words        []string            `json:"words"`
	PrizeAmount  int64               `json:"prize_amount"`
	Criterion    models.Criterion    `json:"criterion"`
	Distribution models.Distribution `json:"distribution"`
	Deadline     time.Time           `json:"deadline"`
	MaxAttempts  int                 `json:"max_attempts"`
}

func (service *ServiceBounty) validate(ctx context.Context, input *CreateBountyInput) error {
	if len(input.Title) > MAX_TITLE_LENGTH {
		return validationf("title is longer than %d characters", MAX_TITLE_LENGTH)
	}
	if len(input.Words) == 0 || len(input.Words) > MAX_WORDS {
		return validationf("a bounty needs between 1 and %d words", MAX_WORDS)
	}

	length := 0
	for i, w := range input.Words {
		w = strings.ToLower(strings.TrimSpace(w))
		n := len([]rune(w))
		if n < MIN_WORD_LENGTH || n > MAX_WORD_LENGTH {
			return validationf("word %d must have between %d and %d letters", i+1, MIN_WORD_LENGTH, MAX_WORD_LENGTH)
		}
		for _, r := range w {
			if !unicode.IsLetter(r) {
				return validationf("word %d must only contain letters", i+1)
			}
		}
		if length != 0 && n != length {
			return validationf("all words must have the same length")
		}
		length = n
		input.Words[i] = w
	}

	if input.PrizeAmount < 0 {
		return validationf("prize amount must not be negative")
	}
	if !input.Criterion.Valid() {
		return validationf("unknown criterion %q", input.Criterion)
	}
	if !input.Distribution.Valid() {
		return validationf("unknown distribution %q", input.Distribution)
	}
	if !input.Deadline.After(service.clock.Now()) {
		return validationf("deadline must be in the future")
	}

	if input.MaxAttempts == 0 {
		input.MaxAttempts, _ = service.serviceConfig.GetIntConfig(ctx, CONFIG_DEFAULT_MAX_ATTEMPTS, DEFAULT_MAX_ATTEMPTS)
	}
	if input.MaxAttempts < 1 || input.MaxAttempts > MAX_ATTEMPTS_CAP {
		return validationf("max attempts must be between 1 and %d", MAX_ATTEMPTS_CAP)
	}
	return nil
}

// CreateBounty stores a draft, locks the prize on the ledger and activates
// the bounty. A failed deposit leaves no bounty behind.
func (service *ServiceBounty) CreateBounty(ctx context.Context, creatorID string, input CreateBountyInput) (*models.Bounty, error) {
	input.Words = append([]string(nil), input.Words...)
	if err := service.validate(ctx, &input); err != nil {
		return nil, err
	}

	creator, err := service.store.FindUser(ctx, creatorID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("creator not found")
	}
	if err != nil {
		return nil, err
	}
	if !input.isFree() && creator.Wallet() == "" {
		return nil, validationf("connect a wallet before funding a bounty")
	}

	now := service.clock.Now().UTC()
	id := uuid.NewString()
	key := ledger.KeyFor(id)
	solution := ledger.NormalizeSolution(input.Words)
	commitment := ledger.Commit(solution)

	bounty := &models.Bounty{
		ID:                 id,
		LedgerKey:          key.Hex(),
		CreatorID:          creator.ID,
		CreatorWallet:      creator.Wallet(),
		Title:              input.Title,
		PrizeAmount:        input.PrizeAmount,
		SolutionCommitment: commitment.Hex(),
		Words:              input.Words,
		WordLength:         len([]rune(input.Words[0])),
		WordCount:          len(input.Words),
		MaxAttempts:        input.MaxAttempts,
		Criterion:          input.Criterion,
		Distribution:       input.Distribution,
		Deadline:           input.Deadline.UTC(),
		Status:             models.BountyStatusDraft,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := service.store.InsertBounty(ctx, bounty); err != nil {
		return nil, err
	}

	if bounty.IsFree() {
		if err := service.activate(ctx, service.store, bounty, nil, nil); err != nil {
			return nil, err
		}
		service.activated(ctx, bounty)
		return bounty, nil
	}

	deposit := &models.Transaction{
		ID:        uuid.NewString(),
		BountyID:  &bounty.ID,
		UserID:    creator.ID,
		Type:      models.TransactionTypeDeposit,
		Amount:    bounty.PrizeAmount,
		Status:    models.TransactionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := service.store.InsertTransaction(ctx, deposit); err != nil {
		service.discardDraft(ctx, bounty)
		return nil, err
	}

	receipt, perr := callLedger(ctx, "createBounty", func(ctx context.Context) (*ledger.Receipt, error) {
		call := ledger.Call{From: ledger.Address(bounty.CreatorWallet), Value: bounty.PrizeAmount}
		return service.ledger.CreateBounty(ctx, call, key, commitment, bounty.Deadline, metadata(bounty))
	})
	if perr != nil {
		failTransaction(ctx, service.store, service.logger, deposit, service.clock.Now(), perr.Error())
		service.discardDraft(ctx, bounty)
		if perr.Unknown {
			reconciliationWarning(service.logger, "deposit_unknown", "deposit outcome unknown, draft discarded", "bounty_id", bounty.ID, "error", perr.Err)
		}
		return nil, perr
	}

	txHash := hashString(receipt.TxHash)
	err = service.store.RunInTx(ctx, func(ctx context.Context, tx interfaces.BountyStore) error {
		deposit.TxHash = txHash
		if err := moveTransaction(ctx, tx, deposit, service.clock.Now(), models.TransactionStatusConfirmed, models.TransactionStatusCompleted); err != nil {
			return err
		}
		return service.activate(ctx, tx, bounty, txHash, hashString(key))
	})
	if err != nil {
		reconciliationWarning(service.logger, "orphan_deposit", "deposit locked on the ledger but the bounty was not activated", "bounty_id", bounty.ID, "tx_hash", *txHash, "error", err)
		return nil, err
	}

	service.activated(ctx, bounty)
	return bounty, nil
}

func (input *CreateBountyInput) isFree() bool {
	return input.PrizeAmount == 0
}

func metadata(bounty *models.Bounty) string {
	if len(bounty.Title) > MAX_METADATA_SIZE {
		return bounty.Title[:MAX_METADATA_SIZE]
	}
	return bounty.Title
}

func (service *ServiceBounty) activate(ctx context.Context, store interfaces.BountyStore, bounty *models.Bounty, txHash, contractRef *string) error {
	now := service.clock.Now().UTC()
	ok, err := store.ActivateBounty(ctx, bounty.ID, txHash, contractRef, now)
	if err != nil {
		return err
	}
	if !ok {
		return statef("bounty %s is no longer a draft", bounty.ID)
	}

	bounty.Status = models.BountyStatusActive
	bounty.TxHash = txHash
	bounty.ContractRef = contractRef
	bounty.UpdatedAt = now
	return nil
}

func (service *ServiceBounty) activated(ctx context.Context, bounty *models.Bounty) {
	metrics.BountyTransitionsTotal.WithLabelValues(string(models.BountyStatusActive)).Inc()
	invalidateActiveBounties(ctx, service.cache, service.logger)
	service.logger.Info("bounty activated", "bounty_id", bounty.ID, "prize", bounty.PrizeAmount)
}

func (service *ServiceBounty) discardDraft(ctx context.Context, bounty *models.Bounty) {
	// the sweeper removes it later if this fails
	if err := service.store.DeleteDraftBounty(ctx, bounty.ID); err != nil {
		service.logger.Error("failed to delete draft", "bounty_id", bounty.ID, "error", err)
	}
}

func findBounty(ctx context.Context, store interfaces.BountyStore, id string) (*models.Bounty, error) {
	bounty, err := store.FindBounty(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("bounty not found")
	}
	return bounty, err
}

// GetBounty hides drafts from everyone but their creator.
func (service *ServiceBounty) GetBounty(ctx context.Context, id string, requesterID string) (*models.Bounty, error) {
	bounty, err := findBounty(ctx, service.store, id)
	if err != nil {
		return nil, err
	}
	if bounty.Status == models.BountyStatusDraft && bounty.CreatorID != requesterID {
		return nil, notFound("bounty not found")
	}
	return bounty, nil
}

func (service *ServiceBounty) ListActiveBounties(ctx context.Context, limit, offset int) ([]*models.Bounty, error) {
	if limit <= 0 || limit > LIST_LIMIT_MAX {
		limit = LIST_LIMIT_MAX
	}
	if offset < 0 {
		offset = 0
	}

	ttl, _ := service.serviceConfig.GetIntConfig(ctx, CONFIG_ACTIVE_LIST_CACHE_SECS, DEFAULT_ACTIVE_LIST_CACHE_SECS)
	callback := func() ([]*models.Bounty, error) {
		return service.store.ListActiveBounties(ctx, limit, offset)
	}
	return caching.UseCache(ctx, service.cache, DBKeyActiveBounties(limit, offset), time.Duration(ttl)*time.Second, callback)
}

// JoinBounty registers the user on the ledger and off-chain. Joining twice
// returns the existing participant.
func (service *ServiceBounty) JoinBounty(ctx context.Context, bountyID string, userID string) (*models.Participant, error) {
	user, err := service.store.FindUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user not found")
	}
	if err != nil {
		return nil, err
	}

	mutex, err := lockBounty(ctx, service.locker, bountyID)
	if err != nil {
		return nil, err
	}
	defer unlock(ctx, mutex, service.logger)

	bounty, err := findBounty(ctx, service.store, bountyID)
	if err != nil {
		return nil, err
	}

	participant, err := service.store.FindParticipant(ctx, bountyID, userID)
	if err == nil {
		return participant, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if bounty.Status != models.BountyStatusActive {
		if bounty.Status == models.BountyStatusDraft {
			return nil, notFound("bounty not found")
		}
		return nil, statef("bounty is %s", bounty.Status)
	}
	if !service.clock.Now().Before(bounty.Deadline) {
		return nil, statef("bounty deadline has passed")
	}
	if bounty.CreatorID == userID {
		return nil, validationf("creators cannot join their own bounty")
	}
	if !bounty.IsFree() && user.Wallet() == "" {
		return nil, validationf("connect a wallet before joining")
	}

	// the wallet may have been handed over by a user who already joined
	if user.Wallet() != "" {
		holder, err := service.store.FindParticipantByWallet(ctx, bounty.ID, user.Wallet())
		if err == nil {
			service.logger.Warn("wallet already joined bounty", "bounty_id", bounty.ID, "user_id", user.ID, "holder_id", holder.UserID)
			return nil, validationf("wallet already joined this bounty")
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
	}

	if !bounty.IsFree() {
		_, perr := callLedger(ctx, "joinBounty", func(ctx context.Context) (*ledger.Receipt, error) {
			return service.ledger.JoinBounty(ctx, ledger.Call{From: ledger.Address(user.Wallet())}, ledger.KeyFor(bounty.ID))
		})
		// a previous join reached the ledger but not the database
		if perr != nil && !errors.Is(perr, ledger.ErrAlreadyParticipant) {
			return nil, perr
		}
	}

	now := service.clock.Now().UTC()
	participant = &models.Participant{
		ID:            uuid.NewString(),
		BountyID:      bounty.ID,
		UserID:        user.ID,
		WalletAddress: user.Wallet(),
		Status:        models.ParticipantStatusJoined,
		JoinedAt:      now,
	}
	err = service.store.RunInTx(ctx, func(ctx context.Context, tx interfaces.BountyStore) error {
		if err := tx.InsertParticipant(ctx, participant); err != nil {
			return err
		}
		return tx.IncrementParticipantCount(ctx, bounty.ID)
	})
	if err != nil {
		return nil, err
	}

	invalidateActiveBounties(ctx, service.cache, service.logger)
	return participant, nil
}

type RefundResult struct {
	BountyID string              `json:"bounty_id"`
	Status   models.BountyStatus `json:"status"`
	Refund   *models.Transaction `json:"refund"`
}

// CancelBounty refunds the creator of a bounty nobody joined.
func (service *ServiceBounty) CancelBounty(ctx context.Context, bountyID string, requesterID string) (*RefundResult, error) {
	return service.refund(ctx, bountyID, requesterID, models.BountyStatusCancelled, func(bounty *models.Bounty) error {
		if bounty.ParticipantCount > 0 {
			return statef("bounty has %d participants", bounty.ParticipantCount)
		}
		return nil
	}, service.ledger.CancelBounty)
}

// ClaimExpiredRefund refunds the creator once the deadline passed without
// a settlement.
func (service *ServiceBounty) ClaimExpiredRefund(ctx context.Context, bountyID string, requesterID string) (*RefundResult, error) {
	return service.refund(ctx, bountyID, requesterID, models.BountyStatusExpired, func(bounty *models.Bounty) error {
		if service.clock.Now().Before(bounty.Deadline) {
			return statef("bounty deadline has not been reached")
		}
		return nil
	}, service.ledger.ClaimExpiredBountyRefund)
}

type ledgerRefundFunc func(ctx context.Context, call ledger.Call, key ledger.Hash) (*ledger.Receipt, error)

func (service *ServiceBounty) refund(ctx context.Context, bountyID string, requesterID string, to models.BountyStatus, guard func(*models.Bounty) error, call ledgerRefundFunc) (*RefundResult, error) {
	mutex, err := lockBounty(ctx, service.locker, bountyID)
	if err != nil {
		return nil, err
	}
	defer unlock(ctx, mutex, service.logger)

	bounty, err := findBounty(ctx, service.store, bountyID)
	if err != nil {
		return nil, err
	}
	if bounty.CreatorID != requesterID {
		return nil, validationf("only the creator can refund a bounty")
	}
	if bounty.Status != models.BountyStatusActive {
		return nil, statef("bounty is %s", bounty.Status)
	}
	if err := guard(bounty); err != nil {
		return nil, err
	}

	result := &RefundResult{BountyID: bounty.ID, Status: to}
	if bounty.IsFree() {
		if err := service.transition(ctx, service.store, bounty, to); err != nil {
			return nil, err
		}
		invalidateActiveBounties(ctx, service.cache, service.logger)
		return result, nil
	}

	now := service.clock.Now().UTC()
	refund := &models.Transaction{
		ID:        uuid.NewString(),
		BountyID:  &bounty.ID,
		UserID:    bounty.CreatorID,
		Type:      models.TransactionTypeRefund,
		Amount:    bounty.PrizeAmount,
		Status:    models.TransactionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := service.store.InsertTransaction(ctx, refund); err != nil {
		return nil, err
	}

	op := "cancelBounty"
	if to == models.BountyStatusExpired {
		op = "claimExpiredBountyRefund"
	}
	receipt, perr := callLedger(ctx, op, func(ctx context.Context) (*ledger.Receipt, error) {
		return call(ctx, ledger.Call{From: ledger.Address(bounty.CreatorWallet)}, ledger.KeyFor(bounty.ID))
	})
	if perr != nil {
		failTransaction(ctx, service.store, service.logger, refund, service.clock.Now(), perr.Error())
		if perr.Unknown {
			reconciliationWarning(service.logger, "refund_unknown", "refund outcome unknown", "bounty_id", bounty.ID, "error", perr.Err)
		}
		return nil, perr
	}

	refund.TxHash = hashString(receipt.TxHash)
	err = service.store.RunInTx(ctx, func(ctx context.Context, tx interfaces.BountyStore) error {
		if err := moveTransaction(ctx, tx, refund, service.clock.Now(), models.TransactionStatusConfirmed, models.TransactionStatusCompleted); err != nil {
			return err
		}
		return service.transition(ctx, tx, bounty, to)
	})
	if err != nil {
		service.logger.Error("refund paid but not recorded", "bounty_id", bounty.ID, "tx_hash", *refund.TxHash, "error", err)
		return nil, err
	}

	invalidateActiveBounties(ctx, service.cache, service.logger)
	service.logger.Info("bounty refunded", "bounty_id", bounty.ID, "status", to, "tx_hash", *refund.TxHash)
	result.Refund = refund
	return result, nil
}

func (service *ServiceBounty) transition(ctx context.Context, store interfaces.BountyStore, bounty *models.Bounty, to models.BountyStatus) error {
	ok, err := store.TransitionBounty(ctx, bounty.ID, bounty.Status, to, service.clock.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return statef("bounty %s changed status concurrently", bounty.ID)
	}
	bounty.Status = to
	metrics.BountyTransitionsTotal.WithLabelValues(string(to)).Inc()
	return nil
}
