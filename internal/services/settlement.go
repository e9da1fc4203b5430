package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sort"

	"wordbounty/internal/interfaces"
	"wordbounty/internal/ledger"
	"wordbounty/internal/models"
	"wordbounty/internal/pkg/caching"
	"wordbounty/internal/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/samber/do"
)

var errAlreadySettled = errors.New("bounty already settled")

type ServiceSettlement struct {
	container *do.Injector
	store     interfaces.BountyStore
	ledger    interfaces.Ledger
	locker    interfaces.Locker
	cursor    interfaces.EventCursor
	cache     caching.Cache
	logger    *slog.Logger
	clock     clockwork.Clock
	owner     ledger.Address
}

func NewServiceSettlement(container *do.Injector) (*ServiceSettlement, error) {
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

	cursor, err := do.Invoke[interfaces.EventCursor](container)
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

	vs, err := do.InvokeNamed[map[string]string](container, "envs")
	if err != nil {
		return nil, err
	}

	return &ServiceSettlement{container, store, contract, locker, cursor, cache, logger.With("service", "settlement"), clock, ledger.Address(vs["LEDGER_OWNER"])}, nil
}

type SettlementResult struct {
	BountyID       string          `json:"bounty_id"`
	Winners        []models.Winner `json:"winners"`
	TxHash         *string         `json:"tx_hash"`
	AlreadySettled bool            `json:"already_settled"`
}

// CompleteAndSettle picks the winners of an active bounty and pays them
// through the ledger. Calling it again on a completed bounty returns the
// stored winners without paying twice.
func (service *ServiceSettlement) CompleteAndSettle(ctx context.Context, bountyID string) (*SettlementResult, error) {
	mutex, err := lockBounty(ctx, service.locker, bountyID)
	if err != nil {
		return nil, err
	}
	defer unlock(ctx, mutex, service.logger)

	bounty, err := findBounty(ctx, service.store, bountyID)
	if err != nil {
		return nil, err
	}
	if bounty.Status == models.BountyStatusCompleted {
		return service.settled(ctx, bounty)
	}
	if bounty.Status != models.BountyStatusActive {
		return nil, statef("bounty is %s", bounty.Status)
	}

	prizes, err := service.store.ListTransactions(ctx, bounty.ID, models.TransactionTypePrize)
	if err != nil {
		return nil, err
	}
	for _, p := range prizes {
		if p.Status == models.TransactionStatusPending {
			return nil, statef("a settlement of bounty %s is already in flight", bounty.ID)
		}
	}

	participants, err := service.store.ListParticipants(ctx, bounty.ID)
	if err != nil {
		return nil, err
	}
	winners := DetermineWinners(bounty, participants)
	if len(winners) == 0 {
		metrics.SettlementsTotal.WithLabelValues("no_winners").Inc()
		return nil, statef("no eligible participants")
	}

	var rows []*models.Transaction
	err = service.store.RunInTx(ctx, func(ctx context.Context, tx interfaces.BountyStore) error {
		now := service.clock.Now().UTC()
		ok, err := tx.TransitionBounty(ctx, bounty.ID, models.BountyStatusActive, models.BountyStatusCompleted, now)
		if err != nil {
			return err
		}
		if !ok {
			return errAlreadySettled
		}

		for _, w := range winners {
			p, err := tx.FindParticipantByID(ctx, w.ParticipantID)
			if err != nil {
				return err
			}
			p.Winner = true
			p.Rank = w.Rank
			p.PrizeShare = w.Share
			p.Status = models.ParticipantStatusCompleted
			if err := tx.UpdateParticipant(ctx, p); err != nil {
				return err
			}
			if err := tx.AddUserWinnings(ctx, w.UserID, 1, w.Share); err != nil {
				return err
			}

			if bounty.IsFree() {
				continue
			}
			row := &models.Transaction{
				ID:            uuid.NewString(),
				BountyID:      &bounty.ID,
				UserID:        w.UserID,
				ParticipantID: &p.ID,
				Type:          models.TransactionTypePrize,
				Amount:        w.Share,
				Status:        models.TransactionStatusPending,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.InsertTransaction(ctx, row); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	if errors.Is(err, errAlreadySettled) {
		return service.settled(ctx, bounty)
	}
	if err != nil {
		return nil, err
	}

	metrics.BountyTransitionsTotal.WithLabelValues(string(models.BountyStatusCompleted)).Inc()
	invalidateActiveBounties(ctx, service.cache, service.logger)

	result := &SettlementResult{BountyID: bounty.ID, Winners: winners}
	if bounty.IsFree() {
		metrics.SettlementsTotal.WithLabelValues("settled").Inc()
		service.logger.Info("bounty settled without prize", "bounty_id", bounty.ID, "winners", len(winners))
		return result, nil
	}

	payouts := make([]ledger.Payout, len(winners))
	for i, w := range winners {
		payouts[i] = ledger.Payout{Winner: ledger.Address(w.WalletAddress), Share: w.Share}
	}
	receipt, perr := callLedger(ctx, "completeBounty", func(ctx context.Context) (*ledger.Receipt, error) {
		return service.ledger.CompleteBounty(ctx, ledger.Call{From: service.owner}, ledger.KeyFor(bounty.ID), payouts, ledger.NormalizeSolution(bounty.Words))
	})
	if perr != nil {
		return nil, service.settlementFailed(ctx, bounty, winners, rows, perr)
	}

	txHash := receipt.TxHash.Hex()
	result.TxHash = &txHash
	for i, w := range winners {
		row := rows[i]
		row.TxHash = &txHash
		if transfer, ok := receipt.Event.TransferTo(ledger.Address(w.WalletAddress)); ok {
			row.Amount = transfer.Net
			row.Fee = transfer.Fee
		}
		if err := moveTransaction(ctx, service.store, row, service.clock.Now(), models.TransactionStatusConfirmed); err != nil {
			service.logger.Error("failed to confirm prize", "bounty_id", bounty.ID, "transaction_id", row.ID, "error", err)
		}
		if _, err := service.markPrizePaid(ctx, bounty.ID, w.UserID, txHash, w.Share, nil); err != nil {
			reconciliationWarning(service.logger, "prize_unrecorded", "prize paid but not recorded", "bounty_id", bounty.ID, "user_id", w.UserID, "tx_hash", txHash, "error", err)
		}
	}

	metrics.SettlementsTotal.WithLabelValues("settled").Inc()
	service.logger.Info("bounty settled", "bounty_id", bounty.ID, "tx_hash", txHash, "winners", len(winners))
	return result, nil
}

func (service *ServiceSettlement) settlementFailed(ctx context.Context, bounty *models.Bounty, winners []models.Winner, rows []*models.Transaction, perr *PaymentError) error {
	if perr.Unknown {
		// the payout may still land; the completed marking stays for an operator
		now := service.clock.Now()
		for _, row := range rows {
			failTransaction(ctx, service.store, service.logger, row, now, perr.Error())
		}
		metrics.SettlementsTotal.WithLabelValues("unknown").Inc()
		reconciliationWarning(service.logger, "settlement_unknown", "settlement outcome unknown", "bounty_id", bounty.ID, "error", perr.Err)
		return perr
	}

	metrics.SettlementsTotal.WithLabelValues("reverted").Inc()
	if err := service.compensate(ctx, bounty.ID, winners, rows, perr.Error()); err != nil {
		service.logger.Error("failed to compensate settlement", "bounty_id", bounty.ID, "error", err)
	}
	return perr
}

// compensate undoes the off-chain winner marking after the ledger refused
// the payout, leaving the bounty active and safe to settle again.
func (service *ServiceSettlement) compensate(ctx context.Context, bountyID string, winners []models.Winner, rows []*models.Transaction, note string) error {
	err := service.store.RunInTx(ctx, func(ctx context.Context, tx interfaces.BountyStore) error {
		now := service.clock.Now().UTC()
		for _, row := range rows {
			if row.Status == models.TransactionStatusFailed {
				continue
			}
			row.Note = note
			if err := moveTransaction(ctx, tx, row, now, models.TransactionStatusFailed); err != nil {
				return err
			}
		}

		for _, w := range winners {
			p, err := tx.FindParticipantByID(ctx, w.ParticipantID)
			if err != nil {
				return err
			}
			p.Winner = false
			p.Rank = 0
			p.PrizeShare = 0
			if err := tx.UpdateParticipant(ctx, p); err != nil {
				return err
			}
			if err := tx.AddUserWinnings(ctx, w.UserID, -1, -w.Share); err != nil {
				return err
			}
		}

		ok, err := tx.TransitionBounty(ctx, bountyID, models.BountyStatusCompleted, models.BountyStatusActive, now)
		if err != nil {
			return err
		}
		if !ok {
			return statef("bounty %s is no longer completed", bountyID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	metrics.BountyTransitionsTotal.WithLabelValues(string(models.BountyStatusActive)).Inc()
	invalidateActiveBounties(ctx, service.cache, service.logger)
	service.logger.Info("settlement compensated", "bounty_id", bountyID)
	return nil
}

func (service *ServiceSettlement) settled(ctx context.Context, bounty *models.Bounty) (*SettlementResult, error) {
	winners, err := service.storedWinners(ctx, bounty.ID)
	if err != nil {
		return nil, err
	}

	result := &SettlementResult{BountyID: bounty.ID, Winners: winners, AlreadySettled: true}
	for _, w := range winners {
		p, err := service.store.FindParticipantByID(ctx, w.ParticipantID)
		if err == nil && p.TxHash != nil {
			result.TxHash = p.TxHash
			break
		}
	}
	return result, nil
}

func (service *ServiceSettlement) storedWinners(ctx context.Context, bountyID string) ([]models.Winner, error) {
	participants, err := service.store.ListParticipants(ctx, bountyID)
	if err != nil {
		return nil, err
	}

	var winners []models.Winner
	for _, p := range participants {
		if !p.Winner {
			continue
		}
		winners = append(winners, models.Winner{
			ParticipantID: p.ID,
			UserID:        p.UserID,
			WalletAddress: p.WalletAddress,
			Share:         p.PrizeShare,
			Rank:          p.Rank,
		})
	}
	sort.Slice(winners, func(i, j int) bool { return winners[i].Rank < winners[j].Rank })
	return winners, nil
}

// MarkPrizePaid records a confirmed payout for a winner. Marking a paid
// winner again only refreshes the stored hash.
func (service *ServiceSettlement) MarkPrizePaid(ctx context.Context, bountyID string, winnerUserID string, txHash string, amount int64) (*models.Participant, error) {
	if txHash == "" {
		return nil, validationf("tx hash is required")
	}
	if amount < 0 {
		return nil, validationf("amount must not be negative")
	}

	mutex, err := lockBounty(ctx, service.locker, bountyID)
	if err != nil {
		return nil, err
	}
	defer unlock(ctx, mutex, service.logger)

	if _, err := findBounty(ctx, service.store, bountyID); err != nil {
		return nil, err
	}
	return service.markPrizePaid(ctx, bountyID, winnerUserID, txHash, amount, nil)
}

// markPrizePaid expects the bounty lock to be held. transfer, when known,
// replaces the amounts of an unconfirmed journal row.
func (service *ServiceSettlement) markPrizePaid(ctx context.Context, bountyID string, userID string, txHash string, amount int64, transfer *ledger.Transfer) (*models.Participant, error) {
	p, err := service.store.FindParticipant(ctx, bountyID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("participant not found")
	}
	if err != nil {
		return nil, err
	}
	if !p.Winner {
		return nil, statef("participant %s is not a winner", p.ID)
	}

	rows, err := service.store.ListTransactions(ctx, bountyID, models.TransactionTypePrize)
	if err != nil {
		return nil, err
	}
	row := latestPrizeRow(rows, p.ID)

	now := service.clock.Now().UTC()
	if p.Paid {
		reconciliationWarning(service.logger, "already_paid", "prize already marked paid", "bounty_id", bountyID, "user_id", userID, "tx_hash", txHash)
		if p.TxHash != nil && *p.TxHash == txHash {
			return p, nil
		}
		err := service.store.RunInTx(ctx, func(ctx context.Context, tx interfaces.BountyStore) error {
			p.TxHash = &txHash
			if err := tx.UpdateParticipant(ctx, p); err != nil {
				return err
			}
			if row == nil || row.Status != models.TransactionStatusCompleted {
				return nil
			}
			row.TxHash = &txHash
			row.UpdatedAt = now
			return tx.UpdateTransaction(ctx, row)
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	err = service.store.RunInTx(ctx, func(ctx context.Context, tx interfaces.BountyStore) error {
		switch {
		case row == nil || row.Status == models.TransactionStatusCompleted:
			if amount == 0 {
				amount = p.PrizeShare
			}
			row = &models.Transaction{
				ID:            uuid.NewString(),
				BountyID:      &bountyID,
				UserID:        userID,
				ParticipantID: &p.ID,
				Type:          models.TransactionTypePrize,
				Amount:        amount,
				TxHash:        &txHash,
				Status:        models.TransactionStatusCompleted,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if transfer != nil {
				row.Amount = transfer.Net
				row.Fee = transfer.Fee
			}
			if err := tx.InsertTransaction(ctx, row); err != nil {
				return err
			}
		default:
			if transfer != nil && row.Status != models.TransactionStatusConfirmed {
				row.Amount = transfer.Net
				row.Fee = transfer.Fee
			}
			row.TxHash = &txHash
			steps := []models.TransactionStatus{models.TransactionStatusCompleted}
			if row.Status == models.TransactionStatusPending {
				steps = append([]models.TransactionStatus{models.TransactionStatusConfirmed}, steps...)
			}
			if err := moveTransaction(ctx, tx, row, now, steps...); err != nil {
				return err
			}
		}

		p.Paid = true
		p.TxHash = &txHash
		return tx.UpdateParticipant(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	service.logger.Info("prize paid", "bounty_id", bountyID, "user_id", userID, "tx_hash", txHash)
	return p, nil
}

// latestPrizeRow returns the newest open prize row of a participant, or
// the newest failed one when every attempt failed.
func latestPrizeRow(rows []*models.Transaction, participantID string) *models.Transaction {
	var open, failed *models.Transaction
	for _, r := range rows {
		if r.ParticipantID == nil || *r.ParticipantID != participantID {
			continue
		}
		if r.Status == models.TransactionStatusFailed {
			failed = r
		} else {
			open = r
		}
	}
	if open != nil {
		return open
	}
	return failed
}

type ReconcileResult struct {
	BountyID     string        `json:"bounty_id"`
	LedgerStatus ledger.Status `json:"ledger_status"`
	Action       string        `json:"action"`
	Paid         int           `json:"paid"`
}

const (
	ReconcileActionNone        = "none"
	ReconcileActionAttached    = "attached"
	ReconcileActionCompensated = "compensated"
)

// ReconcileBounty compares a bounty with its ledger record and repairs what
// can be repaired: late payouts get their hash, refused payouts get undone.
func (service *ServiceSettlement) ReconcileBounty(ctx context.Context, bountyID string) (*ReconcileResult, error) {
	mutex, err := lockBounty(ctx, service.locker, bountyID)
	if err != nil {
		return nil, err
	}
	defer unlock(ctx, mutex, service.logger)

	bounty, err := findBounty(ctx, service.store, bountyID)
	if err != nil {
		return nil, err
	}
	result := &ReconcileResult{BountyID: bounty.ID, Action: ReconcileActionNone}
	if bounty.IsFree() {
		return result, nil
	}

	key := ledger.KeyFor(bounty.ID)
	record, err := service.ledger.GetBounty(ctx, key)
	if errors.Is(err, ledger.ErrUnknownBounty) {
		reconciliationWarning(service.logger, "ledger_missing", "bounty has no ledger record", "bounty_id", bounty.ID, "status", bounty.Status)
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	result.LedgerStatus = record.Status

	switch {
	case record.Status == ledger.StatusCompleted:
		if bounty.Status != models.BountyStatusCompleted {
			reconciliationWarning(service.logger, "status_mismatch", "ledger completed a bounty that is not completed", "bounty_id", bounty.ID, "status", bounty.Status)
			return result, nil
		}
		ev, err := service.ledger.FindEvent(ctx, key, ledger.EventBountyCompleted)
		if err != nil {
			return nil, err
		}
		result.Paid, err = service.attachPayouts(ctx, bounty.ID, ev)
		if err != nil {
			return nil, err
		}
		result.Action = ReconcileActionAttached

	case record.Status == ledger.StatusActive && bounty.Status == models.BountyStatusCompleted:
		rows, err := service.store.ListTransactions(ctx, bounty.ID, models.TransactionTypePrize)
		if err != nil {
			return nil, err
		}
		var failed []*models.Transaction
		for _, r := range rows {
			switch r.Status {
			case models.TransactionStatusPending:
				return nil, statef("a settlement of bounty %s is still in flight", bounty.ID)
			case models.TransactionStatusFailed:
				failed = append(failed, r)
			}
		}
		if len(failed) == 0 {
			reconciliationWarning(service.logger, "reconcile_noop", "completed bounty without failed prizes is still active on the ledger", "bounty_id", bounty.ID)
			return result, nil
		}

		winners, err := service.storedWinners(ctx, bounty.ID)
		if err != nil {
			return nil, err
		}
		if err := service.compensate(ctx, bounty.ID, winners, failed, "reconciled: ledger still active"); err != nil {
			return nil, err
		}
		result.Action = ReconcileActionCompensated

	default:
		reconciliationWarning(service.logger, "reconcile_noop", "nothing to reconcile", "bounty_id", bounty.ID, "status", bounty.Status, "ledger_status", record.Status)
	}

	return result, nil
}

// attachPayouts marks every unpaid winner paid with the transfer found in ev.
func (service *ServiceSettlement) attachPayouts(ctx context.Context, bountyID string, ev *ledger.Event) (int, error) {
	winners, err := service.storedWinners(ctx, bountyID)
	if err != nil {
		return 0, err
	}

	paid := 0
	txHash := ev.TxHash.Hex()
	for _, w := range winners {
		p, err := service.store.FindParticipantByID(ctx, w.ParticipantID)
		if err != nil {
			return paid, err
		}
		if p.Paid {
			continue
		}
		transfer, ok := ev.TransferTo(ledger.Address(w.WalletAddress))
		if !ok {
			reconciliationWarning(service.logger, "transfer_missing", "winner has no transfer in the completion event", "bounty_id", bountyID, "user_id", w.UserID, "tx_hash", txHash)
			continue
		}
		if _, err := service.markPrizePaid(ctx, bountyID, w.UserID, txHash, transfer.Net+transfer.Fee, &transfer); err != nil {
			return paid, err
		}
		paid++
	}
	return paid, nil
}

type SyncResult struct {
	Processed int    `json:"processed"`
	Attached  int    `json:"attached"`
	Cursor    uint64 `json:"cursor"`
}

// SyncLedgerEvents reads ledger events after the stored cursor and attaches
// late payout hashes to their winners.
func (service *ServiceSettlement) SyncLedgerEvents(ctx context.Context) (*SyncResult, error) {
	mutex := service.locker.NewMutex(LockKeyLedgerSync())
	if err := mutex.LockContext(ctx); err != nil {
		return nil, ErrBountyLock
	}
	defer unlock(ctx, mutex, service.logger)

	cursor, err := service.cursor.GetCursor(ctx)
	if err != nil {
		return nil, err
	}
	events, err := service.ledger.Events(ctx, cursor, EVENT_SYNC_BATCH)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Cursor: cursor}
	for i := range events {
		ev := &events[i]
		attached, err := service.syncEvent(ctx, ev)
		if err != nil {
			service.logger.Error("failed to sync ledger event", "seq", ev.Seq, "type", ev.Type, "error", err)
			break
		}
		result.Attached += attached
		result.Processed++
		result.Cursor = ev.Seq
	}

	if result.Cursor != cursor {
		if err := service.cursor.SetCursor(ctx, result.Cursor); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (service *ServiceSettlement) syncEvent(ctx context.Context, ev *ledger.Event) (int, error) {
	switch ev.Type {
	case ledger.EventBountyCreated, ledger.EventBountyCompleted:
	default:
		return 0, nil
	}

	bounty, err := service.store.FindBountyByLedgerKey(ctx, ev.BountyKey.Hex())
	if errors.Is(err, sql.ErrNoRows) {
		reconciliationWarning(service.logger, "orphan_ledger_bounty", "ledger event for an unknown bounty, refund manually", "ledger_key", ev.BountyKey.Hex(), "type", ev.Type, "tx_hash", ev.TxHash.Hex())
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if ev.Type == ledger.EventBountyCreated {
		return 0, nil
	}

	mutex, err := lockBounty(ctx, service.locker, bounty.ID)
	if err != nil {
		return 0, err
	}
	defer unlock(ctx, mutex, service.logger)

	bounty, err = findBounty(ctx, service.store, bounty.ID)
	if err != nil {
		return 0, err
	}
	if bounty.Status != models.BountyStatusCompleted {
		reconciliationWarning(service.logger, "status_mismatch", "ledger completed a bounty that is not completed", "bounty_id", bounty.ID, "status", bounty.Status)
		return 0, nil
	}
	return service.attachPayouts(ctx, bounty.ID, ev)
}
