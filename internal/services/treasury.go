package services

import (
	"context"
	"log/slog"

	"wordbounty/internal/interfaces"
	"wordbounty/internal/ledger"
	"wordbounty/internal/models"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/samber/do"
)

// ServiceTreasury runs the owner-only ledger operations.
type ServiceTreasury struct {
	container *do.Injector
	store     interfaces.BountyStore
	ledger    interfaces.Ledger
	logger    *slog.Logger
	clock     clockwork.Clock
	owner     ledger.Address
}

func NewServiceTreasury(container *do.Injector) (*ServiceTreasury, error) {
	store, err := do.Invoke[interfaces.BountyStore](container)
	if err != nil {
		return nil, err
	}

	contract, err := do.Invoke[interfaces.Ledger](container)
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

	return &ServiceTreasury{container, store, contract, logger.With("service", "treasury"), clock, ledger.Address(vs["LEDGER_OWNER"])}, nil
}

type TreasuryStatus struct {
	Owner         ledger.Address `json:"owner"`
	Balance       int64          `json:"balance"`
	FeePool       int64          `json:"fee_pool"`
	FeeBps        int64          `json:"fee_bps"`
	MinimumBounty int64          `json:"minimum_bounty"`
	Paused        bool           `json:"paused"`
	Seq           uint64         `json:"seq"`
}

func (service *ServiceTreasury) Status(ctx context.Context) (*TreasuryStatus, error) {
	g, err := service.ledger.Globals(ctx)
	if err != nil {
		return nil, err
	}
	return &TreasuryStatus{
		Owner:         g.Owner,
		Balance:       g.Balance,
		FeePool:       g.FeePool,
		FeeBps:        g.FeeBps,
		MinimumBounty: g.MinimumBounty,
		Paused:        g.Paused,
		Seq:           g.Seq,
	}, nil
}

// WithdrawFees pays the accumulated fees to the owner and journals it with
// no bounty attached.
func (service *ServiceTreasury) WithdrawFees(ctx context.Context, adminID string) (*models.Transaction, error) {
	g, err := service.ledger.Globals(ctx)
	if err != nil {
		return nil, err
	}

	now := service.clock.Now().UTC()
	row := &models.Transaction{
		ID:        uuid.NewString(),
		UserID:    adminID,
		Type:      models.TransactionTypeFeeWithdrawal,
		Amount:    g.FeePool,
		Status:    models.TransactionStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := service.store.InsertTransaction(ctx, row); err != nil {
		return nil, err
	}

	receipt, perr := callLedger(ctx, "withdrawFees", func(ctx context.Context) (*ledger.Receipt, error) {
		return service.ledger.WithdrawFees(ctx, ledger.Call{From: service.owner})
	})
	if perr != nil {
		failTransaction(ctx, service.store, service.logger, row, service.clock.Now(), perr.Error())
		return nil, perr
	}

	row.Amount = receipt.Event.Amount
	row.TxHash = hashString(receipt.TxHash)
	if err := moveTransaction(ctx, service.store, row, service.clock.Now(), models.TransactionStatusConfirmed, models.TransactionStatusCompleted); err != nil {
		return nil, err
	}

	service.logger.Info("fees withdrawn", "amount", row.Amount, "tx_hash", *row.TxHash)
	return row, nil
}

func (service *ServiceTreasury) Pause(ctx context.Context) (*ledger.Receipt, error) {
	return service.ownerCall(ctx, "pause", service.ledger.Pause)
}

func (service *ServiceTreasury) Unpause(ctx context.Context) (*ledger.Receipt, error) {
	return service.ownerCall(ctx, "unpause", service.ledger.Unpause)
}

func (service *ServiceTreasury) SetFeeBps(ctx context.Context, bps int64) (*ledger.Receipt, error) {
	if bps < 0 || bps > ledger.MaxFeeBps {
		return nil, validationf("fee must be between 0 and %d bps", ledger.MaxFeeBps)
	}
	return service.ownerCall(ctx, "setFeeBps", func(ctx context.Context, call ledger.Call) (*ledger.Receipt, error) {
		return service.ledger.SetFeeBps(ctx, call, bps)
	})
}

// EmergencyWithdraw drains the contract to the owner. Active bounties can no
// longer be paid out afterwards.
func (service *ServiceTreasury) EmergencyWithdraw(ctx context.Context) (*ledger.Receipt, error) {
	receipt, err := service.ownerCall(ctx, "emergencyWithdraw", service.ledger.EmergencyWithdraw)
	if err != nil {
		return nil, err
	}
	reconciliationWarning(service.logger, "emergency_withdraw", "emergency withdrawal executed", "amount", receipt.Event.Amount, "tx_hash", receipt.TxHash.Hex())
	service.logger.Error("contract drained", "amount", receipt.Event.Amount)
	return receipt, nil
}

func (service *ServiceTreasury) ownerCall(ctx context.Context, op string, fn func(ctx context.Context, call ledger.Call) (*ledger.Receipt, error)) (*ledger.Receipt, error) {
	receipt, perr := callLedger(ctx, op, func(ctx context.Context) (*ledger.Receipt, error) {
		return fn(ctx, ledger.Call{From: service.owner})
	})
	if perr != nil {
		return nil, perr
	}
	service.logger.Info("ledger owner call", "op", op, "tx_hash", receipt.TxHash.Hex())
	return receipt, nil
}
