package services

import (
	"context"
	"errors"
	"testing"

	"wordbounty/internal/ledger"
	"wordbounty/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreasury_WithdrawFees(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	bounty, _ := raceBounty(t, env, models.DistributionWinnerTakeAll)
	_, err := env.settlement().CompleteAndSettle(ctx, bounty.ID)
	require.NoError(t, err)

	status, err := env.treasury().Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(250_000_000), status.FeePool)
	assert.Equal(t, int64(250_000_000), status.Balance)
	assert.Equal(t, testOwner, status.Owner)

	row, err := env.treasury().WithdrawFees(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionTypeFeeWithdrawal, row.Type)
	assert.Equal(t, models.TransactionStatusCompleted, row.Status)
	assert.Equal(t, int64(250_000_000), row.Amount)
	assert.Nil(t, row.BountyID)
	require.NotNil(t, row.TxHash)

	status, _ = env.treasury().Status(ctx)
	assert.Zero(t, status.FeePool)
	assert.Zero(t, status.Balance)

	_, err = env.treasury().WithdrawFees(ctx, "admin")
	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, ledger.ErrNothingToWithdraw)

	failed := env.allTransactions()
	assert.Equal(t, models.TransactionStatusFailed, failed[len(failed)-1].Status)
}

func TestTreasury_PauseBlocksDeposits(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "creator", "0:creator")

	_, err := env.treasury().Pause(ctx)
	require.NoError(t, err)
	_, err = env.treasury().Pause(ctx)
	assert.ErrorIs(t, err, ledger.ErrPaused)

	_, err = env.bounties().CreateBounty(ctx, "creator", defaultInput(unit, models.CriterionFastestTime, models.DistributionWinnerTakeAll))
	assert.ErrorIs(t, err, ledger.ErrPaused)

	_, err = env.treasury().Unpause(ctx)
	require.NoError(t, err)
	env.createBounty(t, "creator", defaultInput(unit, models.CriterionFastestTime, models.DistributionWinnerTakeAll))
}

func TestTreasury_SetFeeBps(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	var verr *ValidationError
	_, err := env.treasury().SetFeeBps(ctx, ledger.MaxFeeBps+1)
	require.ErrorAs(t, err, &verr)

	_, err = env.treasury().SetFeeBps(ctx, 100)
	require.NoError(t, err)
	status, _ := env.treasury().Status(ctx)
	assert.Equal(t, int64(100), status.FeeBps)
}

func TestTreasury_EmergencyWithdraw(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "creator", "0:creator")
	env.createBounty(t, "creator", defaultInput(3*unit, models.CriterionFastestTime, models.DistributionWinnerTakeAll))

	receipt, err := env.treasury().EmergencyWithdraw(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3*unit), receipt.Event.Amount)

	status, _ := env.treasury().Status(ctx)
	assert.Zero(t, status.Balance)
}

func TestTreasury_StatusUnreachableLedger(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	unreachable := errors.New("redis: connection refused")

	env.ledger.failBefore("globals", unreachable)
	_, err := env.treasury().Status(ctx)
	require.ErrorIs(t, err, unreachable)

	env.ledger.failBefore("globals", unreachable)
	_, err = env.treasury().WithdrawFees(ctx, "admin")
	require.ErrorIs(t, err, unreachable)
	assert.Empty(t, env.allTransactions())

	status, err := env.treasury().Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, testOwner, status.Owner)
}
