package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner   Address = "0:owner"
	creator Address = "0:creator"
	alice   Address = "0:alice"
	bob     Address = "0:bob"
	unit            = int64(1_000_000_000)
)

var solution = NormalizeSolution([]string{"crane", "slate"})

func newTestContract(t *testing.T, feeBps int64) (*Contract, *MemoryStore, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := NewMemoryStore()
	c, err := New(context.Background(), Config{Owner: owner, FeeBps: feeBps, MinimumBounty: unit / 10}, store, clock)
	require.NoError(t, err)
	return c, store, clock
}

func createBounty(t *testing.T, c *Contract, clock clockwork.Clock, id string, amount int64) Hash {
	t.Helper()
	key := KeyFor(id)
	_, err := c.CreateBounty(context.Background(), Call{From: creator, Value: amount}, key, Commit(solution), clock.Now().Add(time.Hour), "")
	require.NoError(t, err)
	return key
}

func TestLedger_CreateBounty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("locks the deposit", func(t *testing.T) {
		t.Parallel()
		c, _, clock := newTestContract(t, 250)
		key := createBounty(t, c, clock, "b1", 10*unit)

		rec, err := c.GetBounty(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, StatusActive, rec.Status)
		assert.Equal(t, 10*unit, rec.Amount)
		assert.Equal(t, creator, rec.Creator)

		balance, err := c.GetContractBalance(ctx)
		require.NoError(t, err)
		assert.Equal(t, 10*unit, balance)
	})

	t.Run("rejects guards without changing state", func(t *testing.T) {
		t.Parallel()
		c, _, clock := newTestContract(t, 250)
		existing := createBounty(t, c, clock, "b1", unit)
		future := clock.Now().Add(time.Hour)

		tests := []struct {
			name       string
			call       Call
			key        Hash
			commitment Hash
			deadline   time.Time
			want       error
		}{
			{"below minimum", Call{From: creator, Value: unit / 100}, KeyFor("x"), Commit(solution), future, ErrBelowMinimum},
			{"zero value", Call{From: creator}, KeyFor("x"), Commit(solution), future, ErrBelowMinimum},
			{"duplicate key", Call{From: creator, Value: unit}, existing, Commit(solution), future, ErrBountyExists},
			{"past deadline", Call{From: creator, Value: unit}, KeyFor("x"), Commit(solution), clock.Now(), ErrInvalidDeadline},
			{"zero commitment", Call{From: creator, Value: unit}, KeyFor("x"), ZeroHash, future, ErrZeroCommitment},
			{"no caller", Call{Value: unit}, KeyFor("x"), Commit(solution), future, ErrInvalidCaller},
		}
		for _, tt := range tests {
			_, err := c.CreateBounty(ctx, tt.call, tt.key, tt.commitment, tt.deadline, "")
			require.ErrorIs(t, err, tt.want, tt.name)
			assert.True(t, IsRevert(err), tt.name)
		}

		balance, _ := c.GetContractBalance(ctx)
		assert.Equal(t, unit, balance)
		events, _ := c.Events(ctx, 0, 0)
		assert.Len(t, events, 1)
	})

	t.Run("store failure leaves state untouched", func(t *testing.T) {
		t.Parallel()
		c, store, clock := newTestContract(t, 250)
		store.FailWith = errors.New("redis down")

		_, err := c.CreateBounty(ctx, Call{From: creator, Value: unit}, KeyFor("b1"), Commit(solution), clock.Now().Add(time.Hour), "")
		require.Error(t, err)
		assert.False(t, IsRevert(err))

		_, err = c.GetBounty(ctx, KeyFor("b1"))
		require.ErrorIs(t, err, ErrUnknownBounty)
		balance, _ := c.GetContractBalance(ctx)
		assert.Zero(t, balance)
	})

	t.Run("cancelled context is not a revert", func(t *testing.T) {
		t.Parallel()
		c, _, clock := newTestContract(t, 250)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := c.CreateBounty(cctx, Call{From: creator, Value: unit}, KeyFor("b1"), Commit(solution), clock.Now().Add(time.Hour), "")
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestLedger_JoinBounty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, clock := newTestContract(t, 250)
	key := createBounty(t, c, clock, "b1", unit)

	_, err := c.JoinBounty(ctx, Call{From: alice}, key)
	require.NoError(t, err)

	_, err = c.JoinBounty(ctx, Call{From: alice}, key)
	require.ErrorIs(t, err, ErrAlreadyParticipant)

	ok, err := c.IsParticipant(ctx, key, alice)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = c.JoinBounty(ctx, Call{From: bob}, KeyFor("missing"))
	require.ErrorIs(t, err, ErrUnknownBounty)

	clock.Advance(time.Hour)
	_, err = c.JoinBounty(ctx, Call{From: bob}, key)
	require.ErrorIs(t, err, ErrDeadlinePassed)

	rec, _ := c.GetBounty(ctx, key)
	assert.Equal(t, 1, rec.ParticipantCount)
}

func TestLedger_CompleteBounty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	setup := func(t *testing.T) (*Contract, Hash) {
		c, _, clock := newTestContract(t, 250)
		key := createBounty(t, c, clock, "b1", 10*unit)
		_, err := c.JoinBounty(ctx, Call{From: alice}, key)
		require.NoError(t, err)
		_, err = c.JoinBounty(ctx, Call{From: bob}, key)
		require.NoError(t, err)
		return c, key
	}

	t.Run("pays winner net of fee", func(t *testing.T) {
		t.Parallel()
		c, key := setup(t)

		receipt, err := c.CompleteBounty(ctx, Call{From: owner}, key, []Payout{{Winner: alice, Share: 10 * unit}}, solution)
		require.NoError(t, err)
		require.Len(t, receipt.Event.Transfers, 1)
		assert.Equal(t, Transfer{To: alice, Net: 9_750_000_000, Fee: 250_000_000}, receipt.Event.Transfers[0])
		assert.Equal(t, 10*unit, receipt.Event.Amount+receipt.Event.Fee)

		g, err := c.Globals(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(250_000_000), g.FeePool)
		assert.Equal(t, int64(250_000_000), g.Balance)

		rec, _ := c.GetBounty(ctx, key)
		assert.Equal(t, StatusCompleted, rec.Status)
		assert.Equal(t, []Address{alice}, rec.Winners)
	})

	t.Run("split payouts", func(t *testing.T) {
		t.Parallel()
		c, key := setup(t)

		receipt, err := c.CompleteBounty(ctx, Call{From: owner}, key, []Payout{
			{Winner: alice, Share: 5*unit + 1},
			{Winner: bob, Share: 5*unit - 1},
		}, solution)
		require.NoError(t, err)

		var gross int64
		for _, tr := range receipt.Event.Transfers {
			gross += tr.Net + tr.Fee
		}
		assert.Equal(t, 10*unit, gross)
	})

	t.Run("fee is charged on the locked amount", func(t *testing.T) {
		t.Parallel()
		c, key := setup(t)
		carol := Address("0:carol")
		_, err := c.JoinBounty(ctx, Call{From: carol}, key)
		require.NoError(t, err)

		receipt, err := c.CompleteBounty(ctx, Call{From: owner}, key, []Payout{
			{Winner: alice, Share: 3_333_333_334},
			{Winner: bob, Share: 3_333_333_333},
			{Winner: carol, Share: 3_333_333_333},
		}, solution)
		require.NoError(t, err)

		require.Len(t, receipt.Event.Transfers, 3)
		assert.Equal(t, Transfer{To: alice, Net: 3_250_000_000, Fee: 83_333_334}, receipt.Event.Transfers[0])
		assert.Equal(t, Transfer{To: bob, Net: 3_250_000_000, Fee: 83_333_333}, receipt.Event.Transfers[1])
		assert.Equal(t, Transfer{To: carol, Net: 3_250_000_000, Fee: 83_333_333}, receipt.Event.Transfers[2])
		assert.Equal(t, int64(250_000_000), receipt.Event.Fee)

		g, err := c.Globals(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(250_000_000), g.FeePool)
		assert.Equal(t, int64(250_000_000), g.Balance)
	})

	t.Run("guards", func(t *testing.T) {
		t.Parallel()
		c, key := setup(t)
		full := []Payout{{Winner: alice, Share: 10 * unit}}

		_, err := c.CompleteBounty(ctx, Call{From: creator}, key, full, solution)
		require.ErrorIs(t, err, ErrNotOwner)

		_, err = c.CompleteBounty(ctx, Call{From: owner}, key, full, "wrong")
		require.ErrorIs(t, err, ErrSolutionMismatch)

		_, err = c.CompleteBounty(ctx, Call{From: owner}, key, []Payout{{Winner: "0:stranger", Share: 10 * unit}}, solution)
		require.ErrorIs(t, err, ErrNotParticipant)

		_, err = c.CompleteBounty(ctx, Call{From: owner}, key, []Payout{{Winner: alice, Share: 9 * unit}}, solution)
		require.ErrorIs(t, err, ErrInvalidPayout)

		_, err = c.CompleteBounty(ctx, Call{From: owner}, key, []Payout{{Winner: alice, Share: 5 * unit}, {Winner: alice, Share: 5 * unit}}, solution)
		require.ErrorIs(t, err, ErrInvalidPayout)

		_, err = c.CompleteBounty(ctx, Call{From: owner}, key, full, solution)
		require.NoError(t, err)

		_, err = c.CompleteBounty(ctx, Call{From: owner}, key, full, solution)
		require.ErrorIs(t, err, ErrNotActive)
	})
}

func TestLedger_CancelAndRefund(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("cancel requires no participants", func(t *testing.T) {
		t.Parallel()
		c, _, clock := newTestContract(t, 250)
		empty := createBounty(t, c, clock, "empty", unit)
		joined := createBounty(t, c, clock, "joined", unit)
		_, err := c.JoinBounty(ctx, Call{From: alice}, joined)
		require.NoError(t, err)

		_, err = c.CancelBounty(ctx, Call{From: alice}, empty)
		require.ErrorIs(t, err, ErrNotCreator)

		_, err = c.CancelBounty(ctx, Call{From: creator}, joined)
		require.ErrorIs(t, err, ErrHasParticipants)

		receipt, err := c.CancelBounty(ctx, Call{From: creator}, empty)
		require.NoError(t, err)
		assert.Equal(t, unit, receipt.Event.Amount)

		balance, _ := c.GetContractBalance(ctx)
		assert.Equal(t, unit, balance)
	})

	t.Run("expired refund after deadline only", func(t *testing.T) {
		t.Parallel()
		c, _, clock := newTestContract(t, 250)
		key := createBounty(t, c, clock, "b1", unit)
		_, err := c.JoinBounty(ctx, Call{From: alice}, key)
		require.NoError(t, err)

		_, err = c.ClaimExpiredBountyRefund(ctx, Call{From: creator}, key)
		require.ErrorIs(t, err, ErrDeadlineNotReached)

		clock.Advance(time.Hour)
		_, err = c.ClaimExpiredBountyRefund(ctx, Call{From: creator}, key)
		require.NoError(t, err)

		rec, _ := c.GetBounty(ctx, key)
		assert.Equal(t, StatusRefunded, rec.Status)

		_, err = c.CompleteBounty(ctx, Call{From: owner}, key, []Payout{{Winner: alice, Share: unit}}, solution)
		require.ErrorIs(t, err, ErrNotActive)
	})
}

func TestLedger_OwnerOperations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, clock := newTestContract(t, 1000)

	_, err := c.SetFeeBps(ctx, Call{From: owner}, 1001)
	require.ErrorIs(t, err, ErrFeeTooHigh)
	_, err = c.SetFeeBps(ctx, Call{From: alice}, 10)
	require.ErrorIs(t, err, ErrNotOwner)

	_, err = c.Pause(ctx, Call{From: owner})
	require.NoError(t, err)
	_, err = c.CreateBounty(ctx, Call{From: creator, Value: unit}, KeyFor("p"), Commit(solution), clock.Now().Add(time.Hour), "")
	require.ErrorIs(t, err, ErrPaused)
	_, err = c.Unpause(ctx, Call{From: owner})
	require.NoError(t, err)

	key := createBounty(t, c, clock, "b1", unit)
	_, err = c.JoinBounty(ctx, Call{From: alice}, key)
	require.NoError(t, err)

	// completion stays available while paused
	_, err = c.Pause(ctx, Call{From: owner})
	require.NoError(t, err)
	_, err = c.CompleteBounty(ctx, Call{From: owner}, key, []Payout{{Winner: alice, Share: unit}}, solution)
	require.NoError(t, err)

	_, err = c.WithdrawFees(ctx, Call{From: alice})
	require.ErrorIs(t, err, ErrNotOwner)
	receipt, err := c.WithdrawFees(ctx, Call{From: owner})
	require.NoError(t, err)
	assert.Equal(t, unit/10, receipt.Event.Amount)

	_, err = c.WithdrawFees(ctx, Call{From: owner})
	require.ErrorIs(t, err, ErrNothingToWithdraw)

	balance, _ := c.GetContractBalance(ctx)
	assert.Zero(t, balance)
}

func TestLedger_EmergencyWithdraw(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, clock := newTestContract(t, 250)
	key := createBounty(t, c, clock, "b1", unit)

	receipt, err := c.EmergencyWithdraw(ctx, Call{From: owner})
	require.NoError(t, err)
	assert.Equal(t, unit, receipt.Event.Amount)

	_, err = c.CancelBounty(ctx, Call{From: creator}, key)
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestLedger_RestoresFromStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store, clock := newTestContract(t, 250)
	key := createBounty(t, c, clock, "b1", unit)
	_, err := c.JoinBounty(ctx, Call{From: alice}, key)
	require.NoError(t, err)

	restored, err := New(ctx, Config{Owner: "0:other"}, store, clock)
	require.NoError(t, err)

	ok, err := restored.IsParticipant(ctx, key, alice)
	require.NoError(t, err)
	assert.True(t, ok)
	g, err := restored.Globals(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner, g.Owner)

	events, err := restored.Events(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventBountyJoined, events[0].Type)
}

func TestCommit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "crane,slate", NormalizeSolution([]string{" Crane", "SLATE "}))
	assert.Equal(t, Commit("crane"), Commit("crane"))
	assert.NotEqual(t, Commit("crane"), Commit("slate"))
	assert.NotEqual(t, KeyFor("a"), KeyFor("b"))

	h, err := ParseHash(Commit("crane").Hex())
	require.NoError(t, err)
	assert.Equal(t, Commit("crane"), h)
}

func TestLedger_SharedStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store, clock := newTestContract(t, 250)

	other, err := New(ctx, Config{Owner: owner, FeeBps: 250}, store, clock)
	require.NoError(t, err)

	key := createBounty(t, c, clock, "b1", unit)
	_, err = other.JoinBounty(ctx, Call{From: alice}, key)
	require.NoError(t, err)

	ok, err := c.IsParticipant(ctx, key, alice)
	require.NoError(t, err)
	assert.True(t, ok)

	events, err := c.Events(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, uint64(2), events[1].Seq)
}

func TestMemoryStore_CommitConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Commit(ctx, 0, Mutation{Globals: Globals{Seq: 1}}))
	require.ErrorIs(t, store.Commit(ctx, 0, Mutation{Globals: Globals{Seq: 1}}), ErrConflict)

	head, err := store.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), head)
}

type unreachableStore struct {
	*MemoryStore
	err error
}

func (s *unreachableStore) Head(ctx context.Context) (uint64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.MemoryStore.Head(ctx)
}

func TestLedger_GlobalsReportsStoreErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	store := &unreachableStore{MemoryStore: NewMemoryStore()}
	c, err := New(ctx, Config{Owner: owner, FeeBps: 250, MinimumBounty: unit / 10}, store, clock)
	require.NoError(t, err)

	store.err = errors.New("connection refused")
	_, err = c.Globals(ctx)
	require.ErrorIs(t, err, store.err)

	store.err = nil
	g, err := c.Globals(ctx)
	require.NoError(t, err)
	assert.Equal(t, owner, g.Owner)
}
