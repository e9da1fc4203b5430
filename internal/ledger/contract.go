// Package ledger is the custody contract that locks bounty funds and pays
// winners. Every call checks all of its guards first and then commits one
// Mutation to the Store; a rejected call leaves the state untouched.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
)

type Config struct {
	Owner         Address
	FeeBps        int64
	MinimumBounty int64
}

type Contract struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	store   Store
	g       Globals
	records map[Hash]*Record
	events  []Event
}

func New(ctx context.Context, cfg Config, store Store, clock clockwork.Clock) (*Contract, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("ledger: owner is required")
	}
	if cfg.FeeBps < 0 || cfg.FeeBps > MaxFeeBps {
		return nil, fmt.Errorf("ledger: %w", ErrFeeTooHigh)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	c := &Contract{
		clock:   clock,
		store:   store,
		records: map[Hash]*Record{},
		g: Globals{
			Owner:         cfg.Owner,
			FeeBps:        cfg.FeeBps,
			MinimumBounty: cfg.MinimumBounty,
		},
	}

	state, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: load state: %w", err)
	}
	c.apply(state)
	return c, nil
}

func (c *Contract) apply(state *State) {
	if state == nil {
		return
	}
	c.g = state.Globals
	c.records = state.Records
	c.events = state.Events
}

// refresh reloads the state when another process committed since the last
// call. Expects c.mu to be held.
func (c *Contract) refresh(ctx context.Context) error {
	head, err := c.store.Head(ctx)
	if err != nil {
		return fmt.Errorf("ledger: head: %w", err)
	}
	if head == c.g.Seq {
		return nil
	}

	state, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load state: %w", err)
	}
	c.apply(state)
	return nil
}

func (c *Contract) commit(ctx context.Context, g Globals, rec *Record, ev Event) (*Receipt, error) {
	g.Seq = c.g.Seq + 1
	ev.Seq = g.Seq
	ev.At = c.clock.Now().UTC()
	ev.TxHash = txHash(&ev)

	if err := c.store.Commit(ctx, c.g.Seq, Mutation{Globals: g, Record: rec, Event: ev}); err != nil {
		return nil, fmt.Errorf("ledger: commit: %w", err)
	}

	c.g = g
	if rec != nil {
		c.records[rec.Key] = rec
	}
	c.events = append(c.events, ev)
	return &Receipt{TxHash: ev.TxHash, Event: ev}, nil
}

func (c *Contract) record(op string, key Hash) (*Record, error) {
	rec, ok := c.records[key]
	if !ok {
		return nil, revert(op, ErrUnknownBounty)
	}
	return rec, nil
}

func (c *Contract) onlyOwner(op string, call Call) error {
	if call.From != c.g.Owner {
		return revert(op, ErrNotOwner)
	}
	return nil
}

// CreateBounty locks call.Value against key.
func (c *Contract) CreateBounty(ctx context.Context, call Call, key Hash, commitment Hash, deadline time.Time, metadata string) (*Receipt, error) {
	const op = "createBounty"
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	now := c.clock.Now()
	switch {
	case c.g.Paused:
		return nil, revert(op, ErrPaused)
	case call.From == "":
		return nil, revert(op, ErrInvalidCaller)
	case call.Value <= 0 || call.Value < c.g.MinimumBounty:
		return nil, revert(op, ErrBelowMinimum)
	case c.records[key] != nil:
		return nil, revert(op, ErrBountyExists)
	case !deadline.After(now):
		return nil, revert(op, ErrInvalidDeadline)
	case commitment.IsZero():
		return nil, revert(op, ErrZeroCommitment)
	}

	rec := &Record{
		Key:          key,
		Creator:      call.From,
		Amount:       call.Value,
		Deadline:     deadline.UTC(),
		Commitment:   commitment,
		Metadata:     metadata,
		Status:       StatusActive,
		Participants: map[Address]bool{},
		CreatedAt:    now.UTC(),
	}
	g := c.g
	g.Balance += call.Value

	return c.commit(ctx, g, rec, Event{
		Type:      EventBountyCreated,
		BountyKey: key,
		From:      call.From,
		Amount:    call.Value,
	})
}

func (c *Contract) JoinBounty(ctx context.Context, call Call, key Hash) (*Receipt, error) {
	const op = "joinBounty"
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	if c.g.Paused {
		return nil, revert(op, ErrPaused)
	}
	if call.From == "" {
		return nil, revert(op, ErrInvalidCaller)
	}
	cur, err := c.record(op, key)
	if err != nil {
		return nil, err
	}
	switch {
	case cur.Status != StatusActive:
		return nil, revert(op, ErrNotActive)
	case cur.Participants[call.From]:
		return nil, revert(op, ErrAlreadyParticipant)
	case !c.clock.Now().Before(cur.Deadline):
		return nil, revert(op, ErrDeadlinePassed)
	}

	rec := cur.clone()
	rec.Participants[call.From] = true
	rec.ParticipantCount++

	return c.commit(ctx, c.g, rec, Event{
		Type:      EventBountyJoined,
		BountyKey: key,
		From:      call.From,
	})
}

// CompleteBounty releases the locked amount to the winners. The shares must
// add up to the locked amount; the fee is taken from each share.
func (c *Contract) CompleteBounty(ctx context.Context, call Call, key Hash, payouts []Payout, solution string) (*Receipt, error) {
	const op = "completeBounty"
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	if err := c.onlyOwner(op, call); err != nil {
		return nil, err
	}
	cur, err := c.record(op, key)
	if err != nil {
		return nil, err
	}
	if cur.Status != StatusActive {
		return nil, revert(op, ErrNotActive)
	}
	if Commit(solution) != cur.Commitment {
		return nil, revert(op, ErrSolutionMismatch)
	}
	if len(payouts) == 0 {
		return nil, revert(op, ErrInvalidPayout)
	}

	var total int64
	seen := map[Address]bool{}
	for _, p := range payouts {
		if p.Share <= 0 || seen[p.Winner] {
			return nil, revert(op, ErrInvalidPayout)
		}
		if !cur.Participants[p.Winner] {
			return nil, revert(op, ErrNotParticipant)
		}
		seen[p.Winner] = true
		total += p.Share
	}
	if total != cur.Amount {
		return nil, revert(op, ErrInvalidPayout)
	}
	if c.g.Balance < cur.Amount {
		return nil, revert(op, ErrInsufficientBalance)
	}

	// fees are charged on the locked amount; the first payout carries the
	// rounding left over by the per-share fees
	fees := feeOf(cur.Amount, c.g.FeeBps)
	transfers := make([]Transfer, 0, len(payouts))
	charged := int64(0)
	for _, p := range payouts {
		fee := feeOf(p.Share, c.g.FeeBps)
		charged += fee
		transfers = append(transfers, Transfer{To: p.Winner, Net: p.Share - fee, Fee: fee})
	}
	transfers[0].Fee += fees - charged
	transfers[0].Net -= fees - charged

	rec := cur.clone()
	rec.Status = StatusCompleted
	rec.Winners = rec.Winners[:0]
	for _, p := range payouts {
		rec.Winners = append(rec.Winners, p.Winner)
	}

	g := c.g
	g.Balance -= cur.Amount - fees
	g.FeePool += fees

	return c.commit(ctx, g, rec, Event{
		Type:      EventBountyCompleted,
		BountyKey: key,
		From:      call.From,
		Amount:    cur.Amount - fees,
		Fee:       fees,
		Transfers: transfers,
	})
}

func feeOf(share int64, bps int64) int64 {
	return decimal.NewFromInt(share).
		Mul(decimal.NewFromInt(bps)).
		Div(decimal.NewFromInt(bpsDenominator)).
		Floor().
		IntPart()
}

// CancelBounty refunds the creator of a bounty nobody joined.
func (c *Contract) CancelBounty(ctx context.Context, call Call, key Hash) (*Receipt, error) {
	const op = "cancelBounty"
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	cur, err := c.record(op, key)
	if err != nil {
		return nil, err
	}
	switch {
	case call.From != cur.Creator:
		return nil, revert(op, ErrNotCreator)
	case cur.Status != StatusActive:
		return nil, revert(op, ErrNotActive)
	case cur.ParticipantCount > 0:
		return nil, revert(op, ErrHasParticipants)
	case c.g.Balance < cur.Amount:
		return nil, revert(op, ErrInsufficientBalance)
	}

	return c.refund(ctx, op, cur, StatusCancelled, EventBountyCancelled)
}

// ClaimExpiredBountyRefund refunds the creator once the deadline passed
// without a completion.
func (c *Contract) ClaimExpiredBountyRefund(ctx context.Context, call Call, key Hash) (*Receipt, error) {
	const op = "claimExpiredBountyRefund"
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	cur, err := c.record(op, key)
	if err != nil {
		return nil, err
	}
	switch {
	case call.From != cur.Creator:
		return nil, revert(op, ErrNotCreator)
	case cur.Status != StatusActive:
		return nil, revert(op, ErrNotActive)
	case c.clock.Now().Before(cur.Deadline):
		return nil, revert(op, ErrDeadlineNotReached)
	case c.g.Balance < cur.Amount:
		return nil, revert(op, ErrInsufficientBalance)
	}

	return c.refund(ctx, op, cur, StatusRefunded, EventBountyRefunded)
}

func (c *Contract) refund(ctx context.Context, op string, cur *Record, status Status, evType EventType) (*Receipt, error) {
	rec := cur.clone()
	rec.Status = status

	g := c.g
	g.Balance -= cur.Amount

	return c.commit(ctx, g, rec, Event{
		Type:      evType,
		BountyKey: cur.Key,
		From:      cur.Creator,
		Amount:    cur.Amount,
		Transfers: []Transfer{{To: cur.Creator, Net: cur.Amount}},
	})
}

func (c *Contract) WithdrawFees(ctx context.Context, call Call) (*Receipt, error) {
	const op = "withdrawFees"
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	if err := c.onlyOwner(op, call); err != nil {
		return nil, err
	}
	if c.g.FeePool == 0 {
		return nil, revert(op, ErrNothingToWithdraw)
	}

	amount := c.g.FeePool
	g := c.g
	g.Balance -= amount
	g.FeePool = 0

	return c.commit(ctx, g, nil, Event{
		Type:      EventFeesWithdrawn,
		From:      call.From,
		Amount:    amount,
		Transfers: []Transfer{{To: c.g.Owner, Net: amount}},
	})
}

func (c *Contract) Pause(ctx context.Context, call Call) (*Receipt, error) {
	return c.setPaused(ctx, "pause", call, true)
}

func (c *Contract) Unpause(ctx context.Context, call Call) (*Receipt, error) {
	return c.setPaused(ctx, "unpause", call, false)
}

func (c *Contract) setPaused(ctx context.Context, op string, call Call, paused bool) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	if err := c.onlyOwner(op, call); err != nil {
		return nil, err
	}
	if c.g.Paused == paused {
		if paused {
			return nil, revert(op, ErrPaused)
		}
		return nil, revert(op, ErrNotPaused)
	}

	g := c.g
	g.Paused = paused
	evType := EventUnpaused
	if paused {
		evType = EventPaused
	}
	return c.commit(ctx, g, nil, Event{Type: evType, From: call.From})
}

func (c *Contract) SetFeeBps(ctx context.Context, call Call, bps int64) (*Receipt, error) {
	const op = "setFeeBps"
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	if err := c.onlyOwner(op, call); err != nil {
		return nil, err
	}
	if bps < 0 || bps > MaxFeeBps {
		return nil, revert(op, ErrFeeTooHigh)
	}

	g := c.g
	g.FeeBps = bps
	return c.commit(ctx, g, nil, Event{Type: EventFeeRateChanged, From: call.From, Amount: bps})
}

// EmergencyWithdraw sweeps the whole balance to the owner. Bounty records
// are left as they are; anything still active can no longer be paid out.
func (c *Contract) EmergencyWithdraw(ctx context.Context, call Call) (*Receipt, error) {
	const op = "emergencyWithdraw"
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	if err := c.onlyOwner(op, call); err != nil {
		return nil, err
	}
	if c.g.Balance == 0 {
		return nil, revert(op, ErrNothingToWithdraw)
	}

	amount := c.g.Balance
	g := c.g
	g.Balance = 0
	g.FeePool = 0

	return c.commit(ctx, g, nil, Event{
		Type:      EventEmergencyWithdrawal,
		From:      call.From,
		Amount:    amount,
		Transfers: []Transfer{{To: c.g.Owner, Net: amount}},
	})
}

func (c *Contract) GetBounty(ctx context.Context, key Hash) (*Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	rec, err := c.record("getBounty", key)
	if err != nil {
		return nil, err
	}
	return rec.clone(), nil
}

func (c *Contract) IsParticipant(ctx context.Context, key Hash, addr Address) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return false, err
	}

	rec, err := c.record("isParticipant", key)
	if err != nil {
		return false, err
	}
	return rec.Participants[addr], nil
}

func (c *Contract) GetContractBalance(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return 0, err
	}
	return c.g.Balance, nil
}

func (c *Contract) Globals(ctx context.Context) (Globals, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return Globals{}, err
	}
	return c.g, nil
}

// Events returns up to limit events with Seq greater than afterSeq.
func (c *Contract) Events(ctx context.Context, afterSeq uint64, limit int) ([]Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	i := sort.Search(len(c.events), func(i int) bool {
		return c.events[i].Seq > afterSeq
	})
	end := len(c.events)
	if limit > 0 && i+limit < end {
		end = i + limit
	}
	return append([]Event(nil), c.events[i:end]...), nil
}

// FindEvent returns the latest event of the given type for a bounty.
func (c *Contract) FindEvent(ctx context.Context, key Hash, evType EventType) (*Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	for i := len(c.events) - 1; i >= 0; i-- {
		ev := c.events[i]
		if ev.BountyKey == key && ev.Type == evType {
			return &ev, nil
		}
	}
	return nil, revert("findEvent", ErrUnknownBounty)
}
