package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"wordbounty/internal/interfaces"
	"wordbounty/internal/ledger"
	"wordbounty/internal/models"
	"wordbounty/internal/pkg/caching"
	"wordbounty/internal/pkg/limiter"
	"wordbounty/internal/pkg/locker"

	"github.com/go-redis/redis_rate/v10"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	testOwner = ledger.Address("0:owner")
	unit      = models.NanoPerUnit
)

// memData is the content of memStore; RunInTx snapshots and restores it.
type memData struct {
	bounties     map[string]models.Bounty
	participants map[string]models.Participant
	transactions map[string]models.Transaction
	txOrder      []string
	users        map[string]models.User
	configs      map[string]models.Config
}

func (d *memData) clone() *memData {
	c := &memData{
		bounties:     make(map[string]models.Bounty, len(d.bounties)),
		participants: make(map[string]models.Participant, len(d.participants)),
		transactions: make(map[string]models.Transaction, len(d.transactions)),
		txOrder:      append([]string(nil), d.txOrder...),
		users:        make(map[string]models.User, len(d.users)),
		configs:      make(map[string]models.Config, len(d.configs)),
	}
	for k, v := range d.bounties {
		c.bounties[k] = v
	}
	for k, v := range d.participants {
		c.participants[k] = v
	}
	for k, v := range d.transactions {
		c.transactions[k] = v
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.configs {
		c.configs[k] = v
	}
	return c
}

// memStore is an in-memory interfaces.BountyStore. Values are copied in and
// out so callers only change the store through its methods.
type memStore struct {
	mu   *sync.Mutex
	txMu *sync.Mutex
	root **memData
	fail map[string]error
}

var _ interfaces.BountyStore = (*memStore)(nil)

func newMemStore() *memStore {
	data := &memData{
		bounties:     map[string]models.Bounty{},
		participants: map[string]models.Participant{},
		transactions: map[string]models.Transaction{},
		users:        map[string]models.User{},
		configs:      map[string]models.Config{},
	}
	return &memStore{mu: &sync.Mutex{}, txMu: &sync.Mutex{}, root: &data, fail: map[string]error{}}
}

// failOnce makes the next call of method return err.
func (s *memStore) failOnce(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = err
}

func (s *memStore) data(method string) (*memData, error) {
	if err, ok := s.fail[method]; ok {
		delete(s.fail, method)
		return nil, err
	}
	return *s.root, nil
}

func (s *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx interfaces.BountyStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := (*s.root).clone()
	s.mu.Unlock()

	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		*s.root = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) InsertBounty(ctx context.Context, bounty *models.Bounty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data("InsertBounty")
	if err != nil {
		return err
	}
	d.bounties[bounty.ID] = *bounty
	return nil
}

func (s *memStore) FindBounty(ctx context.Context, id string) (*models.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data("FindBounty")
	if err != nil {
		return nil, err
	}
	b, ok := d.bounties[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (s *memStore) FindBountyByLedgerKey(ctx context.Context, key string) (*models.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range (*s.root).bounties {
		if b.LedgerKey == key {
			return &b, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memStore) ListActiveBounties(ctx context.Context, limit, offset int) ([]*models.Bounty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Bounty
	for _, b := range (*s.root).bounties {
		if b.Status == models.BountyStatusActive {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Deadline.Before(out[j].Deadline) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ActivateBounty(ctx context.Context, id string, txHash, contractRef *string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data("ActivateBounty")
	if err != nil {
		return false, err
	}
	b, ok := d.bounties[id]
	if !ok || b.Status != models.BountyStatusDraft {
		return false, nil
	}
	b.Status = models.BountyStatusActive
	b.TxHash = txHash
	b.ContractRef = contractRef
	b.UpdatedAt = at
	d.bounties[id] = b
	return true, nil
}

func (s *memStore) TransitionBounty(ctx context.Context, id string, from, to models.BountyStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data("TransitionBounty")
	if err != nil {
		return false, err
	}
	b, ok := d.bounties[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	b.UpdatedAt = at
	switch to {
	case models.BountyStatusCompleted:
		b.CompletedAt = &at
	case models.BountyStatusActive:
		b.CompletedAt = nil
	}
	d.bounties[id] = b
	return true, nil
}

func (s *memStore) DeleteDraftBounty(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data("DeleteDraftBounty")
	if err != nil {
		return err
	}
	if b, ok := d.bounties[id]; ok && b.Status == models.BountyStatusDraft {
		delete(d.bounties, id)
	}
	return nil
}

func (s *memStore) IncrementParticipantCount(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data("IncrementParticipantCount")
	if err != nil {
		return err
	}
	b := d.bounties[id]
	b.ParticipantCount++
	d.bounties[id] = b
	return nil
}

func (s *memStore) DeleteExpiredDrafts(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data("DeleteExpiredDrafts")
	if err != nil {
		return nil, err
	}
	var ids []string
	for id, b := range d.bounties {
		if b.Status == models.BountyStatusDraft && b.CreatedAt.Before(cutoff) {
			ids = append(ids, id)
			delete(d.bounties, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memStore) InsertParticipant(ctx context.Context, participant *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data("InsertParticipant")
	if err != nil {
		return err
	}
	d.participants[participant.ID] = *participant
	return nil
}

func (s *memStore) FindParticipant(ctx context.Context, bountyID, userID string) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range (*s.root).participants {
		if p.BountyID == bountyID && p.UserID == userID {
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memStore) FindParticipantByWallet(ctx context.Context, bountyID, wallet string) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range (*s.root).participants {
		if p.BountyID == bountyID && p.WalletAddress == wallet {
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memStore) FindParticipantByID(ctx context.Context, id string) (*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := (*s.root).participants[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (s *memStore) ListParticipants(ctx context.Context, bountyID string) ([]*models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Participant
	for _, p := range (*s.root).participants {
		if p.BountyID == bountyID {
			p := p
			out = append(out, &p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

func (s *memStore) UpdateParticipant(ctx context.Context, participant *models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data("UpdateParticipant")
	if err != nil {
		return err
	}
	d.participants[participant.ID] = *participant
	return nil
}

func (s *memStore) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data("InsertTransaction")
	if err != nil {
		return err
	}
	d.transactions[tx.ID] = *tx
	d.txOrder = append(d.txOrder, tx.ID)
	return nil
}

func (s *memStore) UpdateTransaction(ctx context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data("UpdateTransaction")
	if err != nil {
		return err
	}
	d.transactions[tx.ID] = *tx
	return nil
}

func (s *memStore) ListTransactions(ctx context.Context, bountyID string, txType models.TransactionType) ([]*models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Transaction
	for _, id := range (*s.root).txOrder {
		tx := (*s.root).transactions[id]
		if tx.BountyID != nil && *tx.BountyID == bountyID && tx.Type == txType {
			out = append(out, &tx)
		}
	}
	return out, nil
}

func (s *memStore) FailPendingDeposits(ctx context.Context, bountyIDs []string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data("FailPendingDeposits")
	if err != nil {
		return 0, err
	}
	ids := map[string]bool{}
	for _, id := range bountyIDs {
		ids[id] = true
	}
	var n int64
	for id, tx := range d.transactions {
		if tx.BountyID != nil && ids[*tx.BountyID] && tx.Type == models.TransactionTypeDeposit && tx.Status == models.TransactionStatusPending {
			tx.Status = models.TransactionStatusFailed
			tx.Note = "draft expired"
			tx.UpdatedAt = at
			d.transactions[id] = tx
			n++
		}
	}
	return n, nil
}

func (s *memStore) FindUser(ctx context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := (*s.root).users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &u, nil
}

func (s *memStore) FindUserByWallet(ctx context.Context, wallet string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range (*s.root).users {
		if u.Wallet() == wallet {
			return &u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *memStore) InsertUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	(*s.root).users[user.ID] = *user
	return nil
}

func (s *memStore) UpdateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	(*s.root).users[user.ID] = *user
	return nil
}

func (s *memStore) AddUserWinnings(ctx context.Context, userID string, wins int, earnings int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.data("AddUserWinnings")
	if err != nil {
		return err
	}
	u, ok := d.users[userID]
	if !ok {
		return nil
	}
	u.TotalWins += wins
	u.TotalEarnings += earnings
	d.users[userID] = u
	return nil
}

func (s *memStore) FindConfig(ctx context.Context, key string) (*models.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := (*s.root).configs[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (s *memStore) transactions(bountyID string, txType models.TransactionType) []*models.Transaction {
	txs, _ := s.ListTransactions(context.Background(), bountyID, txType)
	return txs
}

// faultyLedger wraps the real contract. Errors in before are returned
// without calling the contract; errors in after are returned once the
// contract has applied the call, like a confirmation that timed out.
type faultyLedger struct {
	interfaces.Ledger
	mu     sync.Mutex
	before map[string]error
	after  map[string]error
}

func (l *faultyLedger) failBefore(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.before[op] = err
}

func (l *faultyLedger) failAfter(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.after[op] = err
}

func (l *faultyLedger) take(m map[string]error, op string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := m[op]
	delete(m, op)
	return err
}

func (l *faultyLedger) wrap(op string, fn func() (*ledger.Receipt, error)) (*ledger.Receipt, error) {
	if err := l.take(l.before, op); err != nil {
		return nil, err
	}
	receipt, err := fn()
	if err != nil {
		return nil, err
	}
	if err := l.take(l.after, op); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (l *faultyLedger) CreateBounty(ctx context.Context, call ledger.Call, key ledger.Hash, commitment ledger.Hash, deadline time.Time, metadata string) (*ledger.Receipt, error) {
	return l.wrap("createBounty", func() (*ledger.Receipt, error) {
		return l.Ledger.CreateBounty(ctx, call, key, commitment, deadline, metadata)
	})
}

func (l *faultyLedger) JoinBounty(ctx context.Context, call ledger.Call, key ledger.Hash) (*ledger.Receipt, error) {
	return l.wrap("joinBounty", func() (*ledger.Receipt, error) {
		return l.Ledger.JoinBounty(ctx, call, key)
	})
}

func (l *faultyLedger) CompleteBounty(ctx context.Context, call ledger.Call, key ledger.Hash, payouts []ledger.Payout, solution string) (*ledger.Receipt, error) {
	return l.wrap("completeBounty", func() (*ledger.Receipt, error) {
		return l.Ledger.CompleteBounty(ctx, call, key, payouts, solution)
	})
}

func (l *faultyLedger) CancelBounty(ctx context.Context, call ledger.Call, key ledger.Hash) (*ledger.Receipt, error) {
	return l.wrap("cancelBounty", func() (*ledger.Receipt, error) {
		return l.Ledger.CancelBounty(ctx, call, key)
	})
}

func (l *faultyLedger) Globals(ctx context.Context) (ledger.Globals, error) {
	if err := l.take(l.before, "globals"); err != nil {
		return ledger.Globals{}, err
	}
	return l.Ledger.Globals(ctx)
}

type fakeCache struct {
	mu       sync.Mutex
	patterns []string
}

func (c *fakeCache) Get(ctx context.Context, key string, target any) error {
	return caching.ErrCacheMiss
}

func (c *fakeCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return nil
}

func (c *fakeCache) Delete(ctx context.Context, key string) error {
	return nil
}

func (c *fakeCache) DeletePattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patterns = append(c.patterns, pattern)
	return nil
}

func (c *fakeCache) invalidations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.patterns)
}

// memProgress round-trips progress through msgpack like the redis store.
type memProgress struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (p *memProgress) GetProgress(ctx context.Context, participantID string) (*models.AttemptProgress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.data[participantID]
	if !ok {
		return nil, redis.Nil
	}
	var progress models.AttemptProgress
	if err := msgpack.Unmarshal(b, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}

func (p *memProgress) SaveProgress(ctx context.Context, progress *models.AttemptProgress) error {
	b, err := msgpack.Marshal(progress)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data[progress.ParticipantID] = b
	return nil
}

type memCursor struct {
	mu  sync.Mutex
	seq uint64
}

func (c *memCursor) GetCursor(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq, nil
}

func (c *memCursor) SetCursor(ctx context.Context, seq uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = seq
	return nil
}

// fakeValidator accepts every word except the unknown ones.
type fakeValidator struct {
	unknown map[string]bool
}

func (v *fakeValidator) IsValidWord(ctx context.Context, word string, length int) (bool, error) {
	return !v.unknown[strings.ToLower(word)] && len([]rune(word)) == length, nil
}

type fakeLimiter struct {
	mu    sync.Mutex
	deny  bool
	calls int
	last  redis_rate.Limit
}

func (l *fakeLimiter) Allow(ctx context.Context, key string, limit redis_rate.Limit) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.last = limit
	if l.deny {
		return limiter.ErrRateLimited
	}
	return nil
}

type testEnv struct {
	container *do.Injector
	store     *memStore
	ledger    *faultyLedger
	contract  *ledger.Contract
	clock     *clockwork.FakeClock
	cache     *fakeCache
	progress  *memProgress
	cursor    *memCursor
	validator *fakeValidator
	limiter   *fakeLimiter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := clockwork.NewFakeClockAt(t0)
	contract, err := ledger.New(context.Background(), ledger.Config{Owner: testOwner, FeeBps: 250, MinimumBounty: unit / 10}, ledger.NewMemoryStore(), clock)
	require.NoError(t, err)

	env := &testEnv{
		container: do.New(),
		store:     newMemStore(),
		ledger:    &faultyLedger{Ledger: contract, before: map[string]error{}, after: map[string]error{}},
		contract:  contract,
		clock:     clock,
		cache:     &fakeCache{},
		progress:  &memProgress{data: map[string][]byte{}},
		cursor:    &memCursor{},
		validator: &fakeValidator{unknown: map[string]bool{}},
		limiter:   &fakeLimiter{},
	}

	injector := env.container
	do.ProvideNamedValue(injector, "envs", map[string]string{"LEDGER_OWNER": string(testOwner)})
	do.ProvideValue[interfaces.BountyStore](injector, env.store)
	do.ProvideValue[interfaces.Ledger](injector, env.ledger)
	do.ProvideValue[interfaces.Locker](injector, locker.NewLocal())
	do.ProvideValue[caching.Cache](injector, env.cache)
	do.ProvideValue[interfaces.ProgressStore](injector, env.progress)
	do.ProvideValue[interfaces.EventCursor](injector, env.cursor)
	do.ProvideValue[interfaces.WordValidator](injector, env.validator)
	do.ProvideValue[interfaces.Limiter](injector, env.limiter)
	do.ProvideValue(injector, slog.New(slog.NewTextHandler(io.Discard, nil)))
	do.ProvideValue[clockwork.Clock](injector, clock)

	do.Provide(injector, NewServiceConfig)
	do.Provide(injector, NewServiceUser)
	do.Provide(injector, NewServiceBounty)
	do.Provide(injector, NewServiceSettlement)
	do.Provide(injector, NewServiceSweeper)
	do.Provide(injector, NewServiceAttempt)
	do.Provide(injector, NewServiceTreasury)

	return env
}

func (env *testEnv) bounties() *ServiceBounty {
	return do.MustInvoke[*ServiceBounty](env.container)
}

func (env *testEnv) settlement() *ServiceSettlement {
	return do.MustInvoke[*ServiceSettlement](env.container)
}

func (env *testEnv) sweeper() *ServiceSweeper {
	return do.MustInvoke[*ServiceSweeper](env.container)
}

func (env *testEnv) attempts() *ServiceAttempt {
	return do.MustInvoke[*ServiceAttempt](env.container)
}

func (env *testEnv) treasury() *ServiceTreasury {
	return do.MustInvoke[*ServiceTreasury](env.container)
}

func (env *testEnv) users() *ServiceUser {
	return do.MustInvoke[*ServiceUser](env.container)
}

func (env *testEnv) addUser(t *testing.T, id string, wallet string) *models.User {
	t.Helper()
	user := &models.User{ID: id, Username: id, CreatedAt: t0, UpdatedAt: t0}
	if wallet != "" {
		user.WalletAddress = &wallet
	}
	require.NoError(t, env.store.InsertUser(context.Background(), user))
	return user
}

func (env *testEnv) user(t *testing.T, id string) *models.User {
	t.Helper()
	user, err := env.store.FindUser(context.Background(), id)
	require.NoError(t, err)
	return user
}

func (env *testEnv) bounty(t *testing.T, id string) *models.Bounty {
	t.Helper()
	bounty, err := env.store.FindBounty(context.Background(), id)
	require.NoError(t, err)
	return bounty
}

func (env *testEnv) globals(t *testing.T) ledger.Globals {
	t.Helper()
	g, err := env.contract.Globals(context.Background())
	require.NoError(t, err)
	return g
}

func (env *testEnv) participant(t *testing.T, id string) *models.Participant {
	t.Helper()
	p, err := env.store.FindParticipantByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func defaultInput(prize int64, criterion models.Criterion, distribution models.Distribution) CreateBountyInput {
	return CreateBountyInput{
		Title:        "daily",
		Words:        []string{"crane"},
		PrizeAmount:  prize,
		Criterion:    criterion,
		Distribution: distribution,
		Deadline:     t0.Add(24 * time.Hour),
		MaxAttempts:  6,
	}
}

func (env *testEnv) createBounty(t *testing.T, creatorID string, input CreateBountyInput) *models.Bounty {
	t.Helper()
	bounty, err := env.bounties().CreateBounty(context.Background(), creatorID, input)
	require.NoError(t, err)
	return bounty
}

func (env *testEnv) join(t *testing.T, bountyID, userID string) *models.Participant {
	t.Helper()
	p, err := env.bounties().JoinBounty(context.Background(), bountyID, userID)
	require.NoError(t, err)
	return p
}

// solve submits wrong failed guesses, advances the clock by elapsed and
// then solves every word. The timer starts at the first guess.
func (env *testEnv) solve(t *testing.T, bounty *models.Bounty, p *models.Participant, wrong int, elapsed time.Duration) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < wrong; i++ {
		res, err := env.attempts().SubmitAttempt(ctx, p.UserID, p.ID, 0, strings.Repeat("z", bounty.WordLength))
		require.NoError(t, err)
		require.False(t, res.Correct)
	}
	env.clock.Advance(elapsed)
	for i, w := range bounty.Words {
		res, err := env.attempts().SubmitAttempt(ctx, p.UserID, p.ID, i, w)
		require.NoError(t, err)
		require.True(t, res.Correct)
	}
}
