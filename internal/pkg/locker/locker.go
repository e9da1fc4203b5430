package locker

import (
	"context"
	"sync"
	"time"

	"wordbounty/internal/interfaces"

	"github.com/go-redsync/redsync/v4"
)

// LockExpiry outlives the slowest ledger call made while holding a lock.
const LockExpiry = 3 * time.Minute

type Redsync struct {
	rs *redsync.Redsync
}

func NewRedsync(rs *redsync.Redsync) *Redsync {
	return &Redsync{rs}
}

func (r *Redsync) NewMutex(name string) interfaces.Mutex {
	return r.rs.NewMutex(name, redsync.WithExpiry(LockExpiry))
}

// Local is an in-process Locker for single-node runs and tests.
type Local struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{locks: map[string]chan struct{}{}}
}

func (l *Local) NewMutex(name string) interfaces.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[name] = ch
	}
	return &localMutex{ch}
}

type localMutex struct {
	ch chan struct{}
}

func (m *localMutex) LockContext(ctx context.Context) error {
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *localMutex) UnlockContext(ctx context.Context) (bool, error) {
	select {
	case <-m.ch:
		return true, nil
	default:
		return false, nil
	}
}
