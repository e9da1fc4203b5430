package ledger

import (
	"context"
	"errors"
	"sync"
)

// ErrConflict is returned by Commit when another writer moved the head.
var ErrConflict = errors.New("ledger state changed concurrently")

// State is the full persisted contract state.
type State struct {
	Globals Globals
	Records map[Hash]*Record
	Events  []Event
}

// Mutation is everything one successful call changes. Record is nil for
// calls that only touch globals.
type Mutation struct {
	Globals Globals
	Record  *Record
	Event   Event
}

type Store interface {
	// Load returns nil when nothing has been persisted yet.
	Load(ctx context.Context) (*State, error)
	// Head returns the Seq of the last committed mutation, 0 when empty.
	Head(ctx context.Context) (uint64, error)
	// Commit applies m only if the head is still prev.
	Commit(ctx context.Context, prev uint64, m Mutation) error
}

// MemoryStore keeps the committed mutations in memory.
type MemoryStore struct {
	mu        sync.Mutex
	mutations []Mutation
	// FailWith makes the next Commit return this error.
	FailWith error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.mutations) == 0 {
		return nil, nil
	}

	state := &State{Records: map[Hash]*Record{}}
	for _, m := range s.mutations {
		state.Globals = m.Globals
		if m.Record != nil {
			state.Records[m.Record.Key] = m.Record.clone()
		}
		state.Events = append(state.Events, m.Event)
	}
	return state, nil
}

func (s *MemoryStore) Head(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head(), nil
}

func (s *MemoryStore) head() uint64 {
	if len(s.mutations) == 0 {
		return 0
	}
	return s.mutations[len(s.mutations)-1].Globals.Seq
}

func (s *MemoryStore) Commit(ctx context.Context, prev uint64, m Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailWith != nil {
		err := s.FailWith
		s.FailWith = nil
		return err
	}
	if s.head() != prev {
		return ErrConflict
	}
	if m.Record != nil {
		m.Record = m.Record.clone()
	}
	s.mutations = append(s.mutations, m)
	return nil
}
