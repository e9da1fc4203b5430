package redis_store

import (
	"context"
	"errors"

	"wordbounty/internal/ledger"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// keys share a hash tag so MULTI/EXEC works on a cluster
const (
	dbKeyLedgerGlobals = "{ledger}:globals"
	dbKeyLedgerRecords = "{ledger}:records"
	dbKeyLedgerEvents  = "{ledger}:events"
	dbKeyLedgerHead    = "{ledger}:head"
)

// LedgerStore persists the custody contract state.
type LedgerStore struct {
	client redis.UniversalClient
}

var _ ledger.Store = (*LedgerStore)(nil)

func NewLedgerStore(client redis.UniversalClient) *LedgerStore {
	return &LedgerStore{client}
}

// Load reads the whole state in one MULTI so a concurrent commit is either
// fully visible or not at all.
func (s *LedgerStore) Load(ctx context.Context) (*ledger.State, error) {
	var globalsCmd *redis.StringCmd
	var recordsCmd *redis.MapStringStringCmd
	var eventsCmd *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		globalsCmd = pipe.Get(ctx, dbKeyLedgerGlobals)
		recordsCmd = pipe.HGetAll(ctx, dbKeyLedgerRecords)
		eventsCmd = pipe.LRange(ctx, dbKeyLedgerEvents, 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	b, err := globalsCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &ledger.State{Records: map[ledger.Hash]*ledger.Record{}}
	if err := msgpack.Unmarshal(b, &state.Globals); err != nil {
		return nil, err
	}

	records, err := recordsCmd.Result()
	if err != nil {
		return nil, err
	}
	for _, raw := range records {
		var rec ledger.Record
		if err := msgpack.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, err
		}
		if rec.Participants == nil {
			rec.Participants = map[ledger.Address]bool{}
		}
		state.Records[rec.Key] = &rec
	}

	events, err := eventsCmd.Result()
	if err != nil {
		return nil, err
	}
	for _, raw := range events {
		var ev ledger.Event
		if err := msgpack.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, err
		}
		state.Events = append(state.Events, ev)
	}

	return state, nil
}

func (s *LedgerStore) Head(ctx context.Context) (uint64, error) {
	return headOf(ctx, s.client)
}

func headOf(ctx context.Context, cmd redis.Cmdable) (uint64, error) {
	head, err := cmd.Get(ctx, dbKeyLedgerHead).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return head, err
}

// Commit writes globals, the touched record and the event in one MULTI/EXEC
// guarded by a WATCH on the head.
func (s *LedgerStore) Commit(ctx context.Context, prev uint64, m ledger.Mutation) error {
	globals, err := msgpack.Marshal(m.Globals)
	if err != nil {
		return err
	}
	event, err := msgpack.Marshal(m.Event)
	if err != nil {
		return err
	}
	var record []byte
	if m.Record != nil {
		record, err = msgpack.Marshal(m.Record)
		if err != nil {
			return err
		}
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		head, err := headOf(ctx, tx)
		if err != nil {
			return err
		}
		if head != prev {
			return ledger.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, dbKeyLedgerGlobals, globals, 0)
			if record != nil {
				pipe.HSet(ctx, dbKeyLedgerRecords, m.Record.Key.Hex(), record)
			}
			pipe.RPush(ctx, dbKeyLedgerEvents, event)
			pipe.Set(ctx, dbKeyLedgerHead, m.Globals.Seq, 0)
			return nil
		})
		return err
	}, dbKeyLedgerHead)
	if errors.Is(err, redis.TxFailedErr) {
		return ledger.ErrConflict
	}
	return err
}
