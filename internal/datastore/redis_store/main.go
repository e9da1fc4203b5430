package redis_store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"wordbounty/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const PROGRESS_TTL = 30 * 24 * time.Hour

func dbKeyAttemptProgress(participantID string) string {
	return fmt.Sprintf("participant:%s:progress", participantID)
}

func dbKeyLedgerEventCursor() string {
	return "ledger:event_cursor"
}

// Store keeps attempt progress and the ledger event cursor.
type Store struct {
	cmd redis.Cmdable
}

func NewStore(cmd redis.Cmdable) *Store {
	return &Store{cmd}
}

// GetProgress returns redis.Nil when the participant has no progress yet.
func (s *Store) GetProgress(ctx context.Context, participantID string) (*models.AttemptProgress, error) {
	return GetAttemptProgress(ctx, s.cmd, participantID)
}

func (s *Store) SaveProgress(ctx context.Context, progress *models.AttemptProgress) error {
	return SaveAttemptProgress(ctx, s.cmd, progress)
}

func (s *Store) GetCursor(ctx context.Context) (uint64, error) {
	return GetLedgerEventCursor(ctx, s.cmd)
}

func (s *Store) SetCursor(ctx context.Context, seq uint64) error {
	return SetLedgerEventCursor(ctx, s.cmd, seq)
}

func GetAttemptProgress(ctx context.Context, cmd redis.Cmdable, participantID string) (*models.AttemptProgress, error) {
	var v *models.AttemptProgress
	b, err := cmd.Get(ctx, dbKeyAttemptProgress(participantID)).Bytes()
	if err != nil {
		return nil, err
	}

	err = msgpack.Unmarshal(b, &v)
	return v, err
}

func SaveAttemptProgress(ctx context.Context, cmd redis.Cmdable, v *models.AttemptProgress) error {
	if v.ParticipantID == "" {
		return errors.New("invalid progress")
	}

	b, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}

	return cmd.Set(ctx, dbKeyAttemptProgress(v.ParticipantID), b, PROGRESS_TTL).Err()
}

func GetLedgerEventCursor(ctx context.Context, cmd redis.Cmdable) (uint64, error) {
	v, err := cmd.Get(ctx, dbKeyLedgerEventCursor()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

func SetLedgerEventCursor(ctx context.Context, cmd redis.Cmdable, seq uint64) error {
	return cmd.Set(ctx, dbKeyLedgerEventCursor(), strconv.FormatUint(seq, 10), 0).Err()
}
