package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ParticipantStatus string

const (
	ParticipantStatusJoined    ParticipantStatus = "joined"
	ParticipantStatusPlaying   ParticipantStatus = "playing"
	ParticipantStatusCompleted ParticipantStatus = "completed"
	ParticipantStatusFailed    ParticipantStatus = "failed"
)

type Participant struct {
	bun.BaseModel  `bun:"table:participant"`
	ID             string            `bun:"id,pk" json:"id"`
	BountyID       string            `bun:"bounty_id,notnull" json:"bounty_id"`
	UserID         string            `bun:"user_id,notnull" json:"user_id"`
	WalletAddress  string            `bun:"wallet_address" json:"wallet_address"`
	Status         ParticipantStatus `bun:"status,notnull" json:"status"`
	Attempts       int               `bun:"attempts,notnull,default:0" json:"attempts"`
	ElapsedMs      int64             `bun:"elapsed_ms,notnull,default:0" json:"elapsed_ms"`
	WordsCompleted int               `bun:"words_completed,notnull,default:0" json:"words_completed"`
	Winner         bool              `bun:"winner,notnull,default:false" json:"winner"`
	Rank           int               `bun:"rank,notnull,default:0" json:"rank"`
	PrizeShare     int64             `bun:"prize_share,notnull,default:0" json:"prize_share"`
	Paid           bool              `bun:"paid,notnull,default:false" json:"paid"`
	TxHash         *string           `bun:"tx_hash" json:"tx_hash"`
	JoinedAt       time.Time         `bun:"joined_at,notnull" json:"joined_at"`
	StartedAt      *time.Time        `bun:"started_at" json:"started_at"`
	CompletedAt    *time.Time        `bun:"completed_at" json:"completed_at"`
}

func (p *Participant) Finished() bool {
	return p.Status == ParticipantStatusCompleted || p.Status == ParticipantStatusFailed
}

// WordProgress tracks one word of a participant's puzzle. Stored in redis.
type WordProgress struct {
	Guesses  []string `msgpack:"guesses" json:"guesses"`
	Solved   bool     `msgpack:"solved" json:"solved"`
	Resolved bool     `msgpack:"resolved" json:"resolved"`
}

type AttemptProgress struct {
	ParticipantID string         `msgpack:"participant_id" json:"participant_id"`
	Words         []WordProgress `msgpack:"words" json:"words"`
}

func (p *AttemptProgress) AllResolved() bool {
	for _, w := range p.Words {
		if !w.Resolved {
			return false
		}
	}
	return true
}

func (p *AttemptProgress) SolvedCount() int {
	n := 0
	for _, w := range p.Words {
		if w.Solved {
			n++
		}
	}
	return n
}
