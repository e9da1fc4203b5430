package ledger

import (
	"encoding/hex"
	"errors"
	"time"
)

// MaxFeeBps is the hard ceiling for the platform fee, 10%.
const MaxFeeBps = 1000

const bpsDenominator = 10_000

type Address string

type Hash [32]byte

var ZeroHash Hash

func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(b) != len(h) {
		return h, errors.New("invalid hash length")
	}
	copy(h[:], b)
	return h, nil
}

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// Record is the ledger-side bounty. It is the authority on whether funds are locked.
type Record struct {
	Key              Hash             `msgpack:"key"`
	Creator          Address          `msgpack:"creator"`
	Amount           int64            `msgpack:"amount"`
	Deadline         time.Time        `msgpack:"deadline"`
	Commitment       Hash             `msgpack:"commitment"`
	Metadata         string           `msgpack:"metadata"`
	Winners          []Address        `msgpack:"winners"`
	Status           Status           `msgpack:"status"`
	Participants     map[Address]bool `msgpack:"participants"`
	ParticipantCount int              `msgpack:"participant_count"`
	CreatedAt        time.Time        `msgpack:"created_at"`
}

func (r *Record) clone() *Record {
	c := *r
	c.Winners = append([]Address(nil), r.Winners...)
	c.Participants = make(map[Address]bool, len(r.Participants))
	for k, v := range r.Participants {
		c.Participants[k] = v
	}
	return &c
}

type Payout struct {
	Winner Address `msgpack:"winner" json:"winner"`
	Share  int64   `msgpack:"share" json:"share"`
}

// Transfer is value leaving the contract. Net + Fee is the gross amount.
type Transfer struct {
	To  Address `msgpack:"to" json:"to"`
	Net int64   `msgpack:"net" json:"net"`
	Fee int64   `msgpack:"fee" json:"fee"`
}

type EventType string

const (
	EventBountyCreated       EventType = "BountyCreated"
	EventBountyJoined        EventType = "BountyJoined"
	EventBountyCompleted     EventType = "BountyCompleted"
	EventBountyCancelled     EventType = "BountyCancelled"
	EventBountyRefunded      EventType = "BountyRefunded"
	EventFeesWithdrawn       EventType = "FeesWithdrawn"
	EventPaused              EventType = "Paused"
	EventUnpaused            EventType = "Unpaused"
	EventFeeRateChanged      EventType = "FeeRateChanged"
	EventEmergencyWithdrawal EventType = "EmergencyWithdrawal"
)

type Event struct {
	Seq       uint64     `msgpack:"seq" json:"seq"`
	Type      EventType  `msgpack:"type" json:"type"`
	TxHash    Hash       `msgpack:"tx_hash" json:"tx_hash"`
	BountyKey Hash       `msgpack:"bounty_key" json:"bounty_key"`
	From      Address    `msgpack:"from" json:"from"`
	Amount    int64      `msgpack:"amount" json:"amount"`
	Fee       int64      `msgpack:"fee" json:"fee"`
	Transfers []Transfer `msgpack:"transfers" json:"transfers,omitempty"`
	At        time.Time  `msgpack:"at" json:"at"`
}

// TransferTo returns the transfer paid to addr by this event.
func (e *Event) TransferTo(addr Address) (Transfer, bool) {
	for _, t := range e.Transfers {
		if t.To == addr {
			return t, true
		}
	}
	return Transfer{}, false
}

type Receipt struct {
	TxHash Hash
	Event  Event
}

// Call carries the caller and the attached value of a contract invocation.
type Call struct {
	From  Address
	Value int64
}

type Globals struct {
	Owner         Address `msgpack:"owner"`
	FeeBps        int64   `msgpack:"fee_bps"`
	MinimumBounty int64   `msgpack:"minimum_bounty"`
	Paused        bool    `msgpack:"paused"`
	FeePool       int64   `msgpack:"fee_pool"`
	Balance       int64   `msgpack:"balance"`
	Seq           uint64  `msgpack:"seq"`
}
