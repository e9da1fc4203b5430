package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Config holds runtime-tunable values, e.g. DRAFT_GRACE_MINUTES.
type Config struct {
	bun.BaseModel `bun:"table:config"`
	Key           string    `bun:"key,pk" json:"key"`
	Value         string    `bun:"value" json:"value"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero" json:"updated_at"`
}
