package models

import (
	"time"

	"github.com/uptrace/bun"
)

type User struct {
	bun.BaseModel `bun:"table:user"`
	ID            string    `bun:"id,pk" json:"id"`
	Username      string    `bun:"username,unique" json:"username"`
	WalletAddress *string   `bun:"wallet_address,unique" json:"wallet_address"`
	IsAdmin       bool      `bun:"is_admin,notnull,default:false" json:"-"`
	TotalWins     int       `bun:"total_wins,notnull,default:0" json:"total_wins"`
	TotalEarnings int64     `bun:"total_earnings,notnull,default:0" json:"total_earnings"`
	CreatedAt     time.Time `bun:"created_at,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at" json:"updated_at"`

	IsNewUser bool `bun:"-" json:"is_new_user"`
}

func (u *User) Wallet() string {
	if u.WalletAddress == nil {
		return ""
	}
	return *u.WalletAddress
}

// UserFromAuth only use in middleware
type UserFromAuth struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}
