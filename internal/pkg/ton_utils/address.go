package ton_utils

import (
	"errors"
	"strings"

	"github.com/tonkeeper/tongo"
)

var ErrInvalidAddress = errors.New("invalid ton address")

// NormalizeAddress accepts raw ("0:…") and user-friendly addresses and
// returns the raw form, which is what the ledger and the database store.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", ErrInvalidAddress
	}

	addr, err := tongo.ParseAddress(address)
	if err != nil {
		return "", ErrInvalidAddress
	}
	return addr.ID.String(), nil
}
