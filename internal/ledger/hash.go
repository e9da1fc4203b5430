package ledger

import (
	"encoding/binary"
	"strings"

	"golang.org/x/crypto/sha3"
)

func keccak(parts ...[]byte) Hash {
	var h Hash
	d := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		d.Write(p)
	}
	copy(h[:], d.Sum(nil))
	return h
}

// KeyFor derives the ledger key of an off-chain bounty id.
func KeyFor(bountyID string) Hash {
	return keccak([]byte("bounty:"), []byte(bountyID))
}

// NormalizeSolution is the canonical plaintext form of a word list.
func NormalizeSolution(words []string) string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(strings.TrimSpace(w))
	}
	return strings.Join(out, ",")
}

// Commit returns the one-way commitment of a plaintext solution.
func Commit(solution string) Hash {
	return keccak([]byte(solution))
}

func txHash(ev *Event) Hash {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], ev.Seq)
	binary.BigEndian.PutUint64(buf[8:], uint64(ev.At.UnixNano()))
	return keccak(buf[:], []byte(ev.Type), ev.BountyKey[:], []byte(ev.From))
}
