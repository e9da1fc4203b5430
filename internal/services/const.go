package services

import (
	"fmt"
	"time"
)

const (
	CONFIG_DRAFT_GRACE_MINUTES     = "DRAFT_GRACE_MINUTES"
	CONFIG_ATTEMPT_LIMIT_PER_MIN   = "ATTEMPT_LIMIT_PER_MINUTE"
	CONFIG_CRONJOB_SWEEP_DRAFTS    = "CRONJOB_SWEEP_DRAFTS"
	CONFIG_CRONJOB_SYNC_LEDGER     = "CRONJOB_SYNC_LEDGER"
	CONFIG_ACTIVE_LIST_CACHE_SECS  = "ACTIVE_LIST_CACHE_SECONDS"
	CONFIG_DEFAULT_MAX_ATTEMPTS    = "DEFAULT_MAX_ATTEMPTS"
	DEFAULT_DRAFT_GRACE            = 15 * time.Minute
	DEFAULT_ATTEMPT_LIMIT_PER_MIN  = 30
	DEFAULT_MAX_ATTEMPTS           = 6
	DEFAULT_CRONJOB_SWEEP_DRAFTS   = "@every 1m"
	DEFAULT_CRONJOB_SYNC_LEDGER    = "@every 30s"
	DEFAULT_ACTIVE_LIST_CACHE_SECS = 15

	// LEDGER_CALL_TIMEOUT bounds every call into the custody contract.
	LEDGER_CALL_TIMEOUT = 120 * time.Second

	SPLIT_TOP_N       = 3
	MIN_WORD_LENGTH   = 3
	MAX_WORD_LENGTH   = 12
	MAX_WORDS         = 10
	MAX_ATTEMPTS_CAP  = 12
	LIST_LIMIT_MAX    = 100
	EVENT_SYNC_BATCH  = 500
	MAX_TITLE_LENGTH  = 120
	MAX_METADATA_SIZE = 256

	CACHE_TTL_5_MINS = 5 * time.Minute
)

func LockKeyBounty(bountyID string) string {
	return fmt.Sprintf("lock:bounty:%s", bountyID)
}

func LockKeyParticipant(participantID string) string {
	return fmt.Sprintf("lock:participant:%s", participantID)
}

func LockKeyLedgerSync() string {
	return "lock:ledger-sync"
}

func LockKeyUser(userID string) string {
	return fmt.Sprintf("lock:user:%s", userID)
}

func LimitKeyUserAttempt(userID string) string {
	return fmt.Sprintf("limit:attempt:%s", userID)
}

// db
func DBKeyActiveBounties(limit, offset int) string {
	return fmt.Sprintf("bounties:active:%d:%d", limit, offset)
}

func DBKeyActiveBountiesPattern() string {
	return "bounties:active:*"
}

func DBKeyConfig(key string) string {
	return fmt.Sprintf("config:%s", key)
}

func DBKeyUser(userID string) string {
	return fmt.Sprintf("user:%s", userID)
}
