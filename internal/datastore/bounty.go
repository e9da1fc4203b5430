package datastore

import (
	"context"
	"time"

	"wordbounty/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableBounty(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.Bounty)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Bounty)(nil)).Index("index_bounty_status_created_at").IfNotExists().Column("status", "created_at").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Bounty)(nil)).Index("index_bounty_creator_id").IfNotExists().Column("creator_id").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func InsertBounty(ctx context.Context, db bun.IDB, bounty *models.Bounty) error {
	_, err := db.NewInsert().Model(bounty).Exec(ctx)
	return err
}

func FindBountyByID(ctx context.Context, db bun.IDB, id string) (*models.Bounty, error) {
	var bounty models.Bounty
	err := db.NewSelect().Model(&bounty).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &bounty, nil
}

func FindBountyByLedgerKey(ctx context.Context, db bun.IDB, key string) (*models.Bounty, error) {
	var bounty models.Bounty
	err := db.NewSelect().Model(&bounty).Where("ledger_key = ?", key).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &bounty, nil
}

func activeBountiesQuery(db bun.IDB, bounties *[]*models.Bounty, limit, offset int) *bun.SelectQuery {
	return db.NewSelect().
		Model(bounties).
		Where("status = ?", models.BountyStatusActive).
		Order("deadline ASC").
		Limit(limit).
		Offset(offset)
}

// ListActiveBounties never returns drafts.
func ListActiveBounties(ctx context.Context, db bun.IDB, limit, offset int) ([]*models.Bounty, error) {
	var bounties []*models.Bounty
	err := activeBountiesQuery(db, &bounties, limit, offset).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bounties, nil
}

func activateBountyQuery(db bun.IDB, id string, txHash, contractRef *string, at time.Time) *bun.UpdateQuery {
	return db.NewUpdate().
		Model((*models.Bounty)(nil)).
		Set("status = ?", models.BountyStatusActive).
		Set("tx_hash = ?", txHash).
		Set("contract_ref = ?", contractRef).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", models.BountyStatusDraft)
}

func ActivateBounty(ctx context.Context, db bun.IDB, id string, txHash, contractRef *string, at time.Time) (bool, error) {
	res, err := activateBountyQuery(db, id, txHash, contractRef, at).Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func transitionBountyQuery(db bun.IDB, id string, from, to models.BountyStatus, at time.Time) *bun.UpdateQuery {
	q := db.NewUpdate().
		Model((*models.Bounty)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", at).
		Where("id = ?", id).
		Where("status = ?", from)
	switch to {
	case models.BountyStatusCompleted:
		q = q.Set("completed_at = ?", at)
	case models.BountyStatusActive:
		q = q.Set("completed_at = NULL")
	}
	return q
}

// TransitionBounty only updates the row while it is still in status from.
func TransitionBounty(ctx context.Context, db bun.IDB, id string, from, to models.BountyStatus, at time.Time) (bool, error) {
	res, err := transitionBountyQuery(db, id, from, to, at).Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func DeleteDraftBounty(ctx context.Context, db bun.IDB, id string) error {
	_, err := db.NewDelete().
		Model((*models.Bounty)(nil)).
		Where("id = ?", id).
		Where("status = ?", models.BountyStatusDraft).
		Exec(ctx)
	return err
}

func IncrementParticipantCount(ctx context.Context, db bun.IDB, id string) error {
	_, err := db.NewUpdate().
		Model((*models.Bounty)(nil)).
		Set("participant_count = participant_count + 1").
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func expiredDraftsQuery(db bun.IDB, cutoff time.Time) *bun.DeleteQuery {
	return db.NewDelete().
		Model((*models.Bounty)(nil)).
		Where("status = ?", models.BountyStatusDraft).
		Where("created_at < ?", cutoff).
		Returning("id")
}

// DeleteExpiredDrafts removes drafts created before cutoff. The status
// predicate is what keeps active and settled bounties safe.
func DeleteExpiredDrafts(ctx context.Context, db bun.IDB, cutoff time.Time) ([]string, error) {
	var ids []string
	err := expiredDraftsQuery(db, cutoff).Scan(ctx, &ids)
	if err != nil {
		return nil, err
	}
	return ids, nil
}
