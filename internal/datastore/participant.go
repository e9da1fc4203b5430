package datastore

import (
	"context"

	"wordbounty/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableParticipant(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.Participant)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Participant)(nil)).Index("index_participant_bounty_id_user_id").Unique().IfNotExists().Column("bounty_id", "user_id").Exec(ctx)
	if err != nil {
		return err
	}

	// a ledger address joins a bounty once
	_, err = db.NewCreateIndex().Model((*models.Participant)(nil)).Index("index_participant_bounty_id_wallet_address").Unique().IfNotExists().Column("bounty_id", "wallet_address").Where("wallet_address <> ''").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Participant)(nil)).Index("index_participant_user_id").IfNotExists().Column("user_id").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func InsertParticipant(ctx context.Context, db bun.IDB, participant *models.Participant) error {
	_, err := db.NewInsert().Model(participant).Exec(ctx)
	return err
}

func FindParticipant(ctx context.Context, db bun.IDB, bountyID, userID string) (*models.Participant, error) {
	var participant models.Participant
	err := db.NewSelect().Model(&participant).Where("bounty_id = ?", bountyID).Where("user_id = ?", userID).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func participantByWalletQuery(db bun.IDB, participant *models.Participant, bountyID, wallet string) *bun.SelectQuery {
	return db.NewSelect().Model(participant).Where("bounty_id = ?", bountyID).Where("wallet_address = ?", wallet).Limit(1)
}

func FindParticipantByWallet(ctx context.Context, db bun.IDB, bountyID, wallet string) (*models.Participant, error) {
	var participant models.Participant
	err := participantByWalletQuery(db, &participant, bountyID, wallet).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func FindParticipantByID(ctx context.Context, db bun.IDB, id string) (*models.Participant, error) {
	var participant models.Participant
	err := db.NewSelect().Model(&participant).Where("id = ?", id).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func ListParticipantsByBounty(ctx context.Context, db bun.IDB, bountyID string) ([]*models.Participant, error) {
	var participants []*models.Participant
	err := db.NewSelect().Model(&participants).Where("bounty_id = ?", bountyID).Order("joined_at ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func UpdateParticipant(ctx context.Context, db bun.IDB, participant *models.Participant) error {
	_, err := db.NewUpdate().Model(participant).WherePK().Exec(ctx)
	return err
}
