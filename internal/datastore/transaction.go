package datastore

import (
	"context"
	"time"

	"wordbounty/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableTransaction(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.Transaction)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Transaction)(nil)).Index("index_bounty_transaction_bounty_id_type").IfNotExists().Column("bounty_id", "type").Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewCreateIndex().Model((*models.Transaction)(nil)).Index("index_bounty_transaction_tx_hash").IfNotExists().Column("tx_hash").Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func InsertTransaction(ctx context.Context, db bun.IDB, tx *models.Transaction) error {
	_, err := db.NewInsert().Model(tx).Exec(ctx)
	return err
}

func UpdateTransaction(ctx context.Context, db bun.IDB, tx *models.Transaction) error {
	_, err := db.NewUpdate().Model(tx).WherePK().Exec(ctx)
	return err
}

func ListTransactions(ctx context.Context, db bun.IDB, bountyID string, txType models.TransactionType) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	err := db.NewSelect().
		Model(&txs).
		Where("bounty_id = ?", bountyID).
		Where("type = ?", txType).
		Order("created_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func failPendingDepositsQuery(db bun.IDB, bountyIDs []string, at time.Time) *bun.UpdateQuery {
	return db.NewUpdate().
		Model((*models.Transaction)(nil)).
		Set("status = ?", models.TransactionStatusFailed).
		Set("note = ?", "draft expired").
		Set("updated_at = ?", at).
		Where("bounty_id IN (?)", bun.In(bountyIDs)).
		Where("type = ?", models.TransactionTypeDeposit).
		Where("status = ?", models.TransactionStatusPending)
}

func FailPendingDeposits(ctx context.Context, db bun.IDB, bountyIDs []string, at time.Time) (int64, error) {
	if len(bountyIDs) == 0 {
		return 0, nil
	}
	res, err := failPendingDepositsQuery(db, bountyIDs, at).Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
