package datastore

import (
	"context"

	"wordbounty/internal/models"

	"github.com/uptrace/bun"
)

func CreateTableUser(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*models.User)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return err
	}

	_, err = db.NewRaw(`
		alter table "user"
			add if not exists is_admin boolean not null default false;
		alter table "user"
			alter column created_at set default current_timestamp;`).Exec(ctx)
	if err != nil {
		return err
	}

	return nil
}

func FindUserByID(ctx context.Context, db bun.IDB, userID string) (*models.User, error) {
	var user models.User
	err := db.NewSelect().Model(&user).Where("id = ?", userID).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func FindUserByWallet(ctx context.Context, db bun.IDB, wallet string) (*models.User, error) {
	var user models.User
	err := db.NewSelect().Model(&user).Where("wallet_address = ?", wallet).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func CreateUser(ctx context.Context, db bun.IDB, user *models.User) (*models.User, error) {
	_, err := db.NewInsert().Model(user).Exec(ctx)
	if err != nil {
		return nil, err
	}

	return user, nil
}

func EditUser(ctx context.Context, db bun.IDB, user *models.User) (*models.User, error) {
	_, err := db.NewUpdate().Model(user).WherePK().Exec(ctx)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// AddUserWinnings moves the lifetime aggregates; negative values reverse a settlement.
func AddUserWinnings(ctx context.Context, db bun.IDB, userID string, wins int, earnings int64) error {
	_, err := db.NewUpdate().
		Model((*models.User)(nil)).
		Set("total_wins = total_wins + ?", wins).
		Set("total_earnings = total_earnings + ?", earnings).
		Where("id = ?", userID).
		Exec(ctx)
	return err
}
