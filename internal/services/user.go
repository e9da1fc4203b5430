package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"wordbounty/internal/interfaces"
	"wordbounty/internal/models"
	"wordbounty/internal/pkg/caching"
	"wordbounty/internal/pkg/ton_utils"

	"github.com/jonboulle/clockwork"
	"github.com/samber/do"
)

var ErrUserLock = errors.New("user locked")

type ServiceUser struct {
	container *do.Injector
	store     interfaces.BountyStore
	locker    interfaces.Locker
	cache     caching.Cache
	logger    *slog.Logger
	clock     clockwork.Clock
}

func NewServiceUser(container *do.Injector) (*ServiceUser, error) {
	store, err := do.Invoke[interfaces.BountyStore](container)
	if err != nil {
		return nil, err
	}

	locker, err := do.Invoke[interfaces.Locker](container)
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	logger, err := do.Invoke[*slog.Logger](container)
	if err != nil {
		return nil, err
	}

	clock, err := do.Invoke[clockwork.Clock](container)
	if err != nil {
		return nil, err
	}

	return &ServiceUser{container, store, locker, cache, logger.With("service", "user"), clock}, nil
}

func (service *ServiceUser) FindUserByID(ctx context.Context, userID string) (*models.User, error) {
	callback := func() (*models.User, error) {
		user, err := service.store.FindUser(ctx, userID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("user not found")
		}
		return user, err
	}
	return caching.UseCache(ctx, service.cache, DBKeyUser(userID), CACHE_TTL_5_MINS, callback)
}

// FindOrCreateUser resolves the user of a valid token, creating the row on
// first sight.
func (service *ServiceUser) FindOrCreateUser(ctx context.Context, userAuth *models.UserFromAuth) (*models.User, error) {
	user, err := service.FindUserByID(ctx, userAuth.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	mutex := service.locker.NewMutex(LockKeyUser(userAuth.ID))
	if err := mutex.LockContext(ctx); err != nil {
		return nil, ErrUserLock
	}
	defer unlock(ctx, mutex, service.logger)

	user, err = service.store.FindUser(ctx, userAuth.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := service.clock.Now().UTC()
	user = &models.User{
		ID:        userAuth.ID,
		Username:  userAuth.Username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := service.store.InsertUser(ctx, user); err != nil {
		return nil, err
	}
	user.IsNewUser = true

	service.logger.Info("user created", "user_id", user.ID)
	return user, nil
}

// ConnectWallet stores the normalized form of address for the user. A
// wallet belongs to one user only.
func (service *ServiceUser) ConnectWallet(ctx context.Context, userID string, address string) (*models.User, error) {
	wallet, err := ton_utils.NormalizeAddress(address)
	if err != nil {
		return nil, &ValidationError{Msg: "invalid wallet address", Err: err}
	}

	user, err := service.store.FindUser(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user not found")
	}
	if err != nil {
		return nil, err
	}
	if user.Wallet() == wallet {
		return user, nil
	}

	owner, err := service.store.FindUserByWallet(ctx, wallet)
	if err == nil && owner.ID != user.ID {
		return nil, validationf("wallet is connected to another user")
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	user.WalletAddress = &wallet
	user.UpdatedAt = service.clock.Now().UTC()
	if err := service.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}

	if err := service.cache.Delete(ctx, DBKeyUser(user.ID)); err != nil {
		service.logger.Warn("failed to invalidate user", "user_id", user.ID, "error", err)
	}
	return user, nil
}
