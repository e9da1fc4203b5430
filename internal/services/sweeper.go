package services

import (
	"context"
	"log/slog"
	"time"

	"wordbounty/internal/interfaces"
	"wordbounty/internal/pkg/metrics"

	"github.com/jonboulle/clockwork"
	"github.com/samber/do"
)

type ServiceSweeper struct {
	container *do.Injector
	store     interfaces.BountyStore
	logger    *slog.Logger
	clock     clockwork.Clock

	serviceConfig *ServiceConfig
}

func NewServiceSweeper(container *do.Injector) (*ServiceSweeper, error) {
	store, err := do.Invoke[interfaces.BountyStore](container)
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

	serviceConfig, err := do.Invoke[*ServiceConfig](container)
	if err != nil {
		return nil, err
	}

	return &ServiceSweeper{container, store, logger.With("service", "sweeper"), clock, serviceConfig}, nil
}

type SweepResult struct {
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
}

// SweepExpiredDrafts deletes drafts older than olderThan and fails their
// pending deposits. Only rows still in draft are touched. A zero olderThan
// uses the configured grace period.
func (service *ServiceSweeper) SweepExpiredDrafts(ctx context.Context, olderThan time.Duration) (*SweepResult, error) {
	if olderThan <= 0 {
		olderThan = service.serviceConfig.GetDurationConfig(ctx, CONFIG_DRAFT_GRACE_MINUTES, time.Minute, DEFAULT_DRAFT_GRACE)
	}

	now := service.clock.Now().UTC()
	cutoff := now.Add(-olderThan)

	var ids []string
	err := service.store.RunInTx(ctx, func(ctx context.Context, tx interfaces.BountyStore) error {
		var err error
		ids, err = tx.DeleteExpiredDrafts(ctx, cutoff)
		if err != nil || len(ids) == 0 {
			return err
		}
		_, err = tx.FailPendingDeposits(ctx, ids, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		metrics.SweptDraftsTotal.Add(float64(len(ids)))
		service.logger.Info("swept expired drafts", "count", len(ids), "cutoff", cutoff)
	}
	return &SweepResult{Count: len(ids), IDs: ids}, nil
}
