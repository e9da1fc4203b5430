package main

import (
	"context"
	"log/slog"

	"wordbounty/internal/services"

	"github.com/robfig/cron/v3"
	"github.com/samber/do"
)

// SweepDraftsJob removes drafts whose deposit never confirmed.
type SweepDraftsJob struct {
	serviceSweeper *services.ServiceSweeper
	serviceConfig  *services.ServiceConfig
	logger         *slog.Logger
}

func NewSweepDraftsJob(injector *do.Injector, serviceConfig *services.ServiceConfig, logger *slog.Logger) (*SweepDraftsJob, error) {
	serviceSweeper, err := do.Invoke[*services.ServiceSweeper](injector)
	if err != nil {
		return nil, err
	}
	return &SweepDraftsJob{serviceSweeper, serviceConfig, logger.With("job", "sweep-drafts")}, nil
}

func (j *SweepDraftsJob) Start(cronRunner *cron.Cron) error {
	timeline, err := j.serviceConfig.GetStringConfig(context.Background(), services.CONFIG_CRONJOB_SWEEP_DRAFTS, services.DEFAULT_CRONJOB_SWEEP_DRAFTS)
	if err != nil || timeline == "" {
		timeline = services.DEFAULT_CRONJOB_SWEEP_DRAFTS
	}

	_, err = cronRunner.AddFunc(timeline, j.runScheduledTask)
	if err != nil {
		return err
	}
	j.logger.Info("scheduled", "cron", timeline)
	return nil
}

func (j *SweepDraftsJob) runScheduledTask() {
	result, err := j.serviceSweeper.SweepExpiredDrafts(context.Background(), 0)
	if err != nil {
		j.logger.Error("sweep failed", "error", err)
		return
	}
	if result.Count > 0 {
		j.logger.Info("swept drafts", "count", result.Count, "ids", result.IDs)
	}
}

// SyncLedgerJob replays ledger events so late payout confirmations reach
// the participant rows.
type SyncLedgerJob struct {
	serviceSettlement *services.ServiceSettlement
	serviceConfig     *services.ServiceConfig
	logger            *slog.Logger
}

func NewSyncLedgerJob(injector *do.Injector, serviceConfig *services.ServiceConfig, logger *slog.Logger) (*SyncLedgerJob, error) {
	serviceSettlement, err := do.Invoke[*services.ServiceSettlement](injector)
	if err != nil {
		return nil, err
	}
	return &SyncLedgerJob{serviceSettlement, serviceConfig, logger.With("job", "sync-ledger")}, nil
}

func (j *SyncLedgerJob) Start(cronRunner *cron.Cron) error {
	timeline, err := j.serviceConfig.GetStringConfig(context.Background(), services.CONFIG_CRONJOB_SYNC_LEDGER, services.DEFAULT_CRONJOB_SYNC_LEDGER)
	if err != nil || timeline == "" {
		timeline = services.DEFAULT_CRONJOB_SYNC_LEDGER
	}

	_, err = cronRunner.AddFunc(timeline, j.runScheduledTask)
	if err != nil {
		return err
	}
	j.logger.Info("scheduled", "cron", timeline)
	return nil
}

func (j *SyncLedgerJob) runScheduledTask() {
	result, err := j.serviceSettlement.SyncLedgerEvents(context.Background())
	if err != nil {
		j.logger.Error("ledger sync failed", "error", err)
		return
	}
	if result.Processed > 0 {
		j.logger.Info("ledger synced", "processed", result.Processed, "attached", result.Attached, "cursor", result.Cursor)
	}
}
