package main

import (
	"log"
	"log/slog"
	"os"

	"wordbounty/internal/container"
	"wordbounty/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/env"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/samber/do"
	"github.com/urfave/cli/v2"
)

func init() {
	// for development
	//nolint:errcheck
	godotenv.Load("../../.env")

	// for production
	//nolint:errcheck
	godotenv.Load("./.env")
}

type CronJob interface {
	Start(cronRunner *cron.Cron) error
}

func main() {
	vs, err := env.EnvsRequired(
		"JWT_SECRET",
		"DB_DSN",
		"LEDGER_OWNER",
	)
	if err != nil {
		log.Fatal(err)
	}

	app := &cli.App{
		Name: "cronjob",
		Commands: []*cli.Command{
			commandCronjob(container.NewContainer(vs)),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commandCronjob(injector *do.Injector) *cli.Command {
	return &cli.Command{
		Name: "cron",
		Action: func(c *cli.Context) error {
			logger := do.MustInvoke[*slog.Logger](injector)
			serviceConfig := do.MustInvoke[*services.ServiceConfig](injector)

			sweepJob, err := NewSweepDraftsJob(injector, serviceConfig, logger)
			if err != nil {
				return err
			}
			syncJob, err := NewSyncLedgerJob(injector, serviceConfig, logger)
			if err != nil {
				return err
			}

			cronRunner := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
			for _, job := range []CronJob{sweepJob, syncJob} {
				if err := job.Start(cronRunner); err != nil {
					return err
				}
			}

			logger.Info("start cronjob")
			cronRunner.Run()
			return nil
		},
	}
}
