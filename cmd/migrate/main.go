package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"wordbounty/internal/datastore"
	"wordbounty/internal/models"
	"wordbounty/internal/services"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
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

func main() {
	app := &cli.App{
		Name: "migrate",
		Commands: []*cli.Command{
			commandMigration(),
			commandConfigMigration(),
			commandPromoteAdmin(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func commandMigration() *cli.Command {
	return &cli.Command{
		Name: "migrate",
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			db, err := getDb()
			if err != nil {
				return err
			}

			steps := []func(context.Context, *bun.DB) error{
				datastore.CreateTableUser,
				datastore.CreateTableConfig,
				datastore.CreateTableBounty,
				datastore.CreateTableParticipant,
				datastore.CreateTableTransaction,
			}
			for _, step := range steps {
				if err := step(ctx, db); err != nil {
					return err
				}
			}

			fmt.Println("Migration success")
			return nil
		},
	}
}

func commandConfigMigration() *cli.Command {
	return &cli.Command{
		Name:        "migrate-config",
		Description: "Insert default configs to db",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "overwrite",
				Usage: "replace values already present",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			db, err := getDb()
			if err != nil {
				return err
			}

			now := time.Now()
			configs := []models.Config{
				{Key: services.CONFIG_DRAFT_GRACE_MINUTES, Value: strconv.Itoa(int(services.DEFAULT_DRAFT_GRACE / time.Minute))},
				{Key: services.CONFIG_ATTEMPT_LIMIT_PER_MIN, Value: strconv.Itoa(services.DEFAULT_ATTEMPT_LIMIT_PER_MIN)},
				{Key: services.CONFIG_DEFAULT_MAX_ATTEMPTS, Value: strconv.Itoa(services.DEFAULT_MAX_ATTEMPTS)},
				{Key: services.CONFIG_ACTIVE_LIST_CACHE_SECS, Value: strconv.Itoa(services.DEFAULT_ACTIVE_LIST_CACHE_SECS)},
				{Key: services.CONFIG_CRONJOB_SWEEP_DRAFTS, Value: services.DEFAULT_CRONJOB_SWEEP_DRAFTS},
				{Key: services.CONFIG_CRONJOB_SYNC_LEDGER, Value: services.DEFAULT_CRONJOB_SYNC_LEDGER},
			}

			for i := range configs {
				configs[i].UpdatedAt = now
				if err := datastore.UpsertConfig(ctx, db, &configs[i], c.Bool("overwrite")); err != nil {
					log.Println(configs[i].Key, err)
				}
			}

			fmt.Println("Migration success")
			return nil
		},
	}
}

func commandPromoteAdmin() *cli.Command {
	return &cli.Command{
		Name:  "promote-admin",
		Usage: "grant or revoke admin routes for a user",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Required: true,
			},
			&cli.BoolFlag{
				Name: "revoke",
			},
		},
		Action: func(c *cli.Context) error {
			ctx := context.Background()
			db, err := getDb()
			if err != nil {
				return err
			}

			user, err := datastore.FindUserByID(ctx, db, c.String("user"))
			if err != nil {
				return err
			}
			user.IsAdmin = !c.Bool("revoke")
			user.UpdatedAt = time.Now()
			if _, err := datastore.EditUser(ctx, db, user); err != nil {
				return err
			}

			fmt.Println(user.ID, "admin:", user.IsAdmin)
			return nil
		},
	}
}

func getDb() (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(os.Getenv("DB_DSN")),
		pgdriver.WithPassword(os.Getenv("DB_PASSWORD")),
	))

	db := bun.NewDB(sqldb, pgdialect.New())
	return db, nil
}
