package main

import (
	"log"
	"log/slog"
	"os"

	"wordbounty/internal/container"
	"wordbounty/internal/models"
	"wordbounty/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/env"
	"github.com/joho/godotenv"
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

func main() {
	vs, err := env.EnvsRequired(
		"JWT_SECRET",
		"DB_DSN",
		"LEDGER_OWNER",
	)
	if err != nil {
		log.Fatal(err)
	}

	injector := container.NewContainer(vs)
	app := &cli.App{
		Name:  "ledger",
		Usage: "owner operations on the custody ledger",
		Commands: []*cli.Command{
			commandStatus(injector),
			commandPause(injector),
			commandUnpause(injector),
			commandWithdrawFees(injector),
			commandFeeRate(injector),
			commandEmergencyWithdraw(injector),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func treasury(injector *do.Injector) (*services.ServiceTreasury, *slog.Logger, error) {
	serviceTreasury, err := do.Invoke[*services.ServiceTreasury](injector)
	if err != nil {
		return nil, nil, err
	}
	logger, err := do.Invoke[*slog.Logger](injector)
	if err != nil {
		return nil, nil, err
	}
	return serviceTreasury, logger, nil
}

func commandStatus(injector *do.Injector) *cli.Command {
	return &cli.Command{
		Name: "status",
		Action: func(c *cli.Context) error {
			serviceTreasury, logger, err := treasury(injector)
			if err != nil {
				return err
			}

			status, err := serviceTreasury.Status(c.Context)
			if err != nil {
				return err
			}
			logger.Info("ledger",
				"owner", status.Owner,
				"balance", models.FormatAmount(status.Balance),
				"fee_pool", models.FormatAmount(status.FeePool),
				"fee_bps", status.FeeBps,
				"minimum_bounty", models.FormatAmount(status.MinimumBounty),
				"paused", status.Paused,
				"seq", status.Seq,
			)
			return nil
		},
	}
}

func commandPause(injector *do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "pause",
		Usage: "reject new bounties and joins",
		Action: func(c *cli.Context) error {
			serviceTreasury, logger, err := treasury(injector)
			if err != nil {
				return err
			}

			receipt, err := serviceTreasury.Pause(c.Context)
			if err != nil {
				return err
			}
			logger.Info("paused", "tx_hash", receipt.TxHash.Hex())
			return nil
		},
	}
}

func commandUnpause(injector *do.Injector) *cli.Command {
	return &cli.Command{
		Name: "unpause",
		Action: func(c *cli.Context) error {
			serviceTreasury, logger, err := treasury(injector)
			if err != nil {
				return err
			}

			receipt, err := serviceTreasury.Unpause(c.Context)
			if err != nil {
				return err
			}
			logger.Info("unpaused", "tx_hash", receipt.TxHash.Hex())
			return nil
		},
	}
}

func commandWithdrawFees(injector *do.Injector) *cli.Command {
	return &cli.Command{
		Name: "withdraw-fees",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "admin",
				Usage:    "user id recorded on the journal row",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			serviceTreasury, logger, err := treasury(injector)
			if err != nil {
				return err
			}

			row, err := serviceTreasury.WithdrawFees(c.Context, c.String("admin"))
			if err != nil {
				return err
			}
			logger.Info("fees withdrawn", "transaction", row.ID, "amount", models.FormatAmount(row.Amount))
			return nil
		},
	}
}

func commandFeeRate(injector *do.Injector) *cli.Command {
	return &cli.Command{
		Name: "fee-rate",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:     "bps",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			serviceTreasury, logger, err := treasury(injector)
			if err != nil {
				return err
			}

			receipt, err := serviceTreasury.SetFeeBps(c.Context, c.Int64("bps"))
			if err != nil {
				return err
			}
			logger.Info("fee rate updated", "bps", c.Int64("bps"), "tx_hash", receipt.TxHash.Hex())
			return nil
		},
	}
}

func commandEmergencyWithdraw(injector *do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "emergency-withdraw",
		Usage: "drain the contract to the owner",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "yes",
				Usage: "confirm the drain",
			},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") {
				return cli.Exit("refusing to drain without --yes", 1)
			}

			serviceTreasury, logger, err := treasury(injector)
			if err != nil {
				return err
			}

			receipt, err := serviceTreasury.EmergencyWithdraw(c.Context)
			if err != nil {
				return err
			}
			logger.Warn("contract drained", "amount", models.FormatAmount(receipt.Event.Amount), "tx_hash", receipt.TxHash.Hex())
			return nil
		},
	}
}
