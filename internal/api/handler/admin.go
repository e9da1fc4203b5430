package handler

import (
	"errors"
	"time"

	"wordbounty/internal/models"
	"wordbounty/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"
)

type groupAdmin struct {
	container *do.Injector
}

func (gr *groupAdmin) Settle(c echo.Context) error {
	serviceSettlement, err := do.Invoke[*services.ServiceSettlement](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	result, err := serviceSettlement.CompleteAndSettle(c.Request().Context(), c.Param("id"))
	return abort(c, result, err)
}

type markPaidRequest struct {
	UserID string `json:"user_id"`
	TxHash string `json:"tx_hash"`
	Amount string `json:"amount"`
}

func (gr *groupAdmin) MarkPaid(c echo.Context) error {
	var req markPaidRequest
	if err := c.Bind(&req); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(errors.New("invalid body"), errorx.Validation))
	}

	amount := int64(0)
	if req.Amount != "" {
		var err error
		amount, err = models.ParseAmount(req.Amount)
		if err != nil {
			return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Validation))
		}
	}

	serviceSettlement, err := do.Invoke[*services.ServiceSettlement](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	participant, err := serviceSettlement.MarkPrizePaid(c.Request().Context(), c.Param("id"), req.UserID, req.TxHash, amount)
	return abort(c, participant, err)
}

func (gr *groupAdmin) Reconcile(c echo.Context) error {
	serviceSettlement, err := do.Invoke[*services.ServiceSettlement](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	result, err := serviceSettlement.ReconcileBounty(c.Request().Context(), c.Param("id"))
	return abort(c, result, err)
}

func (gr *groupAdmin) SyncLedger(c echo.Context) error {
	serviceSettlement, err := do.Invoke[*services.ServiceSettlement](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	result, err := serviceSettlement.SyncLedgerEvents(c.Request().Context())
	return abort(c, result, err)
}

type sweepRequest struct {
	OlderThanMinutes int `json:"older_than_minutes"`
}

func (gr *groupAdmin) SweepDrafts(c echo.Context) error {
	var req sweepRequest
	if err := c.Bind(&req); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(errors.New("invalid body"), errorx.Validation))
	}

	serviceSweeper, err := do.Invoke[*services.ServiceSweeper](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	result, err := serviceSweeper.SweepExpiredDrafts(c.Request().Context(), time.Duration(req.OlderThanMinutes)*time.Minute)
	return abort(c, result, err)
}

func (gr *groupAdmin) Ledger(c echo.Context) error {
	serviceTreasury, err := do.Invoke[*services.ServiceTreasury](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	status, err := serviceTreasury.Status(c.Request().Context())
	return abort(c, status, err)
}

func (gr *groupAdmin) Pause(c echo.Context) error {
	serviceTreasury, err := do.Invoke[*services.ServiceTreasury](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	receipt, err := serviceTreasury.Pause(c.Request().Context())
	return abort(c, receipt, err)
}

func (gr *groupAdmin) Unpause(c echo.Context) error {
	serviceTreasury, err := do.Invoke[*services.ServiceTreasury](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	receipt, err := serviceTreasury.Unpause(c.Request().Context())
	return abort(c, receipt, err)
}

func (gr *groupAdmin) WithdrawFees(c echo.Context) error {
	ctx := c.Request().Context()

	user, err := ResolveValidUser(ctx, gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	serviceTreasury, err := do.Invoke[*services.ServiceTreasury](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	row, err := serviceTreasury.WithdrawFees(ctx, user.ID)
	return abort(c, row, err)
}

type feeRateRequest struct {
	Bps int64 `json:"bps"`
}

func (gr *groupAdmin) FeeRate(c echo.Context) error {
	var req feeRateRequest
	if err := c.Bind(&req); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(errors.New("invalid body"), errorx.Validation))
	}

	serviceTreasury, err := do.Invoke[*services.ServiceTreasury](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	receipt, err := serviceTreasury.SetFeeBps(c.Request().Context(), req.Bps)
	return abort(c, receipt, err)
}

func (gr *groupAdmin) EmergencyWithdraw(c echo.Context) error {
	serviceTreasury, err := do.Invoke[*services.ServiceTreasury](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	receipt, err := serviceTreasury.EmergencyWithdraw(c.Request().Context())
	return abort(c, receipt, err)
}
