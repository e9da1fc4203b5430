package handler

import (
	"errors"
	"strconv"
	"time"

	"wordbounty/internal/models"
	"wordbounty/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"
)

type groupBounty struct {
	container *do.Injector
}

type createBountyRequest struct {
	Title        string              `json:"title"`
	Words        []string            `json:"words"`
	Prize        string              `json:"prize"`
	Criterion    models.Criterion    `json:"criterion"`
	Distribution models.Distribution `json:"distribution"`
	Deadline     time.Time           `json:"deadline"`
	MaxAttempts  int                 `json:"max_attempts"`
}

func (gr *groupBounty) Create(c echo.Context) error {
	ctx := c.Request().Context()

	user, err := ResolveValidUser(ctx, gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	var req createBountyRequest
	if err := c.Bind(&req); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(errors.New("invalid body"), errorx.Validation))
	}

	prize := int64(0)
	if req.Prize != "" {
		prize, err = models.ParseAmount(req.Prize)
		if err != nil {
			return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Validation))
		}
	}

	serviceBounty, err := do.Invoke[*services.ServiceBounty](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	bounty, err := serviceBounty.CreateBounty(ctx, user.ID, services.CreateBountyInput{
		Title:        req.Title,
		Words:        req.Words,
		PrizeAmount:  prize,
		Criterion:    req.Criterion,
		Distribution: req.Distribution,
		Deadline:     req.Deadline,
		MaxAttempts:  req.MaxAttempts,
	})
	return abort(c, bounty, err)
}

func (gr *groupBounty) List(c echo.Context) error {
	ctx := c.Request().Context()

	limit := 20
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil {
		limit = v
	}
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	serviceBounty, err := do.Invoke[*services.ServiceBounty](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	bounties, err := serviceBounty.ListActiveBounties(ctx, limit, offset)
	return abort(c, bounties, err)
}

func (gr *groupBounty) Show(c echo.Context) error {
	ctx := c.Request().Context()

	// anonymous viewers only see published bounties
	requesterID := ""
	if user, err := ResolveValidUser(ctx, gr.container); err == nil {
		requesterID = user.ID
	}

	serviceBounty, err := do.Invoke[*services.ServiceBounty](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	bounty, err := serviceBounty.GetBounty(ctx, c.Param("id"), requesterID)
	return abort(c, bounty, err)
}

func (gr *groupBounty) Join(c echo.Context) error {
	ctx := c.Request().Context()

	user, err := ResolveValidUser(ctx, gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	serviceBounty, err := do.Invoke[*services.ServiceBounty](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	participant, err := serviceBounty.JoinBounty(ctx, c.Param("id"), user.ID)
	return abort(c, participant, err)
}

func (gr *groupBounty) Cancel(c echo.Context) error {
	ctx := c.Request().Context()

	user, err := ResolveValidUser(ctx, gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	serviceBounty, err := do.Invoke[*services.ServiceBounty](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	result, err := serviceBounty.CancelBounty(ctx, c.Param("id"), user.ID)
	return abort(c, result, err)
}

func (gr *groupBounty) Refund(c echo.Context) error {
	ctx := c.Request().Context()

	user, err := ResolveValidUser(ctx, gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	serviceBounty, err := do.Invoke[*services.ServiceBounty](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	result, err := serviceBounty.ClaimExpiredRefund(ctx, c.Param("id"), user.ID)
	return abort(c, result, err)
}

type attemptRequest struct {
	WordIndex int    `json:"word_index"`
	Guess     string `json:"guess"`
}

func (gr *groupBounty) Attempt(c echo.Context) error {
	ctx := c.Request().Context()

	user, err := ResolveValidUser(ctx, gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	var req attemptRequest
	if err := c.Bind(&req); err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(errors.New("invalid body"), errorx.Validation))
	}

	serviceAttempt, err := do.Invoke[*services.ServiceAttempt](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	result, err := serviceAttempt.SubmitAttempt(ctx, user.ID, c.Param("id"), req.WordIndex, req.Guess)
	return abort(c, result, err)
}

func (gr *groupBounty) Progress(c echo.Context) error {
	ctx := c.Request().Context()

	user, err := ResolveValidUser(ctx, gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, err)
	}

	serviceAttempt, err := do.Invoke[*services.ServiceAttempt](gr.container)
	if err != nil {
		return httpx.RestAbort(c, nil, errorx.Wrap(err, errorx.Service))
	}

	progress, err := serviceAttempt.GetProgress(ctx, user.ID, c.Param("id"))
	return abort(c, progress, err)
}
