package handler

import (
	"context"
	"errors"
	"strings"

	"wordbounty/internal/models"
	"wordbounty/internal/pkg/limiter"
	"wordbounty/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/errorx"
	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo/v4"
	"github.com/samber/do"
)

type ctxKey string

var ctxKeyAuthUser ctxKey = "AUTH_USER"

func Authn(verifier interface {
	Validate(token string) (*models.UserFromAuth, error)
},
) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return next(c)
			}

			parts := strings.Split(header, "Bearer")
			if len(parts) != 2 {
				return next(c)
			}

			token := strings.TrimSpace(parts[1])
			if len(token) == 0 {
				return next(c)
			}

			user, err := verifier.Validate(token)
			if err != nil {
				// although it's a client error, we don't want to detailed information
				//nolint:errcheck
				httpx.Abort(c, errorx.Wrap(errors.New("invalid access token"), errorx.Authn), -1)
				return nil
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, ctxKeyAuthUser, user)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func ResolveValidUser(ctx context.Context, container *do.Injector) (*models.User, error) {
	userAuth, ok := ctx.Value(ctxKeyAuthUser).(*models.UserFromAuth)
	if !ok {
		return nil, errorx.Wrap(errors.New("missing session"), errorx.Authn)
	}

	serviceUser, err := do.Invoke[*services.ServiceUser](container)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.Service)
	}

	user, err := serviceUser.FindOrCreateUser(ctx, userAuth)
	if err != nil {
		return nil, translate(err)
	}
	return user, nil
}

// Admin terminates requests of users without the admin flag. The flag is
// read from the database, never from the token.
func Admin(container *do.Injector) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, err := ResolveValidUser(c.Request().Context(), container)
			if err != nil {
				return httpx.RestAbort(c, nil, err)
			}
			if !user.IsAdmin {
				return httpx.RestAbort(c, nil, errorx.Wrap(errors.New("admin only"), errorx.Authn))
			}
			return next(c)
		}
	}
}

// translate maps service errors onto the toolkit error kinds.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var validationErr *services.ValidationError
	var stateErr *services.StateError
	var paymentErr *services.PaymentError
	switch {
	case errors.Is(err, services.ErrNotFound):
		return errorx.Wrap(err, errorx.NotExist)
	case errors.Is(err, limiter.ErrRateLimited):
		return errorx.Wrap(err, errorx.RateLimiting)
	case errors.As(err, &validationErr):
		return errorx.Wrap(err, errorx.Validation)
	case errors.As(err, &stateErr):
		return errorx.Wrap(err, errorx.Invalid)
	case errors.Is(err, services.ErrBountyLock), errors.Is(err, services.ErrUserLock):
		return errorx.Wrap(err, errorx.Invalid)
	case errors.As(err, &paymentErr):
		return errorx.Wrap(err, errorx.Service)
	}
	return errorx.Wrap(err, errorx.Service)
}

func abort(c echo.Context, data any, err error) error {
	return httpx.RestAbort(c, data, translate(err))
}
