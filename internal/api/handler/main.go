package handler

import (
	"net/http"

	"wordbounty/internal/services"

	"github.com/hiendaovinh/toolkit/pkg/httpx-echo"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do"
)

type Config struct {
	Container *do.Injector
	Mode      string
	Origins   []string
}

func New(cfg *Config) (http.Handler, error) {
	r := echo.New()
	r.Pre(middleware.RemoveTrailingSlash())
	if cfg.Mode == "debug" {
		r.Debug = true
		pprof.Register(r)
	}

	r.JSONSerializer = httpx.SegmentJSONSerializer{}
	r.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339}\t${method}\t${uri}\t${status}\t${latency_human}\n",
	}))
	r.Use(middleware.Recover())

	r.GET("", func(c echo.Context) error {
		return c.String(http.StatusOK, "🤖")
	})
	r.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	routesAPIv1 := r.Group("/api/v1")
	{
		authentication, err := do.Invoke[*services.Authentication](cfg.Container)
		if err != nil {
			return nil, err
		}
		cors := middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.Origins,
			AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			AllowCredentials: true,
			MaxAge:           60 * 60,
		})

		routesAPIv1.Use(cors)
		routesAPIv1.Use(Authn(authentication)) // Authn will NOT terminate unauthenticated request.
		routesAPIv1.GET("", Hello)

		routesAPIv1User := routesAPIv1.Group("/user")
		{
			u := groupUser{cfg.Container}
			routesAPIv1User.GET("/me", u.Me)
			routesAPIv1User.POST("/wallet", u.ConnectWallet)
		}

		b := groupBounty{cfg.Container}
		routesAPIv1.GET("/bounties", b.List)
		routesAPIv1.POST("/bounties", b.Create)
		routesAPIv1.GET("/bounty/:id", b.Show)
		routesAPIv1.POST("/bounty/:id/join", b.Join)
		routesAPIv1.POST("/bounty/:id/cancel", b.Cancel)
		routesAPIv1.POST("/bounty/:id/refund", b.Refund)
		routesAPIv1.POST("/participant/:id/attempt", b.Attempt)
		routesAPIv1.GET("/participant/:id/progress", b.Progress)

		routesAPIv1Admin := routesAPIv1.Group("/admin")
		routesAPIv1Admin.Use(Admin(cfg.Container))
		{
			a := groupAdmin{cfg.Container}
			routesAPIv1Admin.POST("/bounty/:id/settle", a.Settle)
			routesAPIv1Admin.POST("/bounty/:id/paid", a.MarkPaid)
			routesAPIv1Admin.POST("/bounty/:id/reconcile", a.Reconcile)
			routesAPIv1Admin.POST("/drafts/sweep", a.SweepDrafts)
			routesAPIv1Admin.POST("/ledger/sync", a.SyncLedger)
			routesAPIv1Admin.GET("/ledger", a.Ledger)
			routesAPIv1Admin.POST("/ledger/pause", a.Pause)
			routesAPIv1Admin.POST("/ledger/unpause", a.Unpause)
			routesAPIv1Admin.POST("/ledger/withdraw-fees", a.WithdrawFees)
			routesAPIv1Admin.POST("/ledger/fee-rate", a.FeeRate)
			routesAPIv1Admin.POST("/ledger/emergency-withdraw", a.EmergencyWithdraw)
		}
	}

	return r, nil
}

func Hello(c echo.Context) error {
	return httpx.RestAbort(c, "hello world", nil)
}
