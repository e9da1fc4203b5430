// Package container wires the services shared by the binaries.
package container

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strconv"

	"wordbounty/internal/datastore"
	"wordbounty/internal/datastore/redis_store"
	"wordbounty/internal/interfaces"
	"wordbounty/internal/ledger"
	"wordbounty/internal/models"
	"wordbounty/internal/pkg/caching"
	"wordbounty/internal/pkg/limiter"
	"wordbounty/internal/pkg/locker"
	"wordbounty/internal/pkg/logger"
	"wordbounty/internal/services"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/hiendaovinh/toolkit/pkg/db"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	DEFAULT_LEDGER_FEE_BPS    = 250
	DEFAULT_LEDGER_MIN_BOUNTY = models.NanoPerUnit / 10
)

// optional variables and their defaults
var optionalEnvs = map[string]string{
	"API_MODE":          "production",
	"API_ORIGINS":       "*",
	"LEDGER_FEE_BPS":    strconv.Itoa(DEFAULT_LEDGER_FEE_BPS),
	"LEDGER_MIN_BOUNTY": strconv.Itoa(DEFAULT_LEDGER_MIN_BOUNTY),
	"DICTIONARY_URL":    "",
	"LOG_VERBOSE":       "",
}

func NewContainer(vs map[string]string) *do.Injector {
	injector := do.New()
	for k, def := range optionalEnvs {
		vs[k] = os.Getenv(k)
		if vs[k] == "" {
			vs[k] = def
		}
	}

	do.ProvideNamedValue(injector, "envs", vs)

	do.Provide(injector, func(i *do.Injector) (*bun.DB, error) {
		sqldb := sql.OpenDB(pgdriver.NewConnector(
			pgdriver.WithDSN(vs["DB_DSN"]),
			pgdriver.WithPassword(os.Getenv("DB_PASSWORD")),
		))

		return bun.NewDB(sqldb, pgdialect.New()), nil
	})

	do.ProvideNamed(injector, "redis-db", redisClient("REDIS_DB"))
	do.ProvideNamed(injector, "redis-cache", redisClient("REDIS_CACHE"))
	do.ProvideNamed(injector, "redis-limiter", redisClient("REDIS_LIMITER"))
	do.ProvideNamed(injector, "redis-mutex", redisClient("REDIS_MUTEX"))

	do.Provide(injector, func(i *do.Injector) (*slog.Logger, error) {
		return logger.New(vs["LOG_VERBOSE"] != ""), nil
	})

	do.Provide(injector, func(i *do.Injector) (clockwork.Clock, error) {
		return clockwork.NewRealClock(), nil
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.BountyStore, error) {
		bunDB, err := do.Invoke[*bun.DB](i)
		if err != nil {
			return nil, err
		}
		return datastore.NewStore(bunDB), nil
	})

	do.Provide(injector, func(i *do.Injector) (*redis_store.Store, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-db")
		if err != nil {
			return nil, err
		}
		return redis_store.NewStore(dbRedis), nil
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.ProgressStore, error) {
		return do.Invoke[*redis_store.Store](i)
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.EventCursor, error) {
		return do.Invoke[*redis_store.Store](i)
	})

	do.Provide(injector, func(i *do.Injector) (*ledger.Contract, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-db")
		if err != nil {
			return nil, err
		}
		clock, err := do.Invoke[clockwork.Clock](i)
		if err != nil {
			return nil, err
		}

		feeBps, err := strconv.ParseInt(vs["LEDGER_FEE_BPS"], 10, 64)
		if err != nil {
			return nil, err
		}
		minimum, err := strconv.ParseInt(vs["LEDGER_MIN_BOUNTY"], 10, 64)
		if err != nil {
			return nil, err
		}

		return ledger.New(context.Background(), ledger.Config{
			Owner:         ledger.Address(vs["LEDGER_OWNER"]),
			FeeBps:        feeBps,
			MinimumBounty: minimum,
		}, redis_store.NewLedgerStore(dbRedis), clock)
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.Ledger, error) {
		return do.Invoke[*ledger.Contract](i)
	})

	do.Provide(injector, func(i *do.Injector) (caching.Cache, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-cache")
		if err != nil {
			return nil, err
		}

		return caching.NewCacheRedis(dbRedis, false)
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.Limiter, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-limiter")
		if err != nil {
			return nil, err
		}

		return limiter.NewLimiter(dbRedis)
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.Locker, error) {
		dbRedis, err := do.InvokeNamed[redis.UniversalClient](i, "redis-mutex")
		if err != nil {
			return nil, err
		}

		pool := goredis.NewPool(dbRedis)
		return locker.NewRedsync(redsync.New(pool)), nil
	})

	do.Provide(injector, func(i *do.Injector) (interfaces.WordValidator, error) {
		if vs["DICTIONARY_URL"] == "" {
			return services.LetterValidator{}, nil
		}
		return services.NewDictionary(vs["DICTIONARY_URL"]), nil
	})

	do.Provide(injector, func(i *do.Injector) (*services.Authentication, error) {
		return services.NewAuthentication(vs["JWT_SECRET"])
	})

	do.Provide(injector, services.NewServiceConfig)
	do.Provide(injector, services.NewServiceUser)
	do.Provide(injector, services.NewServiceBounty)
	do.Provide(injector, services.NewServiceAttempt)
	do.Provide(injector, services.NewServiceSettlement)
	do.Provide(injector, services.NewServiceSweeper)
	do.Provide(injector, services.NewServiceTreasury)

	return injector
}

// redisClient reads CLUSTER_<name> first and falls back to a single node
// at <name>.
func redisClient(name string) do.Provider[redis.UniversalClient] {
	return func(i *do.Injector) (redis.UniversalClient, error) {
		clusterURL := os.Getenv("CLUSTER_" + name)
		if clusterURL != "" {
			clusterOpts, err := redis.ParseClusterURL(clusterURL)
			if err != nil {
				return nil, err
			}
			return redis.NewClusterClient(clusterOpts), nil
		}
		return db.InitRedis(&db.RedisConfig{
			URL: os.Getenv(name),
		})
	}
}
