package services

import (
	"context"
	"strconv"
	"time"

	"wordbounty/internal/interfaces"
	"wordbounty/internal/pkg/caching"

	"github.com/samber/do"
)

type ServiceConfig struct {
	container *do.Injector
	store     interfaces.BountyStore
	cache     caching.Cache
}

func NewServiceConfig(container *do.Injector) (*ServiceConfig, error) {
	store, err := do.Invoke[interfaces.BountyStore](container)
	if err != nil {
		return nil, err
	}

	cache, err := do.Invoke[caching.Cache](container)
	if err != nil {
		return nil, err
	}

	return &ServiceConfig{container, store, cache}, nil
}

func (service *ServiceConfig) GetStringConfig(ctx context.Context, key string, defaultValue string) (string, error) {
	callback := func() (string, error) {
		config, err := service.store.FindConfig(ctx, key)
		if err != nil {
			return defaultValue, err
		}
		return config.Value, nil
	}

	value, err := caching.UseCache(ctx, service.cache, DBKeyConfig(key), CACHE_TTL_5_MINS, callback)
	if err != nil {
		return defaultValue, err
	}

	return value, nil
}

func (service *ServiceConfig) GetIntConfig(ctx context.Context, key string, defaultValue int) (int, error) {
	callback := func() (int, error) {
		config, err := service.store.FindConfig(ctx, key)
		if err != nil {
			return defaultValue, err
		}

		intValue, err := strconv.Atoi(config.Value)
		if err != nil {
			return defaultValue, err
		}

		return intValue, nil
	}

	value, err := caching.UseCache(ctx, service.cache, DBKeyConfig(key), CACHE_TTL_5_MINS, callback)
	if err != nil {
		return defaultValue, err
	}

	return value, nil
}

// GetDurationConfig reads an integer config value expressed in unit.
func (service *ServiceConfig) GetDurationConfig(ctx context.Context, key string, unit time.Duration, defaultValue time.Duration) time.Duration {
	value, err := service.GetIntConfig(ctx, key, int(defaultValue/unit))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return time.Duration(value) * unit
}
