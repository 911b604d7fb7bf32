package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dpup/wayfinder/internal/cache"
	"github.com/dpup/wayfinder/internal/lib/geo"
	"github.com/dpup/wayfinder/internal/lib/routing"
)

// RoutePlanner fronts a RouteProvider with the in-memory route cache.
type RoutePlanner struct {
	provider RouteProvider
	cache    *cache.Cache
	ttl      time.Duration
	logger   *zap.SugaredLogger
}

// NewRoutePlanner creates a planner. A nil cache disables caching.
func NewRoutePlanner(provider RouteProvider, routeCache *cache.Cache, ttl time.Duration, logger *zap.SugaredLogger) *RoutePlanner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RoutePlanner{
		provider: provider,
		cache:    routeCache,
		ttl:      ttl,
		logger:   logger,
	}
}

// ComputeRoute returns a cached route for the origin/destination pair when
// one is fresh, otherwise asks the provider.
func (p *RoutePlanner) ComputeRoute(ctx context.Context, origin, destination geo.Point) (*routing.Route, error) {
	if p.cache != nil {
		route, found, err := p.cache.GetRoute(origin, destination)
		if err != nil {
			p.logger.Warnw("Dropping unreadable cached route", "error", err)
			p.cache.DeleteRoute(origin, destination)
		} else if found {
			p.logger.Debugw("Using cached route", "origin", origin.String(), "destination", destination.String())
			return &route, nil
		}
	}

	route, err := p.provider.ComputeRoute(ctx, origin, destination)
	if err != nil {
		return nil, fmt.Errorf("failed to compute route: %w", err)
	}
	if route == nil || route.IsEmpty() {
		return nil, ErrEmptyRoute
	}

	if p.cache != nil && p.ttl > 0 {
		if err := p.cache.SetRoute(origin, destination, *route, p.ttl); err != nil {
			p.logger.Warnw("Failed to cache route", "error", err)
		}
	}
	return route, nil
}

// CacheStats reports the route cache contents. The zero value is returned when
// caching is disabled.
func (p *RoutePlanner) CacheStats() cache.Stats {
	if p.cache == nil {
		return cache.Stats{}
	}
	return p.cache.Stats()
}
