package cron

import (
	"context"
	"errors"

	"github.com/angelmondragon/packfinderz-pos/internal/promotions"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

type promotionsCache interface {
	Invalidate()
	Snapshot(ctx context.Context) promotions.Snapshot
}

var errPromotionsStale = errors.New("promotion source unavailable; serving last snapshot")

// NewPromotionsRefreshJob keeps the promotion snapshot warm so a terminal
// that goes offline prices with the most recent rules it could see.
func NewPromotionsRefreshJob(logg *logger.Logger, cache promotionsCache) (Job, error) {
	if logg == nil {
		return nil, errors.New("logger required")
	}
	if cache == nil {
		return nil, errors.New("promotions cache required")
	}
	return &promotionsRefreshJob{logg: logg, cache: cache}, nil
}

type promotionsRefreshJob struct {
	logg  *logger.Logger
	cache promotionsCache
}

func (j *promotionsRefreshJob) Name() string { return "promotions-refresh" }

func (j *promotionsRefreshJob) Run(ctx context.Context) error {
	j.cache.Invalidate()
	snap := j.cache.Snapshot(ctx)
	if snap.Stale {
		return errPromotionsStale
	}
	j.logg.Debug(j.logg.WithField(ctx, "promotions", len(snap.Promotions)), "promotion snapshot refreshed")
	return nil
}
