package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/queue"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/metrics"
)

const defaultStaleThreshold = 30 * time.Minute

type queueStats interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

type QueueAuditJobParams struct {
	Logger         *logger.Logger
	Queue          queueStats
	Metrics        *metrics.SyncMetrics
	StaleThreshold time.Duration
}

// NewQueueAuditJob exports queue depth and pending age, and warns when the
// oldest pending sale is older than the stale threshold or when sales are
// waiting on an operator.
func NewQueueAuditJob(params QueueAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Queue == nil {
		return nil, errors.New("queue required")
	}
	threshold := params.StaleThreshold
	if threshold <= 0 {
		threshold = defaultStaleThreshold
	}
	return &queueAuditJob{
		logg:      params.Logger,
		queue:     params.Queue,
		metrics:   params.Metrics,
		threshold: threshold,
		now:       time.Now,
	}, nil
}

type queueAuditJob struct {
	logg      *logger.Logger
	queue     queueStats
	metrics   *metrics.SyncMetrics
	threshold time.Duration
	now       func() time.Time
}

func (j *queueAuditJob) Name() string { return "queue-audit" }

func (j *queueAuditJob) Run(ctx context.Context) error {
	stats, err := j.queue.Stats(ctx)
	if err != nil {
		return fmt.Errorf("queue audit: %w", err)
	}

	var age time.Duration
	if stats.OldestAt != nil {
		age = j.now().Sub(*stats.OldestAt)
	}
	j.metrics.SetQueueDepth(stats.Total)
	j.metrics.SetAttentionDepth(stats.Attention)
	j.metrics.SetOldestPendingAge(age)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"pending":         stats.Pending,
		"attention":       stats.Attention,
		"oldest_age_secs": int64(age.Seconds()),
	})
	if stats.OldestAt != nil && age >= j.threshold {
		j.logg.Warn(j.logg.WithField(logCtx, "stale_threshold", j.threshold.String()), "queued sales are not draining")
	}
	if stats.Attention > 0 {
		j.logg.Warn(logCtx, "queued sales need operator attention")
	}
	return nil
}
