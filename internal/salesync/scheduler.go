package salesync

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/queue"
	"github.com/angelmondragon/packfinderz-pos/internal/salesapi"
	"github.com/angelmondragon/packfinderz-pos/pkg/config"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/metrics"
	"github.com/google/uuid"
)

const (
	defaultTickInterval  = 15 * time.Second
	defaultMaxBackoff    = 5 * time.Minute
	defaultSubmitTimeout = 10 * time.Second

	drainOutcomeSucceeded = "succeeded"
	drainOutcomeReplayed  = "replayed"
	drainOutcomeRejected  = "rejected"
	drainOutcomeRetryable = "retryable"
)

type saleQueue interface {
	PeekOldest(ctx context.Context) (*queue.Sale, error)
	Remove(ctx context.Context, id uuid.UUID) error
	Flag(ctx context.Context, id uuid.UUID, reason enums.AttentionReason, statusCode int, message string) error
	Stats(ctx context.Context) (queue.Stats, error)
}

type connectivityMonitor interface {
	Online() bool
	Reconnected() <-chan struct{}
	MarkOffline(ctx context.Context, cause error)
}

type ServiceParams struct {
	Config       config.SyncConfig
	Logger       *logger.Logger
	Queue        saleQueue
	Submitter    salesapi.Submitter
	Connectivity connectivityMonitor
	Metrics      *metrics.SyncMetrics
	Now          func() time.Time
}

// Scheduler drains the durable queue against the Sales API. It wakes on a
// periodic tick, on reconnect and on explicit triggers; at most one drain
// pass runs at a time.
type Scheduler struct {
	logg         *logger.Logger
	queue        saleQueue
	submitter    salesapi.Submitter
	connectivity connectivityMonitor
	metrics      *metrics.SyncMetrics
	now          func() time.Time

	interval      time.Duration
	maxBackoff    time.Duration
	jitterWindow  time.Duration
	submitTimeout time.Duration

	drainMu  sync.Mutex
	triggers chan enums.SyncTrigger

	mu     sync.RWMutex
	status Status
	delay  time.Duration
}

// Status is the sync indicator shown to the operator.
type Status struct {
	State         enums.SyncState `json:"state"`
	LastOutcome   enums.SyncState `json:"lastOutcome,omitempty"`
	LastTrigger   string          `json:"lastTrigger,omitempty"`
	Online        bool            `json:"online"`
	Pending       int             `json:"pending"`
	Attention     int             `json:"attention"`
	OldestPending *time.Time      `json:"oldestPendingAt,omitempty"`
	LastError     string          `json:"lastError,omitempty"`
	LastAttemptAt *time.Time      `json:"lastAttemptAt,omitempty"`
	LastSuccessAt *time.Time      `json:"lastSuccessAt,omitempty"`
	NextAttemptAt *time.Time      `json:"nextAttemptAt,omitempty"`
}

// Report summarises one drain pass.
type Report struct {
	Trigger   enums.SyncTrigger
	Skipped   bool
	Submitted int
	Replayed  int
	Rejected  int
	// Retryable is the transient failure that ended the pass, if any.
	Retryable error
	Outcome   enums.SyncState
}

func NewService(params ServiceParams) (*Scheduler, error) {
	if params.Queue == nil {
		return nil, errors.New("sale queue is required")
	}
	if params.Submitter == nil {
		return nil, errors.New("sales api submitter is required")
	}

	cfg := params.Config
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = defaultTickInterval
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff < interval {
		maxBackoff = defaultMaxBackoff
		if maxBackoff < interval {
			maxBackoff = interval
		}
	}
	submitTimeout := cfg.SubmitTimeout
	if submitTimeout <= 0 {
		submitTimeout = defaultSubmitTimeout
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		logg:          params.Logger,
		queue:         params.Queue,
		submitter:     params.Submitter,
		connectivity:  params.Connectivity,
		metrics:       params.Metrics,
		now:           now,
		interval:      interval,
		maxBackoff:    maxBackoff,
		jitterWindow:  cfg.JitterWindow,
		submitTimeout: submitTimeout,
		triggers:      make(chan enums.SyncTrigger, 1),
		status:        Status{State: enums.SyncStateIdle},
		delay:         interval,
	}, nil
}

// Trigger asks the running loop for a drain pass. It never blocks; a trigger
// issued while another one is pending is dropped.
func (s *Scheduler) Trigger(trigger enums.SyncTrigger) {
	select {
	case s.triggers <- trigger:
	default:
	}
}

// Run is the scheduler loop. It returns when ctx is canceled; a drain pass
// in progress lets its current submission finish or time out first.
func (s *Scheduler) Run(ctx context.Context) error {
	var reconnected <-chan struct{}
	if s.connectivity != nil {
		reconnected = s.connectivity.Reconnected()
	}

	for {
		wait := s.withJitter(s.currentDelay())
		s.setNextAttempt(s.now().Add(wait))
		timer := time.NewTimer(wait)

		var trigger enums.SyncTrigger
		select {
		case <-ctx.Done():
			timer.Stop()
			if s.logg != nil {
				s.logg.Info(ctx, "sync scheduler stopped")
			}
			return nil
		case <-timer.C:
			trigger = enums.SyncTriggerTick
		case trigger = <-s.triggers:
			timer.Stop()
		case <-reconnected:
			timer.Stop()
			trigger = enums.SyncTriggerReconnect
		}

		if _, err := s.Drain(ctx, trigger); err != nil && s.logg != nil && ctx.Err() == nil {
			s.logg.Error(s.logg.WithField(ctx, "trigger", string(trigger)), "sync drain failed", err)
		}
	}
}

// Drain runs a single pass: submit the oldest pending sale, remove it once
// acknowledged, flag it on a permanent rejection and stop on the first
// transient failure. The returned error is reserved for local storage
// failures; remote failures are reported through Report and Status.
func (s *Scheduler) Drain(ctx context.Context, trigger enums.SyncTrigger) (Report, error) {
	report := Report{Trigger: trigger}

	if trigger == enums.SyncTriggerTick && s.connectivity != nil && !s.connectivity.Online() {
		report.Skipped = true
		return report, nil
	}
	if !s.drainMu.TryLock() {
		report.Skipped = true
		return report, nil
	}
	defer s.drainMu.Unlock()

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		s.finishPass(ctx, &report, enums.SyncStateFailedRetryable, err)
		return report, err
	}
	s.observeStats(stats)
	if stats.Pending == 0 {
		report.Skipped = true
		return report, nil
	}

	started := s.now()
	s.beginPass(trigger, started)
	ctx = s.withLogFields(ctx, trigger)
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveDrain(s.now().Sub(started))
		}
	}()

	for {
		if ctx.Err() != nil {
			s.finishPass(ctx, &report, s.passOutcome(report), nil)
			return report, nil
		}

		sale, err := s.queue.PeekOldest(ctx)
		if err != nil {
			s.finishPass(ctx, &report, enums.SyncStateFailedRetryable, err)
			return report, err
		}
		if sale == nil {
			s.finishPass(ctx, &report, s.passOutcome(report), nil)
			return report, nil
		}

		res, submitErr := s.submit(ctx, sale)
		saleCtx := ctx
		if s.logg != nil {
			saleCtx = s.logg.WithSaleID(ctx, sale.ClientTempID.String())
		}

		switch {
		case submitErr == nil:
			// the key is acknowledged; finish the removal even during shutdown
			if err := s.queue.Remove(context.WithoutCancel(ctx), sale.ClientTempID); err != nil {
				s.finishPass(ctx, &report, enums.SyncStateFailedRetryable, err)
				return report, err
			}
			report.Submitted++
			outcome := drainOutcomeSucceeded
			if res != nil && res.Replayed {
				report.Replayed++
				outcome = drainOutcomeReplayed
			}
			s.recordSuccess()
			s.incDrain(outcome)
			if s.logg != nil {
				s.logg.Info(s.logg.WithField(saleCtx, "outcome", outcome), "sync sale confirmed")
			}

		case salesapi.IsPermanent(submitErr):
			failure, _ := salesapi.FailureOf(submitErr)
			if err := s.queue.Flag(context.WithoutCancel(ctx), sale.ClientTempID, enums.AttentionReasonRejected, failure.StatusCode, failure.Reason); err != nil {
				s.finishPass(ctx, &report, enums.SyncStateFailedRetryable, err)
				return report, err
			}
			report.Rejected++
			s.incDrain(drainOutcomeRejected)
			if s.logg != nil {
				s.logg.Warn(s.logg.WithFields(saleCtx, map[string]any{
					"status_code": failure.StatusCode,
					"reason":      failure.Reason,
				}), "sync sale rejected; needs attention")
			}
			s.setLastError(submitErr)

		default:
			report.Retryable = submitErr
			s.incDrain(drainOutcomeRetryable)
			if s.connectivity != nil && unreachable(submitErr) {
				s.connectivity.MarkOffline(ctx, submitErr)
			}
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(saleCtx, "error", submitErr.Error()), "sync submission failed; will retry")
			}
			s.finishPass(ctx, &report, enums.SyncStateFailedRetryable, submitErr)
			return report, nil
		}
	}
}

// Status returns the current indicator with fresh queue counts.
func (s *Scheduler) Status(ctx context.Context) (Status, error) {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return Status{}, err
	}
	s.observeStats(stats)

	s.mu.RLock()
	out := s.status
	s.mu.RUnlock()

	out.Pending = stats.Pending
	out.Attention = stats.Attention
	out.OldestPending = stats.OldestAt
	out.Online = s.connectivity == nil || s.connectivity.Online()
	return out, nil
}

func (s *Scheduler) submit(ctx context.Context, sale *queue.Sale) (*salesapi.Result, error) {
	// shutdown must not abort a request already on the wire; the timeout
	// still bounds it
	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.submitTimeout)
	defer cancel()
	return s.submitter.Submit(subCtx, sale.IdempotencyKey, sale.Payload)
}

func (s *Scheduler) passOutcome(report Report) enums.SyncState {
	if report.Rejected > 0 {
		return enums.SyncStateFailedPermanent
	}
	return enums.SyncStateSucceeded
}

func (s *Scheduler) beginPass(trigger enums.SyncTrigger, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = enums.SyncStateDraining
	s.status.LastTrigger = string(trigger)
	s.status.LastAttemptAt = &at
}

func (s *Scheduler) finishPass(ctx context.Context, report *Report, outcome enums.SyncState, err error) {
	report.Outcome = outcome

	s.mu.Lock()
	s.status.State = enums.SyncStateIdle
	s.status.LastOutcome = outcome
	if err != nil {
		s.status.LastError = err.Error()
	}
	if outcome == enums.SyncStateFailedRetryable {
		s.delay = nextBackoff(s.delay, s.interval, s.maxBackoff)
	} else {
		s.delay = s.interval
	}
	s.mu.Unlock()

	if stats, statsErr := s.queue.Stats(context.WithoutCancel(ctx)); statsErr == nil {
		s.observeStats(stats)
	}
}

func (s *Scheduler) recordSuccess() {
	at := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = enums.SyncStateSucceeded
	s.status.LastSuccessAt = &at
	s.status.LastError = ""
}

func (s *Scheduler) setLastError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = enums.SyncStateFailedPermanent
	s.status.LastError = err.Error()
}

func (s *Scheduler) setNextAttempt(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.NextAttemptAt = &at
}

func (s *Scheduler) currentDelay() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.delay
}

func (s *Scheduler) observeStats(stats queue.Stats) {
	if s.metrics == nil {
		return
	}
	s.metrics.SetQueueDepth(stats.Total)
	s.metrics.SetAttentionDepth(stats.Attention)
	if stats.OldestAt != nil {
		s.metrics.SetOldestPendingAge(s.now().Sub(*stats.OldestAt))
	} else {
		s.metrics.SetOldestPendingAge(0)
	}
}

func (s *Scheduler) incDrain(outcome string) {
	if s.metrics != nil {
		s.metrics.IncDrain(outcome)
	}
}

func (s *Scheduler) withLogFields(ctx context.Context, trigger enums.SyncTrigger) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithField(ctx, "trigger", string(trigger))
}

func (s *Scheduler) withJitter(d time.Duration) time.Duration {
	if d <= 0 || s.jitterWindow <= 0 {
		return d
	}
	return d + time.Duration(rand.Int63n(int64(s.jitterWindow)))
}

// unreachable reports failures where no HTTP response came back.
func unreachable(err error) bool {
	failure, ok := salesapi.FailureOf(err)
	if !ok {
		return true
	}
	return failure.StatusCode == 0 && failure.Reason != salesapi.ReasonCircuitOpen
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}
