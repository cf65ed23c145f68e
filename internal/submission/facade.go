package submission

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/idempotency"
	"github.com/angelmondragon/packfinderz-pos/internal/payments"
	"github.com/angelmondragon/packfinderz-pos/internal/pricing"
	"github.com/angelmondragon/packfinderz-pos/internal/promotions"
	"github.com/angelmondragon/packfinderz-pos/internal/queue"
	"github.com/angelmondragon/packfinderz-pos/internal/sales"
	"github.com/angelmondragon/packfinderz-pos/internal/salesapi"
	"github.com/angelmondragon/packfinderz-pos/internal/stockplan"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDirectTimeout = 3 * time.Second
	stockPlanConcurrency = 4
)

// IDGenerator mints client temp ids for finalized sales.
type IDGenerator interface {
	NewID() uuid.UUID
}

// Clock supplies the finalize timestamp.
type Clock interface {
	Now() time.Time
}

type UUIDGenerator struct{}

func (UUIDGenerator) NewID() uuid.UUID { return uuid.New() }

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type saleQueue interface {
	Enqueue(ctx context.Context, in queue.NewSale) (queue.Sale, error)
	Flag(ctx context.Context, id uuid.UUID, reason enums.AttentionReason, statusCode int, message string) error
	Count(ctx context.Context) (int, error)
}

type promotionSource interface {
	Snapshot(ctx context.Context) promotions.Snapshot
}

type syncTrigger interface {
	Trigger(trigger enums.SyncTrigger)
}

type ServiceParams struct {
	TerminalID    string
	DirectTimeout time.Duration
	Logger        *logger.Logger
	Queue         saleQueue
	Submitter     salesapi.Submitter
	Promotions    promotionSource
	// Planner is optional; when set every line gets a consumption plan.
	Planner   stockplan.Planner
	Scheduler syncTrigger
	Metrics   *metrics.SyncMetrics
	IDs       IDGenerator
	Clock     Clock
}

// Service is the single entry point for finalizing a sale. It tries the Sales
// API once and falls back to the durable queue on any failure.
type Service struct {
	terminalID    string
	directTimeout time.Duration
	logg          *logger.Logger
	queue         saleQueue
	submitter     salesapi.Submitter
	promotions    promotionSource
	planner       stockplan.Planner
	scheduler     syncTrigger
	metrics       *metrics.SyncMetrics
	ids           IDGenerator
	clock         Clock
}

// Request is a cart the operator finalized.
type Request struct {
	CustomerRef string              `json:"customerRef,omitempty"`
	Lines       []pricing.CartLine  `json:"lines"`
	Adjustments pricing.Adjustments `json:"adjustments"`
	Payments    []payments.Payment  `json:"payments"`
}

// Outcome tells the caller where the sale ended up. Online sales carry the
// remote result; queued sales carry the client id the scheduler will submit
// them under.
type Outcome struct {
	Mode           enums.SubmissionMode `json:"mode"`
	ClientTempID   uuid.UUID            `json:"clientTempId"`
	IdempotencyKey string               `json:"idempotencyKey"`
	Result         *salesapi.Result     `json:"result,omitempty"`
	NeedsAttention bool                 `json:"needsAttention,omitempty"`
	Reason         string               `json:"reason,omitempty"`
	Payload        sales.Payload        `json:"payload"`
}

// Quote is a priced cart that has not been finalized.
type Quote struct {
	Totals          pricing.Totals `json:"totals"`
	PromotionsStale bool           `json:"promotionsStale"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Queue == nil {
		return nil, errors.New("sale queue is required")
	}
	if params.Submitter == nil {
		return nil, errors.New("sales api submitter is required")
	}
	if params.TerminalID == "" {
		return nil, errors.New("terminal id is required")
	}

	timeout := params.DirectTimeout
	if timeout <= 0 {
		timeout = defaultDirectTimeout
	}
	ids := params.IDs
	if ids == nil {
		ids = UUIDGenerator{}
	}
	clock := params.Clock
	if clock == nil {
		clock = SystemClock{}
	}

	return &Service{
		terminalID:    params.TerminalID,
		directTimeout: timeout,
		logg:          params.Logger,
		queue:         params.Queue,
		submitter:     params.Submitter,
		promotions:    params.Promotions,
		planner:       params.Planner,
		scheduler:     params.Scheduler,
		metrics:       params.Metrics,
		ids:           ids,
		clock:         clock,
	}, nil
}

// Quote prices the cart against the current promotion snapshot.
func (s *Service) Quote(ctx context.Context, lines []pricing.CartLine, adj pricing.Adjustments) (Quote, error) {
	snap := s.snapshot(ctx)
	totals, err := pricing.ComputeTotals(lines, snap.Promotions, adj)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Totals: totals, PromotionsStale: snap.Stale}, nil
}

// Submit finalizes the cart. Pricing, stock and tender problems are returned
// as validation errors before anything is sent or stored. Past that point
// the sale is never lost: it is confirmed online or it is queued, and the
// only error left is a local storage failure.
func (s *Service) Submit(ctx context.Context, req Request) (Outcome, error) {
	snap := s.snapshot(ctx)

	plans, err := s.stockPlans(ctx, req.Lines)
	if err != nil {
		return Outcome{}, err
	}

	payload, err := sales.Build(sales.Input{
		TerminalID:  s.terminalID,
		CustomerRef: req.CustomerRef,
		Lines:       req.Lines,
		Promotions:  snap.Promotions,
		Adjustments: req.Adjustments,
		Payments:    req.Payments,
		StockPlans:  plans,
	})
	if err != nil {
		return Outcome{}, err
	}
	body, err := payload.Encode()
	if err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode sale payload")
	}

	identity := idempotency.Identity{
		ClientTempID: s.ids.NewID(),
		CreatedAt:    s.clock.Now().UTC(),
	}
	key := idempotency.DeriveKey(identity)
	out := Outcome{ClientTempID: identity.ClientTempID, IdempotencyKey: key, Payload: payload}

	if s.logg != nil {
		ctx = s.logg.WithSaleID(ctx, identity.ClientTempID.String())
		ctx = s.logg.WithIdempotencyKey(ctx, key)
	}

	submitErr := s.direct(ctx, key, body, &out)
	if submitErr == nil {
		out.Mode = enums.SubmissionModeOnline
		s.countSubmission(out.Mode)
		s.followUp(ctx)
		return out, nil
	}

	// the caller may be gone; a finalized sale is stored regardless
	storeCtx := context.WithoutCancel(ctx)
	if _, err := s.queue.Enqueue(storeCtx, queue.NewSale{
		ClientTempID: identity.ClientTempID,
		CreatedAt:    identity.CreatedAt,
		Payload:      payload,
	}); err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "submission.enqueue_failed", err)
		}
		return Outcome{}, err
	}
	out.Mode = enums.SubmissionModeQueued
	if failure, ok := salesapi.FailureOf(submitErr); ok {
		out.Reason = failure.Reason
	}

	if salesapi.IsPermanent(submitErr) {
		failure, _ := salesapi.FailureOf(submitErr)
		// the sale is already durable; an unflagged entry is rejected again
		// and flagged by the next drain pass
		if err := s.queue.Flag(storeCtx, identity.ClientTempID, enums.AttentionReasonDirectRejected, failure.StatusCode, failure.Reason); err != nil {
			if s.logg != nil {
				s.logg.Error(ctx, "submission.flag_failed", err)
			}
		} else {
			out.NeedsAttention = true
		}
		if s.logg != nil {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"status_code": failure.StatusCode,
				"reason":      failure.Reason,
			}), "submission.rejected_queued_for_attention")
		}
	} else if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "reason", out.Reason), "submission.queued")
	}

	s.countSubmission(out.Mode)
	return out, nil
}

// direct makes the single online attempt. A refused call from an open
// breaker is reported like any other transient failure.
func (s *Service) direct(ctx context.Context, key string, body []byte, out *Outcome) error {
	if b, ok := s.submitter.(interface{ Open() bool }); ok && b.Open() {
		return pkgerrors.New(pkgerrors.CodeTransientSync, "sales api circuit open").WithDetails(salesapi.Failure{Reason: salesapi.ReasonCircuitOpen})
	}

	directCtx, cancel := context.WithTimeout(ctx, s.directTimeout)
	defer cancel()

	res, err := s.submitter.Submit(directCtx, key, body)
	if err != nil {
		if !salesapi.IsPermanent(err) && !salesapi.IsTransient(err) {
			// unclassified failures are retried from the queue
			return pkgerrors.Wrap(pkgerrors.CodeTransientSync, err, "direct submission failed").WithDetails(salesapi.Failure{Reason: err.Error()})
		}
		return err
	}
	out.Result = res
	return nil
}

func (s *Service) stockPlans(ctx context.Context, lines []pricing.CartLine) (map[int]*stockplan.Plan, error) {
	if s.planner == nil || len(lines) == 0 {
		return nil, nil
	}

	plans := make([]*stockplan.Plan, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(stockPlanConcurrency)
	for i, line := range lines {
		if line.Quantity <= 0 {
			continue
		}
		i, line := i, line
		g.Go(func() error {
			plan, err := s.planner.Plan(gctx, stockplan.Request{ProductID: line.ProductID, Quantity: line.Quantity})
			if err != nil {
				return err
			}
			plans[i] = plan
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
			return nil, err
		}
		// planning is advisory; an unreachable planner must not block a sale
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "submission.stock_plan_unavailable")
		}
		return nil, nil
	}

	out := make(map[int]*stockplan.Plan, len(plans))
	for i, plan := range plans {
		if plan != nil {
			out[i] = plan
		}
	}
	return out, nil
}

func (s *Service) snapshot(ctx context.Context) promotions.Snapshot {
	if s.promotions == nil {
		return promotions.Snapshot{}
	}
	return s.promotions.Snapshot(ctx)
}

// followUp wakes the scheduler after an online success when older sales are
// still waiting.
func (s *Service) followUp(ctx context.Context) {
	if s.scheduler == nil {
		return
	}
	if n, err := s.queue.Count(ctx); err == nil && n > 0 {
		s.scheduler.Trigger(enums.SyncTriggerFollowUp)
	}
}

func (s *Service) countSubmission(mode enums.SubmissionMode) {
	if s.metrics != nil {
		s.metrics.IncSubmission(string(mode))
	}
}
