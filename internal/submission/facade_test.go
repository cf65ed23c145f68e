package submission

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
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
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fixedIDs struct{ id uuid.UUID }

func (f fixedIDs) NewID() uuid.UUID { return f.id }

type fixedClock struct{ at time.Time }

func (f fixedClock) Now() time.Time { return f.at }

type recordingSubmitter struct {
	mu    sync.Mutex
	keys  []string
	fn    func(ctx context.Context) (*salesapi.Result, error)
	open  bool
	calls int
}

func (r *recordingSubmitter) Submit(ctx context.Context, key string, _ []byte) (*salesapi.Result, error) {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.calls++
	fn := r.fn
	r.mu.Unlock()
	if fn == nil {
		return &salesapi.Result{SaleID: "S-1", StatusCode: http.StatusCreated}, nil
	}
	return fn(ctx)
}

func (r *recordingSubmitter) Open() bool { return r.open }

type staticPromotions struct{ promos []pricing.Promotion }

func (s staticPromotions) Snapshot(context.Context) promotions.Snapshot {
	return promotions.Snapshot{Promotions: s.promos}
}

type triggerRecorder struct{ triggers []enums.SyncTrigger }

func (t *triggerRecorder) Trigger(trigger enums.SyncTrigger) {
	t.triggers = append(t.triggers, trigger)
}

type plannerFunc func(ctx context.Context, req stockplan.Request) (*stockplan.Plan, error)

func (f plannerFunc) Plan(ctx context.Context, req stockplan.Request) (*stockplan.Plan, error) {
	return f(ctx, req)
}

var (
	testID = uuid.MustParse("7f9c24e8-3b12-4c1e-9a65-1f2d3c4b5a69")
	testAt = time.Date(2026, 3, 1, 14, 30, 0, 123456789, time.UTC)
)

type harness struct {
	svc     *Service
	queue   *queue.Queue
	sub     *recordingSubmitter
	trigger *triggerRecorder
}

func newHarness(t *testing.T, mutate func(*ServiceParams)) harness {
	t.Helper()
	store, err := queue.OpenBoltStore(filepath.Join(t.TempDir(), "queue.bolt"), time.Second)
	require.NoError(t, err)
	q, err := queue.New(store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	sub := &recordingSubmitter{}
	trig := &triggerRecorder{}
	params := ServiceParams{
		TerminalID:    "till-01",
		DirectTimeout: time.Second,
		Queue:         q,
		Submitter:     sub,
		Scheduler:     trig,
		IDs:           fixedIDs{id: testID},
		Clock:         fixedClock{at: testAt},
	}
	if mutate != nil {
		mutate(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	return harness{svc: svc, queue: q, sub: sub, trigger: trig}
}

func cashSale() Request {
	return Request{
		Lines:    []pricing.CartLine{{ProductID: "rice", UnitPrice: decimal.NewFromInt(10), Quantity: 5}},
		Payments: []payments.Payment{{Method: enums.PaymentMethodCash, Amount: decimal.NewFromInt(50)}},
	}
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestSubmitOnline(t *testing.T) {
	h := newHarness(t, nil)

	out, err := h.svc.Submit(context.Background(), cashSale())
	require.NoError(t, err)
	require.Equal(t, enums.SubmissionModeOnline, out.Mode)
	require.Equal(t, testID, out.ClientTempID)
	require.NotNil(t, out.Result)
	require.Equal(t, "S-1", out.Result.SaleID)

	wantKey := idempotency.DeriveKey(idempotency.Identity{ClientTempID: testID, CreatedAt: testAt})
	require.Equal(t, wantKey, out.IdempotencyKey)
	require.Equal(t, []string{wantKey}, h.sub.keys, "direct attempt carries the derived key")

	count, err := h.queue.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
	require.Empty(t, h.trigger.triggers, "no backlog, no follow-up")
}

func TestSubmitTransientFailureQueuesUnderSameKey(t *testing.T) {
	h := newHarness(t, nil)
	h.sub.fn = func(context.Context) (*salesapi.Result, error) {
		return nil, pkgerrors.New(pkgerrors.CodeTransientSync, "sales api unavailable").WithDetails(salesapi.Failure{StatusCode: http.StatusBadGateway, Reason: "bad gateway"})
	}

	out, err := h.svc.Submit(context.Background(), cashSale())
	require.NoError(t, err)
	require.Equal(t, enums.SubmissionModeQueued, out.Mode)
	require.False(t, out.NeedsAttention)
	require.Equal(t, "bad gateway", out.Reason)

	sale, err := h.queue.PeekOldest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sale)
	require.Equal(t, testID, sale.ClientTempID)
	require.Equal(t, out.IdempotencyKey, sale.IdempotencyKey, "queued retry reuses the direct attempt key")
	require.Equal(t, h.sub.keys[0], sale.IdempotencyKey)

	payload, err := sale.Decode()
	require.NoError(t, err)
	require.True(t, payload.Total.Equal(decimal.NewFromInt(50)))
}

func TestSubmitTimeoutQueues(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) { p.DirectTimeout = 20 * time.Millisecond })
	h.sub.fn = func(ctx context.Context) (*salesapi.Result, error) {
		<-ctx.Done()
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransientSync, ctx.Err(), "sales api unreachable").WithDetails(salesapi.Failure{Reason: "timeout"})
	}

	out, err := h.svc.Submit(context.Background(), cashSale())
	require.NoError(t, err)
	require.Equal(t, enums.SubmissionModeQueued, out.Mode)
	require.Equal(t, "timeout", out.Reason)
}

func TestSubmitUnclassifiedErrorQueues(t *testing.T) {
	h := newHarness(t, nil)
	h.sub.fn = func(context.Context) (*salesapi.Result, error) {
		return nil, errors.New("boom")
	}

	out, err := h.svc.Submit(context.Background(), cashSale())
	require.NoError(t, err)
	require.Equal(t, enums.SubmissionModeQueued, out.Mode)
	require.False(t, out.NeedsAttention)
}

func TestSubmitPermanentRejectionQueuesForAttention(t *testing.T) {
	h := newHarness(t, nil)
	h.sub.fn = func(context.Context) (*salesapi.Result, error) {
		return nil, pkgerrors.New(pkgerrors.CodePermanentSync, "sales api rejected sale").WithDetails(salesapi.Failure{StatusCode: http.StatusUnprocessableEntity, Reason: "unknown product"})
	}

	out, err := h.svc.Submit(context.Background(), cashSale())
	require.NoError(t, err)
	require.Equal(t, enums.SubmissionModeQueued, out.Mode)
	require.True(t, out.NeedsAttention)

	entries, err := h.queue.Attention(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, enums.AttentionReasonDirectRejected, entries[0].Reason)
	require.Equal(t, http.StatusUnprocessableEntity, entries[0].StatusCode)

	sale, err := h.queue.PeekOldest(context.Background())
	require.NoError(t, err)
	require.Nil(t, sale, "rejected sale is not retried automatically")
}

type flagFailingQueue struct {
	*queue.Queue
}

func (flagFailingQueue) Flag(context.Context, uuid.UUID, enums.AttentionReason, int, string) error {
	return errors.New("disk hiccup")
}

func TestSubmitFlagFailureStillReportsQueuedSale(t *testing.T) {
	h := newHarness(t, nil)
	failing := newHarness(t, func(p *ServiceParams) {
		p.Queue = flagFailingQueue{Queue: h.queue}
		p.Submitter = h.sub
	})
	h.sub.fn = func(context.Context) (*salesapi.Result, error) {
		return nil, pkgerrors.New(pkgerrors.CodePermanentSync, "sales api rejected sale").WithDetails(salesapi.Failure{StatusCode: http.StatusUnprocessableEntity, Reason: "unknown product"})
	}

	out, err := failing.svc.Submit(context.Background(), cashSale())
	require.NoError(t, err)
	require.Equal(t, enums.SubmissionModeQueued, out.Mode)
	require.Equal(t, testID, out.ClientTempID)
	require.False(t, out.NeedsAttention)
	require.Equal(t, "unknown product", out.Reason)

	n, err := h.queue.Count(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	sale, err := h.queue.PeekOldest(context.Background())
	require.NoError(t, err)
	require.NotNil(t, sale, "unflagged sale stays eligible for the next drain pass")
	require.Equal(t, testID, sale.ClientTempID)
}

func TestSubmitSkipsDirectWhenBreakerOpen(t *testing.T) {
	h := newHarness(t, nil)
	h.sub.open = true

	out, err := h.svc.Submit(context.Background(), cashSale())
	require.NoError(t, err)
	require.Equal(t, enums.SubmissionModeQueued, out.Mode)
	require.Equal(t, salesapi.ReasonCircuitOpen, out.Reason)
	require.Zero(t, h.sub.calls)
}

func TestSubmitValidationErrorsStoreNothing(t *testing.T) {
	h := newHarness(t, nil)
	req := cashSale()
	req.Payments = []payments.Payment{{Method: enums.PaymentMethodCash, Amount: decimal.NewFromInt(20)}}

	_, err := h.svc.Submit(context.Background(), req)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "got %v", err)
	require.Zero(t, h.sub.calls)

	count, err := h.queue.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSubmitAppliesPromotionsSnapshot(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) {
		p.Promotions = staticPromotions{promos: []pricing.Promotion{pricing.QuantityTier("tier-5", 5, decimal.NewFromInt(10))}}
	})
	req := cashSale()
	req.Payments = []payments.Payment{{Method: enums.PaymentMethodCash, Amount: decimal.NewFromInt(45)}}

	out, err := h.svc.Submit(context.Background(), req)
	require.NoError(t, err)
	require.True(t, out.Payload.LinePromoDiscount.Equal(decimal.NewFromInt(5)))
	require.True(t, out.Payload.Subtotal.Equal(decimal.NewFromInt(45)))
	require.Equal(t, []string{"tier-5"}, out.Payload.Promotions)
}

func TestSubmitTriggersFollowUpWhenBacklogExists(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.queue.Enqueue(context.Background(), queue.NewSale{
		ClientTempID: uuid.New(),
		CreatedAt:    testAt.Add(-time.Hour),
		Payload:      mustPayload(t),
	})
	require.NoError(t, err)

	_, err = h.svc.Submit(context.Background(), cashSale())
	require.NoError(t, err)
	require.Equal(t, []enums.SyncTrigger{enums.SyncTriggerFollowUp}, h.trigger.triggers)
}

func mustPayload(t *testing.T) sales.Payload {
	t.Helper()
	req := cashSale()
	payload, err := sales.Build(sales.Input{TerminalID: "till-01", Lines: req.Lines, Payments: req.Payments})
	require.NoError(t, err)
	return payload
}

func TestStockPlansAttached(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) {
		p.Planner = plannerFunc(func(_ context.Context, req stockplan.Request) (*stockplan.Plan, error) {
			return &stockplan.Plan{ProductID: req.ProductID, Quantity: req.Quantity, Steps: []stockplan.Step{{SourceID: "bulk", Kind: "bulk", Units: req.Quantity}}}, nil
		})
	})

	out, err := h.svc.Submit(context.Background(), cashSale())
	require.NoError(t, err)
	require.Len(t, out.Payload.Lines, 1)
	require.NotNil(t, out.Payload.Lines[0].StockPlan)
	require.Equal(t, 5, out.Payload.Lines[0].StockPlan.Quantity)
}

func TestInsufficientStockRejectsSale(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) {
		p.Planner = plannerFunc(func(context.Context, stockplan.Request) (*stockplan.Plan, error) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock")
		})
	})

	_, err := h.svc.Submit(context.Background(), cashSale())
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	require.Zero(t, h.sub.calls)
}

func TestUnavailablePlannerDoesNotBlockSale(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) {
		p.Planner = plannerFunc(func(context.Context, stockplan.Request) (*stockplan.Plan, error) {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "stock planner unreachable")
		})
	})

	out, err := h.svc.Submit(context.Background(), cashSale())
	require.NoError(t, err)
	require.Nil(t, out.Payload.Lines[0].StockPlan)
}

func TestQuote(t *testing.T) {
	h := newHarness(t, func(p *ServiceParams) {
		p.Promotions = staticPromotions{promos: []pricing.Promotion{pricing.QuantityTier("tier-5", 5, decimal.NewFromInt(10))}}
	})

	quote, err := h.svc.Quote(context.Background(), cashSale().Lines, pricing.Adjustments{})
	require.NoError(t, err)
	require.True(t, quote.Totals.LinePromoDiscount.Equal(decimal.NewFromInt(5)))
	require.True(t, quote.Totals.Subtotal.Equal(decimal.NewFromInt(45)))
	require.False(t, quote.PromotionsStale)
}
