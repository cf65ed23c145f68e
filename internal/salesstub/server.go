package salesstub

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-pos/api/middleware"
	"github.com/angelmondragon/packfinderz-pos/api/responses"
	"github.com/angelmondragon/packfinderz-pos/api/validators"
	"github.com/angelmondragon/packfinderz-pos/internal/idempotency"
	"github.com/angelmondragon/packfinderz-pos/internal/sales"
	"github.com/angelmondragon/packfinderz-pos/internal/stockplan"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	pkgredis "github.com/angelmondragon/packfinderz-pos/pkg/redis"
)

// ServerParams wire the stub's collaborators.
type ServerParams struct {
	Logger   *logger.Logger
	Store    pkgredis.IdempotencyStore
	Ledger   Ledger
	Fixtures Fixtures
	KeyTTL   time.Duration
	ClaimTTL time.Duration
	// Numbers is optional; when set every applied sale gets a sequential
	// sale number.
	Numbers SaleNumberer
}

// SaleNumberer hands out sale numbers.
type SaleNumberer interface {
	NextSaleNumber(ctx context.Context) (int64, error)
}

// Server is a development double of the remote Sales API.
type Server struct {
	logg     *logger.Logger
	ledger   Ledger
	fixtures Fixtures
	store    pkgredis.IdempotencyStore
	numbers  SaleNumberer
	keyTTL   time.Duration
	claimTTL time.Duration
}

func NewServer(params ServerParams) *Server {
	ledger := params.Ledger
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	return &Server{
		logg:     params.Logger,
		ledger:   ledger,
		fixtures: params.Fixtures,
		store:    params.Store,
		numbers:  params.Numbers,
		keyTTL:   params.KeyTTL,
		claimTTL: params.ClaimTTL,
	}
}

// Routes mounts the stub API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(s.logg),
		middleware.RequestID(s.logg),
		middleware.Logging(s.logg),
	)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	})
	r.Get("/health/ready", s.ready)
	r.Get("/promotions/active", s.activePromotions)
	r.Post("/stock/plan", s.stockPlan)
	r.With(middleware.Idempotency(s.store, middleware.IdempotencyOptions{
		TTL:      s.keyTTL,
		ClaimTTL: s.claimTTL,
		ValidKey: idempotency.ValidKey,
	}, s.logg)).Post("/sales", s.createSale)
	return r
}

type createSaleResponse struct {
	SaleID     string `json:"saleId"`
	SaleNumber int64  `json:"saleNumber,omitempty"`
}

// createSale runs at most once per idempotency key; duplicates are answered
// by the idempotency middleware from the stored response.
func (s *Server) createSale(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(ctx, s.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read sale payload"))
		return
	}
	payload, err := sales.Decode(body)
	if err != nil {
		responses.WriteError(ctx, s.logg, w, pkgerrors.Wrap(pkgerrors.CodePermanentSync, err, "malformed sale payload"))
		return
	}
	if err := payload.Validate(); err != nil {
		rejected := pkgerrors.Wrap(pkgerrors.CodePermanentSync, err, err.Error())
		if typed := pkgerrors.As(err); typed != nil && typed.Details() != nil {
			rejected = rejected.WithDetails(typed.Details())
		}
		responses.WriteError(ctx, s.logg, w, rejected)
		return
	}

	var number int64
	if s.numbers != nil {
		if number, err = s.numbers.NextSaleNumber(ctx); err != nil {
			responses.WriteError(ctx, s.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate sale number"))
			return
		}
	}

	key := strings.TrimSpace(r.Header.Get(middleware.HeaderIdempotencyKey))
	applied, err := s.ledger.Apply(ctx, key, payload)
	if err != nil {
		responses.WriteError(ctx, s.logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply sale"))
		return
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"sale_id":     applied.SaleID,
			"sale_number": number,
			"total":       payload.Total.StringFixed(2),
		}), "salesstub.sale_applied")
	}
	responses.WriteSuccessStatus(w, http.StatusCreated, createSaleResponse{SaleID: applied.SaleID, SaleNumber: number})
}

// ready pings the claim store when it supports it; without the store no
// sale can be claimed.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			responses.WriteError(r.Context(), s.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "idempotency store not ready"))
			return
		}
	}
	responses.WriteSuccess(w, map[string]string{"status": "ready"})
}

func (s *Server) activePromotions(w http.ResponseWriter, r *http.Request) {
	responses.WriteSuccess(w, s.fixtures.Promotions)
}

// stockPlan answers with the bare plan document the terminal's planner
// client expects, or 409 when stock cannot cover the quantity.
func (s *Server) stockPlan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req struct {
		ProductID string `json:"productId" validate:"required"`
		Quantity  int    `json:"quantity" validate:"gt=0"`
	}
	if err := validators.DecodeJSONBody(w, r, &req); err != nil {
		responses.WriteError(ctx, s.logg, w, err)
		return
	}
	item, ok := s.fixtures.stockFor(req.ProductID)
	if !ok {
		responses.WriteError(ctx, s.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "no stock on hand for product"))
		return
	}
	plan, ok := item.plan(req.Quantity)
	if !ok {
		responses.WriteError(ctx, s.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock"))
		return
	}
	writePlan(w, plan)
}

func writePlan(w http.ResponseWriter, plan *stockplan.Plan) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(plan)
}
