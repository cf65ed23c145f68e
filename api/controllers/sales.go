package controllers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-pos/api/responses"
	"github.com/angelmondragon/packfinderz-pos/api/validators"
	"github.com/angelmondragon/packfinderz-pos/internal/payments"
	"github.com/angelmondragon/packfinderz-pos/internal/submission"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

type saleSubmitter interface {
	Submit(ctx context.Context, req submission.Request) (submission.Outcome, error)
}

type paymentRequest struct {
	Method    enums.PaymentMethod `json:"method" validate:"required"`
	Amount    decimal.Decimal     `json:"amount"`
	Reference string              `json:"reference" validate:"max=128"`
}

type finalizeSaleRequest struct {
	CustomerRef string             `json:"customerRef" validate:"max=64"`
	Lines       []cartLineRequest  `json:"lines" validate:"required,min=1,dive"`
	Adjustments adjustmentsRequest `json:"adjustments"`
	Payments    []paymentRequest   `json:"payments" validate:"required,min=1,dive"`
}

func (p finalizeSaleRequest) toRequest() submission.Request {
	pays := make([]payments.Payment, 0, len(p.Payments))
	for _, pay := range p.Payments {
		pays = append(pays, payments.Payment{Method: pay.Method, Amount: pay.Amount, Reference: pay.Reference})
	}
	return submission.Request{
		CustomerRef: p.CustomerRef,
		Lines:       toLines(p.Lines),
		Adjustments: p.Adjustments.toAdjustments(),
		Payments:    pays,
	}
}

// SaleFinalize finalizes the cart. A sale confirmed online answers 201; a
// queued sale answers 202 because it is safe locally but not yet confirmed.
func SaleFinalize(svc saleSubmitter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "sale submission unavailable"))
			return
		}

		var payload finalizeSaleRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcome, err := svc.Submit(r.Context(), payload.toRequest())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if outcome.Mode == enums.SubmissionModeQueued {
			status = http.StatusAccepted
		}
		responses.WriteSuccessStatus(w, status, outcome)
	}
}
