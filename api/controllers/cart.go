package controllers

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-pos/api/responses"
	"github.com/angelmondragon/packfinderz-pos/api/validators"
	"github.com/angelmondragon/packfinderz-pos/internal/pricing"
	"github.com/angelmondragon/packfinderz-pos/internal/submission"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

type cartQuoter interface {
	Quote(ctx context.Context, lines []pricing.CartLine, adj pricing.Adjustments) (submission.Quote, error)
}

type cartLineRequest struct {
	ProductID          string          `json:"productId" validate:"required"`
	CategoryID         string          `json:"categoryId"`
	UnitPrice          decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	Quantity           int             `json:"quantity" validate:"gte=0"`
	ManualLineDiscount decimal.Decimal `json:"manualLineDiscount" validate:"gte=0"`
}

type adjustmentsRequest struct {
	GeneralDiscount  decimal.Decimal `json:"generalDiscount" validate:"gte=0"`
	GeneralSurcharge decimal.Decimal `json:"generalSurcharge" validate:"gte=0"`
}

type cartQuoteRequest struct {
	Lines       []cartLineRequest  `json:"lines" validate:"required,dive"`
	Adjustments adjustmentsRequest `json:"adjustments"`
}

func (l cartLineRequest) toLine() pricing.CartLine {
	return pricing.CartLine{
		ProductID:          l.ProductID,
		CategoryID:         l.CategoryID,
		UnitPrice:          l.UnitPrice,
		Quantity:           l.Quantity,
		ManualLineDiscount: l.ManualLineDiscount,
	}
}

func toLines(in []cartLineRequest) []pricing.CartLine {
	out := make([]pricing.CartLine, 0, len(in))
	for _, l := range in {
		out = append(out, l.toLine())
	}
	return out
}

func (a adjustmentsRequest) toAdjustments() pricing.Adjustments {
	return pricing.Adjustments{GeneralDiscount: a.GeneralDiscount, GeneralSurcharge: a.GeneralSurcharge}
}

// CartQuote prices an open cart without finalizing it.
func CartQuote(svc cartQuoter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing unavailable"))
			return
		}

		var payload cartQuoteRequest
		if err := validators.DecodeJSONBody(w, r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		quote, err := svc.Quote(r.Context(), toLines(payload.Lines), payload.Adjustments.toAdjustments())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, quote)
	}
}
