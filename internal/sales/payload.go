package sales

import (
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/packfinderz-pos/internal/payments"
	"github.com/angelmondragon/packfinderz-pos/internal/pricing"
	"github.com/angelmondragon/packfinderz-pos/internal/stockplan"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/validation"
	"github.com/shopspring/decimal"
)

// LineItem is a priced line as sent to the Sales API.
type LineItem struct {
	ProductID      string          `json:"productId" validate:"required"`
	CategoryID     string          `json:"categoryId,omitempty"`
	Quantity       int             `json:"quantity" validate:"gt=0"`
	UnitPrice      decimal.Decimal `json:"unitPrice" validate:"gte=0"`
	PromoDiscount  decimal.Decimal `json:"promoDiscount" validate:"gte=0"`
	ManualDiscount decimal.Decimal `json:"manualDiscount" validate:"gte=0"`
	Net            decimal.Decimal `json:"net"`
	StockPlan      *stockplan.Plan `json:"stockPlan,omitempty"`
}

// Payload is a finalized sale. It is built once by Build and never mutated
// afterwards; queued copies are the serialized bytes produced by Encode.
type Payload struct {
	TerminalID         string                 `json:"terminalId" validate:"required"`
	CustomerRef        string                 `json:"customerRef,omitempty" validate:"max=64"`
	Lines              []LineItem             `json:"lines" validate:"min=1,dive"`
	Gross              decimal.Decimal        `json:"gross"`
	LinePromoDiscount  decimal.Decimal        `json:"linePromoDiscount"`
	ManualDiscount     decimal.Decimal        `json:"manualDiscount"`
	OrderPromoDiscount decimal.Decimal        `json:"orderPromoDiscount"`
	Subtotal           decimal.Decimal        `json:"subtotal"`
	GeneralDiscount    decimal.Decimal        `json:"generalDiscount" validate:"gte=0"`
	GeneralSurcharge   decimal.Decimal        `json:"generalSurcharge" validate:"gte=0"`
	Total              decimal.Decimal        `json:"total" validate:"gte=0"`
	Payments           []payments.MethodTotal `json:"payments"`
	Tendered           decimal.Decimal        `json:"tendered"`
	Change             decimal.Decimal        `json:"change"`
	Promotions         []string               `json:"promotions,omitempty"`
}

// Validate checks the payload structure and its arithmetic.
func (p Payload) Validate() error {
	if err := validation.Struct(&p); err != nil {
		return err
	}
	lineSubtotal := decimal.Zero
	for _, line := range p.Lines {
		lineSubtotal = lineSubtotal.Add(line.Net)
	}
	if !lineSubtotal.Sub(p.OrderPromoDiscount).Equal(p.Subtotal) {
		return pkgerrors.New(pkgerrors.CodeValidation, "subtotal does not match line items")
	}
	if !p.Subtotal.Sub(p.GeneralDiscount).Add(p.GeneralSurcharge).Equal(p.Total) {
		return pkgerrors.New(pkgerrors.CodeValidation, "total does not match subtotal and adjustments")
	}
	if !p.Tendered.Sub(p.Total).Equal(p.Change) {
		return pkgerrors.New(pkgerrors.CodeValidation, "change does not match tendered amount")
	}
	return nil
}

// Encode serializes the payload for durable storage or transmission.
func (p Payload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode sale payload: %w", err)
	}
	return data, nil
}

// Decode parses a payload previously produced by Encode.
func Decode(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decode sale payload: %w", err)
	}
	return p, nil
}

// Input is everything needed to finalize a cart into a sale.
type Input struct {
	TerminalID  string
	CustomerRef string
	Lines       []pricing.CartLine
	Promotions  []pricing.Promotion
	Adjustments pricing.Adjustments
	Payments    []payments.Payment
	// StockPlans is keyed by line index. Missing entries mean no plan.
	StockPlans map[int]*stockplan.Plan
}

// Build prices the cart, reconciles the tender and assembles the payload.
// Zero quantity lines are dropped. A sale with a negative total, or whose
// payments do not cover the total, cannot be finalized.
func Build(in Input) (Payload, error) {
	totals, err := pricing.ComputeTotals(in.Lines, in.Promotions, in.Adjustments)
	if err != nil {
		return Payload{}, err
	}
	if totals.Total.IsNegative() {
		return Payload{}, pkgerrors.New(pkgerrors.CodeValidation, "sale total must not be negative").
			WithDetails(map[string]any{"total": totals.Total.String()})
	}

	rec, err := payments.Reconcile(totals.Total, in.Payments)
	if err != nil {
		return Payload{}, err
	}
	if !rec.Covered() {
		return Payload{}, pkgerrors.New(pkgerrors.CodeValidation, "payments do not cover the sale total").
			WithDetails(map[string]any{"shortfall": rec.Shortfall().String()})
	}

	items := make([]LineItem, 0, len(totals.Lines))
	for i, lt := range totals.Lines {
		if lt.Quantity == 0 {
			continue
		}
		items = append(items, LineItem{
			ProductID:      lt.ProductID,
			CategoryID:     in.Lines[i].CategoryID,
			Quantity:       lt.Quantity,
			UnitPrice:      lt.UnitPrice,
			PromoDiscount:  lt.PromoDiscount,
			ManualDiscount: lt.ManualDiscount,
			Net:            lt.Net,
			StockPlan:      in.StockPlans[i],
		})
	}

	payload := Payload{
		TerminalID:         in.TerminalID,
		CustomerRef:        in.CustomerRef,
		Lines:              items,
		Gross:              totals.Gross,
		LinePromoDiscount:  totals.LinePromoDiscount,
		ManualDiscount:     totals.ManualDiscount,
		OrderPromoDiscount: totals.OrderPromoDiscount,
		Subtotal:           totals.Subtotal,
		GeneralDiscount:    totals.GeneralDiscount,
		GeneralSurcharge:   totals.GeneralSurcharge,
		Total:              totals.Total,
		Payments:           rec.ByMethod,
		Tendered:           rec.Tendered,
		Change:             rec.Change,
		Promotions:         appliedPromotionIDs(totals.Applied),
	}
	if err := payload.Validate(); err != nil {
		return Payload{}, err
	}
	return payload, nil
}

func appliedPromotionIDs(applied []pricing.AppliedPromotion) []string {
	if len(applied) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(applied))
	ids := make([]string, 0, len(applied))
	for _, a := range applied {
		if a.PromotionID == "" {
			continue
		}
		if _, ok := seen[a.PromotionID]; ok {
			continue
		}
		seen[a.PromotionID] = struct{}{}
		ids = append(ids, a.PromotionID)
	}
	return ids
}
