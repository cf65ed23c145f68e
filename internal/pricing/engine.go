package pricing

import (
	"fmt"

	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CartLine is a single priced line of the cart being finalized.
type CartLine struct {
	ProductID          string          `json:"productId"`
	CategoryID         string          `json:"categoryId,omitempty"`
	UnitPrice          decimal.Decimal `json:"unitPrice"`
	Quantity           int             `json:"quantity"`
	ManualLineDiscount decimal.Decimal `json:"manualLineDiscount"`
}

// Adjustments are the cashier-entered order level corrections.
type Adjustments struct {
	GeneralDiscount  decimal.Decimal
	GeneralSurcharge decimal.Decimal
}

// LineTotals is the per-line breakdown of a pricing pass.
type LineTotals struct {
	ProductID      string          `json:"productId"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	Gross          decimal.Decimal `json:"gross"`
	PromoDiscount  decimal.Decimal `json:"promoDiscount"`
	ManualDiscount decimal.Decimal `json:"manualDiscount"`
	Net            decimal.Decimal `json:"net"`
}

// AppliedPromotion records how much a promotion contributed. LineIndex is -1
// for order level promotions.
type AppliedPromotion struct {
	PromotionID string              `json:"promotionId"`
	Kind        enums.PromotionKind `json:"kind"`
	LineIndex   int                 `json:"lineIndex"`
	Amount      decimal.Decimal     `json:"amount"`
}

// Totals is the authoritative price of a cart. Values are exact; round with
// Display only when rendering.
type Totals struct {
	Gross              decimal.Decimal    `json:"gross"`
	ManualDiscount     decimal.Decimal    `json:"manualDiscount"`
	LinePromoDiscount  decimal.Decimal    `json:"linePromoDiscount"`
	LineSubtotal       decimal.Decimal    `json:"lineSubtotal"`
	OrderPromoDiscount decimal.Decimal    `json:"orderPromoDiscount"`
	Subtotal           decimal.Decimal    `json:"subtotal"`
	GeneralDiscount    decimal.Decimal    `json:"generalDiscount"`
	GeneralSurcharge   decimal.Decimal    `json:"generalSurcharge"`
	Total              decimal.Decimal    `json:"total"`
	Lines              []LineTotals       `json:"lines"`
	Applied            []AppliedPromotion `json:"applied,omitempty"`
}

// ComputeTotals prices the cart under the promotion snapshot.
//
// Line promotions (quantity tiers, bonus units) stack: every matching rule
// contributes. Order thresholds are evaluated against the line subtotal after
// line promotions and manual discounts, and also stack. An order threshold
// carrying a product or category scope never applies.
func ComputeTotals(lines []CartLine, promotions []Promotion, adj Adjustments) (Totals, error) {
	if err := validateLines(lines); err != nil {
		return Totals{}, err
	}
	if err := validatePromotions(promotions); err != nil {
		return Totals{}, err
	}
	if adj.GeneralDiscount.IsNegative() || adj.GeneralSurcharge.IsNegative() {
		return Totals{}, pkgerrors.New(pkgerrors.CodeValidation, "general discount and surcharge must not be negative")
	}

	totals := Totals{
		Gross:              decimal.Zero,
		ManualDiscount:     decimal.Zero,
		LinePromoDiscount:  decimal.Zero,
		LineSubtotal:       decimal.Zero,
		OrderPromoDiscount: decimal.Zero,
		GeneralDiscount:    adj.GeneralDiscount,
		GeneralSurcharge:   adj.GeneralSurcharge,
		Lines:              make([]LineTotals, 0, len(lines)),
	}

	for i, line := range lines {
		lt := LineTotals{
			ProductID:      line.ProductID,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
			Gross:          decimal.Zero,
			PromoDiscount:  decimal.Zero,
			ManualDiscount: decimal.Zero,
			Net:            decimal.Zero,
		}
		if line.Quantity == 0 {
			totals.Lines = append(totals.Lines, lt)
			continue
		}

		qty := decimal.NewFromInt(int64(line.Quantity))
		lt.Gross = line.UnitPrice.Mul(qty)
		lt.ManualDiscount = line.ManualLineDiscount

		for _, promo := range promotions {
			if !promo.matches(line) {
				continue
			}
			amount := linePromotionDiscount(promo, line, qty)
			if amount.IsZero() {
				continue
			}
			lt.PromoDiscount = lt.PromoDiscount.Add(amount)
			totals.Applied = append(totals.Applied, AppliedPromotion{
				PromotionID: promo.ID,
				Kind:        promo.Kind,
				LineIndex:   i,
				Amount:      amount,
			})
		}

		lt.Net = lt.Gross.Sub(lt.ManualDiscount).Sub(lt.PromoDiscount)

		totals.Gross = totals.Gross.Add(lt.Gross)
		totals.ManualDiscount = totals.ManualDiscount.Add(lt.ManualDiscount)
		totals.LinePromoDiscount = totals.LinePromoDiscount.Add(lt.PromoDiscount)
		totals.LineSubtotal = totals.LineSubtotal.Add(lt.Net)
		totals.Lines = append(totals.Lines, lt)
	}

	for _, promo := range promotions {
		if promo.Kind != enums.PromotionKindOrderThreshold || promo.Scope != enums.PromotionScopeOrder {
			continue
		}
		if promo.MinOrderSubtotal.GreaterThan(totals.LineSubtotal) {
			continue
		}
		amount := totals.LineSubtotal.Mul(promo.DiscountPercent).Div(hundred)
		if amount.IsZero() {
			continue
		}
		totals.OrderPromoDiscount = totals.OrderPromoDiscount.Add(amount)
		totals.Applied = append(totals.Applied, AppliedPromotion{
			PromotionID: promo.ID,
			Kind:        promo.Kind,
			LineIndex:   -1,
			Amount:      amount,
		})
	}

	totals.Subtotal = totals.LineSubtotal.Sub(totals.OrderPromoDiscount)
	totals.Total = totals.Subtotal.Sub(adj.GeneralDiscount).Add(adj.GeneralSurcharge)
	return totals, nil
}

func linePromotionDiscount(promo Promotion, line CartLine, qty decimal.Decimal) decimal.Decimal {
	switch promo.Kind {
	case enums.PromotionKindQuantityTier:
		if line.Quantity < promo.MinQuantity {
			return decimal.Zero
		}
		return line.UnitPrice.Mul(qty).Mul(promo.DiscountPercent).Div(hundred)
	case enums.PromotionKindBonusUnits:
		groups := line.Quantity / promo.MinQuantity
		freeUnits := int64(groups * (promo.MinQuantity - promo.BonusQuantity))
		return line.UnitPrice.Mul(decimal.NewFromInt(freeUnits))
	default:
		return decimal.Zero
	}
}

func validateLines(lines []CartLine) error {
	for i, line := range lines {
		if line.Quantity < 0 {
			return lineError(i, "quantity", "quantity must not be negative")
		}
		if line.UnitPrice.IsNegative() {
			return lineError(i, "unitPrice", "unit price must not be negative")
		}
		if line.ManualLineDiscount.IsNegative() {
			return lineError(i, "manualLineDiscount", "manual line discount must not be negative")
		}
	}
	return nil
}

func validatePromotions(promotions []Promotion) error {
	for i, promo := range promotions {
		if !promo.Kind.IsValid() {
			return promotionError(i, promo, "unknown promotion kind")
		}
		switch promo.Kind {
		case enums.PromotionKindQuantityTier, enums.PromotionKindBonusUnits:
			if promo.MinQuantity <= 0 {
				return promotionError(i, promo, "minQuantity must be greater than zero")
			}
		}
		switch promo.Kind {
		case enums.PromotionKindQuantityTier, enums.PromotionKindOrderThreshold:
			if promo.DiscountPercent.IsNegative() || promo.DiscountPercent.GreaterThan(hundred) {
				return promotionError(i, promo, "discountPercent must be between 0 and 100")
			}
		case enums.PromotionKindBonusUnits:
			if promo.BonusQuantity < 0 || promo.BonusQuantity > promo.MinQuantity {
				return promotionError(i, promo, "bonusQuantity must be between 0 and minQuantity")
			}
		}
		if promo.Kind == enums.PromotionKindOrderThreshold && promo.MinOrderSubtotal.IsNegative() {
			return promotionError(i, promo, "minOrderSubtotal must not be negative")
		}
	}
	return nil
}

func lineError(index int, field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: %s", index, msg)).
		WithDetails(map[string]any{"line": index, "field": field})
}

func promotionError(index int, promo Promotion, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("promotion %d: %s", index, msg)).
		WithDetails(map[string]any{"promotion": index, "promotionId": promo.ID, "kind": promo.Kind})
}
