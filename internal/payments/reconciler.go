package payments

import (
	"fmt"

	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/shopspring/decimal"
)

// Payment is one tender applied to a sale.
type Payment struct {
	Method    enums.PaymentMethod `json:"method"`
	Amount    decimal.Decimal     `json:"amount"`
	Reference string              `json:"reference,omitempty"`
}

// MethodTotal is the sum tendered through a single payment method.
type MethodTotal struct {
	Method enums.PaymentMethod `json:"method"`
	Amount decimal.Decimal     `json:"amount"`
}

// Reconciliation compares what was tendered with what is owed. Change is
// tendered minus total and is never clamped: a negative value is the amount
// still due.
type Reconciliation struct {
	Total    decimal.Decimal `json:"total"`
	Tendered decimal.Decimal `json:"tendered"`
	Change   decimal.Decimal `json:"change"`
	ByMethod []MethodTotal   `json:"byMethod"`
}

// Shortfall returns the amount still owed, or zero when the sale is covered.
func (r Reconciliation) Shortfall() decimal.Decimal {
	if r.Change.IsNegative() {
		return r.Change.Neg()
	}
	return decimal.Zero
}

// Covered reports whether the tendered amount pays the total.
func (r Reconciliation) Covered() bool {
	return !r.Change.IsNegative()
}

// Reconcile sums the payments and reports change against total. Any total,
// zero included, is reconciled as given; only malformed payments are errors.
func Reconcile(total decimal.Decimal, payments []Payment) (Reconciliation, error) {
	byMethod := make(map[enums.PaymentMethod]decimal.Decimal, len(payments))
	tendered := decimal.Zero
	for i, p := range payments {
		if !p.Method.IsValid() {
			return Reconciliation{}, paymentError(i, "method", fmt.Sprintf("unknown payment method %q", p.Method))
		}
		if p.Amount.IsNegative() {
			return Reconciliation{}, paymentError(i, "amount", "payment amount must not be negative")
		}
		tendered = tendered.Add(p.Amount)
		byMethod[p.Method] = byMethod[p.Method].Add(p.Amount)
	}

	breakdown := make([]MethodTotal, 0, len(byMethod))
	for _, method := range enums.PaymentMethods() {
		amount, ok := byMethod[method]
		if !ok {
			continue
		}
		breakdown = append(breakdown, MethodTotal{Method: method, Amount: amount})
	}

	return Reconciliation{
		Total:    total,
		Tendered: tendered,
		Change:   tendered.Sub(total),
		ByMethod: breakdown,
	}, nil
}

func paymentError(index int, field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("payment %d: %s", index, msg)).
		WithDetails(map[string]any{"payment": index, "field": field})
}
