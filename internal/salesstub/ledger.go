package salesstub

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/sales"
	"github.com/google/uuid"
)

// AppliedSale is a sale the stub accepted.
type AppliedSale struct {
	SaleID         string        `json:"saleId"`
	IdempotencyKey string        `json:"idempotencyKey"`
	Payload        sales.Payload `json:"payload"`
	AppliedAt      time.Time     `json:"appliedAt"`
}

// Ledger records applied sales.
type Ledger interface {
	Apply(ctx context.Context, key string, payload sales.Payload) (AppliedSale, error)
}

// MemoryLedger keeps applied sales in process memory.
type MemoryLedger struct {
	mu    sync.Mutex
	sales []AppliedSale
	now   func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{now: time.Now}
}

func (l *MemoryLedger) Apply(_ context.Context, key string, payload sales.Payload) (AppliedSale, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sale := AppliedSale{
		SaleID:         uuid.NewString(),
		IdempotencyKey: key,
		Payload:        payload,
		AppliedAt:      l.now().UTC(),
	}
	l.sales = append(l.sales, sale)
	return sale, nil
}

// Sales returns a copy of every applied sale in apply order.
func (l *MemoryLedger) Sales() []AppliedSale {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AppliedSale, len(l.sales))
	copy(out, l.sales)
	return out
}

// CountByKey reports how many times a key was applied.
func (l *MemoryLedger) CountByKey(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.sales {
		if s.IdempotencyKey == key {
			n++
		}
	}
	return n
}
