package queue

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/idempotency"
	"github.com/angelmondragon/packfinderz-pos/internal/sales"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	"github.com/google/uuid"
)

// Sale is a finalized sale waiting to be confirmed by the Sales API. Seq is
// assigned by the store and defines FIFO order.
type Sale struct {
	Seq            int64           `json:"seq"`
	ClientTempID   uuid.UUID       `json:"clientTempId"`
	CreatedAt      time.Time       `json:"createdAt"`
	IdempotencyKey string          `json:"idempotencyKey"`
	Payload        json.RawMessage `json:"payload"`
	EnqueuedAt     time.Time       `json:"enqueuedAt"`
}

// Identity returns the fields the idempotency key is derived from.
func (s Sale) Identity() idempotency.Identity {
	return idempotency.Identity{ClientTempID: s.ClientTempID, CreatedAt: s.CreatedAt}
}

// Decode parses the stored payload.
func (s Sale) Decode() (sales.Payload, error) {
	return sales.Decode(s.Payload)
}

// Attention marks a sale the Sales API rejected permanently. Flagged sales
// stay queued but are skipped by PeekOldest until released.
type Attention struct {
	ClientTempID uuid.UUID             `json:"clientTempId"`
	Reason       enums.AttentionReason `json:"reason"`
	StatusCode   int                   `json:"statusCode"`
	Message      string                `json:"message,omitempty"`
	FlaggedAt    time.Time             `json:"flaggedAt"`
}

// AttentionEntry pairs a flag with the sale it refers to.
type AttentionEntry struct {
	Attention
	Sale Sale `json:"sale"`
}

// Stats summarises the queue for status reporting and housekeeping.
type Stats struct {
	Total     int        `json:"total"`
	Pending   int        `json:"pending"`
	Attention int        `json:"attention"`
	OldestAt  *time.Time `json:"oldestPendingAt,omitempty"`
}
