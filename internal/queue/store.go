package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a sale or attention record does not exist.
	ErrNotFound = errors.New("queued sale not found")
)

// Store persists queued sales. Implementations must make Append durable
// before returning and must hand out strictly increasing sequence numbers.
type Store interface {
	// Append stores sale and returns it with Seq set. When a sale with the
	// same ClientTempID exists, the stored sale is returned and created is false.
	Append(ctx context.Context, sale Sale) (stored Sale, created bool, err error)
	// Oldest returns the lowest-sequence sale without an attention flag, or nil.
	Oldest(ctx context.Context) (*Sale, error)
	Get(ctx context.Context, id uuid.UUID) (*Sale, error)
	// Delete removes the sale and any flag on it. Missing sales are not an error.
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int, error)
	Flag(ctx context.Context, attention Attention) error
	Unflag(ctx context.Context, id uuid.UUID) error
	ListAttention(ctx context.Context) ([]AttentionEntry, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
