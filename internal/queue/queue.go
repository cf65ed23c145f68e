package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/idempotency"
	"github.com/angelmondragon/packfinderz-pos/internal/sales"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/google/uuid"
)

// NewSale is what the submission path hands over when a sale could not be
// confirmed online.
type NewSale struct {
	ClientTempID uuid.UUID
	CreatedAt    time.Time
	Payload      sales.Payload
}

// Queue is the durable FIFO of sales awaiting confirmation. All operations
// are serialized by a single lock so enqueue and drain never interleave on
// the store.
type Queue struct {
	mu    sync.Mutex
	store Store
	now   func() time.Time
}

// Option configures optional queue behaviour.
type Option func(*Queue)

// WithClock overrides the clock used to stamp EnqueuedAt and FlaggedAt.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// New builds a queue on top of store.
func New(store Store, opts ...Option) (*Queue, error) {
	if store == nil {
		return nil, errors.New("queue store required")
	}
	q := &Queue{store: store, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q, nil
}

// Enqueue persists the sale and returns it once it is durable. Enqueueing the
// same ClientTempID twice returns the first stored sale.
func (q *Queue) Enqueue(ctx context.Context, in NewSale) (Sale, error) {
	if in.ClientTempID == uuid.Nil {
		return Sale{}, pkgerrors.New(pkgerrors.CodeValidation, "clientTempId is required")
	}
	if in.CreatedAt.IsZero() {
		return Sale{}, pkgerrors.New(pkgerrors.CodeValidation, "createdAt is required")
	}
	data, err := in.Payload.Encode()
	if err != nil {
		return Sale{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode sale payload")
	}

	sale := Sale{
		ClientTempID: in.ClientTempID,
		CreatedAt:    in.CreatedAt.UTC(),
		Payload:      data,
	}
	sale.IdempotencyKey = idempotency.DeriveKey(sale.Identity())

	q.mu.Lock()
	defer q.mu.Unlock()

	sale.EnqueuedAt = q.now().UTC()
	stored, _, err := q.store.Append(ctx, sale)
	if err != nil {
		return Sale{}, storageError(err, "enqueue sale")
	}
	return stored, nil
}

// PeekOldest returns the oldest sale eligible for submission, or nil when
// there is none. Flagged sales are skipped.
func (q *Queue) PeekOldest(ctx context.Context) (*Sale, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sale, err := q.store.Oldest(ctx)
	if err != nil {
		return nil, storageError(err, "peek oldest sale")
	}
	return sale, nil
}

// Remove deletes a confirmed sale. Removing an unknown id is a no-op so a
// confirmation replayed after a crash is harmless.
func (q *Queue) Remove(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Delete(ctx, id); err != nil {
		return storageError(err, "remove sale")
	}
	return nil
}

// Count returns the number of queued sales, flagged ones included.
func (q *Queue) Count(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n, err := q.store.Count(ctx)
	if err != nil {
		return 0, storageError(err, "count queued sales")
	}
	return n, nil
}

// Get returns a queued sale by client id.
func (q *Queue) Get(ctx context.Context, id uuid.UUID) (*Sale, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sale, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, storageError(err, "load queued sale")
	}
	return sale, nil
}

// Flag pulls a sale out of automatic retry after a permanent rejection.
func (q *Queue) Flag(ctx context.Context, id uuid.UUID, reason enums.AttentionReason, statusCode int, message string) error {
	if !reason.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid attention reason")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	err := q.store.Flag(ctx, Attention{
		ClientTempID: id,
		Reason:       reason,
		StatusCode:   statusCode,
		Message:      message,
		FlaggedAt:    q.now().UTC(),
	})
	if err != nil {
		return storageError(err, "flag queued sale")
	}
	return nil
}

// Release clears the flag so the scheduler retries the sale.
func (q *Queue) Release(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.Unflag(ctx, id); err != nil {
		return storageError(err, "release queued sale")
	}
	return nil
}

// Attention lists flagged sales, oldest flag first.
func (q *Queue) Attention(ctx context.Context) ([]AttentionEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries, err := q.store.ListAttention(ctx)
	if err != nil {
		return nil, storageError(err, "list flagged sales")
	}
	return entries, nil
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats, err := q.store.Stats(ctx)
	if err != nil {
		return Stats{}, storageError(err, "read queue stats")
	}
	return stats, nil
}

// Close closes the underlying store.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Close()
}

func storageError(err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, msg)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorage, err, msg)
}

func sortAttention(entries []AttentionEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].FlaggedAt.Equal(entries[j].FlaggedAt) {
			return entries[i].Sale.Seq < entries[j].Sale.Seq
		}
		return entries[i].FlaggedAt.Before(entries[j].FlaggedAt)
	})
}
