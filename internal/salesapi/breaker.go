package salesapi

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/sony/gobreaker/v2"
)

// ReasonCircuitOpen is the failure reason for calls the breaker refused.
const ReasonCircuitOpen = "circuit open"

// Submitter is the submission surface shared by Client and Breaker.
type Submitter interface {
	Submit(ctx context.Context, key string, payload []byte) (*Result, error)
}

// BreakerSettings tunes the circuit breaker in front of the Sales API.
type BreakerSettings struct {
	Name             string
	MaxFailures      uint32
	OpenTimeout      time.Duration
	HalfOpenRequests uint32
	// OnOpenChange is invoked with true when the breaker opens and false when
	// it leaves the open state.
	OnOpenChange func(open bool)
}

// Breaker trips after MaxFailures consecutive transient failures. Permanent
// rejections prove the remote side is reachable and do not count.
type Breaker struct {
	next Submitter
	cb   *gobreaker.CircuitBreaker[*Result]
}

func NewBreaker(next Submitter, settings BreakerSettings, logg *logger.Logger) *Breaker {
	if settings.Name == "" {
		settings.Name = "sales-api"
	}
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	if settings.HalfOpenRequests == 0 {
		settings.HalfOpenRequests = 1
	}

	maxFailures := settings.MaxFailures
	onOpenChange := settings.OnOpenChange

	cb := gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.HalfOpenRequests,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logg != nil {
				ctx := logg.WithFields(context.Background(), map[string]any{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				})
				if to == gobreaker.StateOpen {
					logg.Warn(ctx, "salesapi.breaker.opened")
				} else {
					logg.Info(ctx, "salesapi.breaker.state_changed")
				}
			}
			if onOpenChange != nil {
				onOpenChange(to == gobreaker.StateOpen)
			}
		},
	})

	return &Breaker{next: next, cb: cb}
}

// Submit forwards to the wrapped submitter unless the breaker rejects the
// call, in which case the result is a transient failure.
func (b *Breaker) Submit(ctx context.Context, key string, payload []byte) (*Result, error) {
	res, err := b.cb.Execute(func() (*Result, error) {
		return b.next.Submit(ctx, key, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeTransientSync, err, "sales api circuit open").WithDetails(Failure{Reason: ReasonCircuitOpen})
	}
	return res, err
}

// Open reports whether calls are currently short-circuited.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

func (b *Breaker) State() string {
	return b.cb.State().String()
}
