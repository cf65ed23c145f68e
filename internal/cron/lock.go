package cron

import (
	"context"
	"sync"
)

// Lock keeps housekeeping cycles from overlapping.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LocalLock is an in-process Lock. A terminal runs a single cron service, so
// overlap can only come from a cycle outlasting its interval or from a manual
// run racing the ticker.
type LocalLock struct {
	mu sync.Mutex
}

func NewLocalLock() *LocalLock {
	return &LocalLock{}
}

func (l *LocalLock) Acquire(context.Context) (bool, error) {
	return l.mu.TryLock(), nil
}

func (l *LocalLock) Release(context.Context) error {
	l.mu.Unlock()
	return nil
}
