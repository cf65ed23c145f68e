package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
)

// Pinger checks whether the remote Sales API answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor tracks reachability of the Sales API. The terminal starts offline;
// every offline to online transition is published on Reconnected.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	logg     *logger.Logger

	mu     sync.RWMutex
	online bool

	reconnected chan struct{}
}

func NewMonitor(pinger Pinger, interval, timeout time.Duration, logg *logger.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Monitor{
		pinger:      pinger,
		interval:    interval,
		timeout:     timeout,
		logg:        logg,
		reconnected: make(chan struct{}, 1),
	}
}

// Online reports the last observed state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Reconnected delivers one signal per offline to online transition. Signals
// that arrive while an earlier one is still pending are coalesced.
func (m *Monitor) Reconnected() <-chan struct{} {
	return m.reconnected
}

// Probe pings once and records the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.pinger.Ping(probeCtx)
	m.set(ctx, err == nil, err)
	return err == nil
}

// MarkOffline records a failure observed outside the probe loop, such as a
// submission that could not reach the API.
func (m *Monitor) MarkOffline(ctx context.Context, cause error) {
	m.set(ctx, false, cause)
}

// Run probes on every interval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) error {
	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

func (m *Monitor) set(ctx context.Context, online bool, cause error) {
	m.mu.Lock()
	was := m.online
	m.online = online
	m.mu.Unlock()

	if was == online {
		return
	}

	if online {
		select {
		case m.reconnected <- struct{}{}:
		default:
		}
	}

	if m.logg == nil {
		return
	}
	if online {
		m.logg.Info(ctx, "connectivity.online")
		return
	}
	if cause != nil {
		ctx = m.logg.WithField(ctx, "error", cause.Error())
	}
	m.logg.Warn(ctx, "connectivity.offline")
}
