// Package connectivity tracks whether the network is reachable and notifies
// subscribers when that changes.
package connectivity

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Transition is an observed change of network status.
type Transition struct {
	Online bool
	At     time.Time
}

// Monitor tracks whether network connectivity is currently detected and
// notifies subscribers when it changes. The zero value is not usable; use New.
type Monitor struct {
	online atomic.Bool

	mu   sync.Mutex
	subs map[int]chan Transition
	next int

	logger *zap.Logger
}

// New returns a Monitor with the given initial status.
func New(initialOnline bool, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		subs:   make(map[int]chan Transition),
		logger: logger,
	}
	m.online.Store(initialOnline)
	return m
}

// Online reports whether connectivity is currently detected. This is a local
// check and never performs I/O.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Set records the current status. Subscribers are notified only on change.
func (m *Monitor) Set(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	t := Transition{Online: online, At: time.Now()}
	m.logger.Info("connectivity changed", zap.Bool("online", online))

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		// Subscribers that fall behind only need the latest status.
		select {
		case ch <- t:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- t:
			default:
			}
		}
	}
}

// Subscribe returns a channel receiving status transitions and a cancel func
// that unregisters and closes it.
func (m *Monitor) Subscribe() (<-chan Transition, func()) {
	ch := make(chan Transition, 1)
	m.mu.Lock()
	id := m.next
	m.next++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// ProbeConfig configures the background connectivity prober.
type ProbeConfig struct {
	Addr     string        // host:port dialed to detect connectivity
	Interval time.Duration // time between probes
	Timeout  time.Duration // per-probe dial timeout
}

// Run probes cfg.Addr every cfg.Interval until ctx is done and updates the
// monitor with the result. An empty Addr disables probing; Run then blocks
// until ctx is done so the status is driven by Set alone.
func (m *Monitor) Run(ctx context.Context, cfg ProbeConfig) error {
	if cfg.Addr == "" {
		<-ctx.Done()
		return ctx.Err()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	dialer := &net.Dialer{Timeout: cfg.Timeout}

	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		conn, err := dialer.DialContext(probeCtx, "tcp", cfg.Addr)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Debug("connectivity probe failed", zap.String("addr", cfg.Addr), zap.Error(err))
				m.Set(false)
			}
			return
		}
		_ = conn.Close()
		m.Set(true)
	}

	probe()
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			probe()
		}
	}
}
