// Package connectivity tracks whether the API server is reachable.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Prober checks the server once. A nil error means online.
type Prober interface {
	Health(ctx context.Context) error
}

type Observer struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.RWMutex
	online bool
	known  bool
	subs   []chan bool
}

func NewObserver(prober Prober, interval time.Duration, logger *slog.Logger) *Observer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timeout := interval / 2
	if timeout > 3*time.Second {
		timeout = 3 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{prober: prober, interval: interval, timeout: timeout, logger: logger}
}

// Online reports the last observed state. It is false before the first check.
func (o *Observer) Online() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.online
}

// Subscribe returns a channel that receives the new state on every
// transition. Slow subscribers miss intermediate transitions, never the
// latest one.
func (o *Observer) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	o.mu.Lock()
	o.subs = append(o.subs, ch)
	o.mu.Unlock()
	return ch
}

// Check probes the server once, updates the state and returns it.
func (o *Observer) Check(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, o.timeout)
	err := o.prober.Health(probeCtx)
	cancel()
	if ctx.Err() != nil {
		return o.Online()
	}
	o.set(err == nil, err)
	return err == nil
}

func (o *Observer) set(online bool, cause error) {
	o.mu.Lock()
	changed := !o.known || o.online != online
	first := !o.known
	o.online = online
	o.known = true
	var subs []chan bool
	if changed {
		subs = append(subs, o.subs...)
	}
	o.mu.Unlock()

	if !changed {
		return
	}
	if online {
		o.logger.Info("Server reachable")
	} else {
		o.logger.Warn("Server unreachable", "error", cause)
	}
	// The initial offline state is not a transition.
	if first && !online {
		return
	}
	for _, ch := range subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- online:
		default:
		}
	}
}

// Run checks immediately and then every interval until ctx is cancelled.
func (o *Observer) Run(ctx context.Context) {
	o.Check(ctx)
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.Check(ctx)
		}
	}
}
