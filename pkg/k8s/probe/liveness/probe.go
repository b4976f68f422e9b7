// Package liveness polls application units for health and exposes the
// aggregate to the HTTP probe endpoint.
package liveness

import (
	"context"
	"sync/atomic"
	"time"
)

// Liveness is implemented by application units that can report health.
type Liveness interface {
	IsAlive(ctx context.Context) bool
}

// Prober watches services and answers liveness checks.
type Prober interface {
	Watch(svc Liveness)
	IsAlive() bool
}

type Probe struct {
	interval time.Duration
	alive    atomic.Bool
}

func NewProbe(interval time.Duration) *Probe {
	return &Probe{interval: interval}
}

// Watch polls svc on the probe interval in the background. Does not block.
func (p *Probe) Watch(svc Liveness) {
	go func() {
		ctx := context.Background()
		p.alive.Store(svc.IsAlive(ctx))
		t := time.NewTicker(p.interval)
		defer t.Stop()
		for range t.C {
			p.alive.Store(svc.IsAlive(ctx))
		}
	}()
}

// IsAlive reports the last observed state.
func (p *Probe) IsAlive() bool {
	return p.alive.Load()
}
