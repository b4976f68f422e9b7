// Package shutdown coordinates graceful teardown: application units
// register on a WaitGroup, and the listener blocks until the root context
// is cancelled or an OS signal arrives, then waits for all units to drain
// within a configurable timeout.
package shutdown

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrTimeout = errors.New("shutdown: graceful timeout exceeded")

// Gracefuller is the unit-side surface: Add before starting a unit, Done
// when it has fully stopped.
type Gracefuller interface {
	Add(delta int)
	Done()
}

type Graceful struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	timeout time.Duration
}

func NewGraceful(ctx context.Context, cancel context.CancelFunc) *Graceful {
	return &Graceful{ctx: ctx, cancel: cancel, timeout: 30 * time.Second}
}

// SetGracefulTimeout bounds how long ListenCancelAndAwait waits for units
// to drain after the stop condition fires.
func (g *Graceful) SetGracefulTimeout(d time.Duration) {
	g.timeout = d
}

func (g *Graceful) Add(delta int) { g.wg.Add(delta) }

func (g *Graceful) Done() { g.wg.Done() }

// ListenCancelAndAwait blocks until the context is cancelled or SIGINT /
// SIGTERM arrives, cancels the application context, then awaits the
// registered units up to the graceful timeout.
func (g *Graceful) ListenCancelAndAwait() error {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-g.ctx.Done():
	case s := <-sig:
		log.Info().Msgf("[shutdown] received %v, stopping", s)
		g.cancel()
	}

	drained := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-time.After(g.timeout):
		return ErrTimeout
	}
}
