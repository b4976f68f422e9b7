package stress

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/Borislavv/atomic-shared/internal/stress/api"
	"github.com/Borislavv/atomic-shared/internal/stress/config"
	"github.com/Borislavv/atomic-shared/internal/stress/server"
	"github.com/Borislavv/atomic-shared/pkg/alloc"
	"github.com/Borislavv/atomic-shared/pkg/k8s/probe/liveness"
	"github.com/Borislavv/atomic-shared/pkg/prometheus/metrics"
	"github.com/Borislavv/atomic-shared/pkg/shutdown"
)

// App wires the stress driver together: allocator, meter, tester and the
// control-surface HTTP server.
type App struct {
	cfg    *config.Config
	ctx    context.Context
	cancel context.CancelFunc
	probe  liveness.Prober
	tester *Tester
	server server.Http
	failed bool
}

func NewApp(ctx context.Context, cfg *config.Config, probe liveness.Prober) (*App, error) {
	ctx, cancel := context.WithCancel(ctx)

	backend, err := alloc.New(cfg.Stress.Allocator)
	if err != nil {
		cancel()
		return nil, err
	}
	tracking := alloc.NewTracking(backend)
	meter := metrics.New(tracking.Stats())
	tester := NewTester(cfg, tracking, meter)

	app := &App{
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		probe:  probe,
		tester: tester,
	}

	if cfg.Stress.Server.Enabled {
		app.server = server.New(ctx, cfg, []api.HttpController{
			api.NewMetricsController(),
			api.NewHealthzController(probe),
			api.NewOnOffController(tester),
		})
	}

	return app, nil
}

// Start runs the workloads to completion and handles graceful shutdown.
// The Gracefuller is released once teardown finished.
func (a *App) Start(gc shutdown.Gracefuller) {
	defer func() {
		a.stop()
		gc.Done()
	}()

	log.Info().Msg("[app] starting stress driver")

	if a.server != nil {
		a.probe.Watch(a)
		go a.server.Start()
	}

	if !a.cfg.Stress.Enabled {
		log.Info().Msg("[app] stress driver disabled by config")
		return
	}

	if err := a.tester.Run(a.ctx); err != nil {
		a.failed = true
		log.Error().Err(err).Msg("[app] stress run failed verification")
		return
	}

	log.Info().Msg("[app] stress run completed")
}

func (a *App) stop() {
	log.Info().Msg("[app] stopping stress driver")
	a.cancel()
}

// IsAlive is called by the liveness prober: the app is healthy while the
// run has not failed verification and, when enabled, the server responds.
func (a *App) IsAlive(_ context.Context) bool {
	if a.failed {
		return false
	}
	if a.server != nil && !a.server.IsAlive() {
		return false
	}
	return true
}
