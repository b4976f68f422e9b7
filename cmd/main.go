package main

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/Borislavv/atomic-shared/internal/stress"
	"github.com/Borislavv/atomic-shared/internal/stress/config"
	"github.com/Borislavv/atomic-shared/pkg/ctime"
	"github.com/Borislavv/atomic-shared/pkg/gc"
	"github.com/Borislavv/atomic-shared/pkg/k8s/probe/liveness"
	"github.com/Borislavv/atomic-shared/pkg/shutdown"
)

// setMaxProcs automatically sets the optimal GOMAXPROCS value (CPU parallelism)
// based on the available CPUs and cgroup/docker CPU quotas (uses automaxprocs).
func setMaxProcs() {
	if _, err := maxprocs.Set(); err != nil {
		log.Err(err).Msg("[main] setting up GOMAXPROCS value failed")
		panic(err)
	}
	log.Info().Msgf("[main] optimized GOMAXPROCS=%d was set up", runtime.GOMAXPROCS(0))
}

// loadCfg loads the stress configuration from yaml (local override first)
// and the environment.
func loadCfg() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		log.Err(err).Msg("[config] failed to load")
		return nil, err
	}
	log.Info().Msgf(
		"[config] loaded: mode=%s threads=%d slots=%d passes=%d allocator=%q",
		cfg.Stress.Mode, cfg.Stress.Threads, cfg.Stress.Slots, cfg.Stress.Passes, cfg.Stress.Allocator,
	)
	return cfg, nil
}

// Main entrypoint: configures and starts the stress driver.
func main() {
	// Create a root context for graceful shutdown and cancellation.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optimize GOMAXPROCS for the current environment.
	setMaxProcs()

	// Start the coarse clock used by the progress reporter.
	stopClock := ctime.Start(100 * time.Millisecond)
	defer stopClock()

	// Load the driver configuration.
	cfg, cfgError := loadCfg()
	if cfgError != nil {
		log.Err(cfgError).Msg("[main] failed to load stress config")
		return
	}

	// Setup graceful shutdown handler (SIGTERM, SIGINT, etc).
	gracefulShutdown := shutdown.NewGraceful(ctx, cancel)
	gracefulShutdown.SetGracefulTimeout(time.Minute)

	// Initialize liveness probe for Kubernetes/Cloud health checks.
	probe := liveness.NewProbe(cfg.Stress.Liveness.Interval)

	// Initialize and start the stress application.
	app, err := stress.NewApp(ctx, cfg, probe)
	if err != nil {
		log.Err(err).Msg("[main] failed to init stress app")
		return
	}

	// Register app for graceful shutdown.
	gracefulShutdown.Add(1)
	go func() {
		app.Start(gracefulShutdown)
		cancel() // the run is finite; leaving the process up serves nothing
	}()

	gcCtx, gcCancel := context.WithCancel(context.Background())
	defer gcCancel()

	// Run forced GC.
	gc.Run(gcCtx, cfg.Stress.ForceGC)

	// Listen for OS signals or context cancellation and wait for graceful shutdown.
	if err := gracefulShutdown.ListenCancelAndAwait(); err != nil {
		log.Err(err).Msg("failed to gracefully shut down service")
	}
}
