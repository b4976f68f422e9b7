package server

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fasthttp/router"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"

	"github.com/Borislavv/atomic-shared/internal/stress/api"
	"github.com/Borislavv/atomic-shared/internal/stress/config"
)

// Http exposes the control surface: /metrics, /healthz and the workload
// on/off switches.
type Http interface {
	Start()
	IsAlive() bool
}

type HttpServer struct {
	ctx     context.Context
	cfg     *config.Config
	server  *fasthttp.Server
	isAlive *atomic.Bool
}

func New(ctx context.Context, cfg *config.Config, controllers []api.HttpController) *HttpServer {
	s := &HttpServer{ctx: ctx, cfg: cfg, isAlive: &atomic.Bool{}}

	r := router.New()
	for _, c := range controllers {
		c.AddRoute(r)
	}
	s.server = &fasthttp.Server{
		GetOnly:                       true,
		DisablePreParseMultipartForm:  true,
		DisableHeaderNamesNormalizing: true,
		CloseOnShutdown:               true,
		Handler:                       r.Handler,
		ReadBufferSize:                16 * 1024,
		WriteBufferSize:               16 * 1024,
	}
	return s
}

// Start serves until the context dies, then shuts the listener down.
// Blocks the caller.
func (s *HttpServer) Start() {
	wg := &sync.WaitGroup{}
	defer wg.Wait()

	wg.Add(1)
	go s.serve(wg)

	wg.Add(1)
	go s.shutdown(wg)
}

func (s *HttpServer) IsAlive() bool { return s.isAlive.Load() }

func (s *HttpServer) serve(wg *sync.WaitGroup) {
	defer wg.Done()

	name := s.cfg.Stress.Server.Name
	port := s.cfg.Stress.Server.Port
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}

	log.Info().Msgf("[server] %v was started on %v", name, port)
	defer log.Info().Msgf("[server] %v was stopped on %v", name, port)

	s.isAlive.Store(true)
	defer s.isAlive.Store(false)

	if err := s.server.ListenAndServe(port); err != nil {
		log.Error().Err(err).Msgf("[server] %v failed to listen and serve port %v", name, port)
	}
}

func (s *HttpServer) shutdown(wg *sync.WaitGroup) {
	defer wg.Done()

	<-s.ctx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.ShutdownWithContext(ctx); err != nil {
		log.Warn().Msgf("[server] %v shutdown failed: %v", s.cfg.Stress.Server.Name, err.Error())
	}
}
