package api

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/Borislavv/atomic-shared/pkg/k8s/probe/liveness"
)

// HealthzController answers the k8s liveness probe from the shared prober.
type HealthzController struct {
	probe liveness.Prober
}

func NewHealthzController(probe liveness.Prober) *HealthzController {
	return &HealthzController{probe: probe}
}

func (c *HealthzController) Healthz(ctx *fasthttp.RequestCtx) {
	if c.probe.IsAlive() {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
		return
	}
	ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	ctx.SetBodyString("unavailable")
}

func (c *HealthzController) AddRoute(r *router.Router) {
	r.GET("/healthz", c.Healthz)
}
