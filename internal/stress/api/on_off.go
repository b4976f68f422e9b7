package api

import (
	"encoding/json"

	"github.com/fasthttp/router"
	"github.com/rs/zerolog/log"
	"github.com/savsgio/gotils/strconv"
	"github.com/valyala/fasthttp"
)

// Switchable pauses and resumes the stress workloads.
type Switchable interface {
	Pause()
	Resume()
	IsPaused() bool
}

// OnOffController provides endpoints to pause and resume the workloads.
type OnOffController struct {
	target Switchable
}

func NewOnOffController(target Switchable) *OnOffController {
	return &OnOffController{target: target}
}

// onOffStatusResponse is the JSON payload returned by On and Off handlers.
type onOffStatusResponse struct {
	Running bool   `json:"running"`
	Message string `json:"message,omitempty"`
}

// On handles GET /stress/on and resumes the workloads, returning JSON.
func (c *OnOffController) On(ctx *fasthttp.RequestCtx) {
	c.target.Resume()
	log.Info().Msgf("[api] %s: workloads resumed", strconv.B2S(ctx.Path()))

	resp := onOffStatusResponse{Running: true, Message: "stress workloads resumed"}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json; charset=utf-8")
	_ = json.NewEncoder(ctx).Encode(resp)
}

// Off handles GET /stress/off and pauses the workloads, returning JSON.
func (c *OnOffController) Off(ctx *fasthttp.RequestCtx) {
	c.target.Pause()
	log.Info().Msgf("[api] %s: workloads paused", strconv.B2S(ctx.Path()))

	resp := onOffStatusResponse{Running: false, Message: "stress workloads paused"}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType("application/json; charset=utf-8")
	_ = json.NewEncoder(ctx).Encode(resp)
}

// AddRoute attaches the on/off routes to the given router.
func (c *OnOffController) AddRoute(r *router.Router) {
	r.GET("/stress/on", c.On)
	r.GET("/stress/off", c.Off)
}
