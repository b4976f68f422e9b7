package api

import "github.com/fasthttp/router"

// HttpController attaches its routes to the server router.
type HttpController interface {
	AddRoute(r *router.Router)
}
