package proxy

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"genpipe/internal/middleware"
)

// Router assembles the edge routes behind the shared middleware stack.
func (p *Proxy) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Logger(p.logger), middleware.CORS(p.cfg.AllowedOrigins))

	r.Get("/v1/healthz", p.Health)

	r.Post("/v1/storage/presign", p.Presign)

	r.Route("/v1/tickets", func(r chi.Router) {
		r.Post("/consume", p.ForwardTickets)
		r.Post("/refund", p.ForwardTickets)
		r.Get("/balance", p.ForwardTickets)
	})

	r.Route("/v1/jobs/{kind}", func(r chi.Router) {
		r.Post("/*", p.ForwardJob)
		r.Get("/*", p.ForwardJob)
	})

	r.Route("/v1/object", func(r chi.Router) {
		r.Get("/", p.FetchObject)
		r.Head("/", p.FetchObject)
		r.Put("/", p.FetchObject)
	})

	r.Route("/v1/objects", func(r chi.Router) {
		r.Get("/*", p.ReadLocalObject)
		r.Head("/*", p.ReadLocalObject)
		r.Put("/*", p.WriteLocalObject)
	})

	return r
}
