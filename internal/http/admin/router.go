// Package admin expone la API administrativa del broker sobre chi: CRUD de
// realms y de providers, más register/unregister. Todo muta a través del
// ProviderManager, nunca directo contra el store.
package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dropDatabas3/idbroker/internal/manager"
	"github.com/dropDatabas3/idbroker/internal/realm"
)

type Deps struct {
	Realms  *realm.Service
	Manager *manager.Manager
}

// Router arma el router administrativo. El caller lo monta donde quiera
// (p. ej. bajo /admin) y le cuelga su auth middleware por delante.
func Router(deps Deps) chi.Router {
	rc := &realmController{realms: deps.Realms}
	pc := &providerController{manager: deps.Manager}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/realms", func(r chi.Router) {
		r.Get("/", rc.list)
		r.Post("/", rc.create)
		r.Route("/{realm}", func(r chi.Router) {
			r.Get("/", rc.get)
			r.Put("/", rc.update)
			r.Delete("/", rc.delete)

			r.Route("/providers", func(r chi.Router) {
				r.Get("/", pc.list)
				r.Post("/", pc.create)
				r.Route("/{provider}", func(r chi.Router) {
					r.Get("/", pc.get)
					r.Put("/", pc.update)
					r.Delete("/", pc.delete)
					r.Post("/register", pc.register)
					r.Post("/unregister", pc.unregister)
					r.Get("/status", pc.status)
				})
			})
		})
	})

	return r
}

func realmParam(r *http.Request) string    { return chi.URLParam(r, "realm") }
func providerParam(r *http.Request) string { return chi.URLParam(r, "provider") }
