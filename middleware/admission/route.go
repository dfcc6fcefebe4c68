package admission

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouteFunc devolve o template da rota ("/admin/users/{id}"), usado no lookup da política.
type RouteFunc func(r *http.Request) string

// ChiRoute usa o padrão casado pelo chi. O middleware precisa rodar depois do
// roteamento (r.With / r.Group); antes disso, ou fora do chi, cai no path cru,
// que em rota não registrada resolve para "default" de qualquer forma.
func ChiRoute(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// PathRoute usa o path cru (sem roteador).
func PathRoute(r *http.Request) string { return r.URL.Path }
