package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	GateEntry  http.HandlerFunc
	GateExit   http.HandlerFunc
	Payments   http.HandlerFunc
	FeePreview http.HandlerFunc
	Sessions   http.HandlerFunc
	Occupancy  http.HandlerFunc
	Login      http.HandlerFunc
	ForceExit  http.HandlerFunc
	ManualOpen http.HandlerFunc
	Evacuate   http.HandlerFunc
	BarrierWS  http.HandlerFunc
	Health     http.HandlerFunc

	// AdminAuth guards the administrative endpoints.
	AdminAuth func(http.Handler) http.Handler
}

// NewRouter registers endpoints.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	if routes.GateEntry != nil {
		mux.Handle("/gate/entry", method(http.MethodPost, routes.GateEntry))
	}
	if routes.GateExit != nil {
		mux.Handle("/gate/exit", method(http.MethodPost, routes.GateExit))
	}
	if routes.Payments != nil {
		mux.Handle("/payments", method(http.MethodPost, routes.Payments))
	}
	if routes.FeePreview != nil {
		mux.Handle("/payments/preview", method(http.MethodGet, routes.FeePreview))
	}
	if routes.Sessions != nil {
		mux.Handle("/sessions/active", method(http.MethodGet, routes.Sessions))
	}
	if routes.Occupancy != nil {
		mux.Handle("/occupancy", method(http.MethodGet, routes.Occupancy))
	}
	if routes.Login != nil {
		mux.Handle("/auth/login", method(http.MethodPost, routes.Login))
	}
	if routes.BarrierWS != nil {
		mux.Handle("/gate/ws", method(http.MethodGet, routes.BarrierWS))
	}
	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}

	admin := func(h http.HandlerFunc) http.Handler {
		guarded := http.Handler(h)
		if routes.AdminAuth != nil {
			guarded = routes.AdminAuth(guarded)
		}
		return guarded
	}
	if routes.ForceExit != nil {
		mux.Handle("/admin/force-exit", method(http.MethodPost, admin(routes.ForceExit).ServeHTTP))
	}
	if routes.ManualOpen != nil {
		mux.Handle("/admin/gate/open", method(http.MethodPost, admin(routes.ManualOpen).ServeHTTP))
	}
	if routes.Evacuate != nil {
		mux.Handle("/admin/evacuate", method(http.MethodPost, admin(routes.Evacuate).ServeHTTP))
	}

	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}
