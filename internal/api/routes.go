package api

import (
	"net/http"
	"net/http/pprof"

	"arbitrage/internal/api/handlers"
	"arbitrage/internal/api/middleware"
	"arbitrage/internal/websocket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies wires the internal HTTP surface to the running pipeline.
type Dependencies struct {
	Observatory *handlers.ObservatoryHandler
	Hub         *websocket.Hub

	OperatorUser     string
	OperatorPassHash string
}

// SetupRoutes mounts the observatory's internal HTTP surface: health,
// readiness, Prometheus metrics, read-only stats/signal-history endpoints,
// the dashboard WebSocket hub, and (operator-auth protected) pprof
// profiling, generalized from the teacher's SetupRoutes.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	if deps != nil && deps.Observatory != nil {
		router.HandleFunc("/healthz", deps.Observatory.Healthz).Methods("GET")
		router.HandleFunc("/readyz", deps.Observatory.Readyz).Methods("GET")

		api := router.PathPrefix("/api/v1").Subrouter()
		api.HandleFunc("/stats/{pair_id}/{symbol}", deps.Observatory.GetPairStats).Methods("GET")
		api.HandleFunc("/stats/{pair_id}/{symbol}/recent", deps.Observatory.GetRecentOutcomes).Methods("GET")
		api.HandleFunc("/signals/{symbol}", deps.Observatory.GetSignalsBySymbol).Methods("GET")
	}

	if deps != nil && deps.Hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		}).Methods("GET")
	}

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	debug := router.PathPrefix("/debug/pprof").Subrouter()
	if deps != nil {
		debug.Use(middleware.OperatorAuth(deps.OperatorUser, deps.OperatorPassHash))
	}
	debug.HandleFunc("/", pprof.Index)
	debug.HandleFunc("/cmdline", pprof.Cmdline)
	debug.HandleFunc("/profile", pprof.Profile)
	debug.HandleFunc("/symbol", pprof.Symbol)
	debug.HandleFunc("/trace", pprof.Trace)
	debug.HandleFunc("/heap", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("heap").ServeHTTP(w, r)
	})
	debug.HandleFunc("/goroutine", func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler("goroutine").ServeHTTP(w, r)
	})

	return router
}
