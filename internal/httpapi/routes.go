package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DoyleJ11/arena-server/internal/engine"
	"github.com/DoyleJ11/arena-server/internal/hub"
	"github.com/DoyleJ11/arena-server/internal/lobby"
	"github.com/DoyleJ11/arena-server/internal/server"
	"github.com/DoyleJ11/arena-server/internal/ws"
)

type Deps struct {
	Server         *server.Server
	Lobby          *lobby.Lobby
	Hub            *hub.Hub
	Archetypes     *engine.Archetypes
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
	OriginPatterns []string
}

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(d.Logger.Named("http")))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/archetypes", ListArchetypes(d.Archetypes))
	r.Get("/stats", Stats(d.Lobby, d.Hub))
	r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/ws", ws.Handler(d.Server, d.OriginPatterns))
	return r
}
