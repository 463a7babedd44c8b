package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/arena-server/internal/engine"
	"github.com/DoyleJ11/arena-server/internal/hub"
	"github.com/DoyleJ11/arena-server/internal/lobby"
)

type statsResponse struct {
	Sessions         int      `json:"sessions"`
	Queued           []string `json:"queued"`
	InBattle         int      `json:"in_battle"`
	BattlesRunning   int64    `json:"battles_running"`
	BattlesCompleted int64    `json:"battles_completed"`
	BattlesAborted   int64    `json:"battles_aborted"`
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func ListArchetypes(table *engine.Archetypes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, table.List())
	}
}

func Stats(lb *lobby.Lobby, h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := lb.State(r.Context())
		if err != nil {
			http.Error(w, "lobby unavailable", http.StatusServiceUnavailable)
			return
		}
		hs := h.Stats()
		writeJSON(w, http.StatusOK, statsResponse{
			Sessions:         v.NumClients,
			Queued:           v.Queued,
			InBattle:         v.InBattle,
			BattlesRunning:   hs.Running,
			BattlesCompleted: hs.Completed,
			BattlesAborted:   hs.Aborted,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
