/*
Package ops provides the secondary HTTP surface for operational visibility:
health and in-memory stats endpoints, served alongside the chat TCP
listener. There is no REST API for the chat protocol itself, which lives
entirely on the TCP listener.
*/
package ops

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"conchat/internal/app/chat"
	"conchat/internal/app/store"
	"conchat/internal/configs"
	"conchat/internal/pkg/logx"
	"conchat/internal/pkg/resp"
)

// statsResponse merges the in-memory Registry snapshot with the store's
// durable active-user count: one JSON body, two underlying sources.
type statsResponse struct {
	chat.Stats
	ActiveUsersLast24h int `json:"active_users_last_24h"`
}

// Router builds the chi.Router serving /healthz, /stats, and /rooms.
func Router(cfg *configs.AppConfig, st *store.Store, registry *chat.Registry) http.Handler {
	r := chi.NewRouter()

	corsOrigins := []string{"*"}
	if cfg.Environment != "development" {
		corsOrigins = nil
	}
	c := cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET"},
		MaxAge:         300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		resp.RespondSuccess(w, req, map[string]string{"status": "ok"})
	})

	r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
		active, err := st.ActiveUserCount("-24 hours")
		if err != nil {
			logx.Error(err, "failed to compute active user count")
			resp.RespondError(w, req, nil)
			return
		}

		resp.RespondSuccess(w, req, statsResponse{
			Stats:              registry.Stats(),
			ActiveUsersLast24h: active,
		})
	})

	r.Get("/rooms", func(w http.ResponseWriter, req *http.Request) {
		details, err := st.ListRoomsDetailed()
		if err != nil {
			logx.Error(err, "failed to list rooms")
			resp.RespondError(w, req, nil)
			return
		}
		resp.RespondSuccess(w, req, details)
	})

	return r
}
