package http

import (
	"net/http"
	"time"

	httpmw "github.com/1f916-ai/chat-service/internal/transport/http/middleware"
	"github.com/1f916-ai/chat-service/internal/transport/ws"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(h *Handler, wsServer *ws.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(httpmw.LoggingMiddleware)

	// WS endpoint: sessions carry their own identity handshake
	if wsServer != nil {
		r.Get("/ws/rooms/{id}", wsServer.HandleWS)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.AuthMiddleware)
		pr.Use(chimw.Timeout(30 * time.Second))

		pr.Route("/rooms", func(rm chi.Router) {
			rm.Post("/join", h.JoinRoom)

			rm.Route("/{id}", func(rr chi.Router) {
				rr.Get("/", h.GetRoom)
				rr.Get("/messages", h.GetMessages)
				rr.Post("/messages", h.PostMessage)
				rr.Get("/history", h.GetHistory)
			})
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}
