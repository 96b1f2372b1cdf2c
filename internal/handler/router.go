// Package handler exposes the development backend over HTTP and WebSocket,
// speaking the same wire contract the production backend does.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/irdop/limschat/internal/service/ai"
	"github.com/irdop/limschat/internal/service/backend"
)

// NewRouter wires the chat endpoints to the storage and reply services.
func NewRouter(store *backend.Store, aiSvc *ai.Service, model string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-App-ID"},
		MaxAge:         300,
	}))

	h := New(store, aiSvc, model)

	r.Post("/v1/chat_context/get", h.handleContextGet)
	r.Post("/v1/message/get", h.handleMessageGet)
	r.Post("/v1/file/upload/opai", h.handleFileUpload)
	r.Post("/ws/v1/gen_ai/chat", h.handleChatSend)
	r.Get("/ws/v1/gen_ai/chat", h.handleChatSocket)

	return r
}
