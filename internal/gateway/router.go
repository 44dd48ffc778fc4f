package gateway

import (
	"net/http"

	"go.uber.org/zap"
)

// Router wraps the standard library mux. The service exposes two routes,
// a third-party router would buy nothing here.
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

// NewRouter creates the router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

// Handle registers a handler function.
func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterWebhookRoutes wires the chat gateway webhook and the health probe.
func (r *Router) RegisterWebhookRoutes(h *WebhookHandler) {
	r.Handle("/webhook/chat", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.HandleWebhook(w, req)
	})

	r.Handle("/health", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.HandleHealth(w, req)
	})
}
