package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pizza-nz/ticket-printer/internal/api"
	"github.com/pizza-nz/ticket-printer/internal/api/handler"
	"github.com/pizza-nz/ticket-printer/internal/config"
	"github.com/pizza-nz/ticket-printer/internal/middleware"
	"github.com/pizza-nz/ticket-printer/internal/websockets"
)

// Router handles HTTP routing
type Router struct {
	mux     chi.Router
	printer handler.TicketPrinter
	hub     *websockets.Hub
	cfg     *config.Config
	logger  *slog.Logger
}

// New creates a new router. hub may be nil when websocket events are
// disabled.
func New(printer handler.TicketPrinter, hub *websockets.Hub, cfg *config.Config, logger *slog.Logger) *Router {
	r := &Router{
		mux:     chi.NewRouter(),
		printer: printer,
		hub:     hub,
		cfg:     cfg,
		logger:  logger,
	}

	r.setupRoutes()

	return r
}

// ServeHTTP implements the http.Handler interface
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) setupRoutes() {
	r.mux.Use(chimw.RequestID)
	r.mux.Use(chimw.RealIP)
	r.mux.Use(middleware.Logger(r.logger))
	r.mux.Use(chimw.Recoverer)
	r.mux.Use(middleware.CORS(r.cfg.Server.AllowedOrigins))

	r.mux.Get("/healthz", handler.Health)

	if r.hub != nil {
		r.mux.Handle("/ws", handler.NewWebSocketHandler(r.hub, r.cfg.Server.AllowedOrigins))
	}

	r.mux.Group(func(g chi.Router) {
		g.Use(chimw.AllowContentType("application/json"))
		handler.NewTicketHandler(r.printer, r.logger).RegisterRoutes(g)
	})

	r.mux.NotFound(func(w http.ResponseWriter, req *http.Request) {
		api.RespondJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
}
