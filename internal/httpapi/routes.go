package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/foundry-planner/internal/client"
	"github.com/DoyleJ11/foundry-planner/internal/hub"
	"github.com/DoyleJ11/foundry-planner/internal/lobby"
	"github.com/DoyleJ11/foundry-planner/internal/store"
	"github.com/DoyleJ11/foundry-planner/internal/view"
	"github.com/DoyleJ11/foundry-planner/internal/ws"
)

type Deps struct {
	Hub     *hub.Hub
	Store   store.Backend
	Auth    Authenticator
	Metrics *Metrics
	// Limiter guards the document endpoints; nil disables rate limiting.
	Limiter        *IPRateLimiter
	Board          view.Config
	OriginPatterns []string
	AllowedOrigins []string
	Log            *zap.Logger
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	m := d.Metrics
	if m == nil {
		m = NewMetrics()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware(d.AllowedOrigins))

	r.Get("/healthz", Healthz)
	r.Method(http.MethodGet, "/metrics", m.Handler())
	r.Post("/sessions", CreateSession(d.Hub, log))
	r.Get("/ws", ws.Handler(d.Hub, ws.Options{
		OriginPatterns: d.OriginPatterns,
		Log:            log,
		OnPeer: func(role lobby.Role, delta int) {
			m.Peers.WithLabelValues(string(role)).Add(float64(delta))
		},
	}))

	r.Group(func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(RateLimitMiddleware(d.Limiter))
		}
		doc := ServeDocument(d.Store, m, log)
		r.Get(client.DocumentPath, doc)
		r.Get("/api/document", doc)
		r.HandleFunc(client.SavePath, SaveDocument(d.Store, d.Auth, m, log))
		r.Get("/render.svg", RenderBoard(d.Store, d.Board, view.FormatSVG, log))
		r.Get("/render.png", RenderBoard(d.Store, d.Board, view.FormatPNG, log))
	})

	return r
}
