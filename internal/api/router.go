package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/micro-nova/laserguard/internal/auth"
)

// NewRouter creates and returns the main HTTP router.
func NewRouter(deps Deps, authSvc *auth.Service) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware)
	r.Use(middleware.CleanPath)

	deps.setDefaults()
	h := &Handlers{Deps: deps}

	r.Get("/ping", h.ping)

	r.Group(func(r chi.Router) {
		r.Use(authSvc.Middleware)

		r.Route("/wifi", func(r chi.Router) {
			r.Get("/access-points/scan", h.scanAccessPoints)
			r.Get("/access-points/credentials", h.getSavedCredentials)
			r.Post("/access-points/credentials/forget", h.forgetCredential)
			r.Post("/connect", h.connect)
			r.Get("/status", h.wifiStatus)
		})

		r.Route("/device", func(r chi.Router) {
			r.Get("/info", h.deviceInfo)
			r.Patch("/name", h.setDeviceName)
			r.Post("/restart", h.restart)
			r.Post("/reset", h.reset)
			r.Post("/backup", h.createBackup)
			r.Get("/backups", h.listBackups)
		})

		r.Get("/notification", getSettings(h.Notification))
		r.Put("/notification", putSettings(h.Notification))
		r.Get("/schedule", getSettings(h.Schedule))
		r.Put("/schedule", putSettings(h.Schedule))

		r.Get("/events", h.sseEvents)
	})

	return r
}

// corsMiddleware adds permissive CORS headers for local network access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pong"))
}
