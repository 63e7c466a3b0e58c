/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /health               Liveness
  /metrics              Prometheus (when enabled)
  /api/pin/check        Login
  /api/child/*          Child views (session required)
  /api/admin/*          Admin views (session + admin role)
  /api/push/*           Push subscriptions
  /*                    Static files (frontend)

STATIC FILE SERVING:
  Serves the built frontend from Options.StaticDir when it exists.
  Unknown paths fall back to index.html for client-side routing.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Session checks
  - cli/serve.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options controls the parts of the router that vary by deployment.
type Options struct {
	AllowedOrigins []string
	StaticDir      string
	Metrics        bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/pin/check", h.CheckPin)

		// Push routes
		r.Route("/push", func(r chi.Router) {
			r.Get("/vapid-public-key", h.GetVAPIDPublicKey)
			r.With(h.requireSession).Post("/subscribe", h.Subscribe)
			r.With(h.requireSession).Post("/unsubscribe", h.Unsubscribe)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.requireSession)

			// Child routes
			r.Route("/child", func(r chi.Router) {
				r.Get("/{childId}/tasks", h.ListChildTasks)
				r.Get("/{childId}/points", h.GetPoints)
				r.Get("/{childId}/history", h.GetHistory)
				r.Post("/tasks/{id}/complete", h.CompleteTask)
			})

			// Admin routes
			r.Route("/admin", func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/children", h.ListChildren)
				r.Get("/tasks", h.ListTasks)
				r.Post("/tasks", h.CreateTask)
				r.Delete("/tasks/{id}", h.DeleteTask)
			})
		})
	})

	mountStatic(r, opts.StaticDir)
	return r
}

func mountStatic(r chi.Router, staticDir string) {
	if staticDir == "" {
		return
	}
	if _, err := os.Stat(staticDir); os.IsNotExist(err) {
		// Try relative to executable
		exe, _ := os.Executable()
		staticDir = filepath.Join(filepath.Dir(exe), "web", "dist")
	}
	if _, err := os.Stat(staticDir); err != nil {
		return
	}

	fileServer := http.FileServer(http.Dir(staticDir))
	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		fullPath := filepath.Join(staticDir, filepath.Clean("/"+r.URL.Path))

		// SPA routing: serve index.html
		if _, err := os.Stat(fullPath); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}
