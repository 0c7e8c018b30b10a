package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mediaDownloader/api/middleware"
)

type RouterConfig struct {
	Handler   *Handler
	Tokens    middleware.TokenParser
	Users     middleware.UserLookup
	StaticDir string
	Logger    *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handler
	admin := middleware.RequireAdmin(cfg.Users, cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.TraceID)
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(cfg.Tokens, cfg.Logger))

			r.Post("/downloads", h.SubmitDownloads)
			r.Get("/downloads", h.ListDownloads)
			r.With(admin).Get("/downloads/all", h.ListAllDownloads)
			r.Get("/downloads/{id}", h.GetDownload)
			r.Get("/downloads/{id}/status", h.DownloadStatus)
			r.Post("/downloads/{id}/cancel", h.CancelDownload)

			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Get("/users", h.ListUsers)
				r.Post("/users", h.CreateUser)
				r.Delete("/users/{id}", h.DeleteUser)
			})
		})
	})

	if cfg.StaticDir != "" {
		r.Get("/*", SPA(cfg.StaticDir))
	}

	return r
}
