package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/easelapp/easel-api/internal/api"
	apiMiddleware "github.com/easelapp/easel-api/internal/api/middleware"
)

// setupRouter creates and configures the application router with all
// routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	sessionHandler := api.NewSessionHandler(app.session, app.settings, app.logger)
	jobsHandler := api.NewJobsHandler(app.session, app.logger)
	controlHandler := api.NewControlHandler(app.session, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		// Dispatch endpoints
		r.Post("/generate", sessionHandler.Generate)
		r.Post("/upscale", sessionHandler.Upscale)
		r.Post("/live/generate", sessionHandler.Live)
		r.Post("/live/apply", sessionHandler.ApplyLive)
		r.Post("/apply", sessionHandler.Apply)
		r.Post("/cancel", sessionHandler.Cancel)

		// Session state
		r.Put("/workspace", sessionHandler.SetWorkspace)
		r.Put("/settings", sessionHandler.UpdateSetting)
		r.Get("/status", sessionHandler.Status)

		// Job history
		r.Get("/jobs", jobsHandler.List)
		r.Post("/jobs/{id}/select", jobsHandler.SelectResult)
		r.Delete("/jobs/selection", jobsHandler.Deselect)

		// Control layers
		r.Get("/control-layers", controlHandler.List)
		r.Post("/control-layers", controlHandler.Create)
		r.Patch("/control-layers/{index}", controlHandler.Update)
		r.Delete("/control-layers/{index}", controlHandler.Delete)
		r.Post("/control-layers/{index}/generate", controlHandler.GenerateImage)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
