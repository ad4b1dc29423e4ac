package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// Account routes
		r.Post("/register", apiHandler.RegisterHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Post("/logout", apiHandler.LogoutHandler)
		r.Get("/profiles", apiHandler.ListProfilesHandler)

		// Routes acting on the active user
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.SessionMiddleware)

			r.Get("/session", apiHandler.GetSessionHandler)
			r.Put("/data", apiHandler.ReplaceDataHandler)
			r.Put("/settings", apiHandler.UpdateSettingsHandler)
			r.Post("/settings/test", apiHandler.TestConnectionHandler)
			r.Put("/dark-mode", apiHandler.SetDarkModeHandler)
			r.Post("/tips", apiHandler.TipHandler)

			r.Post("/categories", apiHandler.CreateCategoryHandler)
			r.Route("/categories/{categoryID}", func(r chi.Router) {
				r.Delete("/", apiHandler.DeleteCategoryHandler)
				r.Post("/toggle", apiHandler.ToggleCategoryHandler)
				r.Post("/chapters", apiHandler.AddChaptersHandler)
				r.Delete("/chapters/{chapterID}", apiHandler.DeleteChapterHandler)
			})

			r.Delete("/active-chapter", apiHandler.ClearActiveChapterHandler)
			r.Route("/chapters/{chapterID}", func(r chi.Router) {
				r.Put("/active", apiHandler.SetActiveChapterHandler)
				r.Put("/prompt", apiHandler.UpdatePromptHandler)
				r.Post("/content", apiHandler.GenerateContentHandler)
				r.Post("/messages", apiHandler.SendMessageHandler)
				r.Get("/render", apiHandler.RenderChapterHandler)
			})
		})
	})

	return r
}
