package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cubeforge/cube-advisor/internal/api/handlers"
	"github.com/cubeforge/cube-advisor/internal/api/response"
	"github.com/cubeforge/cube-advisor/internal/version"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint (no versioning)
	s.router.Get("/health", s.healthCheck)

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Card catalog routes
		cardHandler := handlers.NewCardHandler(s.service.Catalog())
		r.Route("/cards", func(r chi.Router) {
			r.Get("/", cardHandler.SearchCards)
			r.Get("/dataset", cardHandler.GetDatasetStatus)
			r.Get("/{cardID}", cardHandler.GetCard)
			r.Get("/name/{name}", cardHandler.GetCardByName)
		})

		// Cube cache routes
		cubeHandler := handlers.NewCubeHandler(s.service.Cache())
		r.Route("/cubes", func(r chi.Router) {
			r.Get("/", cubeHandler.ListCubes)
			r.Get("/{cubeID}", cubeHandler.GetCube)
			r.Head("/{cubeID}", cubeHandler.HeadCube)
			r.Delete("/{cubeID}", cubeHandler.InvalidateCube)
		})

		// Recommendation routes
		recHandler := handlers.NewRecommendationHandler(s.service)
		r.Route("/recommendations", func(r chi.Router) {
			r.Post("/", recHandler.GetRecommendations)
			r.Get("/algorithms", recHandler.GetAlgorithms)
			r.Post("/refresh", recHandler.Refresh)
		})
	})
}

// healthCheck returns server health status.
func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "cube-advisor-api",
		"version": version.GetVersion(),
	})
}
