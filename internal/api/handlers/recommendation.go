package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cubeforge/cube-advisor/internal/advisor"
	"github.com/cubeforge/cube-advisor/internal/api/response"
	"github.com/cubeforge/cube-advisor/internal/cubecobra"
	"github.com/cubeforge/cube-advisor/internal/recommend"
)

// RecommendationHandler handles recommendation API requests.
type RecommendationHandler struct {
	service *advisor.Service
}

// NewRecommendationHandler creates a new RecommendationHandler.
func NewRecommendationHandler(service *advisor.Service) *RecommendationHandler {
	return &RecommendationHandler{service: service}
}

// GetRecommendations returns ranked card suggestions for a cube.
func (h *RecommendationHandler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	var req advisor.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, errors.New("invalid request body"))
		return
	}

	result, err := h.service.Recommend(r.Context(), req)
	if err != nil {
		switch {
		case recommend.IsInvalidArgument(err):
			response.BadRequest(w, err)
		case cubecobra.IsNotFound(err):
			response.NotFound(w, err)
		case cubecobra.IsUnavailable(err):
			response.BadGateway(w, err)
		case recommend.IsNotFitted(err):
			response.Conflict(w, err)
		default:
			response.InternalError(w, err)
		}
		return
	}

	response.Success(w, result)
}

// GetAlgorithms lists the available recommendation strategies.
func (h *RecommendationHandler) GetAlgorithms(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, h.service.Algorithms())
}

// Refresh refits the recommendation models on the current cached corpus.
func (h *RecommendationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	corpusSize, err := h.service.Refresh(r.Context())
	if err != nil {
		response.InternalError(w, err)
		return
	}

	response.Success(w, map[string]interface{}{
		"corpus_size": corpusSize,
	})
}
