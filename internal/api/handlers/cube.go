package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cubeforge/cube-advisor/internal/api/response"
	"github.com/cubeforge/cube-advisor/internal/cube"
	"github.com/cubeforge/cube-advisor/internal/cubecobra"
)

// CubeHandler handles cube cache API requests.
type CubeHandler struct {
	cache *cube.Cache
}

// NewCubeHandler creates a new CubeHandler.
func NewCubeHandler(cache *cube.Cache) *CubeHandler {
	return &CubeHandler{cache: cache}
}

// GetCube returns a cube by id, fetching it upstream on first access.
func (h *CubeHandler) GetCube(w http.ResponseWriter, r *http.Request) {
	cubeID := chi.URLParam(r, "cubeID")
	if cubeID == "" {
		response.BadRequest(w, errors.New("cube ID is required"))
		return
	}

	c, err := h.cache.Get(r.Context(), cubeID)
	if err != nil {
		writeCubeError(w, err)
		return
	}

	response.Success(w, c)
}

// HeadCube reports whether a cube is cached without triggering a fetch.
func (h *CubeHandler) HeadCube(w http.ResponseWriter, r *http.Request) {
	cubeID := chi.URLParam(r, "cubeID")
	if cubeID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	cached, err := h.cache.IsCached(r.Context(), cubeID)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !cached {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ListCubes lists the ids of all cached cubes.
func (h *CubeHandler) ListCubes(w http.ResponseWriter, r *http.Request) {
	ids, err := h.cache.CachedIDs(r.Context())
	if err != nil {
		response.InternalError(w, err)
		return
	}

	response.Success(w, map[string]interface{}{
		"cube_ids": ids,
		"count":    len(ids),
	})
}

// InvalidateCube removes a cube from the cache; the next fetch goes upstream.
func (h *CubeHandler) InvalidateCube(w http.ResponseWriter, r *http.Request) {
	cubeID := chi.URLParam(r, "cubeID")
	if cubeID == "" {
		response.BadRequest(w, errors.New("cube ID is required"))
		return
	}

	if err := h.cache.Invalidate(r.Context(), cubeID); err != nil {
		response.InternalError(w, err)
		return
	}

	response.NoContent(w)
}

// writeCubeError maps cube fetch failures onto HTTP statuses: a cube missing
// upstream is the caller's 404, an unreachable upstream is a 502.
func writeCubeError(w http.ResponseWriter, err error) {
	switch {
	case cubecobra.IsNotFound(err):
		response.NotFound(w, err)
	case cubecobra.IsUnavailable(err):
		response.BadGateway(w, err)
	default:
		response.InternalError(w, err)
	}
}
