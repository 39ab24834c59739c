// Package handlers implements the HTTP handlers for the API routes.
package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cubeforge/cube-advisor/internal/api/response"
	"github.com/cubeforge/cube-advisor/internal/catalog"
)

// CardHandler handles card catalog API requests.
type CardHandler struct {
	catalog *catalog.Catalog
}

// NewCardHandler creates a new CardHandler.
func NewCardHandler(cat *catalog.Catalog) *CardHandler {
	return &CardHandler{catalog: cat}
}

// SearchCards searches the catalog by name substring.
func (h *CardHandler) SearchCards(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limitStr := r.URL.Query().Get("limit")

	limit := 50
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	cards, err := h.catalog.Search(query, limit)
	if err != nil {
		response.InternalError(w, err)
		return
	}

	response.Success(w, cards)
}

// GetCard returns a card by Scryfall id or oracle id.
func (h *CardHandler) GetCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "cardID")
	if cardID == "" {
		response.BadRequest(w, errors.New("card ID is required"))
		return
	}

	card, err := h.catalog.GetByID(cardID)
	if errors.Is(err, catalog.ErrNotFound) {
		if printings, oracleErr := h.catalog.GetByOracleID(cardID); oracleErr == nil && len(printings) > 0 {
			card, err = printings[0], nil
		}
	}
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			response.NotFound(w, errors.New("card not found"))
			return
		}
		response.InternalError(w, err)
		return
	}

	response.Success(w, card)
}

// GetCardByName returns a card by exact name, case-insensitively.
func (h *CardHandler) GetCardByName(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	if name == "" {
		response.BadRequest(w, errors.New("card name is required"))
		return
	}

	card, err := h.catalog.GetByName(name)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			response.NotFound(w, errors.New("card not found"))
			return
		}
		response.InternalError(w, err)
		return
	}

	response.Success(w, card)
}

// GetDatasetStatus reports the loaded dataset's version token and size.
func (h *CardHandler) GetDatasetStatus(w http.ResponseWriter, _ *http.Request) {
	response.Success(w, map[string]interface{}{
		"version":    h.catalog.Version(),
		"card_count": h.catalog.Size(),
	})
}
