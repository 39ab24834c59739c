package cubecobra

import (
	"fmt"

	"github.com/cubeforge/cube-advisor/internal/cardkey"
)

// Cube represents a CubeCobra cube document.
type Cube struct {
	// Core identifiers
	ID   string `json:"id"`
	Name string `json:"name"`

	// Cube metadata
	Owner       string `json:"owner,omitempty"`
	Description string `json:"description,omitempty"`
	CardCount   int    `json:"card_count"`

	// Categories and tags
	CategoryOverride string   `json:"category_override,omitempty"`
	CategoryPrefixes []string `json:"category_prefixes,omitempty"`
	Tags             []string `json:"tags,omitempty"`

	// Card list
	Cards []CubeCard `json:"cards"`

	// Visibility
	IsListed  bool `json:"is_listed"`
	IsPrivate bool `json:"is_private"`

	DateUpdated string `json:"date_updated,omitempty"`
}

// CubeCard is the card stub CubeCobra embeds in a cube document. Only the
// identity fields matter to the recommender; display fields ride along.
type CubeCard struct {
	ID       string `json:"id,omitempty"`
	OracleID string `json:"oracle_id,omitempty"`
	Name     string `json:"name,omitempty"`
	TypeLine string `json:"type_line,omitempty"`
	CMC      float64 `json:"cmc,omitempty"`

	Colors        []string `json:"colors,omitempty"`
	ColorIdentity []string `json:"color_identity,omitempty"`
}

// Key returns the card's correlation key (oracle id preferred, name fallback).
func (c *CubeCard) Key() string {
	return cardkey.Derive(c.OracleID, c.Name)
}

// CardKeys returns the deduplicated set of card keys in the cube. Cards with
// no resolvable identity are skipped.
func (c *Cube) CardKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(c.Cards))
	for i := range c.Cards {
		if key := c.Cards[i].Key(); key != "" {
			keys[key] = struct{}{}
		}
	}
	return keys
}

// NotFoundError indicates the cube does not exist upstream. Terminal; callers
// should not retry.
type NotFoundError struct {
	CubeID string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cube not found: %s", e.CubeID)
}

// UnavailableError indicates the upstream could not be reached or answered
// with a server error. Retryable by the caller; cached data stays usable.
type UnavailableError struct {
	CubeID string
	Err    error
}

// Error implements the error interface for UnavailableError.
func (e *UnavailableError) Error() string {
	return fmt.Sprintf("cube %s unavailable: %v", e.CubeID, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsUnavailable returns true if the error is an UnavailableError.
func IsUnavailable(err error) bool {
	_, ok := err.(*UnavailableError)
	return ok
}
