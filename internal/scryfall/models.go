package scryfall

import (
	"fmt"
	"time"
)

// Card represents a Magic card from the Scryfall Oracle Cards dataset.
// Raw carries the full provider record so attributes this struct does not
// model are never lost across a cache round trip.
type Card struct {
	// Core identifiers
	ID       string `json:"id"`
	OracleID string `json:"oracle_id"`
	Name     string `json:"name"`

	// Mana and casting
	ManaCost string  `json:"mana_cost,omitempty"`
	CMC      float64 `json:"cmc"`
	TypeLine string  `json:"type_line"`

	// Text and rules
	OracleText string `json:"oracle_text,omitempty"`
	Power      string `json:"power,omitempty"`
	Toughness  string `json:"toughness,omitempty"`
	Loyalty    string `json:"loyalty,omitempty"`

	// Colors and identity
	Colors        []string `json:"colors,omitempty"`
	ColorIdentity []string `json:"color_identity"`
	Keywords      []string `json:"keywords,omitempty"`

	// Print details
	SetCode string `json:"set"`
	SetName string `json:"set_name"`
	Rarity  string `json:"rarity"`

	// Legality and pricing
	Legalities map[string]string  `json:"legalities,omitempty"`
	Prices     map[string]*string `json:"prices,omitempty"`

	ScryfallURI string `json:"scryfall_uri,omitempty"`

	// Raw is the unparsed provider record, set when decoding a bulk
	// snapshot. Not re-serialized alongside the typed fields.
	Raw []byte `json:"-"`
}

// BulkDataList represents the list of bulk data files.
type BulkDataList struct {
	Object  string     `json:"object"`
	HasMore bool       `json:"has_more"`
	Data    []BulkData `json:"data"`
}

// BulkData represents a bulk data file download.
type BulkData struct {
	ID              string    `json:"id"`
	Object          string    `json:"object"`
	Type            string    `json:"type"`
	UpdatedAt       time.Time `json:"updated_at"`
	URI             string    `json:"uri"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Size            int       `json:"size"`
	DownloadURI     string    `json:"download_uri"`
	ContentType     string    `json:"content_type"`
	ContentEncoding string    `json:"content_encoding"`
}

// VersionToken returns the release marker used to decide whether a local
// snapshot of this bulk file is current.
func (b *BulkData) VersionToken() string {
	return b.UpdatedAt.UTC().Format(time.RFC3339)
}

// APIError represents an error response from the Scryfall API.
type APIError struct {
	Object  string `json:"object"`
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Details string `json:"details"`
}

// Error implements the error interface for APIError.
func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("Scryfall API error (HTTP %d): %s", e.Status, e.Details)
	}
	return fmt.Sprintf("Scryfall API error (HTTP %d): %s", e.Status, e.Code)
}

// NotFoundError represents a 404 error from the API.
type NotFoundError struct {
	URL string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.URL)
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
