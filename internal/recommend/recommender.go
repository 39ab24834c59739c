// Package recommend implements card recommendation strategies for cubes.
//
// Every strategy honors the same lifecycle: Fit on a corpus of cubes, then
// Recommend against a target cube, with Save/Load round-tripping the trained
// state. Strategies are capability implementations of the Recommender
// interface; each owns its state shape entirely.
package recommend

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cubeforge/cube-advisor/internal/cubecobra"
)

// Recommendation is a single ranked suggestion.
type Recommendation struct {
	// CardKey is the card's correlation key (oracle id or name).
	CardKey string `json:"card_id"`

	// Name is the human-readable card name.
	Name string `json:"card_name"`

	// Score is the recommendation strength in [0, 1].
	Score float64 `json:"score"`

	// Reason explains the recommendation, e.g. "appears in 12 of 20
	// similar cubes".
	Reason string `json:"reason"`
}

// CardInfo carries the card attributes filters evaluate against.
type CardInfo struct {
	Name          string
	TypeLine      string
	ColorIdentity []string
}

// CardInfoLookup resolves a card key to its attributes. The second return
// is false when the key is unknown. Implementations are expected to be
// in-memory lookups (the attribute catalog); recommenders never call
// upstream providers.
type CardInfoLookup func(cardKey string) (CardInfo, bool)

// Recommender is the uniform training/inference contract.
//
// The zero state is unfitted: only Fit (or Load) is valid. Fit may be called
// again at any time to retrain in place, discarding prior state. Fitting an
// empty corpus succeeds and yields no recommendations later.
type Recommender interface {
	// Fit trains the strategy on the corpus.
	Fit(cubes []*cubecobra.Cube) error

	// Recommend returns up to count suggestions for the target cube,
	// ordered by descending score with deterministic tie-breaking.
	Recommend(target *cubecobra.Cube, count int, filters Filters) ([]Recommendation, error)

	// Save serializes the full trained state as one opaque unit.
	Save(w io.Writer) error

	// Load restores state serialized by Save. Loading state produced by a
	// different strategy fails.
	Load(r io.Reader) error

	// Algorithm returns the strategy's stable type identifier.
	Algorithm() string
}

// NotFittedError indicates an inference call before Fit. A programming
// error; not retryable.
type NotFittedError struct {
	Algorithm string
}

// Error implements the error interface for NotFittedError.
func (e *NotFittedError) Error() string {
	return fmt.Sprintf("%s recommender has not been fitted: call Fit before Recommend", e.Algorithm)
}

// IsNotFitted returns true if the error is a NotFittedError.
func IsNotFitted(err error) bool {
	_, ok := err.(*NotFittedError)
	return ok
}

// InvalidArgumentError rejects a request before any work is done.
type InvalidArgumentError struct {
	Reason string
}

// Error implements the error interface for InvalidArgumentError.
func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument: %s", e.Reason)
}

// IsInvalidArgument returns true if the error is an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	_, ok := err.(*InvalidArgumentError)
	return ok
}

// SaveFile writes the recommender's state to path atomically.
func SaveFile(r Recommender, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".model-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if err := r.Save(tmpFile); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to serialize model: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename model file: %w", err)
	}
	return nil
}

// LoadFile restores the recommender's state from path.
func LoadFile(r Recommender, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open model file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := r.Load(file); err != nil {
		return fmt.Errorf("failed to load model from %s: %w", path, err)
	}
	return nil
}

// AlgorithmInfo describes a registered recommendation strategy.
type AlgorithmInfo struct {
	Type          string         `json:"type"`
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	DefaultConfig map[string]any `json:"default_config"`
	IsDefault     bool           `json:"is_default"`
}

// Algorithms lists the available strategies with their default
// configurations. Collaborative filtering is the default.
func Algorithms() []AlgorithmInfo {
	return []AlgorithmInfo{
		{
			Type:        AlgorithmCollaborative,
			Name:        "Cube-Based Collaborative Filtering",
			Description: "Finds cubes similar to the target by card overlap and recommends cards those cubes run.",
			DefaultConfig: map[string]any{
				"neighborhood_size": DefaultNeighborhoodSize,
				"min_similarity":    0.0,
				"similarity_metric": "jaccard",
			},
			IsDefault: true,
		},
		{
			Type:        AlgorithmCooccurrence,
			Name:        "Card Co-occurrence",
			Description: "Recommends cards that frequently appear alongside the target cube's cards across the corpus.",
			DefaultConfig: map[string]any{
				"similarity_metric": "cosine",
			},
		},
	}
}

// New constructs a registered strategy by type identifier.
func New(algorithm string, lookup CardInfoLookup) (Recommender, error) {
	switch algorithm {
	case AlgorithmCollaborative, "":
		cfg := DefaultCollaborativeConfig()
		cfg.Lookup = lookup
		return NewCollaborative(cfg), nil
	case AlgorithmCooccurrence:
		cfg := DefaultCooccurrenceConfig()
		cfg.Lookup = lookup
		return NewCooccurrence(cfg), nil
	default:
		return nil, &InvalidArgumentError{Reason: fmt.Sprintf("unknown algorithm %q", algorithm)}
	}
}
