package recommend

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/cubeforge/cube-advisor/internal/cubecobra"
)

// AlgorithmCooccurrence identifies the card co-occurrence strategy.
const AlgorithmCooccurrence = "card_cooccurrence"

// Similarity metrics supported by the co-occurrence strategy.
const (
	MetricCosine  = "cosine"
	MetricJaccard = "jaccard"
)

// CooccurrenceConfig tunes the card co-occurrence strategy.
type CooccurrenceConfig struct {
	// Metric selects how raw co-occurrence counts are normalized:
	// MetricCosine (count / sqrt(n_i * n_j)) or MetricJaccard
	// (count / (n_i + n_j - count)).
	Metric string

	// Lookup resolves card attributes for filters and display names.
	Lookup CardInfoLookup
}

// DefaultCooccurrenceConfig returns the stock tuning.
func DefaultCooccurrenceConfig() CooccurrenceConfig {
	return CooccurrenceConfig{Metric: MetricCosine}
}

// Cooccurrence recommends cards that frequently appear alongside the target
// cube's cards across the corpus. Item-based rather than cube-based: each
// candidate is scored by its average normalized co-occurrence with the
// target's cards, so it surfaces staples of the target's archetypes even
// when no single corpus cube resembles the target closely.
type Cooccurrence struct {
	config CooccurrenceConfig

	mu        sync.RWMutex
	fitted    bool
	cardCubes map[string]map[string]struct{}
	cardNames map[string]string
}

// NewCooccurrence creates an unfitted co-occurrence recommender.
func NewCooccurrence(config CooccurrenceConfig) *Cooccurrence {
	if config.Metric == "" {
		config.Metric = MetricCosine
	}
	return &Cooccurrence{config: config}
}

// Algorithm returns the strategy's type identifier.
func (r *Cooccurrence) Algorithm() string {
	return AlgorithmCooccurrence
}

// Fit builds the card → cubes incidence index, replacing any prior state.
func (r *Cooccurrence) Fit(cubes []*cubecobra.Cube) error {
	if r.config.Metric != MetricCosine && r.config.Metric != MetricJaccard {
		return &InvalidArgumentError{Reason: fmt.Sprintf("unsupported metric %q", r.config.Metric)}
	}

	cardCubes := make(map[string]map[string]struct{})
	cardNames := make(map[string]string)

	for _, cube := range cubes {
		for i := range cube.Cards {
			card := &cube.Cards[i]
			key := card.Key()
			if key == "" {
				continue
			}
			if cardCubes[key] == nil {
				cardCubes[key] = make(map[string]struct{})
			}
			cardCubes[key][cube.ID] = struct{}{}
			if card.Name != "" {
				cardNames[key] = card.Name
			}
		}
	}

	r.mu.Lock()
	r.cardCubes = cardCubes
	r.cardNames = cardNames
	r.fitted = true
	r.mu.Unlock()

	return nil
}

// cooccurrenceCount is the number of corpus cubes containing both cards.
func cooccurrenceCount(a, b map[string]struct{}) int {
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	count := 0
	for cubeID := range small {
		if _, ok := large[cubeID]; ok {
			count++
		}
	}
	return count
}

// similarity normalizes a co-occurrence count into [0, 1].
func (r *Cooccurrence) similarity(a, b map[string]struct{}) float64 {
	count := cooccurrenceCount(a, b)
	if count == 0 {
		return 0
	}

	switch r.config.Metric {
	case MetricJaccard:
		union := len(a) + len(b) - count
		if union == 0 {
			return 0
		}
		return float64(count) / float64(union)
	default: // MetricCosine
		return float64(count) / math.Sqrt(float64(len(a))*float64(len(b)))
	}
}

// Recommend returns up to count card suggestions for the target cube.
func (r *Cooccurrence) Recommend(target *cubecobra.Cube, count int, filters Filters) ([]Recommendation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.fitted {
		return nil, &NotFittedError{Algorithm: AlgorithmCooccurrence}
	}
	if count <= 0 {
		return nil, &InvalidArgumentError{Reason: fmt.Sprintf("count must be positive, got %d", count)}
	}
	if target == nil {
		return nil, &InvalidArgumentError{Reason: "target cube is required"}
	}
	if err := filters.Validate(); err != nil {
		return nil, err
	}

	targetKeys := target.CardKeys()
	if len(targetKeys) == 0 {
		return nil, nil
	}

	// Resolve target cards to their corpus incidence sets; cards the
	// corpus has never seen contribute nothing.
	targetSets := make(map[string]map[string]struct{}, len(targetKeys))
	for key := range targetKeys {
		if set, ok := r.cardCubes[key]; ok {
			targetSets[key] = set
		}
	}
	if len(targetSets) == 0 {
		return nil, nil
	}

	type scored struct {
		key      string
		score    float64
		overlaps int
	}
	var ranked []scored

	for candidate, candidateSet := range r.cardCubes {
		if _, inTarget := targetKeys[candidate]; inTarget {
			continue
		}
		if !filters.match(candidate, r.config.Lookup) {
			continue
		}

		total := 0.0
		overlaps := 0
		for _, targetSet := range targetSets {
			if sim := r.similarity(candidateSet, targetSet); sim > 0 {
				total += sim
				overlaps++
			}
		}
		if overlaps == 0 {
			continue
		}

		ranked = append(ranked, scored{
			key:      candidate,
			score:    total / float64(len(targetSets)),
			overlaps: overlaps,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].key < ranked[j].key
	})

	if len(ranked) > count {
		ranked = ranked[:count]
	}

	recommendations := make([]Recommendation, 0, len(ranked))
	for _, entry := range ranked {
		recommendations = append(recommendations, Recommendation{
			CardKey: entry.key,
			Name:    r.displayName(entry.key),
			Score:   entry.score,
			Reason: fmt.Sprintf("co-occurs with %d of %d cube cards",
				entry.overlaps, len(targetSets)),
		})
	}

	return recommendations, nil
}

// displayName resolves a human-readable name for a card key.
func (r *Cooccurrence) displayName(cardKey string) string {
	if r.config.Lookup != nil {
		if info, ok := r.config.Lookup(cardKey); ok && info.Name != "" {
			return info.Name
		}
	}
	if name, ok := r.cardNames[cardKey]; ok {
		return name
	}
	return cardKey
}

// cooccurrenceState is the serialized form of a fitted recommender.
type cooccurrenceState struct {
	Algorithm string              `json:"algorithm"`
	Fitted    bool                `json:"is_fitted"`
	Metric    string              `json:"metric"`
	CardCubes map[string][]string `json:"card_cubes"`
	CardNames map[string]string   `json:"card_names"`
}

// Save serializes the trained state as a single JSON document.
func (r *Cooccurrence) Save(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.fitted {
		return &NotFittedError{Algorithm: AlgorithmCooccurrence}
	}

	state := cooccurrenceState{
		Algorithm: AlgorithmCooccurrence,
		Fitted:    true,
		Metric:    r.config.Metric,
		CardCubes: make(map[string][]string, len(r.cardCubes)),
		CardNames: r.cardNames,
	}
	for key, cubes := range r.cardCubes {
		state.CardCubes[key] = sortedKeys(cubes)
	}

	if err := json.NewEncoder(w).Encode(&state); err != nil {
		return fmt.Errorf("failed to serialize model: %w", err)
	}
	return nil
}

// Load restores state produced by Save.
func (r *Cooccurrence) Load(src io.Reader) error {
	var state cooccurrenceState
	if err := json.NewDecoder(src).Decode(&state); err != nil {
		return fmt.Errorf("failed to deserialize model: %w", err)
	}

	if state.Algorithm != AlgorithmCooccurrence {
		return fmt.Errorf("model algorithm mismatch: have %q, want %q",
			state.Algorithm, AlgorithmCooccurrence)
	}
	if !state.Fitted {
		return fmt.Errorf("serialized model was not fitted")
	}

	cardCubes := make(map[string]map[string]struct{}, len(state.CardCubes))
	for key, cubes := range state.CardCubes {
		set := make(map[string]struct{}, len(cubes))
		for _, cubeID := range cubes {
			set[cubeID] = struct{}{}
		}
		cardCubes[key] = set
	}

	cardNames := state.CardNames
	if cardNames == nil {
		cardNames = make(map[string]string)
	}

	r.mu.Lock()
	if state.Metric != "" {
		r.config.Metric = state.Metric
	}
	r.cardCubes = cardCubes
	r.cardNames = cardNames
	r.fitted = true
	r.mu.Unlock()

	return nil
}
