package recommend

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/cubeforge/cube-advisor/internal/cubecobra"
)

// AlgorithmCollaborative identifies the cube-based collaborative filtering
// strategy.
const AlgorithmCollaborative = "cube_based_collaborative_filtering"

// DefaultNeighborhoodSize is the default number of similar cubes consulted
// per recommendation.
const DefaultNeighborhoodSize = 20

// CollaborativeConfig tunes the collaborative filtering strategy.
type CollaborativeConfig struct {
	// NeighborhoodSize is how many of the most similar cubes are consulted
	// (the K in top-K).
	NeighborhoodSize int

	// MinSimilarity drops corpus cubes below this Jaccard score from the
	// neighborhood. Range [0, 1].
	MinSimilarity float64

	// Lookup resolves card attributes for filters and display names.
	// Optional; without it filters pass vacuously and names fall back to
	// whatever the corpus card stubs carried.
	Lookup CardInfoLookup
}

// DefaultCollaborativeConfig returns the stock tuning.
func DefaultCollaborativeConfig() CollaborativeConfig {
	return CollaborativeConfig{
		NeighborhoodSize: DefaultNeighborhoodSize,
		MinSimilarity:    0,
	}
}

// Collaborative recommends cards from cubes similar to the target.
//
// Fit builds two indices: cube id → card-key set, and card key → set of cube
// ids containing it. Recommend ranks corpus cubes by Jaccard similarity to
// the target's card-key set, takes the top K, and scores each candidate card
// by the similarity-weighted fraction of neighbors running it.
type Collaborative struct {
	config CollaborativeConfig

	mu        sync.RWMutex
	fitted    bool
	cubeCards map[string]map[string]struct{}
	cardCubes map[string]map[string]struct{}
	cardNames map[string]string
}

// NewCollaborative creates an unfitted collaborative filtering recommender.
func NewCollaborative(config CollaborativeConfig) *Collaborative {
	if config.NeighborhoodSize <= 0 {
		config.NeighborhoodSize = DefaultNeighborhoodSize
	}

	return &Collaborative{config: config}
}

// Algorithm returns the strategy's type identifier.
func (r *Collaborative) Algorithm() string {
	return AlgorithmCollaborative
}

// Fit trains on the corpus, replacing any prior state. An empty corpus fits
// successfully; cubes with no resolvable card keys still participate with an
// empty set.
func (r *Collaborative) Fit(cubes []*cubecobra.Cube) error {
	cubeCards := make(map[string]map[string]struct{}, len(cubes))
	cardCubes := make(map[string]map[string]struct{})
	cardNames := make(map[string]string)

	for _, cube := range cubes {
		keys := cube.CardKeys()
		cubeCards[cube.ID] = keys

		for i := range cube.Cards {
			card := &cube.Cards[i]
			if key := card.Key(); key != "" && card.Name != "" {
				cardNames[key] = card.Name
			}
		}

		for key := range keys {
			if cardCubes[key] == nil {
				cardCubes[key] = make(map[string]struct{})
			}
			cardCubes[key][cube.ID] = struct{}{}
		}
	}

	r.mu.Lock()
	r.cubeCards = cubeCards
	r.cardCubes = cardCubes
	r.cardNames = cardNames
	r.fitted = true
	r.mu.Unlock()

	return nil
}

// jaccard computes |a ∩ b| / |a ∪ b|, defined as 0 when both sets are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	intersection := 0
	for key := range small {
		if _, ok := large[key]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// neighbor pairs a corpus cube with its similarity to the target.
type neighbor struct {
	cubeID     string
	similarity float64
}

// findNeighbors ranks corpus cubes by similarity to the target set and
// returns the top K. The target cube itself is excluded by id. Ordering is
// deterministic: similarity descending, cube id ascending on ties.
func (r *Collaborative) findNeighbors(targetID string, targetKeys map[string]struct{}) []neighbor {
	neighbors := make([]neighbor, 0, len(r.cubeCards))

	for cubeID, keys := range r.cubeCards {
		if cubeID == targetID {
			continue
		}

		sim := jaccard(targetKeys, keys)
		if sim <= 0 || sim < r.config.MinSimilarity {
			continue
		}
		neighbors = append(neighbors, neighbor{cubeID: cubeID, similarity: sim})
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].similarity != neighbors[j].similarity {
			return neighbors[i].similarity > neighbors[j].similarity
		}
		return neighbors[i].cubeID < neighbors[j].cubeID
	})

	if len(neighbors) > r.config.NeighborhoodSize {
		neighbors = neighbors[:r.config.NeighborhoodSize]
	}
	return neighbors
}

// Recommend returns up to count card suggestions for the target cube.
func (r *Collaborative) Recommend(target *cubecobra.Cube, count int, filters Filters) ([]Recommendation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.fitted {
		return nil, &NotFittedError{Algorithm: AlgorithmCollaborative}
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

	neighbors := r.findNeighbors(target.ID, targetKeys)
	if len(neighbors) == 0 {
		return nil, nil
	}

	totalSimilarity := 0.0
	for _, n := range neighbors {
		totalSimilarity += n.similarity
	}
	if totalSimilarity <= 0 {
		return nil, nil
	}

	// Candidates: cards the neighbors run and the target does not, with
	// filters applied before truncation so they reduce the pool rather
	// than hide already-selected results.
	scores := make(map[string]float64)
	appearances := make(map[string]int)

	for _, n := range neighbors {
		for key := range r.cubeCards[n.cubeID] {
			if _, inTarget := targetKeys[key]; inTarget {
				continue
			}
			if _, seen := scores[key]; !seen {
				if !filters.match(key, r.config.Lookup) {
					continue
				}
			}
			scores[key] += n.similarity
			appearances[key]++
		}
	}

	type scored struct {
		key   string
		score float64
	}
	ranked := make([]scored, 0, len(scores))
	for key, weight := range scores {
		ranked = append(ranked, scored{key: key, score: weight / totalSimilarity})
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
			Reason: fmt.Sprintf("appears in %d of %d similar cubes",
				appearances[entry.key], len(neighbors)),
		})
	}

	return recommendations, nil
}

// displayName resolves a human-readable name for a card key, preferring the
// attribute lookup over names collected from corpus card stubs.
func (r *Collaborative) displayName(cardKey string) string {
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

// collaborativeState is the serialized form of a fitted recommender. Sets
// are stored as sorted slices so Save output is stable.
type collaborativeState struct {
	Algorithm string              `json:"algorithm"`
	Fitted    bool                `json:"is_fitted"`
	CubeCards map[string][]string `json:"cube_cards"`
	CardNames map[string]string   `json:"card_names"`
}

// Save serializes the trained state as a single JSON document.
func (r *Collaborative) Save(w io.Writer) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.fitted {
		return &NotFittedError{Algorithm: AlgorithmCollaborative}
	}

	state := collaborativeState{
		Algorithm: AlgorithmCollaborative,
		Fitted:    true,
		CubeCards: make(map[string][]string, len(r.cubeCards)),
		CardNames: r.cardNames,
	}
	for cubeID, keys := range r.cubeCards {
		state.CubeCards[cubeID] = sortedKeys(keys)
	}

	if err := json.NewEncoder(w).Encode(&state); err != nil {
		return fmt.Errorf("failed to serialize model: %w", err)
	}
	return nil
}

// Load restores state produced by Save. The card→cubes index is rebuilt
// rather than stored; it is fully derivable from the cube→cards index.
func (r *Collaborative) Load(src io.Reader) error {
	var state collaborativeState
	if err := json.NewDecoder(src).Decode(&state); err != nil {
		return fmt.Errorf("failed to deserialize model: %w", err)
	}

	if state.Algorithm != AlgorithmCollaborative {
		return fmt.Errorf("model algorithm mismatch: have %q, want %q",
			state.Algorithm, AlgorithmCollaborative)
	}
	if !state.Fitted {
		return fmt.Errorf("serialized model was not fitted")
	}

	cubeCards := make(map[string]map[string]struct{}, len(state.CubeCards))
	cardCubes := make(map[string]map[string]struct{})
	for cubeID, keys := range state.CubeCards {
		set := make(map[string]struct{}, len(keys))
		for _, key := range keys {
			set[key] = struct{}{}
			if cardCubes[key] == nil {
				cardCubes[key] = make(map[string]struct{})
			}
			cardCubes[key][cubeID] = struct{}{}
		}
		cubeCards[cubeID] = set
	}

	cardNames := state.CardNames
	if cardNames == nil {
		cardNames = make(map[string]string)
	}

	r.mu.Lock()
	r.cubeCards = cubeCards
	r.cardCubes = cardCubes
	r.cardNames = cardNames
	r.fitted = true
	r.mu.Unlock()

	return nil
}

// sortedKeys flattens a set into a sorted slice.
func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
