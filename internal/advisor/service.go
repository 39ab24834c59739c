// Package advisor wires the card catalog, the cube cache, and the
// recommendation strategies into one service the API layer calls.
package advisor

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/cubeforge/cube-advisor/internal/catalog"
	"github.com/cubeforge/cube-advisor/internal/cube"
	"github.com/cubeforge/cube-advisor/internal/cubecobra"
	"github.com/cubeforge/cube-advisor/internal/recommend"
)

// Options configures the advisor service.
type Options struct {
	// DefaultAlgorithm is used when a request names none.
	DefaultAlgorithm string

	// DefaultCount is the number of suggestions when a request names none.
	DefaultCount int

	// NeighborhoodSize and MinSimilarity tune the collaborative strategy.
	NeighborhoodSize int
	MinSimilarity    float64

	// ModelFile, when set, is where the default strategy's trained state is
	// persisted between runs.
	ModelFile string
}

// Service coordinates recommendations over the cached cube corpus.
//
// Strategies are created lazily per algorithm and fitted on the full set of
// cached cubes. A fitted model is reused across requests until Refresh, so
// adding cubes to the cache requires a Refresh before they influence results.
type Service struct {
	catalog *catalog.Catalog
	cache   *cube.Cache
	opts    Options

	mu     sync.Mutex
	recs   map[string]recommend.Recommender
	fitted map[string]bool
}

// New creates an advisor service.
func New(cat *catalog.Catalog, cache *cube.Cache, opts Options) *Service {
	if opts.DefaultAlgorithm == "" {
		opts.DefaultAlgorithm = recommend.AlgorithmCollaborative
	}
	if opts.DefaultCount <= 0 {
		opts.DefaultCount = 10
	}

	return &Service{
		catalog: cat,
		cache:   cache,
		opts:    opts,
		recs:    make(map[string]recommend.Recommender),
		fitted:  make(map[string]bool),
	}
}

// Request describes one recommendation call.
type Request struct {
	CubeID    string            `json:"cube_id"`
	Count     int               `json:"num_recommendations"`
	Algorithm string            `json:"algorithm,omitempty"`
	Filters   recommend.Filters `json:"filters,omitempty"`
}

// Result is the response to a recommendation call.
type Result struct {
	CubeID          string                     `json:"cube_id"`
	CubeName        string                     `json:"cube_name"`
	Algorithm       string                     `json:"algorithm"`
	CorpusSize      int                        `json:"corpus_size"`
	Recommendations []recommend.Recommendation `json:"recommendations"`
}

// Recommend resolves the target cube through the cache, ensures the strategy
// is fitted, and returns ranked suggestions.
func (s *Service) Recommend(ctx context.Context, req Request) (*Result, error) {
	if req.CubeID == "" {
		return nil, &recommend.InvalidArgumentError{Reason: "cube_id is required"}
	}
	if req.Count <= 0 {
		req.Count = s.opts.DefaultCount
	}
	if req.Algorithm == "" {
		req.Algorithm = s.opts.DefaultAlgorithm
	}

	target, err := s.cache.Get(ctx, req.CubeID)
	if err != nil {
		return nil, err
	}

	rec, corpusSize, err := s.ensureFitted(ctx, req.Algorithm)
	if err != nil {
		return nil, err
	}

	recommendations, err := rec.Recommend(target, req.Count, req.Filters)
	if err != nil {
		return nil, err
	}

	return &Result{
		CubeID:          target.ID,
		CubeName:        target.Name,
		Algorithm:       rec.Algorithm(),
		CorpusSize:      corpusSize,
		Recommendations: recommendations,
	}, nil
}

// ensureFitted returns a fitted recommender for the algorithm, training it on
// the cached corpus on first use.
func (s *Service) ensureFitted(ctx context.Context, algorithm string) (recommend.Recommender, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.recommender(algorithm)
	if err != nil {
		return nil, 0, err
	}

	corpus, err := s.cache.Corpus(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load cube corpus: %w", err)
	}

	if !s.fitted[rec.Algorithm()] {
		if err := rec.Fit(corpus); err != nil {
			return nil, 0, err
		}
		s.fitted[rec.Algorithm()] = true
		log.Printf("[Advisor] Fitted %s on %d cubes", rec.Algorithm(), len(corpus))
	}

	return rec, len(corpus), nil
}

// recommender returns the cached strategy instance, creating it on first use.
// Caller holds the lock.
func (s *Service) recommender(algorithm string) (recommend.Recommender, error) {
	if algorithm == "" {
		algorithm = s.opts.DefaultAlgorithm
	}
	if rec, ok := s.recs[algorithm]; ok {
		return rec, nil
	}

	var rec recommend.Recommender
	switch algorithm {
	case recommend.AlgorithmCollaborative:
		cfg := recommend.DefaultCollaborativeConfig()
		if s.opts.NeighborhoodSize > 0 {
			cfg.NeighborhoodSize = s.opts.NeighborhoodSize
		}
		cfg.MinSimilarity = s.opts.MinSimilarity
		cfg.Lookup = s.CardInfo
		rec = recommend.NewCollaborative(cfg)
	default:
		var err error
		rec, err = recommend.New(algorithm, s.CardInfo)
		if err != nil {
			return nil, err
		}
	}

	s.recs[algorithm] = rec
	return rec, nil
}

// Refresh refits every instantiated strategy on the current cached corpus.
// Call after adding or invalidating cubes.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	corpus, err := s.cache.Corpus(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load cube corpus: %w", err)
	}

	for algorithm, rec := range s.recs {
		if err := rec.Fit(corpus); err != nil {
			return 0, fmt.Errorf("failed to refit %s: %w", algorithm, err)
		}
		s.fitted[algorithm] = true
	}

	log.Printf("[Advisor] Refitted %d strategies on %d cubes", len(s.recs), len(corpus))
	return len(corpus), nil
}

// CardInfo resolves a card key to catalog attributes, trying oracle id first
// and falling back to name.
func (s *Service) CardInfo(cardKey string) (recommend.CardInfo, bool) {
	if cards, err := s.catalog.GetByOracleID(cardKey); err == nil && len(cards) > 0 {
		card := cards[0]
		return recommend.CardInfo{
			Name:          card.Name,
			TypeLine:      card.TypeLine,
			ColorIdentity: card.ColorIdentity,
		}, true
	}
	if card, err := s.catalog.GetByName(cardKey); err == nil {
		return recommend.CardInfo{
			Name:          card.Name,
			TypeLine:      card.TypeLine,
			ColorIdentity: card.ColorIdentity,
		}, true
	}
	return recommend.CardInfo{}, false
}

// SaveModel persists the default strategy's trained state to the configured
// model file. No-op when no file is configured or the strategy is unfitted.
func (s *Service) SaveModel() error {
	if s.opts.ModelFile == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[s.opts.DefaultAlgorithm]
	if !ok || !s.fitted[s.opts.DefaultAlgorithm] {
		return nil
	}

	if err := recommend.SaveFile(rec, s.opts.ModelFile); err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	log.Printf("[Advisor] Saved %s model to %s", rec.Algorithm(), s.opts.ModelFile)
	return nil
}

// LoadModel restores the default strategy's trained state from the configured
// model file. A missing file is not an error; a corrupt one is logged and
// ignored so the service falls back to fitting from the cache.
func (s *Service) LoadModel() error {
	if s.opts.ModelFile == "" {
		return nil
	}
	if _, err := os.Stat(s.opts.ModelFile); os.IsNotExist(err) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.recommender(s.opts.DefaultAlgorithm)
	if err != nil {
		return err
	}

	if err := recommend.LoadFile(rec, s.opts.ModelFile); err != nil {
		log.Printf("[Advisor] Ignoring unreadable model file %s: %v", s.opts.ModelFile, err)
		return nil
	}

	s.fitted[rec.Algorithm()] = true
	log.Printf("[Advisor] Loaded %s model from %s", rec.Algorithm(), s.opts.ModelFile)
	return nil
}

// Algorithms lists the available strategies.
func (s *Service) Algorithms() []recommend.AlgorithmInfo {
	return recommend.Algorithms()
}

// Cache exposes the cube cache for handlers that manage cached cubes.
func (s *Service) Cache() *cube.Cache {
	return s.cache
}

// Catalog exposes the card catalog for card lookup handlers.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// ResolveCube fetches a cube by id through the cache.
func (s *Service) ResolveCube(ctx context.Context, cubeID string) (*cubecobra.Cube, error) {
	return s.cache.Get(ctx, cubeID)
}
