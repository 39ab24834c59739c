// Package cube caches CubeCobra cube documents: an in-memory map over a
// durable key→document store, with upstream fetch as the last resort. Once a
// cube is fetched it is cached until explicitly invalidated.
package cube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/cubeforge/cube-advisor/internal/cubecobra"
	"github.com/cubeforge/cube-advisor/internal/storage"
)

// Fetcher is the single upstream contract the cache depends on.
// *cubecobra.Client satisfies it.
type Fetcher interface {
	FetchCube(ctx context.Context, cubeID string) (*cubecobra.Cube, error)
}

// Cache serves cube documents by id. Lookup order: in-memory map, durable
// store, upstream fetch. Concurrent Gets for the same uncached id coalesce
// into one upstream fetch; Gets for different ids never block each other.
type Cache struct {
	store   storage.Store
	fetcher Fetcher
	group   singleflight.Group

	mu    sync.RWMutex
	cubes map[string]*cubecobra.Cube
}

// NewCache creates a cube cache over the given store and fetcher.
func NewCache(store storage.Store, fetcher Fetcher) *Cache {
	return &Cache{
		store:   store,
		fetcher: fetcher,
		cubes:   make(map[string]*cubecobra.Cube),
	}
}

// Get returns the cube for the given id, fetching and persisting it on first
// access. A cube missing upstream surfaces as *cubecobra.NotFoundError; an
// unreachable upstream as *cubecobra.UnavailableError.
func (c *Cache) Get(ctx context.Context, cubeID string) (*cubecobra.Cube, error) {
	if cubeID == "" {
		return nil, fmt.Errorf("cube id is required")
	}

	c.mu.RLock()
	cached, ok := c.cubes[cubeID]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	// Coalesce concurrent loads of the same id. The load runs outside the
	// map lock, so slow fetches for one id never stall other ids.
	result, err, _ := c.group.Do(cubeID, func() (interface{}, error) {
		return c.load(ctx, cubeID)
	})
	if err != nil {
		return nil, err
	}

	cube := result.(*cubecobra.Cube)

	c.mu.Lock()
	c.cubes[cubeID] = cube
	c.mu.Unlock()

	return cube, nil
}

// load reads the cube from the durable store, falling back to an upstream
// fetch that persists on success.
func (c *Cache) load(ctx context.Context, cubeID string) (*cubecobra.Cube, error) {
	doc, err := c.store.Get(ctx, cubeID)
	switch {
	case err == nil:
		var cube cubecobra.Cube
		if jsonErr := json.Unmarshal(doc, &cube); jsonErr == nil {
			return &cube, nil
		}
		// Corrupt document counts as missing: refetch and overwrite.
		log.Printf("[CubeCache] Stored cube %s corrupt, refetching", cubeID)
	case errors.Is(err, storage.ErrNotFound):
		// Fall through to fetch.
	case storage.IsCorrupt(err):
		log.Printf("[CubeCache] Stored cube %s unreadable (%v), refetching", cubeID, err)
	default:
		return nil, fmt.Errorf("failed to read cube %s from store: %w", cubeID, err)
	}

	cube, err := c.fetcher.FetchCube(ctx, cubeID)
	if err != nil {
		return nil, err
	}

	doc, err = json.Marshal(cube)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cube %s: %w", cubeID, err)
	}
	if err := c.store.Put(ctx, cubeID, doc); err != nil {
		return nil, fmt.Errorf("failed to persist cube %s: %w", cubeID, err)
	}

	log.Printf("[CubeCache] Fetched and stored cube %s (%d cards)", cubeID, len(cube.Cards))
	return cube, nil
}

// IsCached reports whether the cube is present in durable storage. Never
// triggers a fetch.
func (c *Cache) IsCached(ctx context.Context, cubeID string) (bool, error) {
	return c.store.Exists(ctx, cubeID)
}

// CachedIDs lists the cube ids present in durable storage. Computed from the
// store on every call, since another process run may have added documents the
// in-memory layer has never seen.
func (c *Cache) CachedIDs(ctx context.Context) ([]string, error) {
	return c.store.Keys(ctx)
}

// Invalidate drops the cube from memory and durable storage. The next Get
// will fetch it again. This is the only expiry mechanism; cached cubes are
// otherwise kept forever.
func (c *Cache) Invalidate(ctx context.Context, cubeID string) error {
	if cubeID == "" {
		return fmt.Errorf("cube id is required")
	}

	c.mu.Lock()
	delete(c.cubes, cubeID)
	c.mu.Unlock()

	return c.store.Delete(ctx, cubeID)
}

// Corpus loads every cached cube, reading through the in-memory layer. The
// result is ordered by id as reported by the store.
func (c *Cache) Corpus(ctx context.Context) ([]*cubecobra.Cube, error) {
	ids, err := c.CachedIDs(ctx)
	if err != nil {
		return nil, err
	}

	cubes := make([]*cubecobra.Cube, 0, len(ids))
	for _, id := range ids {
		cube, err := c.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load cached cube %s: %w", id, err)
		}
		cubes = append(cubes, cube)
	}
	return cubes, nil
}
