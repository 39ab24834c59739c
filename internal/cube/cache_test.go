package cube

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cubeforge/cube-advisor/internal/cubecobra"
	"github.com/cubeforge/cube-advisor/internal/storage"
)

// fakeFetcher serves cubes from a map and counts upstream calls.
type fakeFetcher struct {
	mu     sync.Mutex
	cubes  map[string]*cubecobra.Cube
	calls  map[string]int
	errors map[string]error
}

func newFakeFetcher(cubes ...*cubecobra.Cube) *fakeFetcher {
	f := &fakeFetcher{
		cubes:  make(map[string]*cubecobra.Cube),
		calls:  make(map[string]int),
		errors: make(map[string]error),
	}
	for _, c := range cubes {
		f.cubes[c.ID] = c
	}
	return f
}

func (f *fakeFetcher) FetchCube(_ context.Context, cubeID string) (*cubecobra.Cube, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[cubeID]++
	if err, ok := f.errors[cubeID]; ok {
		return nil, err
	}
	cube, ok := f.cubes[cubeID]
	if !ok {
		return nil, &cubecobra.NotFoundError{CubeID: cubeID}
	}
	return cube, nil
}

func (f *fakeFetcher) callCount(cubeID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[cubeID]
}

func testCube(id string, cardNames ...string) *cubecobra.Cube {
	cards := make([]cubecobra.CubeCard, 0, len(cardNames))
	for _, name := range cardNames {
		cards = append(cards, cubecobra.CubeCard{Name: name})
	}
	return &cubecobra.Cube{ID: id, Name: "Cube " + id, Cards: cards}
}

func newTestCache(t *testing.T, fetcher Fetcher) *Cache {
	t.Helper()

	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return NewCache(store, fetcher)
}

func TestGetFetchesOnceThenServesCached(t *testing.T) {
	fetcher := newFakeFetcher(testCube("cube-1", "Lightning Bolt"))
	cache := newTestCache(t, fetcher)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		cube, err := cache.Get(ctx, "cube-1")
		if err != nil {
			t.Fatalf("Get #%d failed: %v", i, err)
		}
		if cube.ID != "cube-1" {
			t.Errorf("ID = %q", cube.ID)
		}
	}

	if got := fetcher.callCount("cube-1"); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}

func TestGetNotFoundPassesThrough(t *testing.T) {
	fetcher := newFakeFetcher()
	cache := newTestCache(t, fetcher)

	_, err := cache.Get(context.Background(), "missing")
	if !cubecobra.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	// Failures are not cached; the next Get tries upstream again.
	_, _ = cache.Get(context.Background(), "missing")
	if got := fetcher.callCount("missing"); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestGetUnavailableDoesNotPoison(t *testing.T) {
	fetcher := newFakeFetcher(testCube("cube-1", "Lightning Bolt"))
	fetcher.errors["cube-1"] = &cubecobra.UnavailableError{CubeID: "cube-1", Err: fmt.Errorf("down")}
	cache := newTestCache(t, fetcher)
	ctx := context.Background()

	if _, err := cache.Get(ctx, "cube-1"); !cubecobra.IsUnavailable(err) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}

	// Upstream recovers.
	fetcher.mu.Lock()
	delete(fetcher.errors, "cube-1")
	fetcher.mu.Unlock()

	cube, err := cache.Get(ctx, "cube-1")
	if err != nil {
		t.Fatalf("Get after recovery failed: %v", err)
	}
	if cube.ID != "cube-1" {
		t.Errorf("ID = %q", cube.ID)
	}
}

func TestConcurrentGetsCoalesce(t *testing.T) {
	fetcher := newFakeFetcher(testCube("cube-1", "Lightning Bolt"))
	cache := newTestCache(t, fetcher)
	ctx := context.Background()

	const goroutines = 32
	var wg sync.WaitGroup
	var failures atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Get(ctx, "cube-1"); err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Errorf("%d concurrent Gets failed", failures.Load())
	}
	if got := fetcher.callCount("cube-1"); got != 1 {
		t.Errorf("upstream calls = %d, want 1 (coalesced)", got)
	}
}

func TestGetSurvivesProcessRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	fetcher := newFakeFetcher(testCube("cube-1", "Lightning Bolt"))
	cache := NewCache(store, fetcher)

	if _, err := cache.Get(ctx, "cube-1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// New cache over the same directory, upstream gone entirely.
	store2, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	deadFetcher := newFakeFetcher()
	deadFetcher.errors["cube-1"] = &cubecobra.UnavailableError{CubeID: "cube-1", Err: fmt.Errorf("down")}
	restarted := NewCache(store2, deadFetcher)

	cube, err := restarted.Get(ctx, "cube-1")
	if err != nil {
		t.Fatalf("Get after restart failed: %v", err)
	}
	if len(cube.Cards) != 1 || cube.Cards[0].Name != "Lightning Bolt" {
		t.Errorf("restored cube lost cards: %+v", cube.Cards)
	}
	if deadFetcher.callCount("cube-1") != 0 {
		t.Error("cached cube must not hit upstream")
	}
}

func TestCorruptDocumentRefetched(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if err := store.Put(ctx, "cube-1", []byte("{truncated")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	fetcher := newFakeFetcher(testCube("cube-1", "Lightning Bolt"))
	cache := NewCache(store, fetcher)

	cube, err := cache.Get(ctx, "cube-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cube.Name != "Cube cube-1" {
		t.Errorf("Name = %q", cube.Name)
	}
	if fetcher.callCount("cube-1") != 1 {
		t.Errorf("upstream calls = %d, want 1 (corrupt doc refetched)", fetcher.callCount("cube-1"))
	}

	// The overwritten document now parses.
	doc, err := store.Get(ctx, "cube-1")
	if err != nil {
		t.Fatalf("store Get failed: %v", err)
	}
	if string(doc) == "{truncated" {
		t.Error("corrupt document was not overwritten")
	}
}

func TestIsCachedAndCachedIDs(t *testing.T) {
	fetcher := newFakeFetcher(testCube("cube-1"), testCube("cube-2"))
	cache := newTestCache(t, fetcher)
	ctx := context.Background()

	cached, err := cache.IsCached(ctx, "cube-1")
	if err != nil || cached {
		t.Errorf("IsCached before Get = (%v, %v), want (false, nil)", cached, err)
	}

	if _, err := cache.Get(ctx, "cube-1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if _, err := cache.Get(ctx, "cube-2"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	cached, err = cache.IsCached(ctx, "cube-1")
	if err != nil || !cached {
		t.Errorf("IsCached after Get = (%v, %v), want (true, nil)", cached, err)
	}

	ids, err := cache.CachedIDs(ctx)
	if err != nil {
		t.Fatalf("CachedIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("CachedIDs = %v, want 2 ids", ids)
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	fetcher := newFakeFetcher(testCube("cube-1", "Lightning Bolt"))
	cache := newTestCache(t, fetcher)
	ctx := context.Background()

	if _, err := cache.Get(ctx, "cube-1"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if err := cache.Invalidate(ctx, "cube-1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}

	cached, err := cache.IsCached(ctx, "cube-1")
	if err != nil || cached {
		t.Errorf("IsCached after Invalidate = (%v, %v), want (false, nil)", cached, err)
	}

	if _, err := cache.Get(ctx, "cube-1"); err != nil {
		t.Fatalf("Get after Invalidate failed: %v", err)
	}
	if got := fetcher.callCount("cube-1"); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestCorpusLoadsAllCached(t *testing.T) {
	fetcher := newFakeFetcher(
		testCube("cube-1", "Lightning Bolt"),
		testCube("cube-2", "Counterspell"),
		testCube("cube-3", "Llanowar Elves"),
	)
	cache := newTestCache(t, fetcher)
	ctx := context.Background()

	for _, id := range []string{"cube-1", "cube-2", "cube-3"} {
		if _, err := cache.Get(ctx, id); err != nil {
			t.Fatalf("Get %s failed: %v", id, err)
		}
	}

	corpus, err := cache.Corpus(ctx)
	if err != nil {
		t.Fatalf("Corpus failed: %v", err)
	}
	if len(corpus) != 3 {
		t.Errorf("len(corpus) = %d, want 3", len(corpus))
	}
}
