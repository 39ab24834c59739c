package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cubeforge/cube-advisor/internal/scryfall"
)

// fakeSource is an in-memory BulkSource. Each "download" writes the
// configured dataset to the destination path.
type fakeSource struct {
	version   time.Time
	dataset   []*scryfall.Card
	infoErr   error
	dlErr     error
	infoCalls int
	dlCalls   int
}

func (f *fakeSource) OracleCardsInfo(_ context.Context) (*scryfall.BulkData, error) {
	f.infoCalls++
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return &scryfall.BulkData{
		Type:        scryfall.OracleCardsType,
		UpdatedAt:   f.version,
		DownloadURI: "http://example.com/oracle.json",
	}, nil
}

func (f *fakeSource) DownloadBulk(_ context.Context, _, destPath string) (int64, error) {
	f.dlCalls++
	if f.dlErr != nil {
		return 0, f.dlErr
	}

	data, err := json.Marshal(f.dataset)
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func testCards() []*scryfall.Card {
	return []*scryfall.Card{
		{ID: "id-1", OracleID: "oracle-1", Name: "Lightning Bolt", TypeLine: "Instant", CMC: 1},
		{ID: "id-2", OracleID: "oracle-2", Name: "Counterspell", TypeLine: "Instant", CMC: 2},
		{ID: "id-3", OracleID: "oracle-3", Name: "Llanowar Elves", TypeLine: "Creature — Elf Druid", CMC: 1},
	}
}

func newTestCatalog(t *testing.T, source *fakeSource) *Catalog {
	t.Helper()

	cat, err := New(source, Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return cat
}

func TestInitializeDownloadsWhenMissing(t *testing.T) {
	source := &fakeSource{
		version: time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC),
		dataset: testCards(),
	}
	cat := newTestCatalog(t, source)

	if err := cat.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	if source.dlCalls != 1 {
		t.Errorf("download calls = %d, want 1", source.dlCalls)
	}
	if cat.Size() != 3 {
		t.Errorf("Size() = %d, want 3", cat.Size())
	}
	if cat.Version() != "2026-08-27T09:00:00Z" {
		t.Errorf("Version() = %q", cat.Version())
	}
}

func TestInitializeFailsWithoutLocalOrUpstream(t *testing.T) {
	source := &fakeSource{infoErr: errors.New("network down")}
	cat := newTestCatalog(t, source)

	if err := cat.Initialize(context.Background()); err == nil {
		t.Fatal("expected Initialize to fail with no local snapshot and no upstream")
	}
}

func TestInitializeSkipsDownloadWhenCurrent(t *testing.T) {
	version := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{version: version, dataset: testCards()}
	cat := newTestCatalog(t, source)

	if err := cat.Initialize(context.Background()); err != nil {
		t.Fatalf("first Initialize failed: %v", err)
	}
	if err := cat.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}

	if source.dlCalls != 1 {
		t.Errorf("download calls = %d, want 1 (version unchanged)", source.dlCalls)
	}
}

func TestInitializeRefreshesOnVersionChange(t *testing.T) {
	source := &fakeSource{
		version: time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC),
		dataset: testCards(),
	}
	cat := newTestCatalog(t, source)

	if err := cat.Initialize(context.Background()); err != nil {
		t.Fatalf("first Initialize failed: %v", err)
	}

	source.version = source.version.Add(24 * time.Hour)
	source.dataset = append(testCards(), &scryfall.Card{
		ID: "id-4", OracleID: "oracle-4", Name: "Dark Ritual", TypeLine: "Instant",
	})

	if err := cat.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}

	if source.dlCalls != 2 {
		t.Errorf("download calls = %d, want 2", source.dlCalls)
	}
	if cat.Size() != 4 {
		t.Errorf("Size() = %d, want 4 after refresh", cat.Size())
	}
}

func TestInitializeDegradesWhenVersionCheckFails(t *testing.T) {
	source := &fakeSource{
		version: time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC),
		dataset: testCards(),
	}
	cat := newTestCatalog(t, source)

	if err := cat.Initialize(context.Background()); err != nil {
		t.Fatalf("first Initialize failed: %v", err)
	}

	// Upstream goes away; the existing snapshot must keep serving.
	source.infoErr = errors.New("network down")
	if err := cat.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize should degrade, got error: %v", err)
	}

	if cat.Size() != 3 {
		t.Errorf("Size() = %d, want 3 from existing snapshot", cat.Size())
	}
}

func TestInitializeDegradesWhenRefreshDownloadFails(t *testing.T) {
	source := &fakeSource{
		version: time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC),
		dataset: testCards(),
	}
	cat := newTestCatalog(t, source)

	if err := cat.Initialize(context.Background()); err != nil {
		t.Fatalf("first Initialize failed: %v", err)
	}

	source.version = source.version.Add(24 * time.Hour)
	source.dlErr = errors.New("download interrupted")

	if err := cat.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize should degrade, got error: %v", err)
	}
	if cat.Version() != "2026-08-27T09:00:00Z" {
		t.Errorf("Version() = %q, want the prior token", cat.Version())
	}
}

func TestInitializeTreatsCorruptSnapshotAsMissing(t *testing.T) {
	source := &fakeSource{
		version: time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC),
		dataset: testCards(),
	}

	dataDir := t.TempDir()
	cat, err := New(source, Options{DataDir: dataDir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dataDir, DataFileName), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to write corrupt snapshot: %v", err)
	}

	if err := cat.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	if source.dlCalls != 1 {
		t.Errorf("download calls = %d, want 1 (corrupt file re-downloaded)", source.dlCalls)
	}
	if cat.Size() != 3 {
		t.Errorf("Size() = %d, want 3", cat.Size())
	}
}

func TestQueries(t *testing.T) {
	source := &fakeSource{
		version: time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC),
		dataset: testCards(),
	}
	cat := newTestCatalog(t, source)
	if err := cat.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	t.Run("by id", func(t *testing.T) {
		card, err := cat.GetByID("id-1")
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if card.Name != "Lightning Bolt" {
			t.Errorf("Name = %q", card.Name)
		}
	})

	t.Run("by id missing", func(t *testing.T) {
		if _, err := cat.GetByID("nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("by name case insensitive", func(t *testing.T) {
		card, err := cat.GetByName("COUNTERSPELL")
		if err != nil {
			t.Fatalf("GetByName failed: %v", err)
		}
		if card.ID != "id-2" {
			t.Errorf("ID = %q", card.ID)
		}
	})

	t.Run("by oracle id", func(t *testing.T) {
		cards, err := cat.GetByOracleID("oracle-3")
		if err != nil {
			t.Fatalf("GetByOracleID failed: %v", err)
		}
		if len(cards) != 1 || cards[0].Name != "Llanowar Elves" {
			t.Errorf("unexpected result %+v", cards)
		}
	})

	t.Run("search substring", func(t *testing.T) {
		results, err := cat.Search("elves", 10)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(results) != 1 || results[0].Name != "Llanowar Elves" {
			t.Errorf("unexpected results %+v", results)
		}
	})

	t.Run("search respects limit", func(t *testing.T) {
		results, err := cat.Search("", 2)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(results) != 2 {
			t.Errorf("len(results) = %d, want 2", len(results))
		}
	})
}

func TestQueriesBeforeInitialize(t *testing.T) {
	cat := newTestCatalog(t, &fakeSource{})

	if _, err := cat.GetByID("id-1"); err == nil {
		t.Error("GetByID should fail before Initialize")
	}
	if _, err := cat.Search("bolt", 5); err == nil {
		t.Error("Search should fail before Initialize")
	}
}

func TestReloadPicksUpReplacedFile(t *testing.T) {
	source := &fakeSource{
		version: time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC),
		dataset: testCards(),
	}

	dataDir := t.TempDir()
	cat, err := New(source, Options{DataDir: dataDir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := cat.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Another process replaces the dataset on disk.
	bigger := append(testCards(), &scryfall.Card{ID: "id-9", OracleID: "oracle-9", Name: "Brainstorm"})
	data, err := json.Marshal(bigger)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, DataFileName), data, 0o644); err != nil {
		t.Fatalf("failed to replace dataset: %v", err)
	}

	if err := cat.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if cat.Size() != 4 {
		t.Errorf("Size() = %d, want 4 after reload", cat.Size())
	}
}

func TestSnapshotImmutableUnderRefresh(t *testing.T) {
	source := &fakeSource{
		version: time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC),
		dataset: testCards(),
	}
	cat := newTestCatalog(t, source)
	if err := cat.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	before, err := cat.GetByID("id-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	source.version = source.version.Add(time.Hour)
	source.dataset = []*scryfall.Card{
		{ID: "id-1", OracleID: "oracle-1", Name: "Lightning Bolt", CMC: 99},
	}
	if err := cat.Initialize(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	// The card obtained before the swap still reflects the old snapshot.
	if before.CMC != 1 {
		t.Errorf("previously returned card mutated: CMC = %v", before.CMC)
	}

	after, err := cat.GetByID("id-1")
	if err != nil {
		t.Fatalf("GetByID after refresh failed: %v", err)
	}
	if after.CMC != 99 {
		t.Errorf("refreshed card CMC = %v, want 99", after.CMC)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "version")

	for i := 0; i < 3; i++ {
		content := fmt.Sprintf("token-%d", i)
		if err := writeFileAtomic(path, []byte(content)); err != nil {
			t.Fatalf("writeFileAtomic failed: %v", err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if string(data) != content {
			t.Errorf("content = %q, want %q", data, content)
		}
	}
}
