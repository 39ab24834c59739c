// Package catalog manages the local snapshot of the Scryfall Oracle Cards
// bulk dataset and serves card attribute queries from memory.
//
// The snapshot is downloaded once, persisted with its version token, and only
// re-downloaded when the upstream advertises a newer token. A failed version
// check degrades to the last good snapshot: freshness is best-effort,
// availability is not.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/cubeforge/cube-advisor/internal/scryfall"
)

const (
	// DataFileName is the on-disk name of the Oracle Cards snapshot.
	DataFileName = "oracle-cards.json"

	// VersionFileName is the sidecar file holding the snapshot's version token.
	VersionFileName = "oracle-cards.version"
)

// ErrNotFound is returned when a card is not present in the loaded snapshot.
var ErrNotFound = errors.New("card not found in catalog")

// BulkSource is the upstream contract the catalog depends on: a cheap
// metadata check and a full dataset download. *scryfall.Client satisfies it.
type BulkSource interface {
	OracleCardsInfo(ctx context.Context) (*scryfall.BulkData, error)
	DownloadBulk(ctx context.Context, downloadURI, destPath string) (int64, error)
}

// Catalog owns the card attribute dataset. The in-memory snapshot is
// immutable once built; a refresh builds a replacement off to the side and
// swaps the pointer, so concurrent readers are never torn.
type Catalog struct {
	source  BulkSource
	dataDir string

	snap atomic.Pointer[snapshot]
}

// snapshot is the full in-memory copy of the dataset as of one load.
// Never mutated after build.
type snapshot struct {
	version string
	cards   []*scryfall.Card
	byID    map[string]*scryfall.Card
	byName  map[string]*scryfall.Card   // lowercased exact name
	byOrac  map[string][]*scryfall.Card // oracle id -> printings
}

// Options configures the catalog.
type Options struct {
	// DataDir is the directory holding the snapshot and its version file.
	DataDir string
}

// New creates a catalog. Call Initialize before querying.
func New(source BulkSource, options Options) (*Catalog, error) {
	if options.DataDir == "" {
		return nil, fmt.Errorf("catalog data directory is required")
	}
	if err := os.MkdirAll(options.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &Catalog{
		source:  source,
		dataDir: options.DataDir,
	}, nil
}

func (c *Catalog) dataPath() string    { return filepath.Join(c.dataDir, DataFileName) }
func (c *Catalog) versionPath() string { return filepath.Join(c.dataDir, VersionFileName) }

// Initialize acquires the dataset and loads it into memory.
//
// With no usable local snapshot it performs a full download; that failing is
// fatal. With a local snapshot it compares version tokens via the metadata
// endpoint and re-downloads only on mismatch; a failed check or failed
// refresh download degrades to the existing snapshot.
func (c *Catalog) Initialize(ctx context.Context) error {
	local, err := c.loadLocal()
	if err != nil {
		// Corrupt counts the same as missing: discard and re-download.
		log.Printf("[Catalog] Local snapshot unusable (%v), treating as missing", err)
		local = nil
	}

	if local == nil {
		snap, err := c.download(ctx)
		if err != nil {
			return fmt.Errorf("catalog unavailable: no local snapshot and download failed: %w", err)
		}
		c.snap.Store(snap)
		log.Printf("[Catalog] Loaded %d cards (version %s)", len(snap.cards), snap.version)
		return nil
	}

	info, err := c.source.OracleCardsInfo(ctx)
	if err != nil {
		log.Printf("[Catalog] Version check failed (%v), serving existing snapshot", err)
		c.snap.Store(local)
		return nil
	}

	if info.VersionToken() == local.version {
		c.snap.Store(local)
		log.Printf("[Catalog] Snapshot current (version %s, %d cards)", local.version, len(local.cards))
		return nil
	}

	log.Printf("[Catalog] Version changed (%s -> %s), refreshing", local.version, info.VersionToken())
	snap, err := c.downloadWithInfo(ctx, info)
	if err != nil {
		log.Printf("[Catalog] Refresh failed (%v), serving existing snapshot", err)
		c.snap.Store(local)
		return nil
	}

	c.snap.Store(snap)
	log.Printf("[Catalog] Loaded %d cards (version %s)", len(snap.cards), snap.version)
	return nil
}

// download fetches bulk metadata then the dataset itself.
func (c *Catalog) download(ctx context.Context) (*snapshot, error) {
	info, err := c.source.OracleCardsInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get bulk data info: %w", err)
	}
	return c.downloadWithInfo(ctx, info)
}

// downloadWithInfo downloads the dataset described by info, persists it
// together with its version token, and builds the in-memory snapshot.
// The data file is renamed into place before the version file is written, so
// the pair can only disagree in the direction that forces a re-download.
func (c *Catalog) downloadWithInfo(ctx context.Context, info *scryfall.BulkData) (*snapshot, error) {
	written, err := c.source.DownloadBulk(ctx, info.DownloadURI, c.dataPath())
	if err != nil {
		return nil, fmt.Errorf("failed to download dataset: %w", err)
	}
	log.Printf("[Catalog] Downloaded %.2f MB", float64(written)/(1024*1024))

	if err := writeFileAtomic(c.versionPath(), []byte(info.VersionToken())); err != nil {
		return nil, fmt.Errorf("failed to write version token: %w", err)
	}

	snap, err := c.loadLocal()
	if err != nil {
		return nil, fmt.Errorf("downloaded dataset unreadable: %w", err)
	}
	if snap == nil {
		return nil, fmt.Errorf("downloaded dataset missing after write")
	}
	return snap, nil
}

// loadLocal parses the on-disk snapshot. Returns (nil, nil) when absent and
// an error when present but unreadable.
func (c *Catalog) loadLocal() (*snapshot, error) {
	file, err := os.Open(c.dataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = file.Close() }()

	version := ""
	if data, err := os.ReadFile(c.versionPath()); err == nil {
		version = strings.TrimSpace(string(data))
	}

	dec := json.NewDecoder(file)

	// The dataset is one large JSON array. Stream it element by element so
	// each record's raw bytes can be retained without buffering the file.
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("failed to parse snapshot: expected array, got %v", tok)
	}

	var cards []*scryfall.Card
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to parse snapshot record %d: %w", len(cards), err)
		}

		card := &scryfall.Card{}
		if err := json.Unmarshal(raw, card); err != nil {
			return nil, fmt.Errorf("failed to parse snapshot record %d: %w", len(cards), err)
		}
		card.Raw = raw
		cards = append(cards, card)
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	return buildSnapshot(version, cards), nil
}

// buildSnapshot indexes a card list for the catalog's query operations.
func buildSnapshot(version string, cards []*scryfall.Card) *snapshot {
	snap := &snapshot{
		version: version,
		cards:   cards,
		byID:    make(map[string]*scryfall.Card, len(cards)),
		byName:  make(map[string]*scryfall.Card, len(cards)),
		byOrac:  make(map[string][]*scryfall.Card),
	}

	for _, card := range cards {
		if card.ID != "" {
			snap.byID[card.ID] = card
		}
		if card.Name != "" {
			lower := strings.ToLower(card.Name)
			if _, exists := snap.byName[lower]; !exists {
				snap.byName[lower] = card
			}
		}
		if card.OracleID != "" {
			snap.byOrac[card.OracleID] = append(snap.byOrac[card.OracleID], card)
		}
	}

	return snap
}

// current returns the live snapshot or an error when Initialize has not
// completed successfully.
func (c *Catalog) current() (*snapshot, error) {
	snap := c.snap.Load()
	if snap == nil {
		return nil, fmt.Errorf("catalog not initialized")
	}
	return snap, nil
}

// Version returns the version token of the loaded snapshot.
func (c *Catalog) Version() string {
	if snap := c.snap.Load(); snap != nil {
		return snap.version
	}
	return ""
}

// Size returns the number of cards in the loaded snapshot.
func (c *Catalog) Size() int {
	if snap := c.snap.Load(); snap != nil {
		return len(snap.cards)
	}
	return 0
}

// GetByID returns the card with the given Scryfall ID.
func (c *Catalog) GetByID(id string) (*scryfall.Card, error) {
	snap, err := c.current()
	if err != nil {
		return nil, err
	}

	card, ok := snap.byID[id]
	if !ok {
		return nil, fmt.Errorf("card %q: %w", id, ErrNotFound)
	}
	return card, nil
}

// GetByName returns the card with the given exact name, case-insensitively.
func (c *Catalog) GetByName(name string) (*scryfall.Card, error) {
	snap, err := c.current()
	if err != nil {
		return nil, err
	}

	card, ok := snap.byName[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("card %q: %w", name, ErrNotFound)
	}
	return card, nil
}

// GetByOracleID returns all printings sharing the given Oracle ID.
func (c *Catalog) GetByOracleID(oracleID string) ([]*scryfall.Card, error) {
	snap, err := c.current()
	if err != nil {
		return nil, err
	}

	cards, ok := snap.byOrac[oracleID]
	if !ok {
		return nil, fmt.Errorf("oracle id %q: %w", oracleID, ErrNotFound)
	}
	return cards, nil
}

// Search returns up to limit cards whose name contains query
// case-insensitively. Purely in-memory; never calls upstream.
func (c *Catalog) Search(query string, limit int) ([]*scryfall.Card, error) {
	snap, err := c.current()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	queryLower := strings.ToLower(query)
	results := make([]*scryfall.Card, 0, limit)

	for _, card := range snap.cards {
		if strings.Contains(strings.ToLower(card.Name), queryLower) {
			results = append(results, card)
			if len(results) >= limit {
				break
			}
		}
	}

	return results, nil
}

// Reload re-reads the on-disk snapshot and swaps it in. Used by the watcher
// when another process replaces the data file.
func (c *Catalog) Reload() error {
	snap, err := c.loadLocal()
	if err != nil {
		return fmt.Errorf("failed to reload snapshot: %w", err)
	}
	if snap == nil {
		return fmt.Errorf("failed to reload snapshot: %s missing", c.dataPath())
	}

	c.snap.Store(snap)
	log.Printf("[Catalog] Reloaded %d cards (version %s)", len(snap.cards), snap.version)
	return nil
}

// writeFileAtomic writes data via a temporary sibling and rename.
func writeFileAtomic(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
