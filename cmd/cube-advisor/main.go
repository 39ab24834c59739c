// Package main runs the cube-advisor REST API server: a card attribute
// catalog backed by Scryfall bulk data, a durable CubeCobra cube cache, and
// cube-based card recommendations.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cubeforge/cube-advisor/internal/advisor"
	"github.com/cubeforge/cube-advisor/internal/api"
	"github.com/cubeforge/cube-advisor/internal/catalog"
	"github.com/cubeforge/cube-advisor/internal/config"
	"github.com/cubeforge/cube-advisor/internal/cube"
	"github.com/cubeforge/cube-advisor/internal/cubecobra"
	"github.com/cubeforge/cube-advisor/internal/scryfall"
	"github.com/cubeforge/cube-advisor/internal/storage"
	"github.com/cubeforge/cube-advisor/internal/version"
)

var (
	configFile = flag.String("config", "", "Config file path (default: ~/.cube-advisor/config.toml)")
	port       = flag.Int("port", 0, "API server port (overrides config)")
	dataDir    = flag.String("data-dir", "", "Data directory (overrides config)")
)

func main() {
	flag.Parse()

	fmt.Println("Cube Advisor - REST API Server")
	fmt.Println("==============================")
	fmt.Printf("Version: %s\n", version.GetVersion())
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dataDir != "" {
		cfg.Data.Dir = *dataDir
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	rootDir, err := cfg.DataDir()
	if err != nil {
		log.Fatalf("Failed to resolve data directory: %v", err)
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	fmt.Printf("Data directory: %s\n", rootDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Card catalog: load the local dataset, refreshing from Scryfall when
	// the published version has moved on.
	scryfallClient := scryfall.NewClient(scryfall.ClientOptions{
		BaseURL: cfg.Scryfall.BaseURL,
	})
	cat, err := catalog.New(scryfallClient, catalog.Options{
		DataDir: filepath.Join(rootDir, "scryfall"),
	})
	if err != nil {
		log.Fatalf("Failed to create card catalog: %v", err)
	}
	if err := cat.Initialize(ctx); err != nil {
		log.Fatalf("Failed to initialize card catalog: %v", err)
	}
	fmt.Printf("Card catalog: %d cards (dataset %s)\n", cat.Size(), cat.Version())

	if cfg.Scryfall.WatchDataDir {
		go func() {
			if err := cat.Watch(ctx); err != nil {
				log.Printf("[Catalog] Dataset watcher stopped: %v", err)
			}
		}()
	}

	// Cube store: durable backend selected by config.
	store, err := openStore(cfg, rootDir)
	if err != nil {
		log.Fatalf("Failed to open cube store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("Error closing cube store: %v", err)
		}
	}()

	fetcher := cubecobra.NewClient(cubecobra.ClientOptions{
		BaseURL: cfg.CubeCobra.BaseURL,
	})
	cache := cube.NewCache(store, fetcher)

	// Advisor service over catalog + cache.
	service := advisor.New(cat, cache, advisor.Options{
		DefaultAlgorithm: cfg.Recommender.Algorithm,
		DefaultCount:     cfg.Recommender.DefaultCount,
		NeighborhoodSize: cfg.Recommender.NeighborhoodSize,
		MinSimilarity:    cfg.Recommender.MinSimilarity,
		ModelFile:        cfg.Recommender.ModelFile,
	})
	if err := service.LoadModel(); err != nil {
		log.Printf("Failed to load recommender model: %v", err)
	}

	readTimeout, _ := cfg.GetReadTimeout()
	writeTimeout, _ := cfg.GetWriteTimeout()
	server := api.NewServer(&api.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}, service)

	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start API server: %v", err)
	}

	fmt.Println()
	fmt.Printf("API server running at http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println()
	fmt.Println("Shutting down...")
	cancel()

	shutdownTimeout, err := cfg.GetShutdownTimeout()
	if err != nil {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	if err := service.SaveModel(); err != nil {
		log.Printf("Error saving recommender model: %v", err)
	}

	fmt.Println("API server stopped.")
}

// loadConfig reads the config from the explicit path or the default location.
func loadConfig() (*config.Config, error) {
	if *configFile != "" {
		return config.LoadFrom(*configFile)
	}
	return config.Load()
}

// openStore opens the configured cube store backend.
func openStore(cfg *config.Config, rootDir string) (storage.Store, error) {
	switch cfg.Data.StoreBackend {
	case "sqlite":
		fmt.Println("Cube store: sqlite")
		return storage.NewSQLStore(storage.SQLStoreConfig{
			Path: filepath.Join(rootDir, "cubes.db"),
		})
	default:
		fmt.Println("Cube store: file")
		return storage.NewFileStore(filepath.Join(rootDir, "cubes"))
	}
}
