package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

func safeOpenStore(ctx context.Context, path string) (*shapestore.Store, error) {
	cfg := shapestore.DefaultConfig()
	cfg.File = path

	store, err := shapestore.New(cfg)
	if err != nil {
		// Invalid configuration never succeeds
		var cerr *shapestore.ConfigError
		if errors.As(err, &cerr) {
			return nil, fmt.Errorf("bad setting %s: %w", cerr.Field, cerr.Err)
		}
		return nil, err
	}

	if err := store.Init(ctx); err != nil {
		store.Destroy()
		// Check if file exists
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("shapefile not found: %s", path)
		}
		// Unreadable files are retried by the next query
		if errors.Is(err, shapestore.ErrUnavailable) {
			log.Printf("Store %s unavailable: %v", path, err)
		}
		return nil, err
	}

	// Validate store data
	if n, _ := store.Records(); n == 0 {
		log.Printf("Warning: %s contains no records", path)
	}
	env, _ := store.Envelope("")
	if env.Min[0] == env.Max[0] || env.Min[1] == env.Max[1] {
		log.Printf("Warning: %s has a degenerate envelope", path)
	}

	return store, nil
}

func main() {
	ctx := context.Background()

	store, err := safeOpenStore(ctx, "ports.shp")
	if err != nil {
		log.Printf("Error: %v", err)
		return
	}
	defer store.Destroy()

	records, _ := store.Records()
	fmt.Printf("Successfully opened store: %s\n", store.Name())
	fmt.Printf("Records: %d\n", records)

	// Shapefile stores are read-only
	if _, err := store.AcquireTransaction(ctx); errors.Is(err, shapestore.ErrUnsupported) {
		log.Printf("Expected error: %v", err)
	}

	// Asking for another feature type is rejected
	var mismatch *shapestore.TypeMismatchError
	if _, err := store.Envelope("harbours"); errors.As(err, &mismatch) {
		log.Printf("Expected error: %v", err)
	}

	// Try to open a non-existent shapefile
	_, err = safeOpenStore(ctx, "NONEXISTENT.shp")
	if err != nil {
		log.Printf("Expected error: %v", err)
	}
}
