package main

import (
	"context"
	"fmt"
	"log"

	"github.com/paulmach/orb"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

func main() {
	ctx := context.Background()

	// Open every shapefile under data/, four at a time
	opts := shapestore.LoadOptions{
		Workers:    4,
		SkipErrors: true,
		Progress: func(loaded, total int) {
			fmt.Printf("\rOpening: %d/%d", loaded, total)
		},
	}
	catalog, errs, err := shapestore.OpenDir(ctx, "data", shapestore.DefaultConfig(), opts)
	if err != nil {
		log.Fatal(err)
	}
	defer catalog.Close()
	fmt.Println()
	for _, err := range errs {
		log.Printf("Skipped: %v", err)
	}

	fmt.Printf("Catalog contains %d layers\n\n", len(catalog.Names()))
	for _, e := range catalog.Entries() {
		fmt.Printf("Layer: %s\n", e.Name)
		fmt.Printf("  Path: %s\n", e.Path)
		fmt.Printf("  CRS: %s\n", e.CRS)
		fmt.Printf("  Records: %d\n", e.Records)
		if e.Indexed {
			fmt.Printf("  Envelope: [%.4f,%.4f] to [%.4f,%.4f]\n",
				e.Envelope.Min[0], e.Envelope.Min[1],
				e.Envelope.Max[0], e.Envelope.Max[1])
		}
	}

	// Layers covering a location
	lon, lat := -71.05, 42.35
	here := orb.Bound{Min: orb.Point{lon, lat}, Max: orb.Point{lon, lat}}
	matches := catalog.Query(here)
	fmt.Printf("\nLayers containing location %.4f, %.4f: %d\n", lon, lat, len(matches))
	for _, e := range matches {
		fmt.Printf("  %s\n", e.Name)
	}
}
