package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

func main() {
	ctx := context.Background()

	// Configure the store
	cfg := shapestore.DefaultConfig()
	cfg.File = "ports.shp"

	store, err := shapestore.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	// Open the files, building the spatial index on first use
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Destroy()

	// Print store info
	schema, err := store.Schema()
	if err != nil {
		log.Fatal(err)
	}
	crs, _ := store.StorageCRS()
	records, _ := store.Records()
	fmt.Printf("Type: %s\n", schema.TypeName)
	fmt.Printf("Geometry: %s\n", schema.Geometry.Kind())
	fmt.Printf("CRS: %s\n", crs)
	fmt.Printf("Records: %d\n", records)

	// Get store envelope
	env, _ := store.Envelope("")
	fmt.Printf("Envelope: [%.4f,%.4f] to [%.4f,%.4f]\n",
		env.Min[0], env.Min[1], env.Max[0], env.Max[1])

	for _, p := range schema.Properties {
		fmt.Printf("  %s (%s)\n", p.Name, p.Type)
	}
}
