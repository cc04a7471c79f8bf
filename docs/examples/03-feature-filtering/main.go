package main

import (
	"context"
	"fmt"
	"log"

	"github.com/beetlebugorg/shapestore/pkg/filter"
	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

// Get deep-water ports, deepest first
func deepPorts(ctx context.Context, store *shapestore.Store, minDepth float64) ([]*shapestore.Feature, error) {
	cur, err := store.Query(ctx, shapestore.Query{
		Filter: filter.Compare{Property: "DEPTH", Op: filter.Ge, Value: minDepth},
		Sort:   []filter.SortBy{{Property: "DEPTH", Descending: true}},
	})
	if err != nil {
		return nil, err
	}
	return cur.All(), nil
}

// Get ports by name pattern or with unknown depth
func namedOrUnsurveyed(ctx context.Context, store *shapestore.Store, pattern string) (int, error) {
	return store.QueryHits(ctx, shapestore.Query{
		Filter: filter.Or{
			filter.Like{Property: "NAME", Pattern: pattern},
			filter.IsNull{Property: "DEPTH"},
		},
	})
}

func main() {
	ctx := context.Background()

	cfg := shapestore.DefaultConfig()
	cfg.File = "ports.shp"
	store, err := shapestore.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}
	defer store.Destroy()

	ports, err := deepPorts(ctx, store, 10)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Deep-water ports: %d\n", len(ports))
	for _, p := range ports {
		name, _ := p.Property("NAME")
		depth, _ := p.Property("DEPTH")
		fmt.Printf("  %v: %v m\n", name, depth)
	}

	n, err := namedOrUnsurveyed(ctx, store, "Port %")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Named \"Port ...\" or unsurveyed: %d\n", n)
}
