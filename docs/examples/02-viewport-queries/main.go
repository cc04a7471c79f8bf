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

	// Define viewport (Boston Harbor area) in web mercator. The store
	// transforms it into the CRS of the shapefile.
	viewport := orb.Bound{
		Min: orb.Point{-7920000, 5200000},
		Max: orb.Point{-7900000, 5220000},
	}

	// Query the R-tree for features whose envelope meets the viewport,
	// then check the geometries themselves
	cur, err := store.Query(ctx, shapestore.Query{
		BBox:  &viewport,
		CRS:   "EPSG:3857",
		Exact: true,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer cur.Close()

	fmt.Printf("Visible features: %d\n", cur.Len())
	for cur.Next() {
		f := cur.Feature()
		fmt.Printf("  %s: %s\n", f.ID(), f.Geometry().GeoJSONType())
	}
}
