package main

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

type queryFlags struct {
	bbox   string
	crs    string
	where  []string
	sort   []string
	exact  bool
	limit  int
	pretty bool
}

func newQueryCmd(a *app) *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "query <file.shp>",
		Short: "Query features and print them as a GeoJSON FeatureCollection",
		Long: `Query features by bounding box and attribute conditions.

Conditions take the form FIELD<op>VALUE with op one of = <> != < <= > >=,
FIELD~PATTERN for a case-insensitive match with % and _ wildcards, or
"FIELD is null" / "FIELD is not null". Repeated --where flags are combined
with AND.

Example:
  shapestore query ports.shp --bbox 0,0,10,10 --where "DEPTH>=5" --sort NAME:desc --limit 10`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := f.query()
			if err != nil {
				return err
			}
			st, err := a.openFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer st.Destroy()

			cur, err := st.Query(cmd.Context(), q)
			if err != nil {
				return err
			}
			defer cur.Close()
			return writeCollection(cmd.OutOrStdout(), cur, f.pretty)
		},
	}

	cmd.Flags().StringVar(&f.bbox, "bbox", "", "bounding box minx,miny,maxx,maxy")
	cmd.Flags().StringVar(&f.crs, "crs", "", "CRS of --bbox (default: storage CRS)")
	cmd.Flags().StringArrayVar(&f.where, "where", nil, "attribute condition, repeatable")
	cmd.Flags().StringArrayVar(&f.sort, "sort", nil, "sort key FIELD[:desc], repeatable")
	cmd.Flags().BoolVar(&f.exact, "exact", false, "test geometries against --bbox, not only envelopes")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum number of features (0: no limit)")
	cmd.Flags().BoolVar(&f.pretty, "pretty", false, "indent the JSON output")
	return cmd
}

func (f queryFlags) query() (shapestore.Query, error) {
	q := shapestore.Query{CRS: f.crs, Exact: f.exact, MaxFeatures: f.limit}
	if f.limit < 0 {
		return q, errors.New("--limit must not be negative")
	}
	if f.bbox != "" {
		b, err := parseBBox(f.bbox)
		if err != nil {
			return q, err
		}
		q.BBox = b
	}
	var err error
	if q.Filter, err = parseWhere(f.where); err != nil {
		return q, err
	}
	if q.Sort, err = parseSort(f.sort); err != nil {
		return q, err
	}
	return q, nil
}

// writeCollection drains cur into a GeoJSON FeatureCollection.
func writeCollection(out io.Writer, cur *shapestore.Cursor, pretty bool) error {
	fc := geojson.NewFeatureCollection()
	for cur.Next() {
		fc.Append(cur.Feature().GeoJSON())
	}
	if err := cur.Err(); err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(fc)
}
