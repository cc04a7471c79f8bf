package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <file.shp>",
		Short: "Describe a shapefile: type, CRS, envelope, record counts and fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer st.Destroy()

			n, err := st.QueryHits(cmd.Context(), shapestore.Query{})
			if err != nil {
				return err
			}
			return writeInfo(cmd.OutOrStdout(), st, n)
		},
	}
}

func writeInfo(out io.Writer, st *shapestore.Store, features int) error {
	schema, err := st.Schema()
	if err != nil {
		return err
	}
	crs, err := st.StorageCRS()
	if err != nil {
		return err
	}
	env, err := st.Envelope("")
	if err != nil {
		return err
	}
	records, err := st.Records()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	geom := schema.Geometry
	fmt.Fprintf(w, "Type:\t%s\n", schema.TypeName)
	fmt.Fprintf(w, "Shape:\t%s (%s)\n", geom.ShapeType, geom.Kind())
	fmt.Fprintf(w, "CRS:\t%s\n", crs)
	fmt.Fprintf(w, "Envelope:\t%g, %g, %g, %g\n", env.Min[0], env.Min[1], env.Max[0], env.Max[1])
	fmt.Fprintf(w, "Records:\t%d (%d features, %d null shapes)\n", records, features, records-features)
	if len(schema.Properties) == 0 {
		fmt.Fprintf(w, "Fields:\tnone\n")
		return w.Flush()
	}
	fmt.Fprintf(w, "Fields:\t\n")
	for _, p := range schema.Properties {
		size := fmt.Sprintf("%d", p.Length)
		if p.Decimals > 0 {
			size = fmt.Sprintf("%d.%d", p.Length, p.Decimals)
		}
		fmt.Fprintf(w, "  %s\t%s(%s)\t%c\n", p.Name, p.Type, size, p.Code)
	}
	return w.Flush()
}
