package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

type indexFlags struct {
	workers int
	force   bool
}

func newIndexCmd(a *app) *cobra.Command {
	var f indexFlags
	cmd := &cobra.Command{
		Use:   "index <dir|file.shp>...",
		Short: "Build or refresh the spatial and attribute indexes of shapefiles",
		Long: `Build the .rti spatial index and the .idx.sqlite attribute index of every
shapefile named or found under the given directories.

Up-to-date indexes are left alone unless --force is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runIndex(cmd.Context(), cmd.OutOrStdout(), args, f)
		},
	}
	cmd.Flags().IntVar(&f.workers, "workers", runtime.NumCPU(), "shapefiles indexed concurrently")
	cmd.Flags().BoolVar(&f.force, "force", false, "rebuild indexes even when up to date")
	return cmd
}

func (a *app) runIndex(ctx context.Context, out io.Writer, args []string, f indexFlags) error {
	paths, err := collectShapefiles(args)
	if err != nil {
		return err
	}
	base, err := a.baseConfig()
	if err != nil {
		return err
	}
	base.Watch.Enabled = false

	cfgs := make([]shapestore.Config, len(paths))
	for i, p := range paths {
		cfgs[i] = base
		cfgs[i].File = p
	}

	opts := shapestore.LoadOptions{Workers: f.workers, SkipErrors: true}
	stores, failed := shapestore.OpenStores(ctx, cfgs, opts, shapestore.WithLogger(a.log))
	defer func() {
		for _, st := range stores {
			st.Destroy()
		}
	}()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(f.workers, 1))
	for _, st := range stores {
		g.Go(func() error {
			var err error
			if f.force {
				err = st.Rebuild(gctx)
			} else {
				err = st.EnsureIndexes(gctx)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed = append(failed, fmt.Errorf("%s: %w", st.Name(), err))
				return nil
			}
			records, _ := st.Records()
			fmt.Fprintf(out, "indexed %s (%d records)\n", st.Name(), records)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, err := range failed {
		a.log.Warn("indexing failed", zap.Error(err))
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d shapefiles could not be indexed", len(failed), len(paths))
	}
	return nil
}

// collectShapefiles expands directories into the shapefiles beneath them.
func collectShapefiles(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := shapestore.FindShapefiles(arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, found...)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no shapefiles found in %v", args)
	}
	return paths, nil
}
