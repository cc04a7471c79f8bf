package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

type serveFlags struct {
	dir     string
	addr    string
	watch   bool
	workers int
}

func newServeCmd(a *app) *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve every shapefile under a directory over HTTP",
		Long: `Serve the shapefiles found under --dir as feature collections.

Endpoints:
  GET /collections                   list of collections with envelopes
  GET /collections/{name}/items      GeoJSON features
      ?bbox=minx,miny,maxx,maxy      CRS:84 unless bbox-crs is given
      &bbox-crs=EPSG:3857
      &where=DEPTH>=10               repeatable, combined with AND
      &sortby=NAME:desc
      &limit=100
  GET /metrics                       Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.dir, "dir", "", "directory searched for shapefiles")
	cmd.Flags().StringVar(&f.addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "reopen shapefiles as soon as they change on disk")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "shapefiles opened concurrently at startup (0: one per CPU)")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func (a *app) runServe(ctx context.Context, f serveFlags) error {
	base, err := a.baseConfig()
	if err != nil {
		return err
	}
	if f.watch {
		base.Watch.Enabled = true
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := shapestore.NewMetrics(reg)

	opts := shapestore.DefaultLoadOptions()
	opts.Workers = f.workers
	cat, _, err := shapestore.OpenDir(ctx, f.dir, base, opts,
		shapestore.WithLogger(a.log), shapestore.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer cat.Close()

	srv := &http.Server{
		Addr:              f.addr,
		Handler:           (&server{catalog: cat, gatherer: reg, log: a.log}).routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("serving", zap.String("addr", f.addr), zap.Strings("collections", cat.Names()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.log.Info("server stopped")
	return nil
}
