package shapestore

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LoadOptions controls parallel store opening and error handling.
type LoadOptions struct {
	// Workers is the number of stores opened concurrently. Zero means
	// runtime.NumCPU().
	Workers int

	// SkipErrors keeps going when individual stores fail to open. Failed
	// stores are left out and their errors collected. When false, the
	// first error stops loading and is returned alone.
	SkipErrors bool

	// Progress is called after each store is processed, successfully or
	// not, with the number processed so far and the total.
	Progress func(loaded, total int)
}

// DefaultLoadOptions returns load options with sensible defaults.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Workers:    runtime.NumCPU(),
		SkipErrors: true,
	}
}

// OpenStores creates and initializes one store per configuration using a
// bounded worker pool. Stores are returned in configuration order.
//
// Opening a store builds its spatial index when the side-car file is
// missing or stale, so this is also the way to index many files at once.
//
// Example:
//
//	stores, errs := shapestore.OpenStores(ctx, cfgs, shapestore.LoadOptions{
//	    Workers:    8,
//	    SkipErrors: true,
//	    Progress: func(loaded, total int) {
//	        fmt.Printf("\rOpening: %d/%d", loaded, total)
//	    },
//	}, shapestore.WithLogger(logger))
//
//	if len(errs) > 0 {
//	    fmt.Printf("\nSkipped %d shapefiles due to errors\n", len(errs))
//	}
func OpenStores(ctx context.Context, cfgs []Config, opts LoadOptions, storeOpts ...Option) ([]*Store, []error) {
	if len(cfgs) == 0 {
		return nil, nil
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	stores := make([]*Store, len(cfgs))
	errs := make([]error, len(cfgs))
	var (
		mu     sync.Mutex
		loaded int
	)
	for i, cfg := range cfgs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return err
			}
			st, err := openOne(gctx, cfg, storeOpts)

			mu.Lock()
			loaded++
			if opts.Progress != nil {
				opts.Progress(loaded, len(cfgs))
			}
			mu.Unlock()

			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", cfg.File, err)
				if !opts.SkipErrors {
					return errs[i]
				}
				return nil
			}
			stores[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, st := range stores {
			if st != nil {
				st.Destroy()
			}
		}
		return nil, []error{err}
	}

	var (
		out    []*Store
		failed []error
	)
	for i := range cfgs {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			continue
		}
		out = append(out, stores[i])
	}
	return out, failed
}

func openOne(ctx context.Context, cfg Config, opts []Option) (*Store, error) {
	st, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		st.Destroy()
		return nil, err
	}
	st.log.Debug("store ready")
	return st, nil
}

// logErrors writes each load error to log at warn level.
func logErrors(log *zap.Logger, errs []error) {
	for _, err := range errs {
		log.Warn("shapefile skipped", zap.Error(err))
	}
}
