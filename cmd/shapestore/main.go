// Command shapestore inspects, queries, indexes and serves shapefiles.
//
// Usage:
//
//	shapestore info data/ports.shp
//	shapestore query data/ports.shp --bbox -71.2,42.2,-70.8,42.5 --where "DEPTH>=10" --sort NAME
//	shapestore index data/ --workers 8
//	shapestore serve --dir data/ --addr :8080 --watch
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/beetlebugorg/shapestore/pkg/shapestore"
)

// app carries state shared by all subcommands.
type app struct {
	logLevel   string
	dev        bool
	configPath string

	log *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{log: zap.NewNop()}

	root := &cobra.Command{
		Use:   "shapestore",
		Short: "Read-only feature store over ESRI shapefiles",
		Long: `shapestore serves the features of .shp/.dbf file pairs.

Spatial queries run against a persistent R-tree kept next to each
shapefile (.rti). Attribute filters and sorts can be answered by an
optional SQLite index (.idx.sqlite). Both are rebuilt automatically when
the shapefile changes.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(a.logLevel, a.dev)
			if err != nil {
				return err
			}
			a.log = log
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.dev, "dev", false, "human-readable development logging")
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML store configuration applied to every shapefile")

	root.AddCommand(
		newInfoCmd(a),
		newQueryCmd(a),
		newIndexCmd(a),
		newServeCmd(a),
	)
	return root
}

func newLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	config := zap.NewProductionConfig()
	if dev {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(lvl)
	log, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

// baseConfig returns the configuration shared by every store the command
// opens. Its File is filled in per shapefile.
func (a *app) baseConfig() (shapestore.Config, error) {
	if a.configPath == "" {
		return shapestore.DefaultConfig(), nil
	}
	return shapestore.LoadConfig(a.configPath)
}

// openFile opens a single shapefile store. The caller destroys it.
func (a *app) openFile(ctx context.Context, path string, opts ...shapestore.Option) (*shapestore.Store, error) {
	cfg, err := a.baseConfig()
	if err != nil {
		return nil, err
	}
	cfg.File = path
	cfg.Watch.Enabled = false

	opts = append([]shapestore.Option{shapestore.WithLogger(a.log)}, opts...)
	st, err := shapestore.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := st.Init(ctx); err != nil {
		st.Destroy()
		return nil, err
	}
	return st, nil
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}
