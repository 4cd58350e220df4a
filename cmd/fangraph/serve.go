package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fangraph/fangraph/internal/bandcamp"
	"github.com/fangraph/fangraph/internal/config"
	"github.com/fangraph/fangraph/internal/crawl"
	"github.com/fangraph/fangraph/internal/progress"
	"github.com/fangraph/fangraph/internal/server"
	"github.com/fangraph/fangraph/internal/storage"
	"github.com/fangraph/fangraph/internal/storage/sqlite"
	"github.com/fangraph/fangraph/internal/telemetry"
)

var configFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the crawler and the recommendation API",
	Long: `Serve runs everything fangraph has: the two crawl workers, the progress
manager that feeds them, and the HTTP API with the bundled UI.

With --crawl the workers fall back to stale known fans and items when the
queues are empty, slowly re-walking the whole cached graph.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cfg, err := config.Load(configFile, cmd.Flags())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := serve(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	def := config.Default()
	serveCmd.Flags().StringVar(&configFile, "config", "", "Path to a YAML config file")
	serveCmd.Flags().String("database", def.Database, "Path of the SQLite cache")
	serveCmd.Flags().String("address", def.Address, "HTTP listen address")
	serveCmd.Flags().Bool("crawl", def.Crawl, "Keep crawling stale entities when the queues are empty")
	serveCmd.Flags().String("log-level", def.LogLevel, "Log level (trace, debug, info, warning, error)")
	serveCmd.Flags().Bool("log-json", def.LogJSON, "Log in JSON format")
	rootCmd.AddCommand(serveCmd)
}

func serve(cfg config.Config) error {
	log.SetLevel(cfg.Level())
	if cfg.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := telemetry.Init(ctx, "fangraph", Version); err != nil {
		log.WithError(err).Warn("telemetry init failed, continuing without it")
	}
	defer telemetry.Shutdown(context.Background())

	s, err := sqlite.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.WithError(err).Warn("closing store")
		}
	}()
	store := telemetry.WrapStore(s)

	client := bandcamp.New()
	manager := progress.NewManager(store)
	collections := crawl.NewCollectionWorker(store, client, cfg.Crawl)
	items := crawl.NewItemWorker(store, client, cfg.Crawl)
	api := server.New(store, manager, client, cfg.Address)

	log.WithFields(log.Fields{
		"database": cfg.Database,
		"address":  cfg.Address,
		"crawl":    cfg.Crawl,
	}).Info("fangraph starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return crawl.Supervise(ctx, "collection", collections.Run) })
	g.Go(func() error { return crawl.Supervise(ctx, "item", items.Run) })
	g.Go(func() error { return crawl.Supervise(ctx, "progress", manager.Run) })
	g.Go(func() error { return api.Run(ctx) })
	g.Go(func() error { return logStats(ctx, store) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("fangraph stopped")
	return nil
}

// logStats writes a graph size snapshot once a minute, so a log tail shows
// crawl throughput without anyone polling /api/stats.
func logStats(ctx context.Context, store storage.Store) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		stats, err := store.Stats(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.WithError(err).Warn("stats snapshot failed")
			continue
		}
		log.WithFields(log.Fields{
			"collectors":        stats.Collectors,
			"items":             stats.Items,
			"collects":          stats.CollectsEdges,
			"collected_by":      stats.CollectedByEdges,
			"queued_collectors": stats.QueuedCollectors,
			"queued_items":      stats.QueuedItems,
			"open_targets":      stats.OpenTargets,
		}).Info("graph stats")
	}
}
