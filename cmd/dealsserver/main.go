// Command dealsserver runs the deals index HTTP API: loads config.yaml,
// opens the three shared-memory-backed tables, and serves spec.md §6's
// route table until a signal requests graceful drain. Grounded on
// cmd/bd/main.go's cobra root-command shell and its signal.NotifyContext
// cancellation, re-pointed at a single long-running serve loop instead of a
// one-shot CLI command.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flightdeals/dealsindex/internal/config"
	"github.com/flightdeals/dealsindex/internal/dealstore"
	"github.com/flightdeals/dealsindex/internal/httpapi"
	"github.com/flightdeals/dealsindex/internal/topdest"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dealsserver",
	Short: "dealsserver - flight deals index HTTP API",
	Long:  "Serves the deals index over HTTP: ingest scraped deals, query the cheapest matches, and rank popular destinations.",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config.yaml")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	loader, err := config.Load(configPath, logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := loader.Current()

	deals, err := dealstore.New(dealstore.Config{
		Dir:                 cfg.ShmDir,
		InfoPages:           cfg.DealsInfo.MaxPages,
		InfoElementsPerPage: cfg.DealsInfo.ElementsPerPage,
		RecordExpireSeconds: cfg.DealsInfo.RecordExpireSeconds,
		DataPages:           cfg.DealsData.MaxPages,
		DataElementsPerPage: cfg.DealsData.ElementsPerPage,
		Logger:              logger.With("component", "deals_info"),
	})
	if err != nil {
		return fmt.Errorf("open deals store: %w", err)
	}

	dests, err := topdest.New(topdest.Config{
		Dir:                 cfg.ShmDir,
		Pages:               cfg.TopDst.MaxPages,
		ElementsPerPage:     cfg.TopDst.ElementsPerPage,
		RecordExpireSeconds: cfg.TopDst.RecordExpireSeconds,
		Logger:              logger.With("component", "top_dst"),
	})
	if err != nil {
		return fmt.Errorf("open destinations store: %w", err)
	}

	server := httpapi.New(httpapi.Config{
		Addr:           cfg.ListenAddr,
		Deals:          deals,
		Dests:          dests,
		RecordLifetime: time.Duration(cfg.DealsInfo.RecordExpireSeconds) * time.Second,
		Logger:         logger,
	})

	watcher, err := loader.Watch(func(config.Config) {
		logger.Info("config.yaml reloaded; open tables keep the capacities they were created with")
	})
	if err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	} else {
		defer watcher.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGBUS)
	defer cancel()

	logger.Info("dealsserver listening", "addr", cfg.ListenAddr)
	return server.Run(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
