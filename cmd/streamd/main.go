// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Command streamd serves rows of a sqlite table as streamed JSON lines,
// JSON and CSV bodies, optionally alongside the conformance fixtures.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Query-farm/streambody/internal/config"
	"github.com/Query-farm/streambody/streambody"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	envFiles := flag.String("env", ".env.local,.env", "comma separated .env files, first wins")
	debug := flag.Bool("debug", false, "log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	if err := run(*configPath, strings.Split(*envFiles, ","), log); err != nil {
		log.Error("streamd failed", "err", err)
		os.Exit(1)
	}
}

func run(configPath string, envFiles []string, log *slog.Logger) error {
	config.LoadEnvFiles(envFiles)

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFromFile(configPath); err != nil {
			return err
		}
	}

	store, err := OpenCityStore(cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer store.Close()

	hookOpts, shutdownTelemetry, err := setupTelemetry(cfg.Telemetry, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Warn("telemetry shutdown failed", "err", err)
		}
	}()

	opts := append(cfg.Stream.Options(), streambody.WithLogger(log))
	opts = append(opts, hookOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	srv := newServer(cfg, store, opts, log)
	g.Go(func() error {
		log.Info("streamd listening", "addr", cfg.Server.Addr, "engine", cfg.Server.Engine,
			"conformance", cfg.Server.Conformance, "telemetry", cfg.Telemetry.Enabled)
		return srv.Serve(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("streamd shutting down")
		return nil
	})
	return g.Wait()
}
