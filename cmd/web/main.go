package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"greenside.systems/swinglab/cmd/web/internal/web"
	"greenside.systems/swinglab/internal/analysis"
	"greenside.systems/swinglab/internal/application"
	"greenside.systems/swinglab/internal/blobstore"
	"greenside.systems/swinglab/internal/config"
	"greenside.systems/swinglab/internal/db"
	"greenside.systems/swinglab/internal/fallback"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting web service")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if conf.DatabaseRetries <= 0 {
		conf.DatabaseRetries = 10
	}
	if conf.PublicBaseURL == "" {
		conf.PublicBaseURL = "http://localhost:" + strconv.Itoa(conf.WebServerPort)
	}

	var dbc *db.DatabaseConnection
	if conf.DatabaseDSN != "" {
		pool, err := application.OpenDBPoolWithRetry(ctx, *conf)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		dbc, err = db.NewDatabaseConnection(ctx, pool)
		if err != nil {
			slog.Error("failed to create database connection", "error", err)
			os.Exit(1)
		}
		defer dbc.Close()
	} else {
		slog.Warn("DATABASE_DSN not set; report history disabled")
	}

	store := blobstore.NewStore([]byte(conf.StorageSecret),
		time.Duration(conf.StorageVisibilityLagMS)*time.Millisecond)

	converter := fallback.NewClient(conf.FallbackBaseURL, conf.FallbackAPIKey, nil)
	if !converter.Configured() {
		slog.Warn("transcoding fallback not configured; non-standard containers pass through")
	}

	analyzer, err := analysis.NewClient(analysis.Options{
		APIKey:    conf.AnalysisAPIKey,
		BaseURL:   conf.AnalysisBaseURL,
		Model:     conf.AnalysisModel,
		Converter: converter,
	})
	if err != nil {
		slog.Error("failed to create analysis client", "error", err)
		os.Exit(1)
	}

	e, err := web.NewWebserver(ctx, conf, store, analyzer, dbc)
	if err != nil {
		slog.Error("failed to create webserver", "error", err)
		os.Exit(1)
	}

	addr := ":" + strconv.Itoa(conf.WebServerPort)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	slog.Info("Listening", "addr", addr)
	if err := e.Start(addr); err != nil {
		// Echo returns an error on Shutdown; treat it as normal if context is done.
		if ctx.Err() != nil {
			return
		}
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
