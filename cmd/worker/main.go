// Package main runs the render worker: it drains invoice render jobs from the
// queue, prints the invoice page to PDF, and reports completion back to the
// API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/wseagar/invoice-kitchen/internal/config"
	"github.com/wseagar/invoice-kitchen/internal/database"
	"github.com/wseagar/invoice-kitchen/internal/pdfstore"
	"github.com/wseagar/invoice-kitchen/internal/render"
	"github.com/wseagar/invoice-kitchen/internal/repository"
	"github.com/wseagar/invoice-kitchen/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	subs := repository.NewSubmissionRepository(pool)

	pdfs, err := pdfstore.New(cfg)
	if err != nil {
		return fmt.Errorf("init pdf store: %w", err)
	}
	if err := pdfs.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	var renderer render.Renderer
	if cfg.Renderer == config.RendererBuiltin {
		renderer = render.NewBuiltinRenderer()
	} else {
		renderer = render.NewChromeRenderer(cfg.RenderTimeout)
	}

	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.WorkerCount,
	})
	processor := worker.NewProcessor(renderer, pdfs, subs, cfg.BaseURL, cfg.PresignTTL, log)

	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	log.Info().Int("concurrency", cfg.WorkerCount).Str("renderer", cfg.Renderer).Msg("worker starting")
	return srv.Run(processor.Handler())
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "worker").Logger()
	if cfg.IsDevelopment() {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return log
}
