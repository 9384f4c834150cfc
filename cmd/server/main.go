// Package main runs the Invoice Kitchen API server: draft endpoints, invoice
// submission, the render callback, and the tokenized invoice view.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/wseagar/invoice-kitchen/internal/captcha"
	"github.com/wseagar/invoice-kitchen/internal/config"
	"github.com/wseagar/invoice-kitchen/internal/database"
	"github.com/wseagar/invoice-kitchen/internal/draft"
	"github.com/wseagar/invoice-kitchen/internal/kvstore"
	"github.com/wseagar/invoice-kitchen/internal/mailer"
	"github.com/wseagar/invoice-kitchen/internal/pdfstore"
	"github.com/wseagar/invoice-kitchen/internal/pipeline"
	"github.com/wseagar/invoice-kitchen/internal/queue"
	"github.com/wseagar/invoice-kitchen/internal/render"
	"github.com/wseagar/invoice-kitchen/internal/repository"
	"github.com/wseagar/invoice-kitchen/internal/server"
	"github.com/wseagar/invoice-kitchen/internal/token"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	kv := kvstore.NewRedisStore(rdb)

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

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	minter := token.NewMinter(cfg.SigningKey, cfg.TokenTTL)
	pipe := pipeline.New(cfg, pipeline.Deps{
		KV:       kv,
		Captcha:  captcha.NewVerifier(cfg.TurnstileSecret),
		Subs:     subs,
		Queue:    queue.NewClient(asynqClient),
		PDFs:     pdfs,
		Mailer:   mailer.NewResend(cfg.ResendAPIKey, cfg.EmailFrom),
		Renderer: newRenderer(cfg),
		Minter:   minter,
		Logger:   log,
	})
	drafts := draft.NewStore(kv)

	srv := server.New(cfg, pipe, drafts, kv, minter, log)
	return srv.Serve(ctx)
}

func newRenderer(cfg *config.Config) render.Renderer {
	if cfg.Renderer == config.RendererBuiltin {
		return render.NewBuiltinRenderer()
	}
	return render.NewChromeRenderer(cfg.RenderTimeout)
}

func newLogger(cfg *config.Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api").Logger()
	if cfg.IsDevelopment() {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return log
}
