package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/hibiken/asynq"

	"audio-eval/internal/config"
	"audio-eval/internal/db"
	httpSrv "audio-eval/internal/http"
	"audio-eval/internal/migrations"
	"audio-eval/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPI(ctx)
	if err != nil {
		clog.FatalContextf(ctx, "load config: %v", err)
	}

	// embedded migrations are idempotent
	if !cfg.SkipMigrations {
		if err := migrations.Run(cfg.DatabaseURL); err != nil {
			clog.FatalContextf(ctx, "migrate: %v", err)
		}
	}

	dbase := db.MustOpen(ctx, cfg.DatabaseURL)
	defer dbase.Close()

	// archiving is optional; without redis the archive routes answer 503
	var (
		queue    httpSrv.Enqueuer
		archives httpSrv.ArchiveReader
	)
	if cfg.RedisAddr != "" {
		asq := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer asq.Close()
		queue = asq

		s3c, err := storage.New(ctx, cfg.S3)
		if err != nil {
			clog.FatalContextf(ctx, "s3: %v", err)
		}
		archives = s3c
	}

	srv := httpSrv.NewServer(dbase, queue, archives, httpSrv.Options{Port: cfg.Port, APIToken: cfg.APIToken})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	clog.InfoContextf(ctx, "listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		clog.FatalContextf(ctx, "serve: %v", err)
	}
}
