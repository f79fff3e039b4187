package main

import (
	"context"

	"github.com/chainguard-dev/clog"

	"audio-eval/internal/config"
	"audio-eval/internal/db"
	"audio-eval/internal/storage"
	"audio-eval/internal/worker"
)

func main() {
	ctx := context.Background()
	cfg, err := config.LoadWorker(ctx)
	if err != nil {
		clog.FatalContextf(ctx, "load config: %v", err)
	}

	dbase := db.MustOpen(ctx, cfg.DatabaseURL)
	defer dbase.Close()
	s3c, err := storage.New(ctx, cfg.S3)
	if err != nil {
		clog.FatalContextf(ctx, "s3: %v", err)
	}
	if err := worker.Run(cfg.RedisAddr, cfg.Concurrency, dbase, s3c); err != nil {
		clog.FatalContextf(ctx, "worker: %v", err)
	}
}
