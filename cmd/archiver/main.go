// Archiver moves aged audit events into object storage and prunes them
// from Postgres, keeping the hot table small without losing the chain.
package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ateeducacion/omeka-s-WebMCP/pkg/archiver"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/audit"
	"github.com/ateeducacion/omeka-s-WebMCP/pkg/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type minioUploader struct {
	client *minio.Client
	bucket string
}

func (m minioUploader) Upload(ctx context.Context, key string, body []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func main() {
	_ = godotenv.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dsn := os.Getenv("AUDIT_DSN")
	if dsn == "" {
		log.Error("AUDIT_DSN is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Error("postgres connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	minioClient, err := minio.New(config.EnvOr("ARCHIVE_S3_ENDPOINT", "localhost:9000"), &minio.Options{
		Creds: credentials.NewStaticV4(
			config.EnvOr("ARCHIVE_S3_ACCESS_KEY", "minioadmin"),
			config.EnvOr("ARCHIVE_S3_SECRET_KEY", "minioadmin"),
			"",
		),
		Secure: config.EnvOr("ARCHIVE_S3_SECURE", "false") == "true",
	})
	if err != nil {
		log.Error("minio init failed", "error", err)
		os.Exit(1)
	}

	store := audit.NewStore(pool)
	svc := archiver.New(store, minioUploader{
		client: minioClient,
		bucket: config.EnvOr("ARCHIVE_S3_BUCKET", "webmcp-audit"),
	}, log)

	retention := time.Duration(config.EnvOrInt("ARCHIVE_RETENTION_DAYS", 30)) * 24 * time.Hour
	runOnce := config.EnvOr("ARCHIVER_RUN_ONCE", "true") == "true"
	interval := time.Duration(config.EnvOrInt("ARCHIVER_INTERVAL_SEC", 3600)) * time.Second

	run := func() {
		cutoff := time.Now().UTC().Add(-retention)
		key, n, err := svc.Run(ctx, cutoff)
		if err != nil {
			log.Error("archive run failed", "error", err)
			return
		}
		if key != "" {
			log.Info("archived audit bundle", "key", key, "events", n)
		}
	}

	run()
	if runOnce {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
