package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"collab/api/internal/app"
	"collab/api/internal/archive"
	"collab/api/internal/config"
	"collab/api/internal/lease"
	"collab/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPoolOptions())
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		log.Fatalf("migrations failed: %v", err)
	}
	if applied > 0 {
		log.Printf("applied %d migrations", applied)
	}

	dataStore := store.NewPostgresStore(db)

	var locker lease.Locker
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for cross-process leases")
		redisLocker, err := lease.NewRedisLocker(cfg.RedisURL, cfg.LockTTL())
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisLocker.Close()
		locker = redisLocker
	} else {
		log.Printf("Using in-process leases")
		locker = lease.NewLocalLocker()
	}

	var archiver archive.Archiver = archive.Nop{}
	if strings.TrimSpace(cfg.ArchiveEndpoint) != "" {
		minioArchiver, err := archive.NewMinioArchiver(ctx, archive.Options{
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
			Bucket:    cfg.ArchiveBucket,
			UseSSL:    cfg.ArchiveUseSSL,
		})
		if err != nil {
			log.Fatalf("archive setup failed: %v", err)
		}
		log.Printf("Archiving document versions to bucket %s", cfg.ArchiveBucket)
		archiver = minioArchiver
	}

	service := app.New(cfg, dataStore, locker, archiver)
	httpServer := app.NewHTTPServer(service, []byte(cfg.IdentitySecret), cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Collab API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
