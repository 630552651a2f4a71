package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kassirpos/agent/internal/cart"
	"kassirpos/agent/internal/config"
	"kassirpos/agent/internal/httpapi"
	"kassirpos/agent/internal/localstore"
	"kassirpos/agent/internal/photo"
	"kassirpos/agent/internal/printer"
	"kassirpos/agent/internal/remote"
	memgw "kassirpos/agent/internal/remote/memory"
	pggw "kassirpos/agent/internal/remote/postgres"
	restgw "kassirpos/agent/internal/remote/rest"
	"kassirpos/agent/internal/syncer"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	var blobs localstore.Blobs
	if cfg.RedisAddr != "" {
		redisBlobs := localstore.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisBlobs.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), falling back to data dir", err)
		} else {
			blobs = redisBlobs
			closers = append(closers, redisBlobs.Close)
			log.Println("local store: redis")
		}
	}
	if blobs == nil {
		dirBlobs, err := localstore.NewDir(cfg.DataDir)
		if err != nil {
			log.Fatalf("data dir unusable: %v", err)
		}
		blobs = dirBlobs
		log.Printf("local store: %s", cfg.DataDir)
	}

	var gateway remote.Gateway
	var photos photo.Uploader
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pggw.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		gateway = pg
		closers = append(closers, pg.Close)
		log.Println("remote gateway: postgres")
	case cfg.SupabaseURL != "":
		gateway = restgw.New(restgw.Config{
			BaseURL:   cfg.SupabaseURL,
			APIKey:    cfg.SupabaseAPIKey,
			JWTSecret: cfg.SupabaseJWTSecret,
			JWTRole:   cfg.SupabaseJWTRole,
			TokenTTL:  cfg.SupabaseTokenTTL,
		})
		photos = photo.NewRESTUploader(cfg.SupabaseURL, cfg.SupabaseAPIKey, "")
		log.Println("remote gateway: rest")
	default:
		gateway = memgw.NewSeeded()
		log.Println("remote gateway: in-memory (no DATABASE_URL or SUPABASE_URL set)")
	}

	svc := syncer.New(localstore.New(blobs), gateway, photos)

	// Startup hydrate is advisory; the agent serves the local cache even
	// when the backend is unreachable.
	if err := svc.Hydrate(ctx); err != nil {
		log.Printf("startup hydrate incomplete: %v", err)
	}

	api := httpapi.New(svc, cart.New(), printer.Noop{}, cfg.StoreName, cfg.PrinterWidth)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("POS agent listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("agent stopped")
}
