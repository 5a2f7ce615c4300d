package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"opsledger/backend/internal/cache"
	"opsledger/backend/internal/config"
	"opsledger/backend/internal/httpapi"
	"opsledger/backend/internal/service"
	"opsledger/backend/internal/store"
	filestore "opsledger/backend/internal/store/file"
	"opsledger/backend/internal/store/memory"
	mongostore "opsledger/backend/internal/store/mongo"
	pgstore "opsledger/backend/internal/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("ignoring .env: %v", err)
	}

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 3)
	var users store.UserStore
	var snapshots store.SnapshotStore

	var pg *pgstore.Store
	if cfg.DatabaseURL != "" {
		var err error
		pg, err = pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatalf("postgres schema: %v", err)
		}
		if err := seedEmptyUserTable(ctx, pg); err != nil {
			log.Fatalf("postgres user seed: %v", err)
		}
		users = pg
		closers = append(closers, pg.Close)
		log.Println("users: postgres")
	} else {
		users = memory.NewSeeded()
		log.Println("users: in-memory")
	}

	switch snapshotBackend(cfg) {
	case "postgres":
		snapshots = pg
	case "mongo":
		mg, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Fatalf("mongo unavailable (%v) and MONGO_URI is set; refusing to start", err)
		}
		snapshots = mg
		closers = append(closers, func() error {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer closeCancel()
			return mg.Close(closeCtx)
		})
	case "file":
		snapshots = filestore.New(cfg.SnapshotFile)
	default:
		snapshots = memory.New()
	}
	log.Printf("snapshots: %s", snapshotBackend(cfg))
	repo := store.Composite{SnapshotStore: snapshots, UserStore: users}

	summaryCache := cache.SummaryCache(cache.NoopSummaryCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSummaryCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			summaryCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("cache: redis")
		}
	} else {
		log.Println("cache: noop")
	}

	svc := service.New(repo, service.Options{
		LedgerID:        cfg.LedgerID,
		SummaryTTL:      time.Duration(cfg.SummaryTTLSeconds) * time.Second,
		OpeningMainCash: cfg.OpeningMainCash,
		Cache:           summaryCache,
	})
	if err := svc.Restore(ctx); err != nil {
		log.Fatalf("restore ledger %s: %v", cfg.LedgerID, err)
	}
	if cfg.AutosyncSeconds > 0 {
		if err := svc.StartAutoSync(time.Duration(cfg.AutosyncSeconds) * time.Second); err != nil {
			log.Fatalf("autosync: %v", err)
		}
		log.Printf("autosync every %ds", cfg.AutosyncSeconds)
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("ledger backend listening on %s", cfg.Address())
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

	svc.StopAutoSync()
	if svc.Dirty() {
		if _, err := svc.Sync(shutdownCtx); err != nil {
			log.Printf("final sync failed: %v", err)
		} else {
			log.Println("final sync complete")
		}
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

// snapshotBackend picks where ledger snapshots live: postgres, then mongo,
// then a local JSON file, then process memory.
func snapshotBackend(cfg config.Config) string {
	switch {
	case cfg.DatabaseURL != "":
		return "postgres"
	case cfg.MongoURI != "":
		return "mongo"
	case cfg.SnapshotFile != "":
		return "file"
	default:
		return "memory"
	}
}

func seedEmptyUserTable(ctx context.Context, users store.UserStore) error {
	existing, err := users.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, account := range memory.SeedAccounts() {
		if err := users.CreateUser(ctx, account); err != nil && !errors.Is(err, store.ErrDuplicate) {
			return err
		}
		log.Printf("seeded %s account %s", account.Role, account.Email)
	}
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
