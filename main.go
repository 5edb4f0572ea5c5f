package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskflow-api/api"
	"taskflow-api/config"
	"taskflow-api/repository"
	"taskflow-api/storage"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "taskflow-api configuration file")
	flag.Parse()

	cfg := config.MustLoad(configPath)
	logger := log.New()
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
		log.SetLevel(lvl)
	}

	ctx := context.Background()
	store := mustStore(ctx, cfg, logger)

	var rc *redis.Client
	if cfg.Redis.ConnectionString != "" {
		rc = redis.NewClient(redisOptions(cfg.Redis.ConnectionString))
		defer rc.Close()
		store = storage.NewCache(store, rc, cfg.Redis.CacheTTL)
	}

	tasks := repository.NewTasks(store, logger)
	deps := api.Deps{
		Tasks:          tasks,
		Categories:     repository.NewCategories(store, logger),
		Reorder:        repository.NewReorderer(tasks, logger, cfg.ReorderWorkers),
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
	}
	if rc != nil {
		deps.Deduper = api.NewRedisDeduper(rc, cfg.Redis.IdempotencyTTL)
	}
	if auth := mustAuth(cfg.Auth); auth != nil {
		deps.Auth = auth
	}

	if cfg.Storage.ChangeQueue != "" {
		queue, err := storage.NewChangeQueue(cfg.Storage.ConnectionString, cfg.Storage.ChangeQueue)
		if err != nil {
			log.Fatalf("change queue: %v", err)
		}
		if err := queue.EnsureQueue(ctx); err != nil {
			log.Fatalf("change queue: %v", err)
		}
		deps.Notifier = api.NewNotifier(queue, logger, api.NotifierConfig{
			Workers:        cfg.Notify.Workers,
			Buffer:         cfg.Notify.Buffer,
			PublishTimeout: cfg.Notify.PublishTimeout,
			HandoffTimeout: cfg.Notify.HandoffTimeout,
		})
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
			echo.HeaderAuthorization, echo.HeaderContentEncoding, api.HeaderIdempotencyKey,
		},
	}))
	api.Register(e, deps)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown")
	}
	if deps.Notifier != nil {
		deps.Notifier.Close()
		if n := deps.Notifier.Dropped(); n > 0 {
			logger.Warnf("%d change events were dropped", n)
		}
	}
	logger.Info("server stopped")
}

func mustStore(ctx context.Context, cfg config.Config, logger *log.Logger) storage.RecordStore {
	switch cfg.Storage.Backend {
	case config.BackendTables:
		ts, err := storage.NewTableStore(cfg.Storage.ConnectionString, map[string]string{
			storage.CollectionTasks:      cfg.Storage.TasksTable,
			storage.CollectionCategories: cfg.Storage.CategoriesTable,
		})
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		if err := ts.EnsureTables(ctx); err != nil {
			log.Fatalf("storage: %v", err)
		}
		return ts
	default:
		mem := storage.NewMemoryStore()
		if cfg.Storage.SeedFile != "" {
			n, err := mem.SeedFromFile(cfg.Storage.SeedFile)
			if err != nil {
				log.Fatalf("seed: %v", err)
			}
			logger.WithField("records", n).Info("memory store seeded")
		}
		return mem
	}
}

// redisOptions accepts a redis:// URL or the "host:port,password=...,ssl=true"
// form used by Azure Cache for Redis.
func redisOptions(conn string) *redis.Options {
	opts, err := redis.ParseURL(conn)
	if err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}

func mustAuth(cfg config.AuthConfig) *api.Auth {
	switch cfg.Mode {
	case config.AuthHS256:
		return api.NewSharedSecretAuth([]byte(cfg.Secret), cfg.Audience, "")
	case config.AuthJWKS:
		jwks, err := keyfunc.Get(fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Domain), keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		return api.NewJWKSAuth(jwks, cfg.Audience, "https://"+cfg.Domain+"/", cfg.JWKSCacheTTL)
	default:
		return nil
	}
}
