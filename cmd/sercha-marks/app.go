package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-marks/internal/adapters/driven/auth"
	"github.com/custodia-labs/sercha-marks/internal/adapters/driven/launcher"
	"github.com/custodia-labs/sercha-marks/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-marks/internal/adapters/driven/oauth"
	"github.com/custodia-labs/sercha-marks/internal/adapters/driven/postgres"
	"github.com/custodia-labs/sercha-marks/internal/adapters/driven/providers"
	"github.com/custodia-labs/sercha-marks/internal/adapters/driven/providers/github"
	"github.com/custodia-labs/sercha-marks/internal/adapters/driven/providers/gitlab"
	redisadapter "github.com/custodia-labs/sercha-marks/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-marks/internal/adapters/driven/secrets"
	"github.com/custodia-labs/sercha-marks/internal/adapters/driven/timer"
	httpadapter "github.com/custodia-labs/sercha-marks/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-marks/internal/config"
	"github.com/custodia-labs/sercha-marks/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-marks/internal/core/services"
)

// defaultFolderTitle names the top-level folder the daemon finds or creates
const defaultFolderTitle = "Work items"

// folderStore is a bookmark tree that can find or create a top-level folder
type folderStore interface {
	driven.BookmarkStore
	EnsureFolder(ctx context.Context, title string) (string, error)
}

// app holds the wired daemon
type app struct {
	store     driven.Store
	bookmarks driven.BookmarkStore
	registry  *services.ProviderRegistry
	scheduler *services.BackgroundScheduler
	server    *httpadapter.Server
	logger    *slog.Logger

	// folderID is the default folder, stable across restarts on durable backends
	folderID string
	closers  []func()
}

// Close releases backends in reverse order of creation
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires every adapter and service from cfg
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &app{logger: logger}
	backends := make(map[string]httpadapter.Pinger)

	var codec *secrets.AuthCodec
	if cfg.Store.EncryptionKey != "" {
		var err error
		codec, err = secrets.NewAuthCodecFromKey(cfg.Store.EncryptionKey)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key: %w", err)
		}
	} else if cfg.Store.Backend != config.BackendMemory {
		logger.Warn("no encryption key configured, tokens are stored in plain text")
	}

	// ===== Store, bookmarks and lock =====
	var (
		lock      driven.DistributedLock
		bookmarks folderStore
	)
	switch cfg.Store.Backend {
	case config.BackendRedis:
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { client.Close() })

		store := redisadapter.NewStore(client, codec)
		redisLock := redisadapter.NewLock(client)
		a.store, lock = store, redisLock
		bookmarks = redisadapter.NewBookmarkStore(client)
		backends["store"], backends["lock"] = store, redisLock
		logger.Info("using redis store", "url", opts.Addr)

	case config.BackendPostgres:
		db, err := postgres.Connect(ctx, postgres.Config{
			URL:             cfg.Postgres.URL,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		a.closers = append(a.closers, func() { db.Close() })
		if err := db.InitSchema(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}

		store := postgres.NewStore(db, codec)
		advisory := postgres.NewAdvisoryLock(db)
		a.store, lock = store, advisory
		bookmarks = postgres.NewBookmarkStore(db)
		backends["store"], backends["lock"] = store, advisory
		logger.Info("using postgres store")

	default:
		a.store = memory.NewStore()
		bookmarks = memory.NewBookmarkStore()
		logger.Info("using in-memory store, state is lost on exit")
	}
	a.bookmarks = bookmarks

	folderID, err := bookmarks.EnsureFolder(ctx, defaultFolderTitle)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to ensure bookmark folder: %w", err)
	}
	a.folderID = folderID
	logger.Info("bookmark folder ready", "folder_id", folderID, "title", defaultFolderTitle)

	// ===== Auth =====
	authAdapter := auth.NewAdapter(cfg.Auth.StateSecret)
	authManager := services.NewAuthManager(services.AuthManagerConfig{
		Store:  a.store,
		Client: oauth.NewClient(nil),
		Launcher: launcher.NewLoopback(launcher.LoopbackConfig{
			Open:    openBrowser,
			Timeout: cfg.Auth.Timeout,
			Logger:  logger,
		}),
		Signer: authAdapter,
		Logger: logger,
	})

	// ===== Providers =====
	a.registry = services.NewProviderRegistry(services.ProviderRegistryConfig{Store: a.store, Logger: logger})
	sources := []providers.Source{
		github.New(github.Options{
			APIURL:       cfg.GitHub.APIURL,
			WebURL:       cfg.GitHub.WebURL,
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			RedirectURL:  cfg.Auth.RedirectURL,
		}),
		gitlab.New(gitlab.Options{
			BaseURL:      cfg.GitLab.BaseURL,
			ClientID:     cfg.GitLab.ClientID,
			ClientSecret: cfg.GitLab.ClientSecret,
			RedirectURL:  cfg.Auth.RedirectURL,
		}),
	}
	for _, src := range sources {
		a.registry.Register(providers.New(providers.Config{
			Source: src,
			Auth:   authManager,
			Store:  a.store,
			Logger: logger,
		}))
	}
	if err := a.registry.Initialize(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize providers: %w", err)
	}
	a.closers = append(a.closers, func() { a.registry.Dispose(context.Background()) })

	// ===== Sync engine and scheduler =====
	engine := services.NewSyncEngine(services.SyncEngineConfig{
		Registry:  a.registry,
		Store:     a.store,
		Bookmarks: a.bookmarks,
		Logger:    logger,
	})
	a.scheduler = services.NewBackgroundScheduler(services.BackgroundSchedulerConfig{
		Engine:   engine,
		Registry: a.registry,
		Store:    a.store,
		Timers:   timer.NewService(nil, logger),
		Lock:     lock,
		Logger:   logger,
	})

	// ===== Control surface =====
	controller := services.NewController(services.ControllerConfig{
		Scheduler: a.scheduler,
		Registry:  a.registry,
		Logger:    logger,
	})

	serverCfg := httpadapter.Config{
		Host:           cfg.HTTP.Host,
		Port:           cfg.HTTP.Port,
		Version:        version,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	}
	if cfg.HTTP.ControlToken != "" {
		hash, err := authAdapter.HashToken(cfg.HTTP.ControlToken)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to hash control token: %w", err)
		}
		serverCfg.ControlTokenHash = hash
	}
	a.server = httpadapter.NewServer(serverCfg, controller, authAdapter, backends, logger)

	return a, nil
}

// openBrowser starts the platform's URL handler
func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
