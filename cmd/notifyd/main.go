package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rickgao/notifystream/internal/api"
	"github.com/rickgao/notifystream/internal/auth"
	"github.com/rickgao/notifystream/internal/config"
	"github.com/rickgao/notifystream/internal/connection"
	"github.com/rickgao/notifystream/internal/database"
	"github.com/rickgao/notifystream/internal/events"
	"github.com/rickgao/notifystream/internal/logger"
	"github.com/rickgao/notifystream/internal/publish"
	"github.com/rickgao/notifystream/internal/router"
	"github.com/rickgao/notifystream/internal/session"
	"github.com/rickgao/notifystream/internal/version"
	"github.com/rickgao/notifystream/internal/watchdog"
	"github.com/rickgao/notifystream/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/notifyd.local.yaml", "path to config file")
	noSound := flag.Bool("quiet", false, "never ring the terminal bell")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        expandHome(cfg.Log.File),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	endpoints, _ := cfg.ActiveEndpoints()
	log.Info("starting notifyd",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("config", *configPath),
		zap.String("environment", cfg.Environment),
		zap.String("api_url", endpoints.APIBaseURL),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	store, err := session.Open(expandHome(cfg.Session.Path), log)
	if err != nil {
		log.Fatal("failed to open session", zap.Error(err))
	}

	bus := events.NewBus(log, 0)
	if err := bus.Start(ctx); err != nil {
		log.Fatal("failed to start event bus", zap.Error(err))
	}

	apiClient := api.NewClient(endpoints.APIBaseURL,
		api.WithLogger(log),
		api.WithPaths(cfg.Auth.RefreshPath, cfg.Health.Path),
		api.WithTimeout(cfg.Auth.RequestTimeout),
	)

	supplier := auth.NewSupplier(store,
		auth.WithRefresher(apiClient),
		auth.WithPublisher(bus),
		auth.WithScopes(cfg.Auth.Scopes),
		auth.WithLogger(log),
	)

	routerOpts := []router.Option{router.WithLogger(log), router.WithPreferences(store)}
	if !*noSound {
		routerOpts = append(routerOpts, router.WithChime(router.NewBellChime(os.Stderr)))
	}
	rtr := router.New(bus, routerOpts...)

	manager := connection.NewManager(managerConfig(cfg, endpoints), supplier, store,
		connection.WithFrameHandler(rtr),
		connection.WithLogger(log),
	)
	defer manager.Close()

	manager.OnStatusChange(func(s connection.ConnectionStatus) {
		bus.Publish(events.NewStatusEvent(s.Connected, s.Connecting, s.Initializing, time.Now()))
	})

	watch := newSessionWatch(manager, store, log.Named("session"))
	watch.subscribe(bus)
	bus.SubscribeFunc(events.NotificationReceived, func(_ context.Context, ev events.Event) error {
		n := ev.(events.NotificationEvent).Notification
		log.Info("notification", zap.Int64("id", n.ID), zap.String("message", n.Message))
		return nil
	})

	reconnector := connection.NewReconnector(manager, apiClient, cfg.Health.Timeout, log)

	dog := watchdog.New(watchdog.Config{Interval: cfg.Health.WatchdogInterval}, reconnector, log)
	if err := dog.Start(ctx); err != nil {
		log.Fatal("failed to start watchdog", zap.Error(err))
	}

	stats := map[string]func() any{
		"router":   func() any { return rtr.Stats() },
		"bus":      func() any { return bus.Stats() },
		"watchdog": func() any { return dog.Stats() },
		"session":  func() any { return watch.Stats() },
	}

	srv := &server{
		appCtx:      ctx,
		manager:     manager,
		reconnector: reconnector,
		store:       store,
		stats:       stats,
		logger:      log.Named("http"),
	}

	// Optional archive
	var archive *writer.NotificationWriter
	if cfg.Database.Enabled {
		pool, err := database.Connect(ctx, cfg.Database, log)
		if err != nil {
			log.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatal("failed to migrate database", zap.Error(err))
		}

		archive = writer.NewNotificationWriter(writer.ConfigFrom(cfg.Archive), pool, manager.SessionID, log)
		if err := archive.Start(ctx); err != nil {
			log.Fatal("failed to start notification writer", zap.Error(err))
		}
		bus.Subscribe(events.NotificationReceived, archive)
		stats["writer"] = func() any { return archive.Stats() }
		srv.db = pool
	}

	// Optional fan-out
	if cfg.AMQP.URL != "" {
		fanout, err := publish.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			log.Fatal("failed to connect to amqp", zap.Error(err))
		}
		defer fanout.Close()

		fanout.Subscribe(bus)
		stats["fanout"] = func() any { return fanout.Stats() }
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("starting control server", zap.String("addr", cfg.Server.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("control server error", zap.Error(err))
			cancel()
		}
	}()

	if store.HasCredential() && store.AuthMode() == auth.ModeIdentityProvider {
		log.Warn("stored session uses identity provider mode, which is not configured; waiting for login",
			zap.String("login_url", "http://"+cfg.Server.Addr+"/login"),
		)
	} else if store.HasCredential() {
		if err := manager.Authenticate(ctx); err != nil {
			log.Error("failed to resume session", zap.Error(err))
		} else {
			log.Info("resumed stored session",
				zap.String("mode", store.AuthMode().String()),
				zap.String("session_id", manager.SessionID()),
			)
		}
	} else {
		log.Info("no stored session, waiting for login",
			zap.String("login_url", "http://"+cfg.Server.Addr+"/login"),
		)
	}

	// Wait for shutdown
	<-ctx.Done()

	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	httpServer.Shutdown(shutdownCtx)
	dog.Stop(shutdownCtx)
	manager.Logout()
	if archive != nil {
		if err := archive.Stop(shutdownCtx); err != nil {
			log.Warn("notification writer stop", zap.Error(err))
		}
	}
	if err := bus.Shutdown(shutdownCtx); err != nil {
		log.Warn("event bus shutdown", zap.Error(err))
	}

	log.Info("notifyd stopped")
}

func managerConfig(cfg *config.Config, endpoints config.EndpointsConfig) connection.ManagerConfig {
	mc := connection.DefaultManagerConfig()
	mc.NotificationsURL = endpoints.NotificationsWSURL
	mc.UserUpdatesURL = endpoints.UserUpdatesWSURL
	mc.InitializingWindow = cfg.Status.InitializingWindow
	mc.Policy = connection.RetryPolicy{
		MaxExponentialAttempts: cfg.Retry.MaxExponentialAttempts,
		ExponentialBase:        cfg.Retry.ExponentialBase,
		ExponentialCap:         cfg.Retry.ExponentialCap,
		LongInterval:           cfg.Retry.LongInterval,
		MaxTotalAttempts:       cfg.Retry.MaxTotalAttempts,
		CredentialRetryDelay:   cfg.Retry.CredentialRetryDelay,
	}
	mc.Client = connection.ClientConfig{
		HandshakeTimeout: cfg.Transport.HandshakeTimeout,
		WriteTimeout:     cfg.Transport.WriteTimeout,
		PingInterval:     cfg.Transport.PingInterval,
		PingTimeout:      cfg.Transport.PingTimeout,
		BufferSize:       cfg.Transport.BufferSize,
	}
	return mc
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
