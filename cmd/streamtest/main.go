// streamtest connects both channels with a fixed token and prints routed
// events to the console.
// Usage: go run ./cmd/streamtest --config configs/notifyd.local.yaml
//
// Required environment variables:
//
//	NOTIFYSTREAM_TOKEN - bearer token accepted by the socket endpoints
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rickgao/notifystream/internal/auth"
	"github.com/rickgao/notifystream/internal/config"
	"github.com/rickgao/notifystream/internal/connection"
	"github.com/rickgao/notifystream/internal/events"
	"github.com/rickgao/notifystream/internal/logger"
	"github.com/rickgao/notifystream/internal/router"
	"github.com/rickgao/notifystream/internal/session"
)

// staticToken hands out the same token regardless of mode.
type staticToken string

func (t staticToken) GetFreshToken(context.Context, auth.Mode) (auth.Credential, error) {
	if t == "" {
		return auth.Credential{}, auth.ErrNoCredential
	}
	return auth.Credential{Token: string(t), Mode: auth.ModeLocal}, nil
}

func main() {
	configPath := flag.String("config", "configs/notifyd.local.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	log, err := logger.New(logger.Config{Level: "debug", Development: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	endpoints, _ := cfg.ActiveEndpoints()

	token := staticToken(os.Getenv("NOTIFYSTREAM_TOKEN"))
	if token == "" {
		log.Fatal("NOTIFYSTREAM_TOKEN is not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
	}()

	bus := events.NewBus(log, 1024)
	if err := bus.Start(ctx); err != nil {
		log.Fatal("failed to start event bus", zap.Error(err))
	}

	printHandler := func(_ context.Context, ev events.Event) error {
		printEvent(ev, *verbose)
		return nil
	}
	for _, typ := range []events.EventType{events.NotificationReceived, events.UserUpdated, events.StatusChanged} {
		bus.SubscribeFunc(typ, printHandler)
	}

	rtr := router.New(bus, router.WithLogger(log))

	mc := connection.DefaultManagerConfig()
	mc.NotificationsURL = endpoints.NotificationsWSURL
	mc.UserUpdatesURL = endpoints.UserUpdatesWSURL

	manager := connection.NewManager(mc, token, session.NewMemory(session.Data{}),
		connection.WithFrameHandler(rtr),
		connection.WithLogger(log),
	)
	manager.OnStatusChange(func(s connection.ConnectionStatus) {
		bus.Publish(events.NewStatusEvent(s.Connected, s.Connecting, s.Initializing, time.Now()))
	})

	if err := manager.Authenticate(ctx); err != nil {
		log.Fatal("failed to start channels", zap.Error(err))
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := rtr.Stats()
				fields := []zap.Field{
					zap.Int64("router_received", stats.Received),
					zap.Int64("router_routed", stats.Routed),
					zap.Int64("parse_errors", stats.ParseErrors),
					zap.Int64("ignored", stats.Ignored),
				}
				for _, ch := range manager.Channels() {
					fields = append(fields, zap.String(ch.Channel, ch.State.String()))
				}
				log.Info("stats", fields...)
			}
		}
	}()

	log.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	log.Info("shutting down...")
	manager.Close()
	bus.Shutdown(shutdownCtx)

	log.Info("shutdown complete")
}

func printEvent(ev events.Event, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(ev, "", "  ")
		fmt.Printf("[%s] %s\n", ev.Type(), data)
		return
	}

	switch e := ev.(type) {
	case events.NotificationEvent:
		link := ""
		if e.Notification.HasLink() {
			link = *e.Notification.Link
		}
		fmt.Printf("[NOTIFICATION] id=%d message=%q link=%s\n", e.Notification.ID, e.Notification.Message, link)
	case events.UserEvent:
		var fields map[string]any
		if err := e.User.Decode(&fields); err != nil {
			fmt.Printf("[USER] undecodable: %v\n", err)
			return
		}
		fmt.Printf("[USER] %d fields\n", len(fields))
	case events.StatusEvent:
		fmt.Printf("[STATUS] connected=%t connecting=%t initializing=%t\n", e.Connected, e.Connecting, e.Initializing)
	}
}
