package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lookup_engine/internal/config"
	"lookup_engine/internal/directory/httpdir"
	"lookup_engine/internal/engine"
	"lookup_engine/internal/httpapi"
	"lookup_engine/internal/logbus"
	"lookup_engine/internal/notify"
	"lookup_engine/internal/sink"
	"lookup_engine/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	bus := logbus.New(200)
	bus.Log("info", "server starting", map[string]any{"addr": cfg.Server.Addr})

	ctx := context.Background()
	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	sinks := sink.Multi{sink.NewStoreSink(store)}
	if cfg.Sink.JSONLPath != "" {
		jsonl, err := sink.OpenJSONLSink(cfg.Sink.JSONLPath)
		if err != nil {
			log.Fatalf("open jsonl sink: %v", err)
		}
		defer jsonl.Close()
		sinks = append(sinks, jsonl)
	}

	overrides, _, err := store.GetLimitsSettings(ctx)
	if err != nil {
		log.Fatalf("load limits settings: %v", err)
	}

	client := httpdir.New(cfg.Directory, bus)
	notifier := notify.NewEmailNotifier(store, bus)
	eng := engine.New(engine.Options{
		Store:    store,
		Client:   client,
		Bus:      bus,
		Sink:     sinks,
		Notifier: notifier,
		Limits:   engine.LimitsFromConfig(cfg.Limits, overrides),
	})

	api := httpapi.New(httpapi.Options{
		Cfg:    cfg,
		Bus:    bus,
		Store:  store,
		Engine: eng,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		bus.Log("info", "shutdown signal received", map[string]any{"signal": sig.String()})
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			bus.Log("error", "http server error", map[string]any{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_ = eng.Stop(shutdownCtx)
	_ = notifier.Close(shutdownCtx)
	_ = server.Shutdown(shutdownCtx)
	bus.Log("info", "server stopped", nil)
}
