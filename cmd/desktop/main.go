// Package main provides the embedded sync server for desktop platforms.
// Desktop clients communicate via REST/WebSocket on localhost:8090.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/salespilot/core/cmd/desktop/handlers"
	"github.com/salespilot/core/internal/db"
	"github.com/salespilot/core/internal/logging"
	"github.com/salespilot/core/internal/remote"
	syncengine "github.com/salespilot/core/internal/sync"
)

func main() {
	logging.Init(os.Stdout, logLevel())

	cfg := loadConfig()

	database, err := db.Open(cfg.dataDir)
	if err != nil {
		logging.Error("failed to open database", err, map[string]interface{}{"data_dir": cfg.dataDir})
		os.Exit(1)
	}
	defer database.Close()

	store := db.NewStore(database)
	if err := store.Init(); err != nil {
		logging.Error("failed to initialize storage", err, nil)
		os.Exit(1)
	}

	client := remote.NewClient(&remote.Config{
		BaseURL: cfg.remoteURL,
		APIKey:  cfg.remoteKey,
	})

	hub := NewWSHub()

	engine := syncengine.New(syncengine.Config{
		Storage:       store,
		Handlers:      syncengine.DefaultHandlers(client),
		Events:        NewSyncEventBridge(hub),
		Conflicts:     store,
		FlushInterval: cfg.syncInterval,
	})
	defer engine.StopPeriodicSync()

	syncHandler := handlers.NewSyncHandler(engine)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/sync/status", syncHandler.GetStatus)
	mux.HandleFunc("/api/sync/now", syncHandler.TriggerSync)
	mux.HandleFunc("/api/sync/queue", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			syncHandler.QueueOperation(w, r)
		case http.MethodDelete:
			syncHandler.ClearQueue(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/sync/cleanup", syncHandler.Cleanup)
	mux.HandleFunc("/ws", HandleWebSocket(hub))
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"salespilot-desktop"}`))
	})

	server := &http.Server{
		Addr:    ":" + cfg.port,
		Handler: mux,
	}

	go func() {
		logging.Info("desktop sync server starting", map[string]interface{}{"port": cfg.port})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("server failed", err, nil)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logging.Info("shutting down", nil)
	engine.StopPeriodicSync()
	server.Close()
}

type config struct {
	dataDir      string
	port         string
	remoteURL    string
	remoteKey    string
	syncInterval time.Duration
}

// loadConfig reads the environment. Every knob has a local-dev default.
func loadConfig() config {
	cfg := config{
		dataDir:   envOr("DB_PATH", "./data"),
		port:      envOr("PORT", "8090"),
		remoteURL: envOr("REMOTE_API_URL", "http://localhost:8000"),
		remoteKey: os.Getenv("REMOTE_API_KEY"),
	}

	if raw := os.Getenv("SYNC_INTERVAL"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			logging.Warn("invalid SYNC_INTERVAL, using default",
				map[string]interface{}{"value": raw})
		} else {
			cfg.syncInterval = time.Duration(seconds) * time.Second
		}
	}

	return cfg
}

func logLevel() logging.LogLevel {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
