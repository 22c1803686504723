// Package main is the entry point for the DMX to OSC bridge.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/bbernstein/dmx-osc-bridge/internal/config"
	"github.com/bbernstein/dmx-osc-bridge/internal/logging"
	"github.com/bbernstein/dmx-osc-bridge/internal/services/bridge"
	"github.com/bbernstein/dmx-osc-bridge/internal/services/events"
	"github.com/bbernstein/dmx-osc-bridge/internal/services/forwarder"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// eventBufferSize bounds the events held for the log sink. A frame against an
// unreachable console produces one event per channel.
const eventBufferSize = 4096

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	printBanner(cfg)

	fwd, err := forwarder.Dial(cfg.OSCHost, cfg.OSCPort)
	if err != nil {
		log.Fatalf("Failed to create OSC forwarder: %v", err)
	}

	bus := events.New()
	sub := bus.Subscribe(events.TopicAll, "", eventBufferSize)
	go logEvents(sub)

	stats := &bridge.Stats{}
	handler := bridge.NewHandler(bridge.HandlerConfig{
		Universe: cfg.DMXUniverse,
		Sender:   fwd,
		Reporter: bus,
		Stats:    stats,
		Bundle:   cfg.OSCBundle,
	})
	acceptor := bridge.NewAcceptor(handler, bus)

	router := newRouter(cfg, acceptor, statusHandler(stats, fwd.RemoteAddr(), time.Now()))

	// Bind before serving so a busy port is a startup failure
	listener, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		log.Fatalf("Failed to bind WebSocket server: %v", err)
	}

	// No read or write timeouts: idle WebSocket connections are held open indefinitely
	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("WebSocket server listening on ws://localhost:%d\n", cfg.WSPort)
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down bridge...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	acceptor.CloseAll()
	if err := fwd.Close(); err != nil {
		log.Printf("Failed to close OSC forwarder: %v", err)
	}
	bus.Unsubscribe(sub)

	log.Println("Bridge stopped")
}

// newRouter mounts the status endpoint and sends every other path to the WebSocket acceptor.
func newRouter(cfg *config.Config, acceptor http.Handler, status http.HandlerFunc) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{cfg.CORSOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		Debug:          cfg.IsDevelopment(),
	})

	router.With(corsMiddleware.Handler).Get("/health", status)
	router.Handle("/*", acceptor)

	return router
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status      string               `json:"status"`
	Timestamp   string               `json:"timestamp"`
	Version     string               `json:"version"`
	Uptime      string               `json:"uptime"`
	Destination string               `json:"destination"`
	Traffic     bridge.StatsSnapshot `json:"traffic"`
}

// statusHandler returns the bridge health and traffic counters.
func statusHandler(stats *bridge.Stats, destination string, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Version:     Version,
			Uptime:      time.Since(started).Round(time.Second).String(),
			Destination: destination,
			Traffic:     stats.Snapshot(),
		})
	}
}

// logEvents writes bridge events to the log until the subscription is closed.
func logEvents(sub *events.Subscriber) {
	for e := range sub.Channel {
		switch e.Topic {
		case events.TopicSendFailed:
			logging.Errorf("Failed to send OSC message: %s", e)
		case events.TopicEncodeFailed:
			logging.Errorf("Failed to encode OSC message: %s", e)
		case events.TopicHandshakeFailed:
			logging.Errorf("Failed to accept WebSocket connection: %s", e)
		case events.TopicFrameDropped:
			logging.Debugf("Dropped frame: %s", e)
		default:
			logging.Debugf("%s", e)
		}
	}
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	mode := "message per channel"
	if cfg.OSCBundle {
		mode = "bundle per frame"
	}

	fmt.Println("============================================")
	fmt.Println("  DMX to OSC Bridge")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  OSC host:     %s\n", cfg.OSCHost)
	fmt.Printf("  OSC port:     %d\n", cfg.OSCPort)
	fmt.Printf("  WS port:      %d\n", cfg.WSPort)
	fmt.Printf("  DMX universe: %s\n", cfg.DMXUniverse)
	fmt.Printf("  OSC mode:     %s\n", mode)
	fmt.Println("============================================")
}
