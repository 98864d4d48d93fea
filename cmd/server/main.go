package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/sketchdeck/sketchdeck/internal/api"
	"github.com/sketchdeck/sketchdeck/internal/auth"
	"github.com/sketchdeck/sketchdeck/internal/config"
	"github.com/sketchdeck/sketchdeck/internal/db"
	"github.com/sketchdeck/sketchdeck/internal/logging"
	"github.com/sketchdeck/sketchdeck/internal/metrics"
	"github.com/sketchdeck/sketchdeck/internal/retention"
	"github.com/sketchdeck/sketchdeck/internal/ws"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sketchdeck",
		Short: "Real-time collaborative canvas server",
	}

	var configPath string
	var verbose bool

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the broker and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(configPath, verbose)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	serveCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sketchdeck %s (%s)\n", Version, GitCommit)
		},
	}

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate config without starting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config validation failed: %w", err)
			}
			fmt.Println("Configuration is valid.")
			fmt.Printf("  Listen:   %s\n", cfg.Server.ListenAddress)
			fmt.Printf("  Database: %s\n", cfg.Server.DatabasePath)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(serveCmd, versionCmd, validateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(configPath string, verbose bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	lj := logging.Setup(cfg.Logging)
	if lj != nil {
		defer lj.Close()
	}

	slog.Info("starting sketchdeck server",
		"version", Version,
		"listen", cfg.Server.ListenAddress,
		"database", cfg.Server.DatabasePath,
	)

	database, err := db.New(cfg.Server.DatabasePath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer database.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	authSvc := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	hub := ws.NewHub(database, m)
	go hub.Run()

	pruner := retention.New(database, retention.Config{
		Interval:  cfg.History.RetentionInterval,
		KeepCount: cfg.History.Limit,
	})
	pruner.Start()
	defer pruner.Stop()

	wsOpts := ws.Options{
		WriteWait:         cfg.Server.WriteTimeout,
		PongWait:          cfg.Server.PongTimeout,
		MaxMessageSize:    cfg.Server.MaxMessageSize,
		MessagesPerSecond: cfg.Server.MessagesPerSecond,
		MessageBurst:      cfg.Server.MessageBurst,
	}

	apiHandler := api.New(hub, database, authSvc, cfg.History.Limit)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(hub, authSvc, wsOpts, w, r)
	})
	if cfg.Monitoring.MetricsEnabled {
		mux.Handle(cfg.Monitoring.MetricsEndpoint, promhttp.Handler())
	}
	mux.Handle("/", apiHandler.Router())

	server := &http.Server{
		Addr:    cfg.Server.ListenAddress,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "address", cfg.Server.ListenAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	daemon.SdNotify(false, daemon.SdNotifyReady)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}

	return nil
}
