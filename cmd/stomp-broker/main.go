package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/auth"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/connection"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/database"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/event"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/metrics"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/protocol"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/server"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath string
	port       int
	mode       string
)

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json", "path to the JSON configuration file")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on, overrides the configuration")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "", "execution strategy, tpc or reactor")
}

var (
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of stomp-broker",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("stomp-broker version %s\n", version)
		},
	}

	rootCmd = &cobra.Command{
		Use:   "stomp-broker [port] [tpc|reactor]",
		Short: "STOMP message broker",
		Long:  `stomp-broker accepts STOMP clients, authenticates them and fans published messages out to channel subscribers`,
		Args:  cobra.MaximumNArgs(2),
		RunE:  run,
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyArgs lets positional arguments and flags override the file and environment.
func applyArgs(cfg *config.Config, args []string) error {
	if len(args) > 0 {
		p, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", args[0], err)
		}
		cfg.Server.Port = p
	}
	if len(args) > 1 {
		cfg.Server.Mode = args[1]
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if mode != "" {
		cfg.Server.Mode = mode
	}
	return cfg.Validate()
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.ReadConfig(configPath)
	created := errors.Is(err, config.ErrConfigCreated)
	if err != nil && !created {
		return fmt.Errorf("error occured while reading config: %w", err)
	}
	if err := applyArgs(&cfg, args); err != nil {
		return err
	}

	loggerCallback := logger.Init(logger.Options{
		Dir:       cfg.Log.Dir,
		Retention: config.Duration(cfg.Log.Retention),
		Debug:     cfg.DebugMode,
	})
	logger.Debug("Application initializing...")
	if created {
		logger.WarnF("Configuration file %s did not exist, created it with defaults", configPath)
	}
	cleaner := event.NewCleaner(loggerCallback, 10*time.Second)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
	}
	registry := connection.NewRegistry(m)

	deps, closeDatabase, err := buildDependencies(cmd.Context(), cfg)
	if err != nil {
		logger.FatalF("Error occured while initializing database, details: %v", err)
		cleaner.Clean()
		return err
	}
	deps.Metrics = m

	srv, err := server.New(cfg.Server.Mode, registry, deps, server.Options{
		Addr:           net.JoinHostPort("", strconv.Itoa(cfg.Server.Port)),
		ReadTimeout:    config.Duration(cfg.Server.ReadTimeout),
		WriteTimeout:   config.Duration(cfg.Server.WriteTimeout),
		MaxConnections: cfg.Server.MaxConnections,
		Workers:        cfg.Server.Workers,
	})
	if err != nil {
		cleaner.Clean()
		return err
	}
	cleaner.Add(event.CallableFunc(srv.Shutdown))
	if closeDatabase != nil {
		cleaner.Add(closeDatabase)
	}
	if m != nil {
		startMetricsServer(cfg.Metrics.Addr, m, cleaner)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, server.ErrServerClosed) {
			logger.ErrorF("STOMP Server Start error: %v", err)
		}
		cancel()
	}()

	if errs := cleaner.Wait(ctx); len(errs) > 0 {
		return fmt.Errorf("%d errors occurred during cleanup", len(errs))
	}
	return nil
}

// buildDependencies wires the user store for the configured auth backend. The returned
// callable closes the database and is nil for the memory backend.
func buildDependencies(ctx context.Context, cfg config.Config) (protocol.Dependencies, event.Callable, error) {
	var (
		users   auth.UserRepository
		history auth.LoginHistory
		reports protocol.ReportTracker
		closer  event.Callable
	)

	switch cfg.Auth.Backend {
	case config.BackendMongo:
		db, err := database.ConnectDatabase(ctx, cfg.Database, cfg.AppName)
		if err != nil {
			return protocol.Dependencies{}, nil, err
		}
		store := database.NewUserStore(db)
		users = database.NewCachedUsers(store, cfg.Auth.CacheSize, config.Duration(cfg.Auth.CacheTTL))
		history = store
		reports = store
		closer = db
	default:
		users = auth.NewMemoryUsers()
	}

	authenticator := auth.NewAuthenticator(users, auth.Options{
		BcryptCost:       cfg.Auth.BcryptCost,
		OperationTimeout: config.Duration(cfg.Database.OperationTimeout),
		History:          history,
	})
	logger.InfoF("Using %s auth backend", cfg.Auth.Backend)

	return protocol.Dependencies{
		Auth:       authenticator,
		MessageIDs: &protocol.MessageIDs{},
		Reports:    reports,
	}, closer, nil
}

func startMetricsServer(addr string, m *metrics.Metrics, cleaner *event.Cleaner) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	httpServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.InfoF("Metrics server listen on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorF("Metrics server error: %v", err)
		}
	}()
	cleaner.Add(event.CallableFunc(httpServer.Shutdown))
}
