package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/resilient-net/internal/config"
	"github.com/Sternrassler/resilient-net/internal/server"
	"github.com/Sternrassler/resilient-net/pkg/connectivity"
	"github.com/Sternrassler/resilient-net/pkg/flags"
	"github.com/Sternrassler/resilient-net/pkg/logging"
	"github.com/Sternrassler/resilient-net/pkg/offline"
	"github.com/Sternrassler/resilient-net/pkg/queue"
	"github.com/Sternrassler/resilient-net/pkg/transport"
	"github.com/fsnotify/fsnotify"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the proxy server",
	Long: `Run the proxy in the foreground.

Requests to /proxy/<path> are forwarded to upstream.base_url/<path>. While
offline, non-GET requests answer 202 Accepted and are replayed once the
upstream is reachable again.

Examples:
  # Start with a config file
  netproxy serve --config /etc/netproxy/config.yaml

  # Override settings from the environment
  NETPROXY_UPSTREAM_BASE_URL=https://api.example.com NETPROXY_QUEUE_BACKEND=sqlite \
  NETPROXY_QUEUE_PATH=/var/lib/netproxy/queue.db netproxy serve`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	config.Version = Version

	cfg, v, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if cfg.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required to serve")
	}

	logger := logging.Setup(cfg.Logging.LoggerConfig("netproxy"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	persistence, err := queue.Open(cfg.Queue.PersistenceConfig())
	if err != nil {
		return fmt.Errorf("open queue persistence: %w", err)
	}
	if closer, ok := persistence.(io.Closer); ok {
		defer closer.Close()
	}

	orch, err := offline.New(offline.Config{
		Transport:   transport.NewHTTP(cfg.Upstream.TransportConfig()),
		Persistence: persistence,
		Flags:       flags.NewViper(v, "flags", true),
		CachePolicy: cfg.Cache.Policy(),
		RetryPolicy: cfg.Retry.Policy(),
		Online:      cfg.Connectivity.StartOnline,
	})
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	restored, err := orch.Restore(ctx)
	if err != nil {
		return fmt.Errorf("restore queue: %w", err)
	}

	logger.Info().
		Str("upstream", cfg.Upstream.BaseURL).
		Str("queue_backend", cfg.Queue.Backend).
		Int("restored", restored).
		Bool("online", orch.Online()).
		Msg("Orchestrator ready")

	if configFile != "" {
		watchConfig(v, logger)
	}

	if cfg.Connectivity.Enabled {
		monitor, err := newMonitor(cfg, orch)
		if err != nil {
			return err
		}
		go monitor.Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(orch, logging.NewLogger("server"), 0).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("Starting netproxy server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}
	if err := orch.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Int("queue_len", orch.QueueLen()).Msg("Background work still running at shutdown")
	}

	logger.Info().Int("queue_len", orch.QueueLen()).Msg("netproxy stopped")
	return nil
}

// watchConfig reloads the config file on change. Flags are read from v on
// every request, so a reload flips them without a restart.
func watchConfig(v *viper.Viper, logger zerolog.Logger) {
	v.OnConfigChange(func(e fsnotify.Event) {
		logger.Info().
			Str("file", e.Name).
			Str("op", e.Op.String()).
			Bool("offline_support", v.GetBool("flags."+offline.FlagOfflineSupport)).
			Msg("Config file changed, flags reloaded")
	})
	v.WatchConfig()
}

func newMonitor(cfg *config.Config, orch *offline.Orchestrator) (*connectivity.Monitor, error) {
	var opts []connectivity.Option
	if cfg.Connectivity.ShareState {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		opts = append(opts, connectivity.WithStateStore(connectivity.NewRedisStore(client, "")))
	}

	monitor, err := connectivity.NewMonitor(
		connectivity.NewHTTPProbe(cfg.ProbeTarget(), &http.Client{Timeout: cfg.Connectivity.Timeout}),
		orch,
		cfg.Connectivity.MonitorConfig(),
		logging.NewLogger("connectivity"),
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("create connectivity monitor: %w", err)
	}
	return monitor, nil
}
