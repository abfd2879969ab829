package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/sessionrelay/internal/adapter/llm"
	"github.com/xiaot623/gogo/sessionrelay/internal/config"
	"github.com/xiaot623/gogo/sessionrelay/internal/hub"
	"github.com/xiaot623/gogo/sessionrelay/internal/logger"
	"github.com/xiaot623/gogo/sessionrelay/internal/metrics"
	"github.com/xiaot623/gogo/sessionrelay/internal/relay"
	"github.com/xiaot623/gogo/sessionrelay/internal/service"
	"github.com/xiaot623/gogo/sessionrelay/internal/store"
	transport "github.com/xiaot623/gogo/sessionrelay/internal/transport/http"
	"github.com/xiaot623/gogo/sessionrelay/policy"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session API server",
	Long: `Run the session API server until SIGINT or SIGTERM.
In-flight requests are given SHUTDOWN_TIMEOUT_MS to finish.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	log := logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Pretty:    cfg.LogPretty,
		Redaction: true,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info().
		Int("port", cfg.HTTPPort).
		Str("llm_base_url", cfg.LLMBaseURL).
		Bool("mock_relay", cfg.MockRelay()).
		Bool("archive", cfg.ArchiveEnabled()).
		Msg("Starting session relay")

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := a.server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	}

	log.Info().Msg("Shutting down session relay...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown server gracefully")
	}

	log.Info().Msg("Session relay stopped")
	return nil
}

// app is the wired service graph behind the server.
type app struct {
	server  *echo.Echo
	service *service.Service
	hub     *hub.Hub
	archive *store.SQLiteArchive

	stopHub context.CancelFunc
}

// newApp wires every component from cfg. The live feed hub runs until
// ctx is done or Close is called.
func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.NewMetrics()
	}

	policyEngine, err := policy.LoadEngine(ctx, cfg.PolicyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	a := &app{}

	// A nil *SQLiteArchive must not reach the service as a non-nil interface.
	var archive service.Archiver
	if cfg.ArchiveEnabled() {
		a.archive, err = store.NewSQLiteArchive(cfg.ArchiveDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize archive: %w", err)
		}
		archive = a.archive
	}

	client := llm.NewLLMClient(cfg.RelayMode, cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)
	completionRelay := relay.New(client, relay.Config{
		Timeout:    cfg.LLMTimeout,
		MaxRetries: cfg.RelayMaxRetries,
		Backoff:    cfg.RelayBackoff,
	}, m, log)

	a.hub = hub.New(hub.Options{
		PingInterval: cfg.WSPingInterval,
		WriteTimeout: cfg.WSWriteTimeout,
	}, m, log)
	hubCtx, stopHub := context.WithCancel(ctx)
	a.stopHub = stopHub
	go a.hub.Run(hubCtx)

	a.service = service.New(store.NewMemoryStore(), completionRelay, policyEngine, archive, a.hub, m, log)
	a.server = transport.NewServer(a.service, a.hub, m, log)
	return a, nil
}

// Close stops the hub and closes the archive.
func (a *app) Close() error {
	a.stopHub()
	if a.archive != nil {
		return a.archive.Close()
	}
	return nil
}
