package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/depotgate/internal/api"
	"github.com/zjrosen/depotgate/internal/config"
	"github.com/zjrosen/depotgate/internal/depot"
	"github.com/zjrosen/depotgate/internal/flags"
	"github.com/zjrosen/depotgate/internal/infrastructure/sqlite"
	"github.com/zjrosen/depotgate/internal/log"
	"github.com/zjrosen/depotgate/internal/sink"
	"github.com/zjrosen/depotgate/internal/storage"
	"github.com/zjrosen/depotgate/internal/tracing"
	"github.com/zjrosen/depotgate/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the depot daemon",
	Long: `Run the depot as a daemon that exposes an HTTP API for staging
artifacts, declaring deliverables, and shipping them to configured
destinations.

The daemon listens on the configured address (default: 127.0.0.1:7420).

Example:
  depotgate serve                  # Start on the configured address
  depotgate serve --addr :8080     # Start on port 8080`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides config)")
}

func runServe(_ *cobra.Command, _ []string) error {
	// Initialize logging if debug mode enabled (via flag or env var)
	debug := os.Getenv("DEPOTGATE_DEBUG") != "" || debugFlag
	if debug {
		logPath := os.Getenv("DEPOTGATE_LOG")
		if logPath == "" {
			logPath = "debug.log"
		}

		cleanup, err := log.Init(logPath)
		if err != nil {
			return fmt.Errorf("initializing logging: %w", err)
		}
		defer cleanup()

		log.Info(log.CatConfig, "depotgate daemon starting", "debug", true, "logPath", logPath)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Tracing provider (no-op unless enabled in config)
	provider, err := tracing.NewProvider(tracingFromConfig(cfg.Tracing))
	if err != nil {
		return fmt.Errorf("creating trace provider: %w", err)
	}

	// Open the two databases: mutable metadata and the append-only
	// receipt log
	metaDB, err := sqlite.NewMetadataDB(cfg.Database.MetadataPath)
	if err != nil {
		return fmt.Errorf("opening metadata database: %w", err)
	}
	defer func() { _ = metaDB.Close() }()

	receiptsDB, err := sqlite.NewReceiptsDB(cfg.Database.ReceiptsPath)
	if err != nil {
		return fmt.Errorf("opening receipts database: %w", err)
	}
	defer func() { _ = receiptsDB.Close() }()

	// Payload storage
	backend, err := storage.NewFilesystemBackend(cfg.Storage.BasePath, cfg.Storage.MaxArtifactBytes)
	if err != nil {
		return fmt.Errorf("creating storage backend: %w", err)
	}
	registry := storage.NewRegistry(backend)

	// Outbound sinks
	selector, err := newSinkSelector(cfg.Sinks)
	if err != nil {
		return fmt.Errorf("creating sinks: %w", err)
	}

	// Depot services
	receipts := depot.NewReceiptLog(receiptsDB.ReceiptRepository())
	defer receipts.Close()

	staging := depot.NewStagingService(registry, "fs", metaDB.ArtifactRepository(), receipts)
	deliverables := depot.NewDeliverableService(
		metaDB.DeliverableRepository(), metaDB.ArtifactRepository(),
		metaDB.RequirementMarkRepository(), selector)
	shipping := depot.NewShippingService(
		metaDB.DeliverableRepository(), metaDB.ArtifactRepository(),
		metaDB.ManifestRepository(), metaDB.RequirementMarkRepository(),
		metaDB.ShipmentCommitter(), registry, selector, receipts)

	// Handle shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Watch the metadata database for external writes and drop the
	// pointer cache when one lands. Opt-in via feature flag: most
	// deployments have a single writer.
	flagRegistry := flags.New(cfg.Flags)
	if flagRegistry.Enabled(flags.FlagMetadataWatcher) {
		dbWatcher, err := watcher.New(watcher.DefaultConfig(cfg.Database.MetadataPath))
		if err != nil {
			return fmt.Errorf("creating database watcher: %w", err)
		}
		changes, err := dbWatcher.Start()
		if err != nil {
			return fmt.Errorf("starting database watcher: %w", err)
		}
		defer func() { _ = dbWatcher.Stop() }()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-changes:
					if !ok {
						return
					}
					log.Info(log.CatWatcher, "metadata database changed externally, flushing pointer cache")
					staging.FlushPointerCache(ctx)
				}
			}
		}()
	}

	// Determine API server address
	// Priority: --addr flag > config server host:port
	addr := serveAddr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	var tracer trace.Tracer
	if provider.Enabled() {
		tracer = provider.Tracer()
	}

	server, err := api.NewServer(api.ServerConfig{
		Addr: addr,
		Handler: api.HandlerConfig{
			TenantID:     cfg.TenantID,
			Staging:      staging,
			Deliverables: deliverables,
			Shipping:     shipping,
			Receipts:     receipts,
		},
		Tracer: tracer,
		Auth: api.AuthConfig{
			APIKey:           cfg.Server.APIKey,
			AllowInsecureDev: cfg.Server.AllowInsecureDev,
		},
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if cfg.Server.APIKey == "" && !cfg.Server.AllowInsecureDev {
		fmt.Println("warning: no API key configured; every authenticated request will be rejected (set DEPOTGATE_API_KEY or server.api_key)")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("depotgate started on port %d (tenant %s)\n", server.Port(), cfg.TenantID)
	fmt.Println("Press Ctrl+C to stop")

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.ErrorErr(log.CatAPI, "error stopping API server", err)
	}

	// Flush pending spans before exit
	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.ErrorErr(log.CatConfig, "error shutting down trace provider", err)
	}

	fmt.Println("Daemon stopped")
	return nil
}

// newSinkSelector builds the sink selector from the enabled schemes.
// http and https share one sink; the scheme survives in the destination
// URI the sink receives.
func newSinkSelector(sinks config.SinkConfig) (*sink.Selector, error) {
	enabled := make(map[string]sink.Sink, len(sinks.Enabled))

	var httpSink *sink.HTTPSink
	for _, scheme := range sinks.Enabled {
		switch scheme {
		case "fs":
			fsSink, err := sink.NewFilesystemSink(sinks.FilesystemBase)
			if err != nil {
				return nil, fmt.Errorf("creating filesystem sink: %w", err)
			}
			enabled[scheme] = fsSink
		case "http", "https":
			if httpSink == nil {
				timeout := time.Duration(sinks.HTTPTimeoutSeconds) * time.Second
				httpSink = sink.NewHTTPSink(&http.Client{Timeout: timeout})
			}
			enabled[scheme] = httpSink
		default:
			return nil, fmt.Errorf("unsupported sink scheme %q", scheme)
		}
	}

	return sink.NewSelector(enabled), nil
}

// tracingFromConfig maps the config section onto the tracing subsystem,
// filling in the default trace file path when none is set.
func tracingFromConfig(tc config.TracingConfig) tracing.Config {
	out := tracing.Config{
		Enabled:      tc.Enabled,
		Exporter:     tc.Exporter,
		FilePath:     tc.FilePath,
		OTLPEndpoint: tc.OTLPEndpoint,
		SampleRate:   tc.SampleRate,
		ServiceName:  "depotgate",
	}
	if out.Exporter == "file" && out.FilePath == "" {
		out.FilePath = config.DefaultTracesFilePath()
	}
	return out
}
