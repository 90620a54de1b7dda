package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/echotrails/native/internal/cleanup"
	"github.com/echotrails/native/internal/command"
	"github.com/echotrails/native/internal/config"
	"github.com/echotrails/native/internal/events"
	"github.com/echotrails/native/internal/fsaccess"
	"github.com/echotrails/native/internal/http/rest"
	"github.com/echotrails/native/internal/logctx"
	"github.com/echotrails/native/internal/notifier"
	"github.com/echotrails/native/internal/platform"
	"github.com/echotrails/native/internal/storage"
	"github.com/echotrails/native/internal/storage/sqlite"
	"github.com/echotrails/native/internal/telemetry"
	"github.com/echotrails/native/internal/transfer"
	"github.com/go-chi/chi/v5"
	slogmulti "github.com/samber/slog-multi"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

// run serves the command API when args is empty and otherwise executes the
// single command named by args.
func run(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) error {
	hub := events.NewHub()
	cliMode := len(args) > 0

	logOut := stdout

	var emitter events.Emitter = hub

	if cliMode {
		logOut = stderr
		emitter = newStreamEmitter(stderr)
	}

	logger := newLogger(cfg, logOut, hub)
	slog.SetDefault(logger)
	ctx = logctx.WithLogger(ctx, logger)

	logger.Info("echo-trails native starting...", "log_level", cfg.LogLevel, "version", version, "cache_dir", cfg.CacheDir)

	a, err := setup(ctx, cfg, emitter, hub)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	if cliMode {
		return runCommand(ctx, a.svc, args, stdout, stderr)
	}

	return serve(ctx, a)
}

// newLogger fans records out to the JSON stream and to the webview.
func newLogger(cfg *config.Config, w io.Writer, webview events.Emitter) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		logctx.NewTraceHandler(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()})),
		events.NewLogHandler(webview, cfg.WebviewSlogLevel()),
	))
}

type app struct {
	cfg  *config.Config
	tel  *telemetry.Telemetry
	db   *sql.DB
	repo storage.TransferRepository
	hub  *events.Hub
	svc  *command.Service
}

func setup(ctx context.Context, cfg *config.Config, emitter events.Emitter, hub *events.Hub) (*app, error) {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	// =========================================================================
	// Start Database
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	dbPath := cfg.DBPath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(cfg.CacheDir, dbPath)
	}

	database, err := sqlite.InitDB(dbPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return nil, err
	}

	repo := sqlite.NewInstrumentedTransferRepository(database, tel)

	// =========================================================================
	// Start Platform Collaborators
	local, err := platform.NewLocalMetadataProvider(cfg.DigestCacheSize)
	if err != nil {
		database.Close()

		return nil, err
	}

	resolvers := fsaccess.Chain{&fsaccess.ScopedResolver{Roots: cfg.AllowedScopes}}

	var bridge platform.Bridge
	if cfg.PlatformBridgeURL != "" {
		hb := platform.NewHTTPBridge(cfg.PlatformBridgeURL, tel.HTTPClient())
		bridge = hb
		resolvers = append(resolvers, hb)
	}

	metadata := platform.Detect(ctx, bridge, local)

	// =========================================================================
	// Start Notification
	var notif notifier.Notifier = notifier.Nop{}
	if cfg.NotifyWebhookURL != "" {
		notif = notifier.NewWebhookNotifier(cfg.NotifyWebhookURL, tel.HTTPClient())
	}

	// =========================================================================
	// Start Transfers
	ev := events.NewNotifier(emitter)

	svc := command.NewService(
		transfer.NewDownloader(tel.HTTPClient(), ev, tel, cfg.ChunkSize),
		transfer.NewUploader(tel.HTTPClient(), resolvers, ev, tel),
		metadata,
		repo,
		ev,
		notif,
		cfg.CacheDir,
	).WithPictures(platform.NewPictures(cfg.PicturesDir))

	return &app{
		cfg:  cfg,
		tel:  tel,
		db:   database,
		repo: repo,
		hub:  hub,
		svc:  svc,
	}, nil
}

func (a *app) Close(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)

	if err := a.db.Close(); err != nil {
		logger.Error("failed to close database", "err", err)
	}

	if err := a.tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
		logger.Error("failed to shutdown telemetry", "err", err)
	}
}

func serve(ctx context.Context, a *app) error {
	logger := logctx.LoggerFromContext(ctx)

	server := setupServer(ctx, a)
	cleaner := cleanup.NewCleaner(a.repo, a.cfg.CacheDir, a.cfg.KeepDownloadedFor)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", a.cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		logger.Info("cache cleanup scheduled", "interval", a.cfg.CleanupInterval.String(), "retention", a.cfg.KeepDownloadedFor.String())

		return cleaner.Run(gctx, a.cfg.CleanupInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	})

	return g.Wait()
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(ctx context.Context, a *app) *http.Server {
	r := chi.NewRouter()
	r.Use(telemetry.RequestID, telemetry.HTTPLogging, telemetry.NewHTTPMiddleware(a.tel).Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", a.tel.Handler())
	r.Handle("/events", a.hub)
	r.Mount("/", rest.NewCommandHandler(a.svc).Routes())

	return &http.Server{
		Addr:         a.cfg.Web.BindAddress,
		ReadTimeout:  a.cfg.Web.ReadTimeout,
		WriteTimeout: a.cfg.Web.WriteTimeout,
		IdleTimeout:  a.cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
