package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/astro-tavern/backend/internal/config"
	"github.com/zhouzirui/astro-tavern/backend/internal/handler"
	"github.com/zhouzirui/astro-tavern/backend/internal/observability"
	"github.com/zhouzirui/astro-tavern/backend/internal/service/ai"
	"github.com/zhouzirui/astro-tavern/backend/internal/service/astro"
	"github.com/zhouzirui/astro-tavern/backend/internal/service/chat"
	"github.com/zhouzirui/astro-tavern/backend/internal/service/geo"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		newLogger("info").Fatal("failed to load configuration", zap.Error(err))
	}

	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Info("no .env file loaded, continuing with system environment variables only", zap.Error(envErr))
	}

	httpClient := &http.Client{Timeout: 15 * time.Second}
	metrics := observability.NewMetrics(cfg.Server.MetricsNamespace)

	geocoder := geo.NewClient(cfg.Geocode, httpClient, logger.Named("opencage"))
	charts := astro.NewClient(cfg.Chart, httpClient, logger.Named("prokerala"))

	modelGateway, err := ai.NewGateway(ctx, cfg.AI, logger.Named("model"))
	if err != nil {
		logger.Fatal("failed to initialize model gateway", zap.String("provider", cfg.AI.Provider), zap.Error(err))
	}
	logger.Info("model gateway initialized", zap.String("provider", cfg.AI.Provider))

	store, err := chat.NewStore(ctx, cfg.Session.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open session store", zap.Error(err))
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				logger.Warn("failed to close session store", zap.Error(err))
			}
		}()
	}

	chatSvc := chat.NewService(chat.Options{
		Store:          store,
		Timezones:      geocoder,
		Charts:         charts,
		Model:          modelGateway,
		HistoryCeiling: cfg.Session.HistoryCeiling,
		ModelTimeout:   cfg.AI.Timeout,
		Retention:      cfg.Session.Retention,
		Logger:         logger.Named("chat"),
		Metrics:        metrics,
	})

	reaper := chat.NewReaper(store, cfg.Session.Retention, cfg.Session.ReapInterval, logger.Named("reaper"), metrics)
	go reaper.Run(ctx)

	router := handler.NewRouter(handler.Deps{
		Chat:    chatSvc,
		Cities:  geocoder,
		Metrics: metrics,
		Logger:  logger.Named("http"),
	})

	startServer(ctx, cfg.Server, router, logger)
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if level == "debug" {
		zcfg = zap.NewDevelopmentConfig()
	}
	if parsed, err := zap.ParseAtomicLevel(level); err == nil {
		zcfg.Level = parsed
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("astro tavern backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
