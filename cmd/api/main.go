package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"itinera/internal/api"
	"itinera/internal/config"
	"itinera/internal/database"
	"itinera/internal/document"
	"itinera/internal/domain"
	"itinera/internal/events"
	"itinera/internal/generator"
	"itinera/internal/google"
	"itinera/internal/logging"
	"itinera/internal/metrics"
	"itinera/internal/notify"
	"itinera/internal/repository"
	"itinera/internal/service"
	"itinera/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}
	drafts := initDraftStore(cfg, redisClient, &logger)

	gen, err := initGenerator(cfg, &logger)
	if err != nil {
		return err
	}

	sheetsService := initGoogleSheets(ctx, cfg, &logger)
	notifier := initNotifier(cfg, &logger)

	retryPolicy := worker.RetryPolicy{
		MaxRetries:    cfg.Worker.MaxRetries,
		InitialDelay:  time.Duration(cfg.Worker.InitialDelaySeconds) * time.Second,
		MaxDelay:      time.Duration(cfg.Worker.MaxDelaySeconds) * time.Second,
		BackoffFactor: 2,
	}
	var sheetsWriter domain.SheetsWriter
	if sheetsService != nil {
		sheetsWriter = sheetsService
	}
	outbox := worker.NewOutboxWorker(db, sheetsWriter, notifier, redisClient, retryPolicy, &logger)
	go outbox.Start(ctx)

	eventBus := events.NewEventBus()
	hub := api.NewHub(cfg.API.CORS.AllowedOrigins, &logger)
	hub.Attach(eventBus)

	itineraries := service.NewItineraryService(db, gen, eventBus, outbox, drafts, service.ItineraryServiceConfig{
		PublicBaseURL: cfg.API.PublicBaseURL,
		CommentLimit:  cfg.Drafts.CommentLimit,
		CommentWindow: time.Duration(cfg.Drafts.CommentWindowSeconds) * time.Second,
	}, &logger)
	draftService := service.NewDraftService(drafts, itineraries, &logger)

	exporter := initExporter(cfg, &logger)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, &logger)
		go func() {
			if err := backupService.Start(ctx); err != nil {
				logger.Error().Err(err).Msg("backup service stopped")
			}
		}()
	}

	httpServer := api.NewHTTPServer(cfg.API, api.Deps{
		Itineraries: itineraries,
		Drafts:      draftService,
		Exporter:    exporter,
		Hub:         hub,
		Ping:        db.PingContext,
	}, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, db.PingContext, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initDraftStore prefers redis and keeps an in-memory copy to fall back to.
func initDraftStore(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.DraftRepository {
	ttl := time.Duration(cfg.Drafts.TTLSeconds) * time.Second
	memory := repository.NewMemoryDraftRepository(ttl)
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverDraftRepository(repository.NewRedisDraftRepository(redisClient, ttl), memory, logger)
}

func initGenerator(cfg *config.Config, logger *zerolog.Logger) (generator.Generator, error) {
	content := generator.DefaultContent()
	if cfg.Generator.ContentFile != "" {
		loaded, err := generator.LoadContent(cfg.Generator.ContentFile)
		if err != nil {
			logger.Error().Err(err).Str("content_file", cfg.Generator.ContentFile).Msg("load generator content")
			return nil, err
		}
		content = loaded
	}
	return generator.NewTemplateGenerator(content), nil
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.ItinerariesSpreadSheet == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx,
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.ItinerariesSpreadSheet,
		cfg.API.PublicBaseURL,
		logger,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}
	if err := sheetsService.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets header setup failed")
	}
	if err := sheetsService.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}
	go sheetsService.RunCacheRefresh(ctx, time.Hour)

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.Notifier {
	var channels []domain.Notifier

	tg := cfg.Notifications.Telegram
	if tg.BotToken != "" {
		bot, err := notify.NewTelegramBot(tg)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram notifications")
		} else {
			channels = append(channels, notify.NewTelegramNotifier(bot, tg.ChatID))
		}
	}

	if cfg.Notifications.Email.Host != "" {
		channels = append(channels, notify.NewEmailNotifier(cfg.Notifications.Email))
	}

	multi := notify.NewMulti(logger, channels...)
	if !multi.Enabled() {
		return nil
	}
	return multi
}

func initExporter(cfg *config.Config, logger *zerolog.Logger) *document.Exporter {
	timeout := time.Duration(cfg.Document.ImageTimeoutSeconds) * time.Second
	images := document.NewImageFetcher(timeout, cfg.Document.MaxImageBytes, logger)

	var raster document.Rasterizer
	if cfg.Document.RasterizerURL != "" {
		raster = document.NewHTTPRasterizer(cfg.Document.RasterizerURL, 30*time.Second)
	}
	return document.NewExporter(images, raster, logger)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		grpcServer.RefreshHealth(ctx)
		go grpcServer.WatchHealth(ctx, 30*time.Second)
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Bool("grpc", grpcServer != nil).Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
