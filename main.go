package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"plugin-store/api"
	"plugin-store/catalog"
	"plugin-store/config"
	"plugin-store/metrics"
	"plugin-store/notifier"
	"plugin-store/orm"
	"plugin-store/ratelimit"
	"plugin-store/storage"
	"plugin-store/storage/filesystemStorage"
	"plugin-store/storage/memoryStorage"
	"plugin-store/storage/minioStorage"
	"plugin-store/storage/s3"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal().Err(err).Msg("plugin-store exited")
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	loadConfig := func() error {
		if err := config.Load(config.Cfg, configPath, config.Defaults...); err != nil {
			return err
		}
		config.InitLogger(config.Cfg)

		return nil
	}

	serve := func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runServer(ctx, config.Cfg)
	}

	root := &cobra.Command{
		Use:           "plugin-store",
		Short:         "Plugin catalog and release distribution service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  serve,
	}, &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := loadConfig(); err != nil {
				return err
			}
			db, err := orm.InitDB(config.Cfg)
			if err != nil {
				return err
			}
			closeResource("database", db)

			return nil
		},
	})

	return root
}

// runServer serves the API until ctx is cancelled, then shuts down gracefully.
func runServer(ctx context.Context, cfg *config.AppConfig) error {
	if cfg.ProductionEnvironment {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := orm.InitDB(cfg)
	if err != nil {
		return err
	}
	defer closeResource("database", db)

	store, err := initializeBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	limiter, checks, err := initializeRateLimiter(cfg)
	if err != nil {
		return err
	}
	if closer, ok := limiter.(io.Closer); ok {
		defer closeResource("rate limiter", closer)
	}
	checks = append([]api.ReadinessCheck{{
		Name:  "database",
		Check: func(context.Context) error { return db.Ping() },
	}}, checks...)

	uploader := storage.NewUploader(store, storage.RetryPolicy{
		Attempts:        cfg.Persistence.Retry.Attempts,
		InitialInterval: cfg.Persistence.Retry.InitialInterval,
	})
	images := storage.NewImageFetcher(cfg.Images.FetchRetries, cfg.Images.FetchTimeout)
	service := catalog.NewService(db, uploader, images, initializeNotifier(cfg), cfg.CDN.URL)

	server := api.NewServer(service, limiter, metrics.New(), api.Options{
		SubmitKey:      cfg.Auth.SubmitKey,
		CORSOrigin:     cfg.CORS.Origin,
		TrustedProxies: cfg.TrustedProxies,
	}, checks...)

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           server.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}

	return nil
}

func closeResource(name string, closer io.Closer) {
	if err := closer.Close(); err != nil {
		log.Warn().Err(err).Str("resource", name).Msg("failed to close")
		return
	}
	log.Debug().Str("resource", name).Msg("closed")
}

func initializeBlobStore(ctx context.Context, cfg *config.AppConfig) (storage.BlobStore, error) {
	switch cfg.Persistence.Type {
	case "s3":
		store, err := s3.New(cfg.Persistence.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 storage: %w", err)
		}
		log.Info().Str("bucket", cfg.Persistence.S3.Bucket).Msg("s3 storage initialized")

		return store, nil
	case "minio":
		store, err := minioStorage.New(ctx, cfg.Persistence.S3)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize minio storage: %w", err)
		}
		log.Info().Str("bucket", cfg.Persistence.S3.Bucket).Msg("minio storage initialized")

		return store, nil
	case "memory":
		log.Warn().Msg("memory storage initialized, blobs are lost on restart")

		return memoryStorage.New(), nil
	case "filesystem":
		return initFilesystemStore(cfg.Persistence.StorageDir)
	default:
		log.Warn().Msgf("unknown persistence type '%s', defaulting to filesystem", cfg.Persistence.Type)

		return initFilesystemStore(cfg.Persistence.StorageDir)
	}
}

func initFilesystemStore(dir string) (storage.BlobStore, error) {
	store, err := filesystemStorage.New(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize filesystem storage: %w", err)
	}
	log.Info().Str("storage_dir", store.BaseDir()).Msg("filesystem storage initialized")

	return store, nil
}

func initializeRateLimiter(cfg *config.AppConfig) (ratelimit.Limiter, []api.ReadinessCheck, error) {
	rate := ratelimit.Rate{Limit: cfg.RateLimit.IncrementsPerWindow, Window: cfg.RateLimit.Window}

	if cfg.RateLimit.RedisURL == "" {
		log.Info().Msg("using in-memory rate limiter")
		return ratelimit.NewMemoryLimiter(rate), nil, nil
	}

	limiter, err := ratelimit.NewRedisLimiterFromURL(cfg.RateLimit.RedisURL, rate)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize redis rate limiter: %w", err)
	}
	log.Info().Msg("using redis rate limiter")

	return limiter, []api.ReadinessCheck{{Name: "redis", Check: limiter.Ping}}, nil
}

func initializeNotifier(cfg *config.AppConfig) notifier.Notifier {
	if cfg.Announcements.WebhookURL == "" {
		log.Info().Msg("release announcements disabled")
		return notifier.Noop{}
	}

	discord, err := notifier.NewDiscord(
		cfg.Announcements.WebhookURL,
		cfg.CDN.URL,
		cfg.Persistence.Retry.Attempts,
		cfg.Persistence.Retry.InitialInterval,
	)
	if err != nil {
		log.Warn().Err(err).Msg("invalid discord webhook, release announcements disabled")
		return notifier.Noop{}
	}

	return discord
}
