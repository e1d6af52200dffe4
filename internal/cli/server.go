package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"media-quiz-service/internal/app"
	"media-quiz-service/internal/assets"
	"media-quiz-service/internal/config"
	"media-quiz-service/internal/infra/memory"
	redissession "media-quiz-service/internal/infra/redis"
	applog "media-quiz-service/internal/log"
	"media-quiz-service/internal/media"
	"media-quiz-service/internal/thumbnail"
	transport "media-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applog.Configure(applog.Config{Level: cfg.Log.Level})
	logger := applog.WithComponent("server")

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var sessions app.SessionRepository
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return err
		}
		sessions = redissession.NewSessionStore(client, config.TTLDuration(cfg.Session.TTL, 2*time.Hour))
	} else {
		sessions = memory.NewSessionStore()
	}

	store, err := newMediaStore(ctx, cfg)
	if err != nil {
		return err
	}

	capturer := newCapturer(cfg)
	intake := app.NewIntakeService(store, capturer, sessions, applog.WithComponent("intake"))
	service := app.NewQuizService(sessions, intake, store, applog.WithComponent("quiz"))
	defer service.Close()

	var loader assets.Loader = assets.NewEmbedLoader()
	if cfg.Assets.Dir != "" {
		loader = assets.NewFSLoader(os.DirFS(cfg.Assets.Dir))
	}
	pages := assets.NewCache(loader, config.TTLDuration(cfg.Assets.TTL, 0))
	if err := pages.Preload(ctx); err != nil {
		return err
	}

	router := transport.NewRouter(transport.RouterConfig{
		Service:          service,
		Assets:           pages,
		Logger:           applog.WithComponent("http"),
		UploadsPerMinute: cfg.Server.UploadsPerMinute,
		MaxUploadBytes:   cfg.Server.MaxUploadBytes,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepDrafts(sweepCtx, intake, config.TTLDuration(cfg.Session.DraftTTL, 30*time.Minute), logger)

	go func() {
		logger.Info().Str("port", finalPort).Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newMediaStore(ctx context.Context, cfg config.Config) (media.Store, error) {
	if cfg.Media.Backend == "s3" {
		return media.NewS3Store(ctx, media.S3Config{
			Endpoint:  cfg.Media.S3.Endpoint,
			Bucket:    cfg.Media.S3.Bucket,
			AccessKey: cfg.Media.S3.AccessKey,
			SecretKey: cfg.Media.S3.SecretKey,
			Region:    cfg.Media.S3.Region,
			MaxBytes:  cfg.Server.MaxUploadBytes,
		})
	}
	dir := cfg.Media.Dir
	if dir == "" {
		dir = "data/media"
	}
	return media.NewDiskStore(dir, cfg.Server.MaxUploadBytes)
}

func newCapturer(cfg config.Config) *thumbnail.Capturer {
	opener := thumbnail.NewFFmpegOpener(cfg.Thumbnail.FFmpegBin, cfg.Thumbnail.FFprobeBin)
	return thumbnail.NewCapturer(opener, thumbnail.Options{
		MetadataTimeout: config.TTLDuration(cfg.Thumbnail.MetadataTimeout, 0),
		SeekTimeout:     config.TTLDuration(cfg.Thumbnail.SeekTimeout, 0),
		DrawTimeout:     config.TTLDuration(cfg.Thumbnail.DrawTimeout, 0),
	}, applog.WithComponent("thumbnail"))
}

// sweepDrafts drops setup screens that were abandoned for longer than maxAge.
func sweepDrafts(ctx context.Context, intake *app.IntakeService, maxAge time.Duration, logger zerolog.Logger) {
	interval := maxAge / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := intake.SweepDrafts(ctx, maxAge); n > 0 {
				logger.Info().Int("drafts", n).Msg("swept abandoned drafts")
			}
		}
	}
}
