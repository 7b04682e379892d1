package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/adapters/ffmpeg"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/adapters/httpapi"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/adapters/localfs"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/adapters/memorymessenger"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/adapters/sqlite"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/app"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/buildinfo"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/config"
	"github.com/Guilhem-Bonnet/Anime-Auto-Encoder/internal/logging"
)

func main() {
	envFile := flag.String("env", config.DefaultEnvFile, "Fichier dotenv chargé avant l'environnement")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger := logging.New("info", "aae-server")
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(cfg.LogLevel, "aae-server")
	logger.Info().Str("build", buildinfo.Current().String()).Str("db", cfg.DBPath).Str("work_dir", cfg.WorkDir).Msg("starting")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
	logger.Info().Msg("bye")
}

func run(cfg config.Config, logger zerolog.Logger) error {
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return err
	}
	// Une seule instance par répertoire de travail.
	lock := flock.New(filepath.Join(cfg.WorkDir, ".aae.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !locked {
		return errors.New("another aae-server holds the work dir lock")
	}
	defer func() { _ = lock.Unlock() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := app.NewMetrics(reg)

	bus := memorybus.New()
	defer bus.Close()
	runs := app.NewRunService(sqlite.NewRunsRepository(db.SQL), bus)

	settings := cfg.Settings
	messenger := memorymessenger.New(logger.With().Str("component", "messenger").Logger(), settings.StoreChannel)
	reporter := app.NewLogReporter(logger.With().Str("component", "reporter").Logger(), messenger, settings.LogChannel)

	resolverOpts := app.DefaultResolverOptions()
	resolverOpts.MaxRetries = cfg.ResolverRetries
	resolver := app.NewMetadataResolver(logger.With().Str("component", "resolver").Logger(), app.NewAniListService(), reporter, metrics, resolverOpts)

	queue := app.NewAdmissionQueue(logger.With().Str("component", "admission").Logger(), metrics, app.AdmissionOptions{
		GrantDelay:  cfg.GrantDelay,
		SettleDelay: cfg.SettleDelay,
		Cooldown:    cfg.Cooldown,
	})
	backups := app.NewBackupTracker(ctx, logger.With().Str("component", "backups").Logger(), messenger, reporter, metrics, cfg.BackupConcurrency)

	encoder := ffmpeg.New(logger.With().Str("component", "ffmpeg").Logger(), messenger, ffmpeg.Options{
		Binary:       cfg.FFmpegBinary,
		ProbeBinary:  cfg.FFprobeBinary,
		OutputDir:    cfg.EncodeDir(),
		EditInterval: cfg.ProgressInterval,
	})
	files := localfs.New(logger.With().Str("component", "files").Logger(), cfg.DownloadDir(), nil)

	pipeline := app.NewPipeline(ctx, logger.With().Str("component", "pipeline").Logger(), app.PipelineDeps{
		Resolver:  resolver,
		Messenger: messenger,
		Files:     files,
		Encoder:   encoder,
		Uploader:  messenger,
		Queue:     queue,
		Backups:   backups,
		Reporter:  reporter,
		Runs:      runs,
		Metrics:   metrics,
	}, app.PipelineOptions{
		Settings:     settings,
		GrantTimeout: cfg.GrantTimeout,
		PublishDelay: cfg.PublishDelay,
	})

	srv := httpapi.NewServer(logger, httpapi.Deps{
		Pipeline: pipeline,
		Runs:     runs,
		Queue:    queue,
		Backups:  backups,
		Bus:      bus,
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return queue.Run(gctx) })
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	// Les runs en vol voient le contexte annulé et nettoient leurs fichiers.
	pipeline.Wait()
	backups.Wait()
	return err
}
