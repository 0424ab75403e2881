package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/forPelevin/clipforge/internal/config"
	"github.com/forPelevin/clipforge/internal/jobs"
	"github.com/forPelevin/clipforge/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/clipforge/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/clipforge/internal/ports/adapters/ytdlp"
	"github.com/forPelevin/clipforge/internal/processor"
	"github.com/forPelevin/clipforge/internal/server"
	"github.com/forPelevin/clipforge/internal/storage"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the clip job HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			return serve(cmd.Context(), path)
		},
	}
	cmd.Flags().String("config", "", "Path to YAML config (default config.yaml or $CLIPFORGE_CONFIG)")
	return cmd
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Server.LogLevel)

	store, err := jobs.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	registry, err := jobs.NewRegistry(store)
	if err != nil {
		return err
	}

	fetcher := ytdlp.New(cfg.Tools.YTDLPBin)
	asr := whispercpp.New(cfg.Tools.WhisperBin, cfg.Tools.WhisperModel, cfg.Tools.WhisperDiarize)
	video := ffmpeg.New(cfg.Tools.FFmpegBin, cfg.Tools.FFprobeBin)

	worker := processor.NewWorker(log, registry, fetcher, asr, video, video,
		cfg.Storage.WorkDir, cfg.Storage.ClipsDir, cfg.Storage.CacheDir,
		processor.Timeouts{
			Download:   cfg.Pipeline.DownloadTimeout,
			Transcribe: cfg.Pipeline.TranscribeTimeout,
			Render:     cfg.Pipeline.RenderTimeout,
			Mix:        cfg.Pipeline.MixTimeout,
		})

	queue := jobs.NewQueue(log, cfg.Server.QueueCapacity, cfg.Server.WorkerCount)
	if err := queue.Start(ctx, worker); err != nil {
		return err
	}

	svc := &server.Service{
		Log:      log,
		Cfg:      cfg,
		Registry: registry,
		Queue:    queue,
		Uploader: storage.NewUploader(cfg.Storage.DataDir),
		ClipsDir: cfg.Storage.ClipsDir,
	}
	srv := server.NewHTTPServer(svc)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	queue.Shutdown(cfg.Server.ShutdownGrace)
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
