package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/clipforge/internal/jobs"
	"github.com/forPelevin/clipforge/internal/pipeline"
	"github.com/forPelevin/clipforge/internal/processor"
	"github.com/forPelevin/clipforge/internal/types"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <url-or-file>",
		Short: "Process one source synchronously and write clips to disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	cmd.Flags().String("out", "out", "Output directory")
	cmd.Flags().Int("clips", 5, "Number of clips")
	cmd.Flags().Int("min", 15, "Min clip duration seconds")
	cmd.Flags().Int("max", 60, "Max clip duration seconds")
	cmd.Flags().StringSlice("keywords", nil, "Keywords boosting segment scores")
	cmd.Flags().String("aspect", string(types.AspectPortrait), "Output aspect: 9:16, 16:9, 1:1, original")
	cmd.Flags().Bool("no-subtitles", false, "Skip burned-in subtitles")
	cmd.Flags().Bool("no-grade", false, "Skip the cinematic color grade")
	cmd.Flags().String("music", "", "Background music URL or file")
	cmd.Flags().Float64("music-volume", 0.1, "Background music volume (0..1)")
	cmd.Flags().Bool("diarize", false, "Label speaker turns (needs a tinydiarize whisper model)")
	return cmd
}

func run(cmd *cobra.Command, source string) error {
	outDir, _ := cmd.Flags().GetString("out")
	clipsN, _ := cmd.Flags().GetInt("clips")
	minSec, _ := cmd.Flags().GetInt("min")
	maxSec, _ := cmd.Flags().GetInt("max")
	keywords, _ := cmd.Flags().GetStringSlice("keywords")
	aspect, _ := cmd.Flags().GetString("aspect")
	noSubs, _ := cmd.Flags().GetBool("no-subtitles")
	noGrade, _ := cmd.Flags().GetBool("no-grade")
	music, _ := cmd.Flags().GetString("music")
	musicVol, _ := cmd.Flags().GetFloat64("music-volume")
	diarize, _ := cmd.Flags().GetBool("diarize")

	jobCfg := jobs.DefaultConfig()
	jobCfg.NumClips = clipsN
	jobCfg.MinDuration = time.Duration(minSec) * time.Second
	jobCfg.MaxDuration = time.Duration(maxSec) * time.Second
	jobCfg.Keywords = keywords
	jobCfg.Aspect = types.Aspect(aspect)
	jobCfg.Subtitles = !noSubs
	jobCfg.ColorGrade = !noGrade
	jobCfg.MusicSource = music
	jobCfg.MusicVolume = musicVol

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := pipeline.Config{
		Source: source,
		OutDir: outDir,
		Job:    jobCfg,

		FFmpegPath:  getenvDefault("FFMPEG_BIN", "ffmpeg"),
		FFprobePath: getenvDefault("FFPROBE_BIN", "ffprobe"),
		YTDLPPath:   getenvDefault("YTDLP_BIN", "yt-dlp"),

		WhisperBin:     getenvDefault("WHISPER_BIN", ".cache/bin/whisper.cpp"),
		WhisperModel:   getenvDefault("WHISPER_MODEL", ".cache/models/ggml-base.bin"),
		WhisperDiarize: diarize,

		Timeouts: processor.DefaultTimeouts(),
		Logger:   log,
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 3*time.Hour)
	defer cancel()

	manifest, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d clips\n", len(manifest.Clips))
	return nil
}
