package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/forPelevin/clipforge/internal/jobs"
	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/clipforge/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/clipforge/internal/ports/adapters/ytdlp"
	"github.com/forPelevin/clipforge/internal/processor"
	"github.com/forPelevin/clipforge/internal/types"
)

// Config wires one synchronous run from the command line, without the HTTP
// service around it.
type Config struct {
	Source string // URL or local media path
	OutDir string
	Job    jobs.Config

	// CacheDir is the base directory for local artifacts (scratch space,
	// transcript cache). If empty, defaults to ".cache".
	CacheDir string

	FFmpegPath  string
	FFprobePath string
	YTDLPPath   string

	WhisperBin     string
	WhisperModel   string
	WhisperDiarize bool

	Timeouts processor.Timeouts
	Logger   *slog.Logger
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Source) == "" {
		return errors.New("source is empty")
	}
	if c.WhisperModel == "" {
		return errors.New("whisper model path is required")
	}
	return c.Job.Validate()
}

// Run executes the full pipeline once and writes clips plus a manifest under
// a timestamped run directory. It returns the manifest on success and the
// recorded failure cause otherwise.
func Run(ctx context.Context, cfg Config) (types.Manifest, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	video := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)
	asr := whispercpp.New(cfg.WhisperBin, cfg.WhisperModel, cfg.WhisperDiarize)
	fetcher := ytdlp.New(cfg.YTDLPPath)

	baseCache := cfg.CacheDir
	if baseCache == "" {
		baseCache = ".cache"
	}
	cacheDir := filepath.Join(baseCache, "transcripts")
	workRoot := filepath.Join(baseCache, "work")
	for _, dir := range []string{cacheDir, workRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return types.Manifest{}, err
		}
	}

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	runOutDir := buildRunOutDir(outDir, cfg.Source, time.Now().UTC())
	log.Info("run output dir", "path", runOutDir)

	registry, err := jobs.NewRegistry(nil)
	if err != nil {
		return types.Manifest{}, err
	}

	sourceURL, sourceFile := splitSource(cfg.Source)
	job, err := registry.Create(sourceURL, sourceFile, cfg.Job)
	if err != nil {
		return types.Manifest{}, err
	}

	worker := processor.NewWorker(log, registry, fetcher, asr, video, video, workRoot, runOutDir, cacheDir, cfg.Timeouts)
	_ = worker.Process(ctx, jobs.WorkItem{Job: job})

	final, err := registry.Get(job.ID)
	if err != nil {
		return types.Manifest{}, err
	}
	if final.Status != jobs.StatusCompleted {
		return types.Manifest{}, fmt.Errorf("pipeline failed: %s", final.Message)
	}

	manifest := types.Manifest{Input: cfg.Source, Clips: final.Clips}
	b, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return types.Manifest{}, fmt.Errorf("marshal manifest: %w", err)
	}
	manifestPath := filepath.Join(runOutDir, job.ID, "manifest.json")
	if err := os.WriteFile(manifestPath, b, 0o644); err != nil {
		return types.Manifest{}, err
	}
	log.Info("manifest written", "clips", len(manifest.Clips), "path", manifestPath)
	return manifest, nil
}

// splitSource decides whether the source is a local file or something the
// fetcher should download.
func splitSource(source string) (sourceURL, sourceFile string) {
	if _, err := os.Stat(source); err == nil {
		return "", source
	}
	return source, ""
}

func buildRunOutDir(outRoot, source string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", source, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.CropResolver = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.Fetcher = (*ytdlp.Adapter)(nil)
