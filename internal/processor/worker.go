package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/forPelevin/clipforge/internal/domain/highlights"
	"github.com/forPelevin/clipforge/internal/domain/subtitles"
	"github.com/forPelevin/clipforge/internal/jobs"
	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/types"
)

const previewLimit = 120

// Timeouts bound the external-tool stages. Zero disables the bound for that
// stage.
type Timeouts struct {
	Download   time.Duration
	Transcribe time.Duration
	Render     time.Duration // per clip
	Mix        time.Duration // per clip
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Download:   30 * time.Minute,
		Transcribe: 60 * time.Minute,
		Render:     20 * time.Minute,
		Mix:        10 * time.Minute,
	}
}

// Worker drives one job through the stage sequence: download, transcribe,
// select, render, optionally mix music. It owns the per-job scratch
// directory and reports every state change through the registry.
type Worker struct {
	log      *slog.Logger
	registry *jobs.Registry
	fetcher  ports.Fetcher
	asr      ports.ASR
	video    ports.VideoTool
	crop     ports.CropResolver // nil means the video tool centers the crop itself

	workRoot  string // scratch space, removed after each job
	clipsRoot string // rendered clips, kept until the job is deleted
	cacheDir  string // transcript cache shared across jobs
	timeouts  Timeouts
}

func NewWorker(log *slog.Logger, registry *jobs.Registry, fetcher ports.Fetcher, asr ports.ASR, video ports.VideoTool, crop ports.CropResolver, workRoot, clipsRoot, cacheDir string, timeouts Timeouts) *Worker {
	return &Worker{
		log:       log,
		registry:  registry,
		fetcher:   fetcher,
		asr:       asr,
		video:     video,
		crop:      crop,
		workRoot:  workRoot,
		clipsRoot: clipsRoot,
		cacheDir:  cacheDir,
		timeouts:  timeouts,
	}
}

var _ jobs.Processor = (*Worker)(nil)

// Process runs the full pipeline for one job. It returns an error only for
// logging; job outcome is always recorded in the registry. A job deleted
// mid-flight aborts silently.
func (w *Worker) Process(ctx context.Context, item jobs.WorkItem) error {
	job := item.Job
	log := w.log.With("job_id", job.ID)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.registry.RegisterCancel(job.ID, cancel)
	defer w.registry.ClearCancel(job.ID)

	workDir := filepath.Join(w.workRoot, job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return w.fail(job.ID, fmt.Errorf("create work dir: %w", err))
	}
	// Scratch space always goes away, whatever the outcome.
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn("remove work dir", "err", err)
		}
	}()

	outDir := filepath.Join(w.clipsRoot, job.ID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return w.fail(job.ID, fmt.Errorf("create output dir: %w", err))
	}

	media, err := w.download(ctx, job, workDir)
	if err != nil {
		return w.fail(job.ID, err)
	}

	tr, err := w.transcribe(ctx, job.ID, media, workDir)
	if err != nil {
		return w.fail(job.ID, err)
	}

	selected, err := w.selectHighlights(job, tr)
	if err != nil {
		return w.fail(job.ID, err)
	}
	log.Info("highlights selected", "count", len(selected))

	clips, failures := w.render(ctx, job, tr, selected, media, workDir, outDir)
	if len(failures) > 0 {
		if err := w.registry.RecordClipFailures(job.ID, failures); err != nil && !errors.Is(err, jobs.ErrNotFound) {
			log.Warn("record clip failures", "err", err)
		}
	}
	if len(clips) == 0 {
		return w.fail(job.ID, errors.New("all clips failed to render"))
	}

	if job.Config.MusicSource != "" {
		var mixFailures []types.ClipFailure
		clips, mixFailures = w.mixMusic(ctx, job, clips, workDir, outDir)
		if len(mixFailures) > 0 {
			if err := w.registry.RecordClipFailures(job.ID, mixFailures); err != nil && !errors.Is(err, jobs.ErrNotFound) {
				log.Warn("record clip failures", "err", err)
			}
		}
	}

	if err := w.registry.Complete(job.ID, clips); err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			log.Info("job deleted before completion")
			return nil
		}
		return err
	}
	log.Info("job completed", "clips", len(clips))
	return nil
}

func (w *Worker) download(ctx context.Context, job jobs.Job, workDir string) (string, error) {
	if err := w.advance(job.ID, jobs.StatusDownloading, "Downloading source..."); err != nil {
		return "", err
	}
	ctx, cancel := stageCtx(ctx, w.timeouts.Download)
	defer cancel()

	source := job.SourceURL
	if source == "" {
		source = job.SourceFile
	}
	media, err := w.fetcher.Fetch(ctx, source, workDir)
	if err != nil {
		return "", fmt.Errorf("download source: %w", err)
	}
	return media, nil
}

func (w *Worker) transcribe(ctx context.Context, jobID, media, workDir string) (types.Transcript, error) {
	if err := w.advance(jobID, jobs.StatusTranscribing, "Transcribing audio..."); err != nil {
		return types.Transcript{}, err
	}
	ctx, cancel := stageCtx(ctx, w.timeouts.Transcribe)
	defer cancel()

	wav := filepath.Join(workDir, "audio.wav")
	if err := w.video.ExtractAudioMono16k(ctx, media, wav); err != nil {
		return types.Transcript{}, fmt.Errorf("extract audio: %w", err)
	}
	// Per-job subdir so concurrent jobs do not clobber each other's output.
	cacheDir := filepath.Join(w.cacheDir, jobID)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return types.Transcript{}, fmt.Errorf("create cache dir: %w", err)
	}
	tr, err := w.asr.Transcribe(ctx, wav, cacheDir)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("transcribe: %w", err)
	}
	return tr, nil
}

func (w *Worker) selectHighlights(job jobs.Job, tr types.Transcript) ([]types.Candidate, error) {
	if err := w.advance(job.ID, jobs.StatusSelecting, "Selecting highlights..."); err != nil {
		return nil, err
	}
	cfg := job.Config
	cands := highlights.BuildCandidates(tr, cfg.MinDuration, cfg.MaxDuration, cfg.Keywords)
	return highlights.SelectClips(cands, cfg.NumClips)
}

// render produces one MP4 per selected highlight. A single clip failing is
// tolerated; the failure is recorded on the job and the rest continue.
func (w *Worker) render(ctx context.Context, job jobs.Job, tr types.Transcript, selected []types.Candidate, media, workDir, outDir string) ([]types.Clip, []types.ClipFailure) {
	log := w.log.With("job_id", job.ID)
	cfg := job.Config

	if err := w.advance(job.ID, jobs.StatusRendering, fmt.Sprintf("Rendering clip 1/%d...", len(selected))); err != nil {
		return nil, nil
	}

	var clips []types.Clip
	var failures []types.ClipFailure
	for i, cand := range selected {
		if ctx.Err() != nil {
			break
		}
		if err := w.progress(job.ID, fmt.Sprintf("Rendering clip %d/%d...", i+1, len(selected))); err != nil {
			break
		}

		label := fmt.Sprintf("clip_%02d", i+1)
		outFile := label + ".mp4"

		var assPath string
		if cfg.Subtitles {
			doc, err := subtitles.Render(tr, cand.Start, cand.End, cfg.Subtitle)
			if err != nil {
				log.Warn("subtitle generation failed, rendering without", "clip", label, "err", err)
			} else {
				assPath = filepath.Join(workDir, label+".ass")
				if err := os.WriteFile(assPath, []byte(doc), 0o644); err != nil {
					log.Warn("write subtitle file failed, rendering without", "clip", label, "err", err)
					assPath = ""
				}
			}
		}

		opts := ports.RenderOptions{
			Aspect:     cfg.Aspect,
			ColorGrade: cfg.ColorGrade,
			BurnASS:    assPath,
			CRF:        cfg.CRF,
			Preset:     cfg.Preset,
		}
		clipCtx, cancel := stageCtx(ctx, w.timeouts.Render)
		if w.crop != nil {
			win, ok, err := w.crop.BestCropWindow(clipCtx, media, cand.Start, cand.End, cfg.Aspect)
			if err != nil {
				log.Warn("crop resolution failed, using centered crop", "clip", label, "err", err)
			} else if ok {
				opts.Crop = &win
			}
		}
		err := w.video.RenderClip(clipCtx, media, cand.Start, cand.End, filepath.Join(outDir, outFile), opts)
		cancel()
		if err != nil {
			log.Warn("clip render failed, skipping", "clip", label, "err", err)
			failures = append(failures, types.ClipFailure{
				Label:    label,
				StartSec: cand.Start.Seconds(),
				EndSec:   cand.End.Seconds(),
				Reason:   err.Error(),
			})
			continue
		}

		clips = append(clips, types.Clip{
			Label:       label,
			StartSec:    cand.Start.Seconds(),
			EndSec:      cand.End.Seconds(),
			DurationSec: (cand.End - cand.Start).Seconds(),
			Score:       cand.Score,
			TextPreview: preview(cand.Text),
			File:        outFile,
		})
	}
	return clips, failures
}

// mixMusic overlays ducked background music on each rendered clip. Failures
// keep the original clip and are recorded; music is an enhancement, not a
// requirement.
func (w *Worker) mixMusic(ctx context.Context, job jobs.Job, clips []types.Clip, workDir, outDir string) ([]types.Clip, []types.ClipFailure) {
	log := w.log.With("job_id", job.ID)

	if err := w.advance(job.ID, jobs.StatusMixingMusic, "Adding background music..."); err != nil {
		return clips, nil
	}

	musicCtx, cancel := stageCtx(ctx, w.timeouts.Download)
	musicPath, err := w.fetcher.FetchAudio(musicCtx, job.Config.MusicSource, workDir)
	cancel()
	if err != nil {
		log.Warn("music download failed, keeping clips without music", "err", err)
		return clips, nil
	}

	var failures []types.ClipFailure
	for _, clip := range clips {
		if ctx.Err() != nil {
			break
		}
		in := filepath.Join(outDir, clip.File)
		mixed := filepath.Join(workDir, clip.Label+"_music.mp4")

		clipCtx, cancel := stageCtx(ctx, w.timeouts.Mix)
		err := w.video.MixMusic(clipCtx, in, musicPath, mixed, job.Config.MusicVolume)
		cancel()
		if err == nil {
			err = os.Rename(mixed, in)
		}
		if err != nil {
			log.Warn("music mix failed, keeping original clip", "clip", clip.Label, "err", err)
			failures = append(failures, types.ClipFailure{
				Label:    clip.Label,
				StartSec: clip.StartSec,
				EndSec:   clip.EndSec,
				Reason:   "background music mix: " + err.Error(),
			})
		}
	}
	return clips, failures
}

// fail records the failure unless the job was deleted meanwhile.
func (w *Worker) fail(id string, cause error) error {
	if errors.Is(cause, jobs.ErrNotFound) {
		return nil
	}
	if err := w.registry.Fail(id, cause.Error()); err != nil && !errors.Is(err, jobs.ErrNotFound) {
		w.log.Error("record job failure", "job_id", id, "err", err)
	}
	return cause
}

func (w *Worker) advance(id string, status jobs.Status, progress string) error {
	return w.registry.SetStatus(id, status, progress)
}

func (w *Worker) progress(id, msg string) error {
	return w.registry.SetProgress(id, msg)
}

func stageCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit]) + "..."
}
