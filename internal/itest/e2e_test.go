//go:build integration

package itest

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/forPelevin/clipforge/internal/jobs"
	"github.com/forPelevin/clipforge/internal/pipeline"
	"github.com/forPelevin/clipforge/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/clipforge/internal/processor"
)

func TestE2E(t *testing.T) {
	tmp := t.TempDir()
	in := filepath.Join(tmp, "input.mp4")

	// Generate speech audio via espeak-ng.
	wav := filepath.Join(tmp, "speech.wav")
	text := "Here is the key idea. Step one: do this. Step two: measure results. This is important."
	cmd := exec.Command("espeak-ng", "-w", wav, text)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("espeak-ng failed: %v\n%s", err, string(b))
	}

	// Build a simple mp4 with audio.
	ff := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", "color=c=black:s=1280x720:d=15",
		"-i", wav,
		"-shortest",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		in,
	)
	if b, err := ff.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}

	outDir := filepath.Join(tmp, "out")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	jobCfg := jobs.DefaultConfig()
	jobCfg.NumClips = 2
	jobCfg.MinDuration = 3 * time.Second
	jobCfg.MaxDuration = 12 * time.Second
	jobCfg.Keywords = []string{"important"}

	cfg := pipeline.Config{
		Source:       in,
		OutDir:       outDir,
		Job:          jobCfg,
		CacheDir:     filepath.Join(tmp, "cache"),
		WhisperBin:   getenv("WHISPER_BIN", ".cache/bin/whisper.cpp"),
		WhisperModel: getenv("WHISPER_MODEL", ".cache/models/ggml-base.bin"),
		Timeouts:     processor.DefaultTimeouts(),
	}

	manifest, err := pipeline.Run(ctx, cfg)
	if err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}
	if len(manifest.Clips) == 0 {
		t.Fatal("pipeline produced no clips")
	}

	// One run directory with one job subdir holding clips and manifest.
	runDirs, err := os.ReadDir(outDir)
	if err != nil || len(runDirs) != 1 {
		t.Fatalf("read out dir: %v (%d entries)", err, len(runDirs))
	}
	jobDirs, err := os.ReadDir(filepath.Join(outDir, runDirs[0].Name()))
	if err != nil || len(jobDirs) != 1 {
		t.Fatalf("read run dir: %v (%d entries)", err, len(jobDirs))
	}
	jobDir := filepath.Join(outDir, runDirs[0].Name(), jobDirs[0].Name())

	if _, err := os.Stat(filepath.Join(jobDir, "manifest.json")); err != nil {
		t.Fatalf("missing manifest: %v", err)
	}
	probe := ffmpeg.New("", "")
	for _, clip := range manifest.Clips {
		path := filepath.Join(jobDir, clip.File)
		dur, err := probe.ProbeDuration(ctx, path)
		if err != nil {
			t.Fatalf("probe %s: %v", clip.File, err)
		}
		if dur > jobCfg.MaxDuration+time.Second {
			t.Errorf("clip %s runs %s, above the %s cap", clip.File, dur, jobCfg.MaxDuration)
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
