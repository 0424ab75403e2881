package ytdlp

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

type Adapter struct {
	bin string
}

func New(binPath string) *Adapter {
	if binPath == "" {
		binPath = "yt-dlp"
	}
	return &Adapter{bin: binPath}
}

// Fetch resolves source to a local media file. Local paths pass through
// untouched; URLs are downloaded into destDir.
func (a *Adapter) Fetch(ctx context.Context, source, destDir string) (string, error) {
	if !isURL(source) {
		if _, err := os.Stat(source); err != nil {
			return "", fmt.Errorf("source file not found: %w", err)
		}
		return source, nil
	}
	return a.download(ctx, source, destDir, false)
}

// FetchAudio resolves source to a local audio file (background music).
func (a *Adapter) FetchAudio(ctx context.Context, source, destDir string) (string, error) {
	if !isURL(source) {
		if _, err := os.Stat(source); err != nil {
			return "", fmt.Errorf("music file not found: %w", err)
		}
		return source, nil
	}
	return a.download(ctx, source, destDir, true)
}

func (a *Adapter) download(ctx context.Context, mediaURL, destDir string, audioOnly bool) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure download dir: %w", err)
	}

	id, err := a.probeID(ctx, mediaURL)
	if err != nil {
		return "", err
	}

	args := []string{"--no-playlist", "--restrict-filenames"}
	var out string
	if audioOnly {
		out = filepath.Join(destDir, id+".m4a")
		args = append(args, "-x", "--audio-format", "m4a", "-o", out, mediaURL)
	} else {
		out = filepath.Join(destDir, id+".mp4")
		args = append(args,
			"-f", "bestvideo[height<=1080]+bestaudio/best[height<=1080]/best",
			"--merge-output-format", "mp4",
			"-o", out,
			mediaURL,
		)
	}

	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("yt-dlp download: %w\n%s", err, string(b))
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("download finished but output missing: %w", err)
	}
	return out, nil
}

// probeID fetches metadata with -J and returns the media id, which keys the
// download filename deterministically.
func (a *Adapter) probeID(ctx context.Context, mediaURL string) (string, error) {
	cmd := exec.CommandContext(ctx, a.bin, "-J", "--no-playlist", mediaURL)
	b, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("yt-dlp probe: %w", err)
	}
	id := gjson.GetBytes(b, "id").String()
	if id == "" {
		return "", fmt.Errorf("yt-dlp probe: metadata has no media id")
	}
	return sanitizeID(id), nil
}

func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "media"
	}
	return b.String()
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https")
}
