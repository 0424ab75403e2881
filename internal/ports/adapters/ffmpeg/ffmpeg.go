package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/types"
)

// Cinematic grade: slight contrast boost, warm shadows, lifted blacks, soft
// vignette.
const gradeFilter = "eq=contrast=1.08:brightness=0.02:saturation=1.15," +
	"curves=master='0/0 0.06/0.04 0.45/0.47 0.75/0.78 1/1'" +
	":red='0/0.02 0.5/0.52 1/0.98'" +
	":blue='0/0.04 0.5/0.48 1/0.94'," +
	"vignette=PI/5"

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, inMedia, outWav string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inMedia,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w\n%s", err, string(b))
	}
	return nil
}

func (a *Adapter) RenderClip(ctx context.Context, inMedia string, start, end time.Duration, outMP4 string, opts ports.RenderOptions) error {
	args := []string{
		"-y",
		"-ss", fmtSeconds(start),
		"-to", fmtSeconds(end),
		"-i", inMedia,
	}
	if vf := buildVideoFilter(opts); vf != "" {
		args = append(args, "-vf", vf)
	}
	crf := opts.CRF
	if crf <= 0 {
		crf = 16
	}
	preset := opts.Preset
	if preset == "" {
		preset = "slow"
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", preset,
		"-crf", strconv.Itoa(crf),
		"-c:a", "aac",
		"-b:a", "256k",
		outMP4,
	)
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg render clip: %w\n%s", err, string(b))
	}
	return nil
}

// MixMusic lays musicPath under the clip's speech track. The music is looped
// to the clip length, set to volume, and side-chain compressed against the
// speech envelope so it ducks while someone is talking.
func (a *Adapter) MixMusic(ctx context.Context, clipPath, musicPath, outPath string, volume float64) error {
	clipDur, err := a.ProbeDuration(ctx, clipPath)
	if err != nil {
		return fmt.Errorf("probe clip for mix: %w", err)
	}
	if volume <= 0 {
		volume = 0.1
	}

	af := fmt.Sprintf(
		"[1:a]aloop=loop=-1:size=2e+09,atrim=start=0:end=%s,asetpts=PTS-STARTPTS,volume=%s[music];"+
			"[0:a]asplit=2[speech][sc];"+
			"[sc]agate=threshold=-30dB:attack=80:release=400[gate];"+
			"[music][gate]sidechaincompress=threshold=0.02:ratio=6:attack=200:release=1000[ducked];"+
			"[speech][ducked]amix=inputs=2:duration=first:dropout_transition=2[out]",
		fmtSeconds(clipDur),
		strconv.FormatFloat(volume, 'f', -1, 64),
	)

	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", clipPath,
		"-i", musicPath,
		"-filter_complex", af,
		"-map", "0:v",
		"-map", "[out]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-shortest",
		outPath,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg music mix: %w\n%s", err, string(b))
	}
	return nil
}

// BestCropWindow implements crop-window resolution with a centered rectangle
// computed from the probed source dimensions. Face-aware resolvers replace
// this one behind the same port; ok=false (probe failure) tells the caller to
// use the expression-based crop instead.
func (a *Adapter) BestCropWindow(ctx context.Context, inMedia string, start, end time.Duration, aspect types.Aspect) (types.CropWindow, bool, error) {
	tw, th, ok := aspect.Dimensions()
	if !ok {
		return types.CropWindow{}, false, nil
	}
	srcW, srcH, err := a.ProbeDimensions(ctx, inMedia)
	if err != nil {
		return types.CropWindow{}, false, err
	}
	return centerWindow(srcW, srcH, tw, th), true, nil
}

// ProbeDimensions returns the pixel size of the first video stream.
func (a *Adapter) ProbeDimensions(ctx context.Context, inMedia string) (w, h int, err error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=p=0:s=x",
		inMedia,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe dimensions: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("parse dimensions %q", s)
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("parse dimensions %q", s)
	}
	return w, h, nil
}

func (a *Adapter) ProbeDuration(ctx context.Context, inMedia string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inMedia,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	s := strings.TrimSpace(string(b))
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

func buildVideoFilter(opts ports.RenderOptions) string {
	var filters []string
	if f := cropToAspect(opts.Aspect, opts.Crop); f != "" {
		filters = append(filters, f)
	}
	if opts.ColorGrade {
		filters = append(filters, gradeFilter)
	}
	if opts.BurnASS != "" {
		filters = append(filters, "subtitles="+escapeFilterPath(opts.BurnASS))
	}
	return strings.Join(filters, ",")
}

// cropToAspect crops to the target aspect and scales to 1080-class output.
// A resolved window gives a fixed rectangle; otherwise the crop is a centered
// expression evaluated by ffmpeg against the source size. Empty for the
// original aspect (no reformat).
func cropToAspect(aspect types.Aspect, win *types.CropWindow) string {
	tw, th, ok := aspect.Dimensions()
	if !ok {
		return ""
	}
	if win != nil && win.Width > 0 && win.Height > 0 {
		return fmt.Sprintf("crop=%d:%d:%d:%d,scale=%d:%d",
			win.Width, win.Height, win.X, win.Y, tw, th)
	}
	ratio := float64(tw) / float64(th)
	return fmt.Sprintf(
		"crop='min(iw,ih*%.6f)':'min(ih,iw/%.6f)':(iw-min(iw,ih*%.6f))/2:(ih-min(ih,iw/%.6f))/2,scale=%d:%d",
		ratio, ratio, ratio, ratio, tw, th,
	)
}

// centerWindow computes the largest rectangle with the target aspect that
// fits the source, centered both ways.
func centerWindow(srcW, srcH, tw, th int) types.CropWindow {
	targetAR := float64(tw) / float64(th)
	cropH := srcH
	cropW := int(float64(srcH) * targetAR)
	if cropW > srcW {
		cropW = srcW
		cropH = int(float64(srcW) / targetAR)
	}
	return types.CropWindow{
		X:      (srcW - cropW) / 2,
		Y:      (srcH - cropH) / 2,
		Width:  cropW,
		Height: cropH,
	}
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	return p
}
