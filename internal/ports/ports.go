package ports

import (
	"context"
	"time"

	"github.com/forPelevin/clipforge/internal/types"
)

// RenderOptions carries the per-clip presentation settings passed to the
// video tool.
type RenderOptions struct {
	Aspect     types.Aspect
	Crop       *types.CropWindow // resolved crop rectangle; nil falls back to a centered crop
	ColorGrade bool
	BurnASS    string // path to an ASS file to burn, empty to skip
	CRF        int
	Preset     string
}

// Fetcher resolves a remote URL or local path to a local media file.
type Fetcher interface {
	Fetch(ctx context.Context, source, destDir string) (string, error)
	FetchAudio(ctx context.Context, source, destDir string) (string, error)
}

type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}

// CropResolver picks the source-pixel rectangle to cut for one clip window
// before scaling to the target aspect. A face-aware implementation inspects
// frames in [start, end]; ok=false means the caller should fall back to a
// centered crop.
type CropResolver interface {
	BestCropWindow(ctx context.Context, inMedia string, start, end time.Duration, aspect types.Aspect) (types.CropWindow, bool, error)
}

type VideoTool interface {
	ExtractAudioMono16k(ctx context.Context, inMedia, outWav string) error
	RenderClip(ctx context.Context, inMedia string, start, end time.Duration, outMP4 string, opts RenderOptions) error
	MixMusic(ctx context.Context, clipPath, musicPath, outPath string, volume float64) error
	ProbeDuration(ctx context.Context, inMedia string) (time.Duration, error)
}
