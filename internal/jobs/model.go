package jobs

import (
	"fmt"
	"time"

	"github.com/forPelevin/clipforge/internal/domain/subtitles"
	"github.com/forPelevin/clipforge/internal/types"
)

// Status is the lifecycle stage of a clip job. Values are part of the public
// API contract; callers poll until completed or failed.
type Status string

const (
	StatusPending      Status = "pending"
	StatusDownloading  Status = "downloading"
	StatusTranscribing Status = "transcribing"
	StatusSelecting    Status = "selecting"
	StatusRendering    Status = "rendering"
	StatusMixingMusic  Status = "mixing_music"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

var statusRank = map[Status]int{
	StatusPending:      0,
	StatusDownloading:  1,
	StatusTranscribing: 2,
	StatusSelecting:    3,
	StatusRendering:    4,
	StatusMixingMusic:  5,
	StatusCompleted:    6,
	StatusFailed:       7,
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanAdvance reports whether moving from s to next is a legal forward
// transition. Failed is reachable from any non-terminal state; otherwise
// only strictly forward moves in the stage order are allowed, so no stage is
// ever revisited.
func (s Status) CanAdvance(next Status) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	nr, ok := statusRank[next]
	if !ok {
		return false
	}
	return nr > statusRank[s]
}

// Config is the per-job rendering configuration accepted at submission.
type Config struct {
	NumClips    int             `json:"num_clips"`
	MinDuration time.Duration   `json:"min_duration"`
	MaxDuration time.Duration   `json:"max_duration"`
	Keywords    []string        `json:"keywords,omitempty"`
	Aspect      types.Aspect    `json:"aspect"`
	Subtitles   bool            `json:"subtitles"`
	ColorGrade  bool            `json:"color_grade"`
	MusicSource string          `json:"music_source,omitempty"`
	MusicVolume float64         `json:"music_volume"`
	CRF         int             `json:"crf"`
	Preset      string          `json:"preset"`
	Subtitle    subtitles.Style `json:"subtitle_style"`
}

// DefaultConfig mirrors the submission form defaults.
func DefaultConfig() Config {
	return Config{
		NumClips:    5,
		MinDuration: 15 * time.Second,
		MaxDuration: 60 * time.Second,
		Aspect:      types.AspectPortrait,
		Subtitles:   true,
		ColorGrade:  true,
		MusicVolume: 0.1,
		CRF:         16,
		Preset:      "slow",
		Subtitle:    subtitles.DefaultStyle(),
	}
}

// Validate rejects inconsistent configuration before a job is created.
func (c Config) Validate() error {
	if c.NumClips <= 0 {
		return fmt.Errorf("%w: num_clips must be > 0", ErrConfig)
	}
	if c.MinDuration <= 0 {
		return fmt.Errorf("%w: min_duration must be > 0", ErrConfig)
	}
	if c.MaxDuration <= 0 {
		return fmt.Errorf("%w: max_duration must be > 0", ErrConfig)
	}
	if c.MinDuration > c.MaxDuration {
		return fmt.Errorf("%w: min_duration must be <= max_duration", ErrConfig)
	}
	if !c.Aspect.Valid() {
		return fmt.Errorf("%w: unknown aspect %q", ErrConfig, c.Aspect)
	}
	if c.MusicVolume < 0 || c.MusicVolume > 1 {
		return fmt.Errorf("%w: music_volume must be in [0, 1]", ErrConfig)
	}
	return nil
}

// Job is one end-to-end request tracked through the stage sequence. Records
// are owned by the Registry; the worker mutates them only through Registry
// operations.
type Job struct {
	ID           string              `json:"job_id"`
	Status       Status              `json:"status"`
	Progress     string              `json:"progress"`
	Message      string              `json:"message,omitempty"`
	SourceURL    string              `json:"source_url,omitempty"`
	SourceFile   string              `json:"source_file,omitempty"`
	Config       Config              `json:"config"`
	Clips        []types.Clip        `json:"clips"`
	ClipFailures []types.ClipFailure `json:"clip_failures,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	CompletedAt  time.Time           `json:"completed_at"`
}

// Summary is the list-view projection of a Job.
type Summary struct {
	ID        string    `json:"job_id"`
	Status    Status    `json:"status"`
	Progress  string    `json:"progress"`
	NumClips  int       `json:"num_clips"`
	CreatedAt time.Time `json:"created_at"`
}
