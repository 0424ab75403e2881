package types

import "time"

type Transcript struct {
	Segments []Segment `json:"segments"`
}

type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
	Words   []Word  `json:"words,omitempty"`
}

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// Candidate is a contiguous transcript window considered for selection.
// It exists only between scoring and selection.
type Candidate struct {
	Start time.Duration
	End   time.Duration
	Text  string

	Score float64
}

// Clip is a finalized, selected window with its rendered artifact.
type Clip struct {
	Label       string  `json:"label"`
	StartSec    float64 `json:"start"`
	EndSec      float64 `json:"end"`
	DurationSec float64 `json:"duration"`
	Score       float64 `json:"score"`
	TextPreview string  `json:"text_preview"`
	File        string  `json:"filename"`
}

// ClipFailure records one selected window that did not produce a usable
// artifact, kept on the job record alongside the clips that did.
type ClipFailure struct {
	Label    string  `json:"label"`
	StartSec float64 `json:"start"`
	EndSec   float64 `json:"end"`
	Reason   string  `json:"reason"`
}

// CropWindow is a rectangle in source pixels cut from the frame before
// scaling to the output resolution.
type CropWindow struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Aspect is the output frame shape of a rendered clip.
type Aspect string

const (
	AspectPortrait  Aspect = "9:16"
	AspectLandscape Aspect = "16:9"
	AspectSquare    Aspect = "1:1"
	AspectOriginal  Aspect = "original"
)

// Dimensions returns (width, height) at 1080-class resolution.
// ok is false for AspectOriginal (no reformat).
func (a Aspect) Dimensions() (w, h int, ok bool) {
	switch a {
	case AspectPortrait:
		return 1080, 1920, true
	case AspectLandscape:
		return 1920, 1080, true
	case AspectSquare:
		return 1080, 1080, true
	}
	return 0, 0, false
}

// Valid reports whether a is one of the recognized aspect values.
func (a Aspect) Valid() bool {
	switch a {
	case AspectPortrait, AspectLandscape, AspectSquare, AspectOriginal:
		return true
	}
	return false
}

type Manifest struct {
	Input string `json:"input"`
	Clips []Clip `json:"clips"`
}
