package whispercpp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/forPelevin/clipforge/internal/types"
)

// transcriptName is the output prefix inside the caller's cache directory.
// Callers hand each job its own directory, so concurrent runs do not collide.
const transcriptName = "transcript"

// Adapter runs the whisper.cpp CLI and converts its native JSON report into
// the transcript model: millisecond offsets become seconds, token timings
// become word timings, and with diarization enabled the tinydiarize
// speaker-turn flags become per-segment speaker labels.
type Adapter struct {
	bin     string
	model   string
	diarize bool
}

func New(binPath, modelPath string, diarize bool) *Adapter {
	return &Adapter{bin: binPath, model: modelPath, diarize: diarize}
}

func (a *Adapter) Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error) {
	outPrefix := filepath.Join(cacheDir, transcriptName)
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-oj",
		"-ojf", // full report with per-token offsets
		"-of", outPrefix,
	}
	if a.diarize {
		args = append(args, "-tdrz")
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	raw, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return types.Transcript{}, err
	}
	return parseTranscript(raw, a.diarize)
}

// parseTranscript walks the whisper.cpp "transcription" array. Marker tokens
// like [_BEG_] carry no speech and are dropped from word timings.
func parseTranscript(raw []byte, diarize bool) (types.Transcript, error) {
	root := gjson.ParseBytes(raw)
	report := root.Get("transcription")
	if !report.Exists() {
		return types.Transcript{}, errors.New("whisper output has no transcription block")
	}

	var tr types.Transcript
	speaker := 0
	for _, sr := range report.Array() {
		seg := types.Segment{
			Start: sr.Get("offsets.from").Float() / 1000,
			End:   sr.Get("offsets.to").Float() / 1000,
			Text:  strings.TrimSpace(sr.Get("text").String()),
		}
		if diarize {
			seg.Speaker = fmt.Sprintf("SPEAKER_%02d", speaker)
			if sr.Get("speaker_turn_next").Bool() {
				speaker++
			}
		}
		for _, tk := range sr.Get("tokens").Array() {
			word := strings.TrimSpace(tk.Get("text").String())
			if word == "" || strings.HasPrefix(word, "[_") {
				continue
			}
			seg.Words = append(seg.Words, types.Word{
				Start: tk.Get("offsets.from").Float() / 1000,
				End:   tk.Get("offsets.to").Float() / 1000,
				Word:  word,
			})
		}
		if seg.Text == "" && len(seg.Words) == 0 {
			continue
		}
		tr.Segments = append(tr.Segments, seg)
	}
	return tr, nil
}
