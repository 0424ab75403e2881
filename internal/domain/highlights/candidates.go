package highlights

import (
	"strings"
	"time"

	"github.com/forPelevin/clipforge/internal/types"
)

// BuildCandidates creates candidate windows from the transcript.
// Strategy:
//   - Prefer word-timestamp-driven windows snapped to sentence boundaries
//     (tighter cuts, better text slices for scoring).
//   - Fall back to segment-boundary sliding windows when the ASR output has
//     no usable word timestamps.
//
// Windows outside [minClip, maxClip] are discarded outright, never emitted
// with a penalty.
func BuildCandidates(tr types.Transcript, minClip, maxClip time.Duration, keywords []string) []types.Candidate {
	if minClip <= 0 {
		minClip = time.Second
	}
	if maxClip <= 0 || maxClip < minClip {
		return nil
	}

	segs := tr.Segments
	if len(segs) == 0 {
		return nil
	}

	words := collectAllWords(tr)
	if len(words) >= 2 {
		if cands := buildFromWords(words, minClip, maxClip, keywords); len(cands) > 0 {
			return cands
		}
	}

	// Segment-driven fallback: each window starts at a segment boundary and
	// extends segment by segment until it exceeds maxClip.
	var out []types.Candidate
	for i := 0; i < len(segs); i++ {
		start := dur(segs[i].Start)
		var parts []string
		for j := i; j < len(segs); j++ {
			end := dur(segs[j].End)
			win := end - start
			if win > maxClip {
				break
			}
			if t := strings.TrimSpace(segs[j].Text); t != "" {
				parts = append(parts, t)
			}
			if win < minClip {
				continue
			}
			text := strings.Join(parts, " ")
			if text == "" {
				continue
			}
			out = append(out, types.Candidate{
				Start: start,
				End:   end,
				Text:  text,
				Score: Score(text, keywords),
			})
		}
	}
	return out
}

type timedWord struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

func collectAllWords(tr types.Transcript) []timedWord {
	var out []timedWord
	for _, s := range tr.Segments {
		for _, w := range s.Words {
			ws := dur(w.Start)
			we := dur(w.End)
			if we <= ws {
				continue
			}
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			out = append(out, timedWord{Start: ws, End: we, Text: text})
		}
	}
	return out
}

func buildFromWords(words []timedWord, minClip, maxClip time.Duration, keywords []string) []types.Candidate {
	// Cap keeps runtime predictable on long transcripts; sentence-boundary
	// starts already thin out the search space heavily.
	const maxCandidates = 500

	bounds := sentenceStarts(words)
	var out []types.Candidate
	for bi, si := range bounds {
		if si >= len(words) {
			break
		}
		start := words[si].Start
		for _, ei := range bounds[bi+1:] {
			last := words[ei-1]
			win := last.End - start
			if win > maxClip {
				break
			}
			if win < minClip {
				continue
			}
			text := joinWords(words[si:ei])
			if text == "" {
				continue
			}
			score := Score(text, keywords) - gapPenalty(words[si:ei])
			if score < 0 {
				score = 0
			}
			out = append(out, types.Candidate{Start: start, End: last.End, Text: text, Score: score})
			if len(out) >= maxCandidates {
				return out
			}
		}
	}
	return out
}

// sentenceStarts returns the word indices that begin a sentence, with
// len(words) appended as the closing bound.
func sentenceStarts(words []timedWord) []int {
	bounds := []int{0}
	for i, w := range words {
		if w.Text == "" {
			continue
		}
		switch w.Text[len(w.Text)-1] {
		case '.', '!', '?':
			if i+1 < len(words) {
				bounds = append(bounds, i+1)
			}
		}
	}
	return append(bounds, len(words))
}

// gapPenalty penalizes windows with long internal pauses.
func gapPenalty(words []timedWord) float64 {
	if len(words) < 2 {
		return 0
	}
	var maxGap, sum time.Duration
	for i := 1; i < len(words); i++ {
		gap := words[i].Start - words[i-1].End
		if gap < 0 {
			gap = 0
		}
		if gap > maxGap {
			maxGap = gap
		}
		sum += gap
	}
	avg := sum / time.Duration(len(words)-1)
	var p float64
	if maxGap > 2*time.Second {
		p += 0.6
	}
	if avg > 800*time.Millisecond {
		p += 0.4
	}
	return p
}

func joinWords(words []timedWord) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		parts = append(parts, w.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
