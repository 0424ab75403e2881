package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/clipforge/internal/types"
)

// Style controls the generated ASS header and caption packing.
type Style struct {
	Font        string
	FontSize    int
	Bold        bool
	Outline     int
	Shadow      int
	MarginV     int
	MaxWords    int
	MaxChars    int
	StripCommas bool
}

// DefaultStyle matches the portrait short-form preset.
func DefaultStyle() Style {
	return Style{
		Font:        "Arial",
		FontSize:    64,
		Bold:        true,
		Outline:     2,
		Shadow:      1,
		MarginV:     768,
		MaxWords:    5,
		MaxChars:    25,
		StripCommas: true,
	}
}

func (s Style) normalized() Style {
	if s.Font == "" {
		s.Font = "Arial"
	}
	if s.FontSize <= 0 {
		s.FontSize = 64
	}
	if s.MaxWords <= 0 {
		s.MaxWords = 5
	}
	if s.MaxChars <= 0 {
		s.MaxChars = 25
	}
	return s
}

// Render produces an ASS subtitle document for the [start, end) span of the
// transcript. Word timestamps yield karaoke captions; without them a single
// plain caption covers the clip.
func Render(tr types.Transcript, start, end time.Duration, st Style) (string, error) {
	st = st.normalized()
	words := collectWords(tr, start, end, st.StripCommas)
	if len(words) == 0 {
		// Fallback keeps rendering robust when ASR has segment text but no
		// usable per-word timestamps.
		text := collectSegmentText(tr, start, end)
		return renderPlain(text, end-start, st), nil
	}
	lines := packWords(words, st.MaxWords, st.MaxChars)
	return renderKaraoke(lines, st), nil
}

type wword struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

type line struct {
	Start time.Duration
	End   time.Duration
	Words []wword
}

func collectWords(tr types.Transcript, start, end time.Duration, stripCommas bool) []wword {
	var out []wword
	for _, s := range tr.Segments {
		for _, w := range s.Words {
			ws := dur(w.Start)
			we := dur(w.End)
			if we <= start || ws >= end {
				continue
			}
			text := strings.TrimSpace(w.Word)
			if stripCommas {
				text = strings.ReplaceAll(text, ",", "")
			}
			if text == "" {
				continue
			}
			if ws < start {
				ws = start
			}
			if we > end {
				we = end
			}
			// Event times are clip-local; the renderer burns per-clip files,
			// not full-timeline subtitles.
			out = append(out, wword{Start: ws - start, End: we - start, Text: sanitize(text)})
		}
	}
	return out
}

func collectSegmentText(tr types.Transcript, start, end time.Duration) string {
	var parts []string
	for _, s := range tr.Segments {
		ss := dur(s.Start)
		se := dur(s.End)
		if se <= start || ss >= end {
			continue
		}
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func packWords(words []wword, maxWords, maxChars int) []line {
	var out []line
	cur := line{Start: words[0].Start}
	curLen := 0
	for i, w := range words {
		wl := len([]rune(w.Text))
		nextLen := curLen
		if curLen > 0 {
			nextLen++
		}
		nextLen += wl
		if len(cur.Words) >= maxWords || nextLen > maxChars {
			if len(cur.Words) > 0 {
				cur.End = cur.Words[len(cur.Words)-1].End
				out = append(out, cur)
			}
			cur = line{Start: w.Start}
			curLen = 0
		}
		cur.Words = append(cur.Words, w)
		if curLen > 0 {
			curLen++
		}
		curLen += wl
		if i == len(words)-1 {
			cur.End = w.End
			out = append(out, cur)
		}
	}
	return out
}

func renderKaraoke(lines []line, st Style) string {
	var b strings.Builder
	b.WriteString(header(st))
	for _, ln := range lines {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(ln.Start))
		b.WriteString(",")
		b.WriteString(assTime(ln.End))
		b.WriteString(",TikTok,,0,0,0,,")
		for _, w := range ln.Words {
			durCS := int((w.End - w.Start) / (10 * time.Millisecond))
			if durCS < 1 {
				durCS = 1
			}
			b.WriteString(fmt.Sprintf("{\\k%d}%s ", durCS, w.Text))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderPlain(text string, d time.Duration, st Style) string {
	var b strings.Builder
	b.WriteString(header(st))
	b.WriteString("Dialogue: 0,0:00:00.00,")
	b.WriteString(assTime(d))
	b.WriteString(",TikTok,,0,0,0,,")
	b.WriteString(sanitize(text))
	b.WriteString("\n")
	return b.String()
}

func header(st Style) string {
	bold := 0
	if st.Bold {
		bold = -1
	}
	var b strings.Builder
	b.WriteString("[Script Info]\n")
	b.WriteString("ScriptType: v4.00+\n")
	b.WriteString("PlayResX: 1080\n")
	b.WriteString("PlayResY: 1920\n")
	b.WriteString("WrapStyle: 0\n")
	b.WriteString("ScaledBorderAndShadow: yes\n")
	b.WriteString("\n[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	b.WriteString(fmt.Sprintf(
		"Style: TikTok, %s, %d, &H00FFFFFF, &H000000FF, &H00000000, &H80000000, %d,0,0,0,100,100,1.5,0,1,%d,%d,2, 40,40,%d,1\n",
		st.Font, st.FontSize, bold, st.Outline, st.Shadow, st.MarginV,
	))
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	return b.String()
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return strings.TrimSpace(s)
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
