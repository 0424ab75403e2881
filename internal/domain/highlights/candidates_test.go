package highlights

import (
	"reflect"
	"testing"
	"time"

	"github.com/forPelevin/clipforge/internal/types"
)

func TestBuildCandidates_DurationBoundsAreHard(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{
		{Start: 0, End: 8, Text: "Intro chatter before anything useful happens."},
		{Start: 8, End: 22, Text: "The core explanation of the whole approach."},
		{Start: 22, End: 50, Text: "A long tangent that runs on and on for a while."},
		{Start: 50, End: 70, Text: "Closing summary with the main takeaway."},
	}}
	min := 10 * time.Second
	max := 30 * time.Second

	cands := BuildCandidates(tr, min, max, nil)
	if len(cands) == 0 {
		t.Fatalf("expected candidates")
	}
	for _, c := range cands {
		d := c.End - c.Start
		if d < min || d > max {
			t.Fatalf("candidate duration %v outside [%v, %v]", d, min, max)
		}
	}
}

func TestBuildCandidates_NoWindowFits(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{
		{Start: 0, End: 2, Text: "Too"},
		{Start: 2, End: 4, Text: "short"},
	}}
	cands := BuildCandidates(tr, 10*time.Second, 30*time.Second, nil)
	if len(cands) != 0 {
		t.Fatalf("expected no candidates, got %d", len(cands))
	}
}

func TestBuildCandidates_InvalidBounds(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{{Start: 0, End: 30, Text: "x"}}}
	if cands := BuildCandidates(tr, 20*time.Second, 10*time.Second, nil); cands != nil {
		t.Fatalf("min > max should yield nil, got %d candidates", len(cands))
	}
}

func TestBuildCandidates_WordWindowsSnapToSentences(t *testing.T) {
	words := []types.Word{
		{Start: 0.0, End: 1.0, Word: "First"},
		{Start: 1.0, End: 2.0, Word: "point"},
		{Start: 2.0, End: 12.0, Word: "explained."},
		{Start: 12.0, End: 13.0, Word: "Second"},
		{Start: 13.0, End: 14.0, Word: "point"},
		{Start: 14.0, End: 25.0, Word: "follows."},
	}
	tr := types.Transcript{Segments: []types.Segment{
		{Start: 0, End: 25, Text: "First point explained. Second point follows.", Words: words},
	}}

	cands := BuildCandidates(tr, 10*time.Second, 30*time.Second, nil)
	if len(cands) == 0 {
		t.Fatalf("expected word-driven candidates")
	}
	for _, c := range cands {
		if c.Start != 0 && c.Start != 12*time.Second {
			t.Fatalf("candidate start %v is not a sentence boundary", c.Start)
		}
	}
}

func TestBuildCandidates_Deterministic(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{
		{Start: 0, End: 15, Text: "The amazing first part of the talk."},
		{Start: 15, End: 31, Text: "More detail on the method and results."},
		{Start: 31, End: 48, Text: "Questions from the audience follow."},
	}}
	keywords := []string{"amazing"}

	first := BuildCandidates(tr, 10*time.Second, 30*time.Second, keywords)
	for i := 0; i < 10; i++ {
		again := BuildCandidates(tr, 10*time.Second, 30*time.Second, keywords)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("candidate output changed between identical runs")
		}
	}
}

func TestGapPenalty(t *testing.T) {
	smooth := []timedWord{
		{Start: 0, End: time.Second, Text: "a"},
		{Start: time.Second, End: 2 * time.Second, Text: "b"},
	}
	if p := gapPenalty(smooth); p != 0 {
		t.Fatalf("expected no penalty for smooth speech, got %v", p)
	}
	pausey := []timedWord{
		{Start: 0, End: time.Second, Text: "a"},
		{Start: 4 * time.Second, End: 5 * time.Second, Text: "b"},
	}
	if p := gapPenalty(pausey); p <= 0 {
		t.Fatalf("expected penalty for a 3s pause, got %v", p)
	}
}
