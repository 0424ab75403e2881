package highlights

import "testing"

func TestScore_Table(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		wantZero bool
	}{
		{"empty", "", nil, true},
		{"whitespace", "   ", []string{"amazing"}, true},
		{"plain", "some words here", nil, false},
		{"keyword", "This product is amazing.", []string{"amazing"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.text, tt.keywords)
			if tt.wantZero && got != 0 {
				t.Fatalf("expected 0, got %v", got)
			}
			if !tt.wantZero && got <= 0 {
				t.Fatalf("expected positive score, got %v", got)
			}
		})
	}
}

func TestScore_KeywordOutranksEqualText(t *testing.T) {
	keywords := []string{"amazing"}
	with := Score("This demo is truly amazing today.", keywords)
	without := Score("This demo is truly ordinary today.", keywords)
	if with <= without {
		t.Fatalf("keyword window should outrank: with=%v without=%v", with, without)
	}
}

func TestScore_KeywordOccurrencesAccumulate(t *testing.T) {
	keywords := []string{"amazing"}
	once := Score("amazing result overall", keywords)
	twice := Score("amazing result amazing overall", keywords)
	if twice <= once {
		t.Fatalf("expected repeated keyword to add weight: once=%v twice=%v", once, twice)
	}
}

func TestScore_BoundaryBonus(t *testing.T) {
	snapped := Score("Great insight about encoding.", nil)
	ragged := Score("great insight about encoding", nil)
	if snapped <= ragged {
		t.Fatalf("sentence-aligned window should outrank: snapped=%v ragged=%v", snapped, ragged)
	}
}

func TestScore_DensityPrefersContentWords(t *testing.T) {
	dense := Score("compression ratio improves latency dramatically", nil)
	filler := Score("it is the and of a to in", nil)
	if dense <= filler {
		t.Fatalf("dense text should outrank filler: dense=%v filler=%v", dense, filler)
	}
}

func TestScore_Deterministic(t *testing.T) {
	const text = "Here is the amazing part. Watch closely!"
	keywords := []string{"amazing", "watch"}
	first := Score(text, keywords)
	for i := 0; i < 50; i++ {
		if got := Score(text, keywords); got != first {
			t.Fatalf("score changed between runs: %v != %v", got, first)
		}
	}
}
