package highlights

import (
	"errors"
	"sort"

	"github.com/forPelevin/clipforge/internal/types"
)

// ErrNoSuitableSegments is returned when no candidate window satisfies the
// duration bounds. Callers must be able to tell "nothing found" apart from an
// empty but successful run.
var ErrNoSuitableSegments = errors.New("no suitable segments found")

// SelectClips picks at most n mutually non-overlapping candidates, greedily
// by descending score (ties broken by earlier start), and returns them in
// chronological order.
func SelectClips(cands []types.Candidate, n int) ([]types.Candidate, error) {
	if len(cands) == 0 {
		return nil, ErrNoSuitableSegments
	}
	if n <= 0 {
		return nil, nil
	}

	ranked := make([]types.Candidate, len(cands))
	copy(ranked, cands)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Start < ranked[j].Start
	})

	var picked []types.Candidate
	for _, c := range ranked {
		if len(picked) >= n {
			break
		}
		if overlapsAny(c, picked) {
			continue
		}
		picked = append(picked, c)
	}

	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Start < picked[j].Start })
	return picked, nil
}

func overlapsAny(c types.Candidate, selected []types.Candidate) bool {
	for _, s := range selected {
		if c.Start < s.End && s.Start < c.End {
			return true
		}
	}
	return false
}
