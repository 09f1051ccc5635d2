package grouping

import (
	"strconv"

	"github.com/spotlight-ai/storyboard-engine/internal/domain"
)

// NeedsRenumbering reports whether a spot's frame labels are unreliable:
// either a frame has no visibly printed number, or the same label appears on
// two different pages, which signals per-page numbering that restarted.
func NeedsRenumbering(frames []domain.ExtractedFrame) bool {
	firstPage := make(map[string]int, len(frames))
	for _, f := range frames {
		if !f.HasVisibleNumber {
			return true
		}
		if page, seen := firstPage[f.Label]; seen && page != f.PageNumber {
			return true
		}
		if _, seen := firstPage[f.Label]; !seen {
			firstPage[f.Label] = f.PageNumber
		}
	}
	return false
}

// Renumber resequences a spot's frame labels to "1", "2", "3", ... in merge
// order when NeedsRenumbering holds. Partial patching of only the broken
// labels would be ambiguous, so the whole spot is resequenced. Visibility
// flags are preserved: a relabeled frame did not gain a printed number, and
// the continuity pass still decides how unnumbered frames group.
func Renumber(frames []domain.ExtractedFrame) []domain.ExtractedFrame {
	if !NeedsRenumbering(frames) {
		return frames
	}
	out := make([]domain.ExtractedFrame, len(frames))
	for i, f := range frames {
		f.Label = strconv.Itoa(i + 1)
		out[i] = f
	}
	return out
}
