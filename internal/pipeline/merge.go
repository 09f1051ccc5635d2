package pipeline

import (
	"github.com/spotlight-ai/storyboard-engine/internal/domain"
)

// mergePages reconciles every page's located regions with its extracted
// text and flattens the result into one page-ordered frame sequence with
// sticky spot attribution.
func mergePages(results []pageResult) []domain.ExtractedFrame {
	var frames []domain.ExtractedFrame
	var currentSpot *string

	for _, r := range results {
		if r.extraction.SpotName != nil {
			currentSpot = r.extraction.SpotName
		}
		frames = append(frames, reconcilePage(r, currentSpot)...)
	}
	return frames
}

// reconcilePage pairs regions with text frames by index. The pairing is a
// heuristic: when the counts differ, indices past the shorter side keep the
// present half and leave the other absent rather than dropping items.
func reconcilePage(r pageResult, spot *string) []domain.ExtractedFrame {
	texts := r.extraction.Frames
	n := len(texts)
	if len(r.regions) > n {
		n = len(r.regions)
	}

	frames := make([]domain.ExtractedFrame, 0, n)
	for i := 0; i < n; i++ {
		f := domain.ExtractedFrame{
			SpotName:   spot,
			PageNumber: r.extraction.PageNumber,
		}
		if i < len(texts) {
			f.Label = texts[i].Label
			f.Description = texts[i].Description
			f.Dialog = texts[i].Dialog
			f.HasVisibleNumber = r.extraction.HasVisibleNumbers && texts[i].Label != ""
		}
		if i < len(r.regions) {
			f.Image = r.regions[i].Image
		}
		frames = append(frames, f)
	}
	return frames
}

// groupBySpot buckets frames by spot name in first-appearance order.
// Frames whose pages never declared a title fall under the default name.
func groupBySpot(frames []domain.ExtractedFrame) ([]string, map[string][]domain.ExtractedFrame) {
	var names []string
	bySpot := make(map[string][]domain.ExtractedFrame)
	for _, f := range frames {
		name := domain.DefaultSpotName
		if f.SpotName != nil {
			name = *f.SpotName
		}
		if _, seen := bySpot[name]; !seen {
			names = append(names, name)
		}
		bySpot[name] = append(bySpot[name], f)
	}
	return names, bySpot
}
