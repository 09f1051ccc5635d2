// Package grouping turns the ordered frame sequence of one spot into shots.
//
// Visible frame numbers are authoritative: frames sharing a numeric prefix
// ("1A", "1B") belong to one shot. Where numbers are missing, grouping falls
// back to continuity tags produced by the model-assisted pass, and with no
// tags at all it over-segments to one shot per frame rather than guessing.
package grouping

import (
	"strconv"
	"strings"

	"github.com/spotlight-ai/storyboard-engine/internal/domain"
)

// labelPrefixes are stripped case-insensitively before reading the numeric
// part of a frame label, with an optional separator after the word.
var labelPrefixes = []string{"FRAME", "SHOT", "FR"}

// numericPrefix returns the leading digit run of a frame label after
// stripping known word prefixes. "" means the label carries no number.
func numericPrefix(label string) string {
	s := strings.TrimSpace(label)
	upper := strings.ToUpper(s)
	for _, p := range labelPrefixes {
		if strings.HasPrefix(upper, p) {
			s = s[len(p):]
			s = strings.TrimLeft(s, " -_.:#")
			break
		}
	}
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

// startsNewShot decides whether frame cur opens a new shot after prev.
func startsNewShot(prev, cur domain.ExtractedFrame) bool {
	if prev.HasVisibleNumber && cur.HasVisibleNumber {
		pn, cn := numericPrefix(prev.Label), numericPrefix(cur.Label)
		if pn == "" || cn == "" {
			// Labels without a numeric part are never merged on this
			// rule alone.
			return true
		}
		return pn != cn
	}
	if prev.ShotGroup != 0 && cur.ShotGroup != 0 {
		return prev.ShotGroup != cur.ShotGroup
	}
	// No evidence either way: over-segment, never silently merge.
	return true
}

// Group runs the single-pass state machine over a spot's frames and
// materializes the resulting shots.
func Group(frames []domain.ExtractedFrame) []domain.Shot {
	if len(frames) == 0 {
		return []domain.Shot{}
	}

	shots := make([]domain.Shot, 0, len(frames))
	counter := 1
	var members []domain.ExtractedFrame

	closeShot := func() {
		shots = append(shots, materialize(strconv.Itoa(counter), members))
		counter++
		members = nil
	}

	for i, f := range frames {
		if i > 0 && startsNewShot(frames[i-1], f) {
			closeShot()
		}
		members = append(members, f)
	}
	closeShot()

	return shots
}

// materialize builds a Shot carrying the per-frame arrays, kept for
// downstream re-editing, and the joined convenience strings. Labels,
// descriptions and dialogs stay parallel per frame; images keep their
// order but frames without a crop contribute no entry.
func materialize(number string, members []domain.ExtractedFrame) domain.Shot {
	shot := domain.Shot{
		Number:       number,
		FrameLabels:  make([]string, 0, len(members)),
		Images:       make([][]byte, 0, len(members)),
		Descriptions: make([]string, 0, len(members)),
		Dialogs:      make([]string, 0, len(members)),
	}
	var descs, dialogs []string
	for _, m := range members {
		shot.FrameLabels = append(shot.FrameLabels, m.Label)
		if len(m.Image) > 0 {
			shot.Images = append(shot.Images, m.Image)
		}
		shot.Descriptions = append(shot.Descriptions, m.Description)
		shot.Dialogs = append(shot.Dialogs, m.Dialog)
		if m.Description != "" {
			descs = append(descs, m.Description)
		}
		if m.Dialog != "" {
			dialogs = append(dialogs, m.Dialog)
		}
	}
	shot.Description = strings.Join(descs, "\n")
	shot.Dialog = strings.Join(dialogs, "\n")
	shot.Combined = joinNonEmpty(shot.Description, shot.Dialog)
	return shot
}

// joinNonEmpty joins the description and dialog blocks with a blank line,
// dropping whichever side is empty.
func joinNonEmpty(description, dialog string) string {
	switch {
	case description == "":
		return dialog
	case dialog == "":
		return description
	default:
		return description + "\n\n" + dialog
	}
}
