package grouping

import (
	"context"
	"fmt"

	"github.com/spotlight-ai/storyboard-engine/internal/domain"
	"github.com/spotlight-ai/storyboard-engine/internal/jsonx"
	"github.com/spotlight-ai/storyboard-engine/internal/observability"
	"github.com/spotlight-ai/storyboard-engine/internal/raster"
)

const continuityPrompt = `You are looking at %d consecutive storyboard frames from one commercial,
in order. Partition them into shots.

Frames belong to the SAME shot when they share the same background and
environment, the same relative character arrangement, and the same camera
angle, and the action flows continuously between them.

Start a NEW shot when the location changes, the camera flips to the opposite
side, or there is a hard cut to a new subject.

When in doubt about consecutive frames in the same environment, MERGE them
rather than splitting.

Return ONLY a JSON array of arrays of 1-based frame indices, covering every
frame exactly once, in order. Example for 5 frames: [[1,2],[3],[4,5]]

No explanations, no markdown fences, just the JSON array.`

// Annotator is the model-assisted continuity pass. It tags frames with shot
// group numbers by showing the oracle thumbnailed frame images.
type Annotator struct {
	oracle      domain.Oracle
	thumbBound  int
	maxFrames   int
	jpegQuality int
	logger      *observability.Logger
}

// NewAnnotator creates the continuity pass. thumbBound caps thumbnail
// dimensions and maxFrames caps how many frames one oracle call may carry.
func NewAnnotator(orc domain.Oracle, thumbBound, maxFrames, jpegQuality int, logger *observability.Logger) *Annotator {
	return &Annotator{
		oracle:      orc,
		thumbBound:  thumbBound,
		maxFrames:   maxFrames,
		jpegQuality: jpegQuality,
		logger:      logger.WithComponent("continuity"),
	}
}

// Annotate returns a copy of frames with ShotGroup tags filled in where the
// oracle produced a usable partition. Frames are never reordered or dropped,
// and every failure mode degrades to returning the input untagged so the
// grouping engine's over-segmentation fallback applies.
func (a *Annotator) Annotate(ctx context.Context, frames []domain.ExtractedFrame) []domain.ExtractedFrame {
	if !a.shouldRun(frames) {
		return frames
	}

	images, submitted := a.collectThumbnails(frames)
	if len(submitted) < 2 {
		return frames
	}

	text, err := a.oracle.Complete(ctx, domain.OracleRequest{
		Prompt: fmt.Sprintf(continuityPrompt, len(submitted)),
		Images: images,
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("Continuity call failed, frames stay untagged")
		return frames
	}

	var groups [][]int
	if err := jsonx.Unmarshal(text, &groups); err != nil {
		a.logger.Warn().Err(err).Msg("Unparseable continuity response, frames stay untagged")
		return frames
	}

	return applyGroups(frames, submitted, groups)
}

// shouldRun gates the pass: it only pays for an oracle call when at least
// two frames carry images and visible numbering cannot settle the grouping
// on its own.
func (a *Annotator) shouldRun(frames []domain.ExtractedFrame) bool {
	withImages := 0
	allNumbered := true
	for _, f := range frames {
		if f.Image != nil {
			withImages++
		}
		if !f.HasVisibleNumber {
			allNumbered = false
		}
	}
	return withImages >= 2 && !allNumbered
}

// collectThumbnails renders small JPEG thumbnails for frames that carry an
// image, up to the configured cap. submitted maps 0-based submission order
// back to the frame's index in the input slice.
func (a *Annotator) collectThumbnails(frames []domain.ExtractedFrame) (images [][]byte, submitted []int) {
	for i, f := range frames {
		if f.Image == nil {
			continue
		}
		if len(submitted) >= a.maxFrames {
			break
		}
		img, err := raster.DecodeImage(f.Image)
		if err != nil {
			a.logger.Warn().Int("frame", i).Err(err).Msg("Undecodable frame image skipped in continuity pass")
			continue
		}
		thumb, err := raster.EncodeJPEG(raster.ScaleToFit(img, a.thumbBound), a.jpegQuality)
		if err != nil {
			a.logger.Warn().Int("frame", i).Err(err).Msg("Thumbnail encode failed, frame skipped in continuity pass")
			continue
		}
		images = append(images, thumb)
		submitted = append(submitted, i)
	}
	return images, submitted
}

// applyGroups copies frames and writes a 1-based group tag onto each frame
// the partition covers. Out-of-range indices are ignored rather than failing
// the whole annotation.
func applyGroups(frames []domain.ExtractedFrame, submitted []int, groups [][]int) []domain.ExtractedFrame {
	out := make([]domain.ExtractedFrame, len(frames))
	copy(out, frames)
	for gi, group := range groups {
		for _, idx := range group {
			if idx < 1 || idx > len(submitted) {
				continue
			}
			out[submitted[idx-1]].ShotGroup = gi + 1
		}
	}
	return out
}
