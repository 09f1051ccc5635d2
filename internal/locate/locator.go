// Package locate finds storyboard panels on rasterized pages. Two
// interchangeable strategies exist behind domain.FrameLocator: an
// out-of-process classical CV detector and an oracle-assisted detector.
// Both are best-effort: a failed page yields an empty result, never an
// abort.
package locate

import (
	"fmt"
	"image"
	"sort"

	"github.com/spotlight-ai/storyboard-engine/internal/config"
	"github.com/spotlight-ai/storyboard-engine/internal/domain"
	"github.com/spotlight-ai/storyboard-engine/internal/observability"
)

// New selects the locator strategy from configuration.
func New(cfg config.LocatorConfig, orc domain.Oracle, logger *observability.Logger) (domain.FrameLocator, error) {
	switch cfg.Strategy {
	case "subprocess":
		return NewSubprocessLocator(cfg, logger), nil
	case "oracle":
		return NewOracleLocator(cfg, orc, logger), nil
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unknown locator strategy %q", cfg.Strategy), nil)
	}
}

// rect is a detected panel rectangle in page coordinates.
type rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r rect) bounds() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// sortReadingOrder orders rectangles top-to-bottom, then left-to-right,
// bucketing rows so panels on the same visual row sort by x.
func sortReadingOrder(rects []rect, pageHeight int) {
	rowThreshold := pageHeight / 10
	if rowThreshold < 150 {
		rowThreshold = 150
	}
	sort.SliceStable(rects, func(i, j int) bool {
		ri, rj := rects[i].Y/rowThreshold, rects[j].Y/rowThreshold
		if ri != rj {
			return ri < rj
		}
		return rects[i].X < rects[j].X
	})
}
