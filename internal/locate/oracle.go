package locate

import (
	"context"

	"github.com/spotlight-ai/storyboard-engine/internal/config"
	"github.com/spotlight-ai/storyboard-engine/internal/domain"
	"github.com/spotlight-ai/storyboard-engine/internal/jsonx"
	"github.com/spotlight-ai/storyboard-engine/internal/observability"
	"github.com/spotlight-ai/storyboard-engine/internal/raster"
)

const locatePrompt = `You are looking at one page of a storyboard document.

Identify every storyboard panel on the page: the rectangular illustration
frames, usually bordered, arranged in a grid. Ignore text blocks, headers,
logos and page furniture.

Return ONLY a JSON array of the panel bounding boxes in pixel coordinates of
this image, in reading order (left to right, top to bottom):

[{"x": 10, "y": 20, "width": 300, "height": 220}, ...]

Return [] if the page contains no panels. No explanations, no markdown.`

// OracleLocator asks the extraction oracle for panel bounding boxes and
// produces the crops locally.
type OracleLocator struct {
	cfg    config.LocatorConfig
	oracle domain.Oracle
	logger *observability.Logger
}

// NewOracleLocator creates the oracle-backed locator.
func NewOracleLocator(cfg config.LocatorConfig, orc domain.Oracle, logger *observability.Logger) *OracleLocator {
	return &OracleLocator{
		cfg:    cfg,
		oracle: orc,
		logger: logger.WithComponent("locate.oracle"),
	}
}

// Locate requests panel boxes for one page. A failed call or a response that
// does not parse as a JSON array degrades to an empty result.
func (l *OracleLocator) Locate(ctx context.Context, page domain.RasterPage) ([]domain.DetectedRegion, error) {
	text, err := l.oracle.Complete(ctx, domain.OracleRequest{
		Prompt: locatePrompt,
		Images: [][]byte{page.JPEG},
	})
	if err != nil {
		l.logger.Warn().
			Int("page", page.PageNumber).
			Err(err).
			Msg("Oracle locate call failed, continuing without regions")
		return nil, nil
	}

	var rects []rect
	if err := jsonx.Unmarshal(text, &rects); err != nil {
		l.logger.Warn().
			Int("page", page.PageNumber).
			Err(err).
			Msg("Oracle locate response was not a JSON array")
		return nil, nil
	}
	if len(rects) == 0 {
		return nil, nil
	}

	img, err := raster.DecodeImage(page.JPEG)
	if err != nil {
		l.logger.Warn().
			Int("page", page.PageNumber).
			Err(err).
			Msg("Failed to decode page raster for cropping")
		return nil, nil
	}

	sortReadingOrder(rects, page.Height)

	regions := make([]domain.DetectedRegion, 0, len(rects))
	for _, r := range rects {
		if r.Width <= 0 || r.Height <= 0 {
			continue
		}
		crop, err := raster.CropRect(img, r.bounds(), l.cfg.CropInset, l.cfg.CropJPEGQuality)
		if err != nil || crop == nil {
			continue
		}
		regions = append(regions, domain.DetectedRegion{
			PageNumber: page.PageNumber,
			OrderIndex: len(regions),
			Image:      crop,
		})
	}

	l.logger.Debug().
		Int("page", page.PageNumber).
		Int("regions", len(regions)).
		Msg("Located frame regions via oracle")
	return regions, nil
}
