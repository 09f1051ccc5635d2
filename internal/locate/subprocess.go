package locate

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os/exec"

	"github.com/spotlight-ai/storyboard-engine/internal/config"
	"github.com/spotlight-ai/storyboard-engine/internal/domain"
	"github.com/spotlight-ai/storyboard-engine/internal/observability"
)

// SubprocessLocator shells out to the contour-detection script. The script
// receives the page image path and a crop flag, and emits JSON on stdout:
//
//	{"count": N, "rectangles": [...], "images": ["<base64 jpeg>", ...]}
type SubprocessLocator struct {
	cfg    config.LocatorConfig
	logger *observability.Logger
}

// NewSubprocessLocator creates the subprocess-backed locator.
func NewSubprocessLocator(cfg config.LocatorConfig, logger *observability.Logger) *SubprocessLocator {
	return &SubprocessLocator{
		cfg:    cfg,
		logger: logger.WithComponent("locate.subprocess"),
	}
}

// detectorOutput mirrors the detector script's stdout contract.
type detectorOutput struct {
	Count      int      `json:"count"`
	Rectangles []rect   `json:"rectangles"`
	Images     []string `json:"images"`
	Error      string   `json:"error"`
}

// Locate runs the detector against a page. Every failure mode (non-zero
// exit, timeout, malformed stdout) degrades to an empty result so the page
// still proceeds through text extraction.
func (l *SubprocessLocator) Locate(ctx context.Context, page domain.RasterPage) ([]domain.DetectedRegion, error) {
	invokeCtx := ctx
	if l.cfg.InvokeTimeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, l.cfg.InvokeTimeout)
		defer cancel()
	}

	args := append([]string{page.ImagePath}, l.cfg.DetectorArgs...)
	cmd := exec.CommandContext(invokeCtx, l.cfg.DetectorPath, args...)

	stdout, err := cmd.Output()
	if err != nil {
		l.logger.Warn().
			Int("page", page.PageNumber).
			Err(err).
			Msg("Frame detector failed, continuing without regions")
		return nil, nil
	}

	var out detectorOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		l.logger.Warn().
			Int("page", page.PageNumber).
			Err(err).
			Msg("Frame detector emitted malformed output")
		return nil, nil
	}
	if out.Error != "" {
		l.logger.Warn().
			Int("page", page.PageNumber).
			Str("detector_error", out.Error).
			Msg("Frame detector reported an error")
		return nil, nil
	}

	regions := make([]domain.DetectedRegion, 0, len(out.Images))
	for i, encoded := range out.Images {
		if encoded == "" {
			continue
		}
		crop, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			l.logger.Warn().
				Int("page", page.PageNumber).
				Int("region", i).
				Err(err).
				Msg("Skipping undecodable region crop")
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
		Msg("Located frame regions")
	return regions, nil
}
