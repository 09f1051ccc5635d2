// Package pipeline coordinates the full storyboard extraction run: raster,
// concurrent locate and extract, cross-page merge, and per-spot grouping.
package pipeline

import (
	"context"
	"os"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/spotlight-ai/storyboard-engine/internal/config"
	"github.com/spotlight-ai/storyboard-engine/internal/domain"
	"github.com/spotlight-ai/storyboard-engine/internal/grouping"
	"github.com/spotlight-ai/storyboard-engine/internal/observability"
)

// Orchestrator drives one document through the extraction pipeline.
type Orchestrator struct {
	rasterizer domain.Rasterizer
	locator    domain.FrameLocator
	extractor  domain.PageExtractor
	annotator  domain.ShotGrouper
	cfg        config.PipelineConfig
	logger     *observability.Logger
}

// New wires the pipeline from its stage implementations.
func New(
	rasterizer domain.Rasterizer,
	locator domain.FrameLocator,
	extractor domain.PageExtractor,
	annotator domain.ShotGrouper,
	cfg config.PipelineConfig,
	logger *observability.Logger,
) *Orchestrator {
	return &Orchestrator{
		rasterizer: rasterizer,
		locator:    locator,
		extractor:  extractor,
		annotator:  annotator,
		cfg:        cfg,
		logger:     logger.WithComponent("pipeline"),
	}
}

// pageResult pairs one page's extraction with its located regions.
type pageResult struct {
	extraction domain.PageExtraction
	regions    []domain.DetectedRegion
}

// Run converts one uploaded document into an ordered list of spots.
//
// Only two failures are fatal: the rasterizer exhausting its retries, and
// the oracle having no credential (caught at construction time, before Run).
// Everything else degrades per stage: a failed locator page loses its frame
// crops, a failed extractor batch loses its text, and the run continues.
func (o *Orchestrator) Run(ctx context.Context, doc domain.Document) ([]domain.Spot, error) {
	runID := uuid.New().String()
	logger := o.logger.WithRun(runID)

	dir, err := os.MkdirTemp("", "storyboard-"+runID)
	if err != nil {
		return nil, domain.IOError("failed to create run directory", err)
	}
	defer func() {
		// Cleanup is best effort; a leftover directory is not the
		// caller's problem.
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			logger.Warn().Str("dir", dir).Err(rmErr).Msg("Failed to remove run directory")
		}
	}()

	pages, err := o.rasterizer.Rasterize(ctx, doc, dir)
	if err != nil {
		return nil, err
	}
	logger.Info().Int("pages", len(pages)).Msg("Document rasterized")

	results, err := o.processPages(ctx, pages, logger)
	if err != nil {
		return nil, err
	}

	frames := mergePages(results)
	logger.Info().Int("frames", len(frames)).Msg("Pages merged")

	spots := o.buildSpots(ctx, frames)
	logger.Info().Int("spots", len(spots)).Msg("Extraction complete")
	return spots, nil
}

// processPages partitions pages into batches and runs them through locate
// and extract under the configured concurrency window.
func (o *Orchestrator) processPages(ctx context.Context, pages []domain.RasterPage, logger *observability.Logger) ([]pageResult, error) {
	batchSize := o.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	window := int64(o.cfg.ConcurrentBatches)
	if window <= 0 {
		window = 1
	}

	batches := partition(pages, batchSize)
	results := make([][]pageResult, len(batches))

	sem := semaphore.NewWeighted(window)
	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			results[i] = o.processBatch(gctx, batch, logger)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, domain.ExtractionError("pipeline cancelled", err)
	}

	var flat []pageResult
	for _, r := range results {
		flat = append(flat, r...)
	}
	// Concurrent completion order is not submission order; everything
	// downstream of here is order-sensitive.
	sort.Slice(flat, func(a, b int) bool {
		return flat[a].extraction.PageNumber < flat[b].extraction.PageNumber
	})
	return flat, nil
}

// processBatch runs the batch extractor concurrently with one locator call
// per page. Neither side's failure aborts the batch.
func (o *Orchestrator) processBatch(ctx context.Context, batch []domain.RasterPage, logger *observability.Logger) []pageResult {
	extractions := make([]domain.PageExtraction, len(batch))
	regions := make([][]domain.DetectedRegion, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		got, err := o.extractor.ExtractBatch(gctx, batch)
		if err != nil {
			logger.Warn().
				Int("first_page", batch[0].PageNumber).
				Err(err).
				Msg("Batch extraction failed, pages proceed without text")
			for i, p := range batch {
				extractions[i] = domain.PageExtraction{PageNumber: p.PageNumber, Frames: []domain.FrameText{}}
			}
			return nil
		}
		copy(extractions, got)
		return nil
	})
	for i, page := range batch {
		g.Go(func() error {
			found, err := o.locator.Locate(gctx, page)
			if err != nil {
				logger.Warn().
					Int("page", page.PageNumber).
					Err(err).
					Msg("Frame location failed, page proceeds without crops")
				return nil
			}
			regions[i] = found
			return nil
		})
	}
	// Both sides recover locally; nothing propagates.
	_ = g.Wait()

	out := make([]pageResult, len(batch))
	for i := range batch {
		out[i] = pageResult{extraction: extractions[i], regions: regions[i]}
	}
	return out
}

// buildSpots groups the merged frame sequence by spot and runs the per-spot
// passes: renumber, model-assisted continuity, then the grouping engine.
func (o *Orchestrator) buildSpots(ctx context.Context, frames []domain.ExtractedFrame) []domain.Spot {
	names, bySpot := groupBySpot(frames)

	spots := make([]domain.Spot, 0, len(names))
	for _, name := range names {
		spotFrames := grouping.Renumber(bySpot[name])
		spotFrames = o.annotator.Annotate(ctx, spotFrames)
		spots = append(spots, domain.Spot{
			Name:  name,
			Shots: grouping.Group(spotFrames),
		})
	}
	return spots
}

func partition(pages []domain.RasterPage, size int) [][]domain.RasterPage {
	var batches [][]domain.RasterPage
	for len(pages) > 0 {
		n := size
		if len(pages) < n {
			n = len(pages)
		}
		batches = append(batches, pages[:n])
		pages = pages[n:]
	}
	return batches
}
