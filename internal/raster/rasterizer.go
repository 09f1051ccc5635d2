// Package raster renders uploaded documents into per-page JPEG images.
package raster

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/gen2brain/go-fitz"

	"github.com/spotlight-ai/storyboard-engine/internal/config"
	"github.com/spotlight-ai/storyboard-engine/internal/domain"
	"github.com/spotlight-ai/storyboard-engine/internal/observability"
)

const renderDPI = 150

// Engine implements domain.Rasterizer. PDF pages are rendered with MuPDF;
// still images pass through a decode/resize cycle and yield a single page.
type Engine struct {
	cfg    config.RasterConfig
	logger *observability.Logger

	// render performs one full-document attempt; replaceable in tests.
	render func(ctx context.Context, doc domain.Document, dir string) ([]domain.RasterPage, error)
}

// NewEngine creates a new rasterization engine.
func NewEngine(cfg config.RasterConfig, logger *observability.Logger) *Engine {
	e := &Engine{
		cfg:    cfg,
		logger: logger.WithComponent("raster"),
	}
	e.render = e.renderOnce
	return e
}

// Rasterize renders every page of doc into dir. The whole-document render is
// retried with exponential backoff when the failure is transient; the render
// context from a failed attempt is disposed before the next one starts.
func (e *Engine) Rasterize(ctx context.Context, doc domain.Document, dir string) ([]domain.RasterPage, error) {
	if !domain.SupportedMediaType(doc.MediaType) {
		return nil, domain.ValidationError(fmt.Sprintf("unsupported media type %q", doc.MediaType), nil)
	}
	if len(doc.Data) == 0 {
		return nil, domain.ValidationError("document is empty", nil)
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		pages, err := e.render(ctx, doc, dir)
		if err == nil {
			return pages, nil
		}
		lastErr = err

		if !domain.IsTransient(err) {
			return nil, err
		}

		if attempt == e.cfg.MaxRetries {
			break
		}

		backoff := e.cfg.InitialBackoff * (1 << attempt)
		e.logger.Warn().
			Int("attempt", attempt+1).
			Int("max_retries", e.cfg.MaxRetries).
			Dur("backoff", backoff).
			Err(err).
			Msg("Render attempt failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, domain.RenderError(fmt.Sprintf("rendering failed after %d retries", e.cfg.MaxRetries), lastErr)
}

// renderOnce performs one full-document render.
func (e *Engine) renderOnce(ctx context.Context, doc domain.Document, dir string) ([]domain.RasterPage, error) {
	renderCtx := ctx
	if e.cfg.RenderTimeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, e.cfg.RenderTimeout)
		defer cancel()
	}

	if doc.IsPDF() {
		return e.renderPDF(renderCtx, doc.Data, dir)
	}
	return e.renderStill(doc.Data, dir)
}

// renderPDF determines the page count first, then renders each page in order.
func (e *Engine) renderPDF(ctx context.Context, data []byte, dir string) ([]domain.RasterPage, error) {
	fdoc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, domain.RenderError("failed to open PDF", err)
	}
	defer fdoc.Close()

	pageCount := fdoc.NumPage()
	if pageCount == 0 {
		return nil, domain.ValidationError("PDF has no pages", nil)
	}

	pages := make([]domain.RasterPage, 0, pageCount)
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := fdoc.ImageDPI(pageNum, renderDPI)
		if err != nil {
			return nil, domain.RenderError(fmt.Sprintf("failed to render page %d", pageNum+1), err)
		}

		page, err := e.finishPage(img, pageNum+1, dir)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}

	e.logger.Debug().Int("pages", pageCount).Msg("Rendered PDF")
	return pages, nil
}

// renderStill turns a still-image upload into a single-page sequence.
func (e *Engine) renderStill(data []byte, dir string) ([]domain.RasterPage, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, domain.ValidationError("failed to decode image", err)
	}

	page, err := e.finishPage(img, 1, dir)
	if err != nil {
		return nil, err
	}
	return []domain.RasterPage{page}, nil
}

// finishPage bounds, encodes and writes one rendered page. The archival
// raster and the oracle-input copy are produced independently from the same
// render.
func (e *Engine) finishPage(img image.Image, pageNum int, dir string) (domain.RasterPage, error) {
	archival := ScaleToFit(img, e.cfg.MaxDimension)
	jpegBytes, err := EncodeJPEG(archival, e.cfg.JPEGQuality)
	if err != nil {
		return domain.RasterPage{}, domain.RenderError(fmt.Sprintf("failed to encode page %d", pageNum), err)
	}

	modelBytes, err := EncodeJPEG(ScaleToFit(img, e.cfg.ModelMaxDimension), e.cfg.JPEGQuality)
	if err != nil {
		return domain.RasterPage{}, domain.RenderError(fmt.Sprintf("failed to encode model copy of page %d", pageNum), err)
	}

	outputPath := filepath.Join(dir, fmt.Sprintf("page_%03d.jpg", pageNum))
	if err := os.WriteFile(outputPath, jpegBytes, 0o644); err != nil {
		return domain.RasterPage{}, domain.IOError(fmt.Sprintf("failed to write page %d", pageNum), err)
	}

	bounds := archival.Bounds()
	return domain.RasterPage{
		PageNumber: pageNum,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		ImagePath:  outputPath,
		JPEG:       jpegBytes,
		ModelJPEG:  modelBytes,
	}, nil
}
