package domain

import "context"

// Rasterizer renders every page of an uploaded document into a RasterPage
// sequence. A still image yields exactly one page. The caller owns the
// directory the rasterizer writes into and removes it when the run ends.
type Rasterizer interface {
	Rasterize(ctx context.Context, doc Document, dir string) ([]RasterPage, error)
}

// FrameLocator finds storyboard panels on one rasterized page and returns
// crops in reading order. Locating is best-effort: a failed page yields an
// empty result, never an error that aborts the page.
type FrameLocator interface {
	Locate(ctx context.Context, page RasterPage) ([]DetectedRegion, error)
}

// PageExtractor asks the extraction oracle for per-frame text on one page or
// a batch of pages. A malformed oracle response yields a safe empty result.
type PageExtractor interface {
	ExtractPage(ctx context.Context, page RasterPage) (PageExtraction, error)
	ExtractBatch(ctx context.Context, pages []RasterPage) ([]PageExtraction, error)
}

// ShotGrouper is the model-assisted visual-continuity pass. It returns a copy
// of the frames annotated with ShotGroup tags; on any oracle failure the
// frames come back untagged.
type ShotGrouper interface {
	Annotate(ctx context.Context, frames []ExtractedFrame) []ExtractedFrame
}

// Oracle is the multimodal extraction service: an ordered list of text and
// image content blocks in, free-form text expected to contain JSON out.
type Oracle interface {
	Complete(ctx context.Context, req OracleRequest) (string, error)
}

// OracleRequest is one oracle call. Labels, when present, are interleaved
// before the corresponding image so multi-image prompts can reference pages
// or frames distinctly.
type OracleRequest struct {
	Prompt    string
	Images    [][]byte // JPEG-encoded
	Labels    []string // optional, one per image
	MaxTokens int
}
