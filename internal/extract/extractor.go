// Package extract asks the extraction oracle for structured per-frame text
// on rasterized storyboard pages.
package extract

import (
	"context"
	"fmt"

	"github.com/spotlight-ai/storyboard-engine/internal/domain"
	"github.com/spotlight-ai/storyboard-engine/internal/jsonx"
	"github.com/spotlight-ai/storyboard-engine/internal/observability"
)

// MaxBatchSize bounds how many pages go into one oracle call.
const MaxBatchSize = 4

const pagePrompt = `You are reading one page of a commercial storyboard document.

Extract the storyboard content and return ONLY a JSON object:

{
  "spotName": "the commercial/spot title printed on the page, or null",
  "gridLayout": "panel grid layout like \"3x3\", or null if unclear",
  "hasFrameNumbers": true or false, whether frame numbers are visibly printed,
  "frames": [
    {"frameNumber": "1A", "description": "action described under the panel", "dialog": "spoken lines / VO for the panel"}
  ]
}

Rules:
- List frames in reading order: left to right, top to bottom.
- "spotName" is the document or commercial title (e.g. "ACME - WIDGET :30"),
  not a scene heading inside a panel. Use null when no title is printed.
- Use "" for a missing frameNumber, description or dialog.
- Omit panels with no content entirely; never return empty placeholder frames.
- No explanations, no markdown fences, just the JSON object.`

const batchPromptHeader = `You are reading %d pages of a commercial storyboard document. Each page
image below is preceded by its page label.

For every page, extract the storyboard content. Return ONLY a JSON array with
one object per page:

[
  {
    "page": 3,
    "spotName": "the commercial/spot title printed on the page, or null",
    "gridLayout": "panel grid layout like \"3x3\", or null if unclear",
    "hasFrameNumbers": true or false, whether frame numbers are visibly printed,
    "frames": [
      {"frameNumber": "1A", "description": "action described under the panel", "dialog": "spoken lines / VO for the panel"}
    ]
  }
]

Rules:
- "page" must echo the page label given before the image.
- List frames in reading order: left to right, top to bottom.
- "spotName" is the document or commercial title, not a scene heading inside
  a panel. Use null when no title is printed.
- Use "" for a missing frameNumber, description or dialog.
- Omit panels with no content entirely; never return empty placeholder frames.
- Include an entry for every page, even when it has no frames.
- No explanations, no markdown fences, just the JSON array.`

// Extractor implements domain.PageExtractor on top of the oracle.
type Extractor struct {
	oracle domain.Oracle
	logger *observability.Logger
}

// New creates a page extractor.
func New(orc domain.Oracle, logger *observability.Logger) *Extractor {
	return &Extractor{
		oracle: orc,
		logger: logger.WithComponent("extract"),
	}
}

// pageResponse mirrors the oracle's JSON contract for one page.
type pageResponse struct {
	Page            int                `json:"page"`
	SpotName        *string            `json:"spotName"`
	GridLayout      *string            `json:"gridLayout"`
	HasFrameNumbers bool               `json:"hasFrameNumbers"`
	Frames          []domain.FrameText `json:"frames"`
}

// ExtractPage extracts one page. A malformed oracle response yields the safe
// empty default, never an error: the oracle is probabilistic and a page with
// no parseable result still flows through the rest of the pipeline.
func (e *Extractor) ExtractPage(ctx context.Context, page domain.RasterPage) (domain.PageExtraction, error) {
	empty := emptyExtraction(page.PageNumber)

	text, err := e.oracle.Complete(ctx, domain.OracleRequest{
		Prompt: pagePrompt,
		Images: [][]byte{page.ModelJPEG},
	})
	if err != nil {
		return empty, domain.ExtractionError(fmt.Sprintf("oracle call failed for page %d", page.PageNumber), err)
	}

	var resp pageResponse
	if err := jsonx.Unmarshal(text, &resp); err != nil {
		e.logger.Warn().
			Int("page", page.PageNumber).
			Err(err).
			Msg("Unparseable extraction response, using empty default")
		return empty, nil
	}

	return toExtraction(resp, page.PageNumber), nil
}

// ExtractBatch extracts up to MaxBatchSize pages in a single oracle call.
// Pages absent from the response are synthesized empty rather than dropped.
func (e *Extractor) ExtractBatch(ctx context.Context, pages []domain.RasterPage) ([]domain.PageExtraction, error) {
	if len(pages) == 0 {
		return nil, nil
	}
	if len(pages) == 1 {
		one, err := e.ExtractPage(ctx, pages[0])
		if err != nil {
			return nil, err
		}
		return []domain.PageExtraction{one}, nil
	}
	if len(pages) > MaxBatchSize {
		return nil, domain.ValidationError(fmt.Sprintf("batch of %d exceeds maximum of %d", len(pages), MaxBatchSize), nil)
	}

	images := make([][]byte, len(pages))
	labels := make([]string, len(pages))
	for i, p := range pages {
		images[i] = p.ModelJPEG
		labels[i] = fmt.Sprintf("Page %d:", p.PageNumber)
	}

	text, err := e.oracle.Complete(ctx, domain.OracleRequest{
		Prompt: fmt.Sprintf(batchPromptHeader, len(pages)),
		Images: images,
		Labels: labels,
	})
	if err != nil {
		return nil, domain.ExtractionError("oracle batch call failed", err)
	}

	responses := parseBatchResponse(text)
	if responses == nil {
		e.logger.Warn().
			Int("pages", len(pages)).
			Msg("Unparseable batch extraction response, using empty defaults")
	}

	return alignBatch(responses, pages), nil
}

// parseBatchResponse parses the batched oracle reply. A single object reply
// is normalized into a one-element array.
func parseBatchResponse(text string) []pageResponse {
	var responses []pageResponse
	if err := jsonx.Unmarshal(text, &responses); err == nil {
		return responses
	}

	var single pageResponse
	if err := jsonx.Unmarshal(text, &single); err == nil {
		return []pageResponse{single}
	}

	return nil
}

// alignBatch pairs responses with the requested pages by page number,
// falling back to submission order when the oracle did not echo labels.
func alignBatch(responses []pageResponse, pages []domain.RasterPage) []domain.PageExtraction {
	byPage := make(map[int]pageResponse, len(responses))
	labeled := true
	for _, r := range responses {
		if r.Page == 0 {
			labeled = false
			break
		}
		byPage[r.Page] = r
	}

	out := make([]domain.PageExtraction, len(pages))
	for i, p := range pages {
		switch {
		case labeled:
			if r, ok := byPage[p.PageNumber]; ok {
				out[i] = toExtraction(r, p.PageNumber)
			} else {
				out[i] = emptyExtraction(p.PageNumber)
			}
		case i < len(responses):
			out[i] = toExtraction(responses[i], p.PageNumber)
		default:
			out[i] = emptyExtraction(p.PageNumber)
		}
	}
	return out
}

func toExtraction(r pageResponse, pageNumber int) domain.PageExtraction {
	frames := r.Frames
	if frames == nil {
		frames = []domain.FrameText{}
	}
	return domain.PageExtraction{
		PageNumber:        pageNumber,
		SpotName:          normalizeSpotName(r.SpotName),
		GridLayout:        r.GridLayout,
		HasVisibleNumbers: r.HasFrameNumbers,
		Frames:            frames,
	}
}

func emptyExtraction(pageNumber int) domain.PageExtraction {
	return domain.PageExtraction{
		PageNumber: pageNumber,
		Frames:     []domain.FrameText{},
	}
}

// normalizeSpotName treats empty and null-ish titles as absent.
func normalizeSpotName(name *string) *string {
	if name == nil || *name == "" || *name == "null" {
		return nil
	}
	return name
}
