package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spotlight-ai/storyboard-engine/internal/config"
	"github.com/spotlight-ai/storyboard-engine/internal/domain"
	"github.com/spotlight-ai/storyboard-engine/internal/observability"
)

type fakeRasterizer struct {
	pages []domain.RasterPage
	err   error
}

func (f *fakeRasterizer) Rasterize(_ context.Context, _ domain.Document, _ string) ([]domain.RasterPage, error) {
	return f.pages, f.err
}

type fakeLocator struct {
	regions map[int][]domain.DetectedRegion
	delay   time.Duration
	err     error
}

func (f *fakeLocator) Locate(_ context.Context, page domain.RasterPage) ([]domain.DetectedRegion, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.regions[page.PageNumber], nil
}

type fakeExtractor struct {
	byPage map[int]domain.PageExtraction
	err    error
}

func (f *fakeExtractor) ExtractPage(_ context.Context, page domain.RasterPage) (domain.PageExtraction, error) {
	if f.err != nil {
		return domain.PageExtraction{}, f.err
	}
	return f.extraction(page.PageNumber), nil
}

func (f *fakeExtractor) ExtractBatch(_ context.Context, pages []domain.RasterPage) ([]domain.PageExtraction, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.PageExtraction, len(pages))
	for i, p := range pages {
		out[i] = f.extraction(p.PageNumber)
	}
	return out, nil
}

func (f *fakeExtractor) extraction(pageNum int) domain.PageExtraction {
	if e, ok := f.byPage[pageNum]; ok {
		return e
	}
	return domain.PageExtraction{PageNumber: pageNum, Frames: []domain.FrameText{}}
}

type noopAnnotator struct{}

func (noopAnnotator) Annotate(_ context.Context, frames []domain.ExtractedFrame) []domain.ExtractedFrame {
	return frames
}

func testConfig() config.PipelineConfig {
	return config.PipelineConfig{BatchSize: 4, ConcurrentBatches: 2}
}

func rasterPages(n int) []domain.RasterPage {
	pages := make([]domain.RasterPage, n)
	for i := range pages {
		pages[i] = domain.RasterPage{PageNumber: i + 1}
	}
	return pages
}

func regionsFor(page, count int) []domain.DetectedRegion {
	regions := make([]domain.DetectedRegion, count)
	for i := range regions {
		regions[i] = domain.DetectedRegion{
			PageNumber: page,
			OrderIndex: i,
			Image:      []byte{byte(page), byte(i)},
		}
	}
	return regions
}

func strPtr(s string) *string { return &s }

func newOrchestrator(r domain.Rasterizer, l domain.FrameLocator, e domain.PageExtractor) *Orchestrator {
	return New(r, l, e, noopAnnotator{}, testConfig(), observability.Nop())
}

func TestRunSinglePageTwoShots(t *testing.T) {
	// One page, two numbered panels, no dialogue and no title.
	rz := &fakeRasterizer{pages: rasterPages(1)}
	loc := &fakeLocator{regions: map[int][]domain.DetectedRegion{1: regionsFor(1, 2)}}
	ext := &fakeExtractor{byPage: map[int]domain.PageExtraction{
		1: {
			PageNumber:        1,
			HasVisibleNumbers: true,
			Frames: []domain.FrameText{
				{Label: "1", Description: "Open on storefront"},
				{Label: "2", Description: "Cut to product"},
			},
		},
	}}

	spots, err := newOrchestrator(rz, loc, ext).Run(context.Background(), domain.Document{Data: []byte("x"), MediaType: domain.MediaTypePDF})

	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, domain.DefaultSpotName, spots[0].Name)
	require.Len(t, spots[0].Shots, 2)
	for _, shot := range spots[0].Shots {
		require.Len(t, shot.FrameLabels, 1)
		assert.Equal(t, shot.Description, shot.Combined, "no dialogue means combined equals description")
		assert.NotNil(t, shot.Images[0])
	}
}

func TestRunTwoPagesOneSpot(t *testing.T) {
	rz := &fakeRasterizer{pages: rasterPages(2)}
	loc := &fakeLocator{regions: map[int][]domain.DetectedRegion{
		1: regionsFor(1, 2),
		2: regionsFor(2, 2),
	}}
	ext := &fakeExtractor{byPage: map[int]domain.PageExtraction{
		1: {
			PageNumber:        1,
			SpotName:          strPtr("ACME - WIDGET :30"),
			HasVisibleNumbers: true,
			Frames: []domain.FrameText{
				{Label: "1A", Description: "Hero enters"},
				{Label: "1B", Description: "Hero waves"},
			},
		},
		2: {
			PageNumber:        2,
			HasVisibleNumbers: true,
			Frames: []domain.FrameText{
				{Label: "2A", Description: "Product close up"},
				{Label: "2B", Description: "Logo"},
			},
		},
	}}

	spots, err := newOrchestrator(rz, loc, ext).Run(context.Background(), domain.Document{Data: []byte("x")})

	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Equal(t, "ACME - WIDGET :30", spots[0].Name)
	require.Len(t, spots[0].Shots, 2)
	assert.Equal(t, []string{"1A", "1B"}, spots[0].Shots[0].FrameLabels)
	assert.Equal(t, []string{"2A", "2B"}, spots[0].Shots[1].FrameLabels)
}

func TestRunSpotStickiness(t *testing.T) {
	rz := &fakeRasterizer{pages: rasterPages(3)}
	loc := &fakeLocator{}
	ext := &fakeExtractor{byPage: map[int]domain.PageExtraction{
		1: {
			PageNumber: 1, SpotName: strPtr("A"), HasVisibleNumbers: true,
			Frames: []domain.FrameText{{Label: "1"}},
		},
		2: {
			PageNumber: 2, HasVisibleNumbers: true,
			Frames: []domain.FrameText{{Label: "2"}},
		},
		3: {
			PageNumber: 3, SpotName: strPtr("B"), HasVisibleNumbers: true,
			Frames: []domain.FrameText{{Label: "1"}},
		},
	}}

	spots, err := newOrchestrator(rz, loc, ext).Run(context.Background(), domain.Document{Data: []byte("x")})

	require.NoError(t, err)
	require.Len(t, spots, 2)
	assert.Equal(t, "A", spots[0].Name)
	assert.Equal(t, "B", spots[1].Name)

	// Pages 1 and 2 both fall under "A": the title sticks forward.
	var aLabels []string
	for _, shot := range spots[0].Shots {
		aLabels = append(aLabels, shot.FrameLabels...)
	}
	assert.Equal(t, []string{"1", "2"}, aLabels)
}

func TestRunPreservesPageOrderAcrossBatches(t *testing.T) {
	// Enough pages for multiple concurrent batches, with a locator slow
	// enough to scramble completion order.
	const pageCount = 10
	rz := &fakeRasterizer{pages: rasterPages(pageCount)}
	loc := &fakeLocator{delay: time.Millisecond}

	byPage := make(map[int]domain.PageExtraction, pageCount)
	for p := 1; p <= pageCount; p++ {
		byPage[p] = domain.PageExtraction{
			PageNumber:        p,
			HasVisibleNumbers: false,
			Frames:            []domain.FrameText{{Description: "panel"}},
		}
	}
	ext := &fakeExtractor{byPage: byPage}

	orc := New(rz, loc, ext, noopAnnotator{}, config.PipelineConfig{BatchSize: 2, ConcurrentBatches: 3}, observability.Nop())
	spots, err := orc.Run(context.Background(), domain.Document{Data: []byte("x")})

	require.NoError(t, err)
	require.Len(t, spots, 1)

	// Renumbering ran in merge order, so labels count up page by page.
	var labels []string
	for _, shot := range spots[0].Shots {
		labels = append(labels, shot.FrameLabels...)
	}
	want := []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}
	assert.Equal(t, want, labels)
}

func TestRunReconciliationByIndex(t *testing.T) {
	tests := []struct {
		name       string
		regions    int
		texts      int
		wantFrames int
	}{
		{"more regions than texts", 3, 2, 3},
		{"more texts than regions", 1, 3, 3},
		{"equal", 2, 2, 2},
		{"no regions", 0, 2, 2},
		{"no texts", 2, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			texts := make([]domain.FrameText, tt.texts)
			for i := range texts {
				texts[i] = domain.FrameText{Description: "panel"}
			}

			rz := &fakeRasterizer{pages: rasterPages(1)}
			loc := &fakeLocator{regions: map[int][]domain.DetectedRegion{1: regionsFor(1, tt.regions)}}
			ext := &fakeExtractor{byPage: map[int]domain.PageExtraction{
				1: {PageNumber: 1, Frames: texts},
			}}

			spots, err := newOrchestrator(rz, loc, ext).Run(context.Background(), domain.Document{Data: []byte("x")})
			require.NoError(t, err)

			frames := 0
			withImages := 0
			withText := 0
			for _, spot := range spots {
				for _, shot := range spot.Shots {
					withImages += len(shot.Images)
					for i := range shot.FrameLabels {
						frames++
						if shot.Descriptions[i] != "" {
							withText++
						}
					}
				}
			}
			assert.Equal(t, tt.wantFrames, frames)
			assert.Equal(t, tt.regions, withImages, "every located region survives")
			assert.Equal(t, tt.texts, withText, "every text frame survives")
		})
	}
}

func TestRunLocatorFailureIsRecoverable(t *testing.T) {
	rz := &fakeRasterizer{pages: rasterPages(1)}
	loc := &fakeLocator{err: errors.New("detector crashed")}
	ext := &fakeExtractor{byPage: map[int]domain.PageExtraction{
		1: {
			PageNumber: 1, HasVisibleNumbers: true,
			Frames: []domain.FrameText{{Label: "1", Description: "panel"}},
		},
	}}

	spots, err := newOrchestrator(rz, loc, ext).Run(context.Background(), domain.Document{Data: []byte("x")})

	require.NoError(t, err)
	require.Len(t, spots, 1)
	require.Len(t, spots[0].Shots, 1)
	assert.Empty(t, spots[0].Shots[0].Images)
	assert.Equal(t, "panel", spots[0].Shots[0].Description)
}

func TestRunExtractorFailureIsRecoverable(t *testing.T) {
	rz := &fakeRasterizer{pages: rasterPages(1)}
	loc := &fakeLocator{regions: map[int][]domain.DetectedRegion{1: regionsFor(1, 2)}}
	ext := &fakeExtractor{err: errors.New("oracle unavailable")}

	spots, err := newOrchestrator(rz, loc, ext).Run(context.Background(), domain.Document{Data: []byte("x")})

	require.NoError(t, err)
	require.Len(t, spots, 1)

	// Frames survive with images only.
	frames := 0
	for _, shot := range spots[0].Shots {
		frames += len(shot.FrameLabels)
		assert.Len(t, shot.Images, len(shot.FrameLabels))
		for i := range shot.FrameLabels {
			assert.Empty(t, shot.Descriptions[i])
		}
	}
	assert.Equal(t, 2, frames)
}

func TestRunRasterizerFailureIsFatal(t *testing.T) {
	rz := &fakeRasterizer{err: domain.RenderError("rendering failed after 2 retries", errors.New("timeout"))}

	_, err := newOrchestrator(rz, &fakeLocator{}, &fakeExtractor{}).Run(context.Background(), domain.Document{Data: []byte("x")})

	var perr *domain.PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.ErrorTypeRender, perr.Type)
}

func TestPartition(t *testing.T) {
	batches := partition(rasterPages(10), 4)
	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 4)
	assert.Len(t, batches[1], 4)
	assert.Len(t, batches[2], 2)

	assert.Empty(t, partition(nil, 4))
}
