// Package domain holds the entities and capability interfaces shared by the
// storyboard extraction pipeline.
package domain

// Media types accepted for uploaded documents.
const (
	MediaTypePDF  = "application/pdf"
	MediaTypeJPEG = "image/jpeg"
	MediaTypePNG  = "image/png"
	MediaTypeWebP = "image/webp"
)

// DefaultSpotName is used when no spot title was detected on any page.
const DefaultSpotName = "Untitled"

// Document represents the uploaded storyboard document. It lives only for the
// duration of one pipeline run.
type Document struct {
	Data      []byte
	MediaType string
}

// IsPDF reports whether the document needs multi-page rasterization.
func (d Document) IsPDF() bool {
	return d.MediaType == MediaTypePDF
}

// SupportedMediaType reports whether the declared media type is one the
// pipeline can rasterize.
func SupportedMediaType(mt string) bool {
	switch mt {
	case MediaTypePDF, MediaTypeJPEG, MediaTypePNG, MediaTypeWebP:
		return true
	}
	return false
}

// RasterPage is one rendered page of the document. The JPEG bytes are the
// archival raster; ModelJPEG is the reduced copy sent to the extraction oracle.
type RasterPage struct {
	PageNumber int // 1-based, contiguous
	Width      int
	Height     int
	ImagePath  string // under the run-scoped temp directory
	JPEG       []byte
	ModelJPEG  []byte
}

// DetectedRegion is a located storyboard panel on a page, in reading order.
type DetectedRegion struct {
	PageNumber int
	OrderIndex int
	Image      []byte // JPEG crop
}

// FrameText is the per-frame text block returned by the page extractor.
type FrameText struct {
	Label       string `json:"frameNumber"`
	Description string `json:"description"`
	Dialog      string `json:"dialog"`
}

// PageExtraction is the extractor's result for one page.
type PageExtraction struct {
	PageNumber        int
	SpotName          *string
	GridLayout        *string
	HasVisibleNumbers bool
	Frames            []FrameText
}

// ExtractedFrame is the merged unit record: locator output reconciled with
// extractor output for the same page index. Label uniqueness within a spot is
// not guaranteed until the renumbering pass has run.
type ExtractedFrame struct {
	Label            string
	HasVisibleNumber bool
	Description      string
	Dialog           string
	Image            []byte // nil when the locator found fewer regions
	SpotName         *string
	PageNumber       int
	ShotGroup        int // 0 = untagged; set by the model-assisted grouping pass
}

// Shot groups one or more frames depicting continuous action. FrameLabels,
// Descriptions and Dialogs are parallel per frame; Images keeps frame order
// but omits frames without a crop.
type Shot struct {
	Number       string
	FrameLabels  []string
	Images       [][]byte
	Descriptions []string
	Dialogs      []string
	Description  string
	Dialog       string
	Combined     string
}

// Spot is the top-level response unit.
type Spot struct {
	Name  string
	Shots []Shot
}
