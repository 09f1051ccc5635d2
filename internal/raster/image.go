package raster

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png" // still-image uploads

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DecodeImage decodes JPEG, PNG or WebP bytes.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

// ScaleToFit returns img scaled down so its longest side is at most bound.
// Images already inside the bound are returned unchanged; this never upscales.
func ScaleToFit(img image.Image, bound int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if bound <= 0 || (w <= bound && h <= bound) {
		return img
	}

	var nw, nh int
	if w >= h {
		nw = bound
		nh = h * bound / w
	} else {
		nh = bound
		nw = w * bound / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// EncodeJPEG encodes img at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CropRect crops img to r (inset applied on all sides to avoid border lines)
// and re-encodes as JPEG. Returns nil when the inset collapses the rectangle.
func CropRect(img image.Image, r image.Rectangle, inset, quality int) ([]byte, error) {
	r = r.Inset(inset).Intersect(img.Bounds())
	if r.Empty() {
		return nil, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return EncodeJPEG(dst, quality)
}
