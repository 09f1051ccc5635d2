package raster

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rgba(w, h int) *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, w, h))
}

func TestScaleToFit(t *testing.T) {
	tests := []struct {
		name  string
		w, h  int
		bound int
		wantW int
		wantH int
	}{
		{"landscape downscale", 2400, 1600, 1200, 1200, 800},
		{"portrait downscale", 1000, 3000, 1200, 400, 1200},
		{"already within bound", 800, 600, 1200, 800, 600},
		{"exactly at bound", 1200, 900, 1200, 1200, 900},
		{"square", 2000, 2000, 500, 500, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ScaleToFit(rgba(tt.w, tt.h), tt.bound)
			bounds := out.Bounds()
			assert.Equal(t, tt.wantW, bounds.Dx())
			assert.Equal(t, tt.wantH, bounds.Dy())
		})
	}
}

func TestScaleToFitNeverUpscales(t *testing.T) {
	src := rgba(100, 80)
	out := ScaleToFit(src, 1200)
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 80, out.Bounds().Dy())
}

func TestEncodeDecodeJPEG(t *testing.T) {
	data, err := EncodeJPEG(rgba(64, 48), 85)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	img, err := DecodeImage(data)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
}

func TestDecodeImagePNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, rgba(32, 32)))

	img, err := DecodeImage(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
}

func TestDecodeImageGarbage(t *testing.T) {
	_, err := DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}

func TestCropRect(t *testing.T) {
	src := rgba(200, 100)
	crop, err := CropRect(src, image.Rect(10, 10, 110, 90), 3, 85)
	require.NoError(t, err)
	require.NotNil(t, crop)

	img, err := jpeg.Decode(bytes.NewReader(crop))
	require.NoError(t, err)
	// 100x80 rect with a 3px inset on each side.
	assert.Equal(t, 94, img.Bounds().Dx())
	assert.Equal(t, 74, img.Bounds().Dy())
}

func TestCropRectEmptyAfterInset(t *testing.T) {
	src := rgba(200, 100)

	// Rect collapses entirely under the inset.
	crop, err := CropRect(src, image.Rect(10, 10, 14, 14), 3, 85)
	require.NoError(t, err)
	assert.Nil(t, crop)

	// Rect entirely outside the image.
	crop, err = CropRect(src, image.Rect(500, 500, 600, 600), 3, 85)
	require.NoError(t, err)
	assert.Nil(t, crop)
}
