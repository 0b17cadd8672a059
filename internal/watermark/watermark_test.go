package watermark

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}))
	return buf.Bytes()
}

func luma(img image.Image, x, y int) uint8 {
	return color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
}

func TestStamp_DarkensBottomLeftCorner(t *testing.T) {
	in := encodeJPEG(t, solid(800, 600, color.White))

	out, err := Stamp(in, DefaultText)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(800, 600), img.Bounds().Size())

	assert.Less(t, luma(img, 1, 598), uint8(128), "banner corner")
	assert.Greater(t, luma(img, 798, 1), uint8(240), "opposite corner untouched")
	assert.Greater(t, luma(img, 1, 1), uint8(240), "top-left untouched")
}

func TestStamp_BannerSpansQuarterWidth(t *testing.T) {
	in := encodeJPEG(t, solid(2000, 1000, color.White))

	out, err := Stamp(in, DefaultText)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)

	assert.Less(t, luma(img, 2000/4-20, 998), uint8(128))
	assert.Greater(t, luma(img, 2000/4+40, 998), uint8(240))
}

func TestStamp_AcceptsPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(64, 48, color.Gray{Y: 200})))

	out, err := Stamp(buf.Bytes(), "x")
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 64, cfg.Width)
}

func TestStamp_RejectsNonImage(t *testing.T) {
	_, err := Stamp([]byte("not an image"), DefaultText)
	require.Error(t, err)
}
