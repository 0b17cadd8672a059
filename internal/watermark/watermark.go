// Package watermark stamps a provenance label onto swapped still images.
package watermark

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// DefaultText marks an image as machine-made.
const DefaultText = "AI-Generated"

const (
	jpegQuality = 95
	padding     = 4
	// Images up to this width get the label at 1x; wider ones scale it up.
	baseWidth = 640
)

var (
	banner = color.NRGBA{A: 178}
	ink    = color.NRGBA{R: 255, G: 255, B: 255, A: 178}
)

// Stamp decodes a JPEG or PNG, draws text on a translucent banner in the
// bottom-left corner and returns the result as JPEG.
func Stamp(img []byte, text string) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	scale := max(1, b.Dx()/baseWidth)
	lbl := label(text, b.Dx()/4/scale)
	size := lbl.Bounds().Size().Mul(scale)
	at := image.Rect(0, b.Dy()-size.Y, size.X, b.Dy()).Intersect(dst.Bounds())
	draw.NearestNeighbor.Scale(dst, at, lbl, lbl.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// label renders text at 1x on a banner at least minWidth pixels wide.
func label(text string, minWidth int) *image.RGBA {
	face := basicfont.Face7x13
	width := max(font.MeasureString(face, text).Ceil()+2*padding, minWidth)
	height := face.Height + 2*padding

	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(rgba, rgba.Bounds(), image.NewUniform(banner), image.Point{}, draw.Src)

	d := font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(ink),
		Face: face,
		Dot:  fixed.P(padding, padding+face.Ascent),
	}
	d.DrawString(text)
	return rgba
}
