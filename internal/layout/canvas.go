package layout

import (
	"image"
	"image/color"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Size is a measured text extent in pixels. Fractions are kept so that the
// layout can apply its own truncation.
type Size struct {
	W float64
	H float64
}

// Canvas is the drawing surface used by the layout. Text origins are the
// top-left corner of the text line box.
type Canvas interface {
	MeasureText(face font.Face, s string) Size
	DrawText(face font.Face, origin image.Point, s string)
	DrawLine(width int, p1, p2 image.Point)
}

// Measure returns the advance width of s and the line height
// (ascent + descent) of face.
func Measure(face font.Face, s string) Size {
	m := face.Metrics()
	return Size{
		W: toFloat(font.MeasureString(face, s)),
		H: toFloat(m.Ascent + m.Descent),
	}
}

func toFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64
}

// GrayCanvas draws black ink onto an *image.Gray. Text is anti-aliased by
// the font rasterizer; lines are hard-edged.
type GrayCanvas struct {
	img *image.Gray
	ink *image.Uniform
}

// NewGrayCanvas allocates a w×h canvas filled with white.
func NewGrayCanvas(w, h int) *GrayCanvas {
	img := image.NewGray(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	return &GrayCanvas{img: img, ink: image.NewUniform(color.Gray{Y: 0})}
}

// Image returns the backing raster.
func (c *GrayCanvas) Image() *image.Gray { return c.img }

func (c *GrayCanvas) MeasureText(face font.Face, s string) Size {
	return Measure(face, s)
}

func (c *GrayCanvas) DrawText(face font.Face, origin image.Point, s string) {
	d := font.Drawer{
		Dst:  c.img,
		Src:  c.ink,
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(origin.X), Y: fixed.I(origin.Y) + face.Metrics().Ascent},
	}
	d.DrawString(s)
}

// DrawLine draws a line of the given thickness. Horizontal and vertical
// lines cover [start, end) along their axis and are centered on the
// coordinate across it, the extra pixel of an even width going up/left:
// a 4px line at y=148 fills rows 146..149. Anything outside the canvas is
// clipped.
func (c *GrayCanvas) DrawLine(width int, p1, p2 image.Point) {
	if width <= 0 {
		return
	}
	lo := width / 2
	switch {
	case p1.Y == p2.Y:
		x0, x1 := minMax(p1.X, p2.X)
		c.fill(image.Rect(x0, p1.Y-lo, x1, p1.Y-lo+width))
	case p1.X == p2.X:
		y0, y1 := minMax(p1.Y, p2.Y)
		c.fill(image.Rect(p1.X-lo, y0, p1.X-lo+width, y1))
	default:
		c.bresenham(width, p1, p2)
	}
}

func (c *GrayCanvas) fill(r image.Rectangle) {
	draw.Draw(c.img, r.Intersect(c.img.Bounds()), c.ink, image.Point{}, draw.Src)
}

// bresenham stamps a width×width square along a diagonal line.
func (c *GrayCanvas) bresenham(width int, p1, p2 image.Point) {
	lo := width / 2
	dx := abs(p2.X - p1.X)
	dy := -abs(p2.Y - p1.Y)
	sx, sy := 1, 1
	if p1.X > p2.X {
		sx = -1
	}
	if p1.Y > p2.Y {
		sy = -1
	}
	err := dx + dy
	x, y := p1.X, p1.Y
	for {
		c.fill(image.Rect(x-lo, y-lo, x-lo+width, y-lo+width))
		if x == p2.X && y == p2.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func minMax(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
