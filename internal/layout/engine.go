package layout

import (
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"kindlecal/internal/agenda"
)

// Canvas geometry in pixels.
const (
	Width  = 600
	Height = 800

	Margin       = 10
	MarginHalf   = Margin / 2
	MarginDouble = Margin * 2

	HeaderHeight   = 150
	EventCount     = 5
	EventHeight    = (Height - HeaderHeight) / EventCount
	EventTimeWidth = EventHeight + Margin
)

// EmptyMessage is drawn when there is nothing on the agenda.
const EmptyMessage = "Nothing for today!"

// Engine turns an agenda into a raster.
type Engine struct {
	fonts *FontSet
}

func NewEngine(fonts *FontSet) *Engine {
	return &Engine{fonts: fonts}
}

// Render draws entries for the day of now onto a fresh white 600×800 canvas.
// Entries past the fifth are dropped.
func (e *Engine) Render(entries []agenda.Entry, now time.Time) (*image.Gray, error) {
	faces, err := e.fonts.Faces()
	if err != nil {
		return nil, fmt.Errorf("layout: build faces: %w", err)
	}
	defer faces.Close()

	c := NewGrayCanvas(Width, Height)
	Layout(c, faces, entries, now)
	return c.Image(), nil
}

// Layout draws the header and body onto c.
func Layout(c Canvas, faces *Faces, entries []agenda.Entry, now time.Time) {
	drawHeader(c, faces, now)

	if len(entries) == 0 {
		drawEmpty(c, faces)
		return
	}

	n := min(len(entries), EventCount)
	for i, entry := range entries[:n] {
		top := HeaderHeight + i*EventHeight
		drawSlot(c, faces, entry, top)
		if i < n-1 {
			y := top + EventHeight - 1
			c.DrawLine(2, image.Pt(Margin, y), image.Pt(Width-Margin, y))
		}
	}
}

func drawHeader(c Canvas, faces *Faces, now time.Time) {
	c.DrawText(faces.Weekday, image.Pt(Margin, Margin), now.Weekday().String())

	month := now.Month().String()
	m := c.MeasureText(faces.Month, month)
	c.DrawText(faces.Month, image.Pt(Margin, HeaderHeight-int(m.H)-Margin), month)

	day := strconv.Itoa(now.Day())
	d := c.MeasureText(faces.Day, day)
	c.DrawText(faces.Day, image.Pt(Width-int(d.W)-MarginDouble, int(HeaderHeight/2.0-d.H/2)), day)

	c.DrawLine(4, image.Pt(-1, HeaderHeight-2), image.Pt(Width+1, HeaderHeight-2))
}

func drawEmpty(c Canvas, faces *Faces) {
	s := c.MeasureText(faces.Empty, EmptyMessage)
	x := Width/2 - int(s.W/2)
	y := HeaderHeight + (Height-HeaderHeight)/2 - int(s.H/2)
	c.DrawText(faces.Empty, image.Pt(x, y), EmptyMessage)
}

func drawSlot(c Canvas, faces *Faces, entry agenda.Entry, top int) {
	mid := top + EventHeight/2

	if !entry.IsAllDay() {
		start := entry.StartLabel()
		s := c.MeasureText(faces.StartTime, start)
		c.DrawText(faces.StartTime, image.Pt(EventTimeWidth-int(s.W), mid-int(s.H)-2), start)

		end := entry.EndLabel()
		e := c.MeasureText(faces.EndTime, end)
		c.DrawText(faces.EndTime, image.Pt(EventTimeWidth-int(e.W), mid+2), end)
	}

	x := EventTimeWidth + MarginDouble
	c.DrawLine(1, image.Pt(x, top+MarginDouble), image.Pt(x, top+EventHeight-MarginDouble))

	x += MarginDouble
	title := entry.TitleShort()
	t := c.MeasureText(faces.Title, title)
	desc := entry.DescriptionShort()
	if strings.TrimSpace(desc) == "" {
		c.DrawText(faces.Title, image.Pt(x, mid-int(t.H/2)), title)
		return
	}
	c.DrawText(faces.Title, image.Pt(x, mid-int(t.H)), title)
	c.DrawText(faces.Description, image.Pt(x, mid+MarginHalf), desc)
}
