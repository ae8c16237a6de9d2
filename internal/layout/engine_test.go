package layout

import (
	"image"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"

	"kindlecal/internal/agenda"
)

type textOp struct {
	face   font.Face
	origin image.Point
	s      string
}

type lineOp struct {
	width  int
	p1, p2 image.Point
}

// recordingCanvas records draw calls. Every string measures 10px per byte
// wide and 20px high.
type recordingCanvas struct {
	texts []textOp
	lines []lineOp
}

func (r *recordingCanvas) MeasureText(_ font.Face, s string) Size {
	return Size{W: float64(10 * len(s)), H: 20}
}

func (r *recordingCanvas) DrawText(face font.Face, origin image.Point, s string) {
	r.texts = append(r.texts, textOp{face: face, origin: origin, s: s})
}

func (r *recordingCanvas) DrawLine(width int, p1, p2 image.Point) {
	r.lines = append(r.lines, lineOp{width: width, p1: p1, p2: p2})
}

func (r *recordingCanvas) text(s string) (textOp, bool) {
	for _, op := range r.texts {
		if op.s == s {
			return op, true
		}
	}
	return textOp{}, false
}

func (r *recordingCanvas) linesOfWidth(w int) []lineOp {
	var out []lineOp
	for _, l := range r.lines {
		if l.width == w {
			out = append(out, l)
		}
	}
	return out
}

// testFaces returns distinct, never-used faces so draw calls can be told
// apart by identity.
func testFaces() *Faces {
	return &Faces{
		Weekday:     &stubFace{name: "weekday"},
		Month:       &stubFace{name: "month"},
		Day:         &stubFace{name: "day"},
		StartTime:   &stubFace{name: "start"},
		EndTime:     &stubFace{name: "end"},
		Title:       &stubFace{name: "title"},
		Description: &stubFace{name: "description"},
		Empty:       &stubFace{name: "empty"},
	}
}

type stubFace struct {
	font.Face
	name string
}

var now = time.Date(2025, 3, 12, 7, 45, 0, 0, time.UTC)

func timed(h int, title, desc string) agenda.Entry {
	start := time.Date(2025, 3, 12, h, 0, 0, 0, time.UTC)
	return agenda.NewTimedEntry(start, start.Add(time.Hour), title, desc)
}

func TestLayoutHeader(t *testing.T) {
	c := &recordingCanvas{}
	faces := testFaces()
	Layout(c, faces, nil, now)

	weekday, ok := c.text("Wednesday")
	require.True(t, ok)
	assert.Equal(t, image.Pt(10, 10), weekday.origin)
	assert.Same(t, faces.Weekday, weekday.face)

	month, ok := c.text("March")
	require.True(t, ok)
	assert.Equal(t, image.Pt(10, 150-20-10), month.origin)

	day, ok := c.text("12")
	require.True(t, ok)
	assert.Equal(t, image.Pt(600-20-20, 65), day.origin)
	assert.Same(t, faces.Day, day.face)

	header := c.linesOfWidth(4)
	require.Len(t, header, 1)
	assert.Equal(t, image.Pt(-1, 148), header[0].p1)
	assert.Equal(t, image.Pt(601, 148), header[0].p2)
}

func TestLayoutEmptyState(t *testing.T) {
	c := &recordingCanvas{}
	Layout(c, testFaces(), nil, now)

	msg, ok := c.text(EmptyMessage)
	require.True(t, ok)
	w := 10 * len(EmptyMessage)
	assert.Equal(t, image.Pt(300-w/2, 150+325-10), msg.origin)

	assert.Empty(t, c.linesOfWidth(2))
	assert.Empty(t, c.linesOfWidth(1))
}

func TestLayoutOverflowDropsExtraEntries(t *testing.T) {
	var entries []agenda.Entry
	for i := range 7 {
		entries = append(entries, timed(8+i, "E"+string(rune('A'+i)), ""))
	}
	c := &recordingCanvas{}
	Layout(c, testFaces(), entries, now)

	dividers := c.linesOfWidth(2)
	require.Len(t, dividers, 4)
	for i, l := range dividers {
		y := 150 + (i+1)*130 - 1
		assert.Equal(t, image.Pt(10, y), l.p1)
		assert.Equal(t, image.Pt(590, y), l.p2)
	}
	assert.Len(t, c.linesOfWidth(1), 5)

	_, ok := c.text("EE")
	assert.True(t, ok)
	_, ok = c.text("EF")
	assert.False(t, ok)
	_, ok = c.text(EmptyMessage)
	assert.False(t, ok)
}

func TestLayoutTimedSlot(t *testing.T) {
	c := &recordingCanvas{}
	Layout(c, testFaces(), []agenda.Entry{timed(9, "Standup", "")}, now)
	top := 150

	start, ok := c.text("9:00 AM")
	require.True(t, ok)
	assert.Equal(t, image.Pt(140-70, top+65-20-2), start.origin)

	end, ok := c.text("10:00 AM")
	require.True(t, ok)
	assert.Equal(t, image.Pt(140-80, top+67), end.origin)

	vertical := c.linesOfWidth(1)
	require.Len(t, vertical, 1)
	assert.Equal(t, image.Pt(160, top+20), vertical[0].p1)
	assert.Equal(t, image.Pt(160, top+110), vertical[0].p2)

	title, ok := c.text("Standup")
	require.True(t, ok)
	assert.Equal(t, image.Pt(180, top+65-10), title.origin)

	assert.Empty(t, c.linesOfWidth(2), "a single slot has no divider")
}

func TestLayoutTitleWithDescription(t *testing.T) {
	c := &recordingCanvas{}
	faces := testFaces()
	entries := []agenda.Entry{
		agenda.NewAllDayEntry("Holiday", ""),
		timed(9, "Dentist", "Main Street Clinic, 2nd floor"),
	}
	Layout(c, faces, entries, now)
	top := 150 + 130

	title, ok := c.text("Dentist")
	require.True(t, ok)
	assert.Equal(t, image.Pt(180, top+65-20), title.origin)

	short := agenda.Shorten("Main Street Clinic, 2nd floor", agenda.DescriptionBudget)
	desc, ok := c.text(short)
	require.True(t, ok)
	assert.Equal(t, image.Pt(180, top+70), desc.origin)
	assert.Same(t, faces.Description, desc.face)
}

func TestLayoutBlankDescriptionCentersTitle(t *testing.T) {
	c := &recordingCanvas{}
	faces := testFaces()
	Layout(c, faces, []agenda.Entry{timed(9, "Gym", "   ")}, now)

	title, ok := c.text("Gym")
	require.True(t, ok)
	assert.Equal(t, image.Pt(180, 150+65-10), title.origin)
	for _, op := range c.texts {
		assert.NotSame(t, faces.Description, op.face)
	}
}

func TestLayoutAllDayLeavesTimeColumnBlank(t *testing.T) {
	c := &recordingCanvas{}
	faces := testFaces()
	Layout(c, faces, []agenda.Entry{agenda.NewAllDayEntry("Holiday", "")}, now)

	for _, op := range c.texts {
		assert.NotSame(t, faces.StartTime, op.face)
		assert.NotSame(t, faces.EndTime, op.face)
	}
	_, ok := c.text("Holiday")
	assert.True(t, ok)
}

func TestLayoutDrawsShortTitles(t *testing.T) {
	long := strings.Repeat("x", 40)
	c := &recordingCanvas{}
	Layout(c, testFaces(), []agenda.Entry{agenda.NewAllDayEntry(long, "")}, now)

	_, ok := c.text(long)
	assert.False(t, ok)
	_, ok = c.text(agenda.Shorten(long, agenda.TitleBudget))
	assert.True(t, ok)
}

func TestEngineRenderRaster(t *testing.T) {
	fonts, err := DefaultFontSet()
	require.NoError(t, err)

	img, err := NewEngine(fonts).Render([]agenda.Entry{timed(9, "A", ""), timed(10, "B", "")}, now)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, Width, Height), img.Bounds())

	for y := 146; y < 150; y++ {
		assert.Zero(t, img.GrayAt(0, y).Y, "header row %d", y)
		assert.Zero(t, img.GrayAt(Width-1, y).Y, "header row %d", y)
	}
	assert.Equal(t, uint8(0xff), img.GrayAt(0, 145).Y)
	assert.Equal(t, uint8(0xff), img.GrayAt(0, 150).Y)

	// 2px divider centered on y=279: rows 278 and 279.
	assert.Zero(t, img.GrayAt(300, 278).Y)
	assert.Zero(t, img.GrayAt(300, 279).Y)
	assert.Equal(t, uint8(0xff), img.GrayAt(300, 280).Y)
	assert.Equal(t, uint8(0xff), img.GrayAt(5, 279).Y)

	// Nothing below the second slot.
	assert.Equal(t, uint8(0xff), img.GrayAt(300, 409).Y)
}

func TestEngineRenderIsDeterministic(t *testing.T) {
	fonts, err := DefaultFontSet()
	require.NoError(t, err)
	e := NewEngine(fonts)

	a, err := e.Render(nil, now)
	require.NoError(t, err)
	b, err := e.Render(nil, now)
	require.NoError(t, err)
	assert.Equal(t, a.Pix, b.Pix)
}
