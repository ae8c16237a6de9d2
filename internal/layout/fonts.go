package layout

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
)

// Face sizes in pixels (faces are built at 72 DPI, so points == pixels).
const (
	SizeWeekday     = 54
	SizeMonth       = 54
	SizeDay         = 124
	SizeStartTime   = 26
	SizeEndTime     = 25
	SizeTitle       = 32
	SizeDescription = 24
	SizeEmpty       = 32
)

// FontSet holds the parsed font files. Parsed fonts are immutable and can
// be shared between concurrent renders; Faces built from them cannot.
type FontSet struct {
	Regular *opentype.Font
	Bold    *opentype.Font
	Italic  *opentype.Font
}

// Faces are the sized faces used by one render.
type Faces struct {
	Weekday     font.Face
	Month       font.Face
	Day         font.Face
	StartTime   font.Face
	EndTime     font.Face
	Title       font.Face
	Description font.Face
	Empty       font.Face
}

// DefaultFontSet returns the Go fonts bundled with golang.org/x/image.
func DefaultFontSet() (*FontSet, error) {
	return parseFontSet(goregular.TTF, gobold.TTF, goitalic.TTF)
}

// LoadFontSet loads Regular, Bold and Italic TrueType files from dir,
// matching file names ending in "-Regular.ttf", "-Bold.ttf" and
// "-Italic.ttf" (e.g. Ubuntu-Regular.ttf). An empty dir returns
// DefaultFontSet.
func LoadFontSet(dir string) (*FontSet, error) {
	if dir == "" {
		return DefaultFontSet()
	}

	files := make([][]byte, 0, 3)
	for _, style := range []string{"Regular", "Bold", "Italic"} {
		data, err := readStyle(dir, style)
		if err != nil {
			return nil, err
		}
		files = append(files, data)
	}
	return parseFontSet(files[0], files[1], files[2])
}

func readStyle(dir, style string) ([]byte, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*-"+style+".[tT][tT][fF]"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("layout: no *-%s.ttf font in %s", style, dir)
	}
	// Prefer a plain family file over e.g. "UbuntuMono-Regular.ttf".
	best := matches[0]
	for _, m := range matches[1:] {
		if len(filepath.Base(m)) < len(filepath.Base(best)) {
			best = m
		}
	}
	return os.ReadFile(best)
}

func parseFontSet(regular, bold, italic []byte) (*FontSet, error) {
	var set FontSet
	var errs []error
	for _, f := range []struct {
		name string
		data []byte
		dst  **opentype.Font
	}{
		{"regular", regular, &set.Regular},
		{"bold", bold, &set.Bold},
		{"italic", italic, &set.Italic},
	} {
		parsed, err := opentype.Parse(f.data)
		if err != nil {
			errs = append(errs, fmt.Errorf("layout: parse %s font: %w", f.name, err))
			continue
		}
		*f.dst = parsed
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &set, nil
}

// Faces builds the sized faces for one render. Close them when done.
func (s *FontSet) Faces() (*Faces, error) {
	var out Faces
	specs := []struct {
		dst  *font.Face
		font *opentype.Font
		size float64
	}{
		{&out.Weekday, s.Bold, SizeWeekday},
		{&out.Month, s.Regular, SizeMonth},
		{&out.Day, s.Bold, SizeDay},
		{&out.StartTime, s.Bold, SizeStartTime},
		{&out.EndTime, s.Regular, SizeEndTime},
		{&out.Title, s.Regular, SizeTitle},
		{&out.Description, s.Italic, SizeDescription},
		{&out.Empty, s.Italic, SizeEmpty},
	}
	for _, sp := range specs {
		face, err := opentype.NewFace(sp.font, &opentype.FaceOptions{
			Size:    sp.size,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("layout: face %.0fpx: %w", sp.size, err)
		}
		*sp.dst = face
	}
	return &out, nil
}

// Close releases all faces.
func (f *Faces) Close() {
	for _, face := range []font.Face{f.Weekday, f.Month, f.Day, f.StartTime, f.EndTime, f.Title, f.Description, f.Empty} {
		if face != nil {
			_ = face.Close()
		}
	}
}

// Describe lists the full font names, for log lines.
func (s *FontSet) Describe() string {
	names := make([]string, 0, 3)
	for _, f := range []*opentype.Font{s.Regular, s.Bold, s.Italic} {
		var buf sfnt.Buffer
		name, err := f.Name(&buf, sfnt.NameIDFull)
		if err != nil {
			name = "?"
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}
